package database

import (
	"fmt"
	"strings"

	"github.com/uptrace/bun"
)

// InsertIgnore turns q into an insert that silently skips unique-constraint
// conflicts: ON CONFLICT DO NOTHING on SQLite/PostgreSQL, INSERT IGNORE on
// MySQL.
func (db *DB) InsertIgnore(q *bun.InsertQuery, conflictCols ...string) *bun.InsertQuery {
	if db.Backend == BackendMySQL {
		return q.Ignore()
	}
	if len(conflictCols) > 0 {
		return q.On(fmt.Sprintf("CONFLICT (%s) DO NOTHING", strings.Join(conflictCols, ", ")))
	}
	return q.On("CONFLICT DO NOTHING")
}

// Upsert turns q into an insert that updates updateCols when the row keyed by
// conflictCols already exists.
func (db *DB) Upsert(q *bun.InsertQuery, conflictCols []string, updateCols []string) *bun.InsertQuery {
	if db.Backend == BackendMySQL {
		q = q.On("DUPLICATE KEY UPDATE")
		for _, col := range updateCols {
			q = q.Set(fmt.Sprintf("%s = VALUES(%s)", col, col))
		}
		return q
	}
	q = q.On(fmt.Sprintf("CONFLICT (%s) DO UPDATE", strings.Join(conflictCols, ", ")))
	for _, col := range updateCols {
		q = q.Set(fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	return q
}

// CaseInsensitiveOrder returns an ORDER BY expression that sorts col without
// case sensitivity on every backend. SQLite gets its NOCASE collation, MySQL
// the utf8mb4 general collation; PostgreSQL has no portable collation name,
// so it falls back to upper().
func (db *DB) CaseInsensitiveOrder(col string) string {
	switch db.Backend {
	case BackendSQLite:
		return col + " COLLATE NOCASE"
	case BackendMySQL:
		return col + " COLLATE utf8mb4_general_ci"
	default:
		return "upper(" + col + ")"
	}
}

// DeleteBeyondLimit builds a DELETE that removes the rows matching
// whereClause beyond the keepCount newest by orderCol. The whereClause
// appears twice in the generated SQL, so callers must pass its bind args
// twice. MySQL refuses LIMIT inside a subquery that targets the same table,
// so it gets the nested-SELECT workaround.
func (db *DB) DeleteBeyondLimit(table, idCol, whereClause, orderCol string, keepCount int) string {
	inner := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s ORDER BY %s DESC LIMIT %d",
		idCol, table, whereClause, orderCol, keepCount,
	)
	if db.Backend == BackendMySQL {
		inner = fmt.Sprintf("SELECT * FROM (%s) tmp", inner)
	}
	return fmt.Sprintf(
		"DELETE FROM %s WHERE %s AND %s NOT IN (%s)",
		table, whereClause, idCol, inner,
	)
}
