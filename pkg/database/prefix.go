package database

import (
	"context"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// PrefixGroup is one bucket of the alphabet drill-down: the next-character
// prefix and how many rows share it.
type PrefixGroup struct {
	Prefix string `bun:"prefix"`
	Count  int    `bun:"cnt"`
}

// PrefixGroupQuery describes a next-character grouping over one search
// column. The column is expected to hold uppercased values, so the incoming
// prefix must already be uppercased by the caller.
type PrefixGroupQuery struct {
	Table  string
	Column string
	// LangCode filters by alphabet bucket; zero means all.
	LangCode int
	Prefix   string
	// Where is an optional extra conjunct, e.g. an availability filter.
	Where string
}

// PrefixGroups returns the groups one character longer than q.Prefix with
// their row counts, ordered by prefix. substr is character-based on all
// three backends, so multibyte alphabets group correctly.
func (db *DB) PrefixGroups(ctx context.Context, q PrefixGroupQuery) ([]PrefixGroup, error) {
	length := utf8.RuneCountInString(q.Prefix) + 1

	sel := db.
		NewSelect().
		TableExpr(q.Table).
		ColumnExpr("substr(?, 1, ?) AS prefix", bun.Ident(q.Column), length).
		ColumnExpr("count(*) AS cnt").
		GroupExpr("substr(?, 1, ?)", bun.Ident(q.Column), length).
		OrderExpr("prefix")

	if q.Prefix != "" {
		sel = sel.Where("? LIKE ?", bun.Ident(q.Column), q.Prefix+"%")
	}
	if q.LangCode != 0 {
		sel = sel.Where("lang_code = ?", q.LangCode)
	}
	if q.Where != "" {
		sel = sel.Where(q.Where)
	}

	groups := []PrefixGroup{}
	if err := sel.Scan(ctx, &groups); err != nil {
		return nil, errors.WithStack(err)
	}
	return groups, nil
}
