package counters

import (
	"context"
	"database/sql"
	"time"

	"github.com/dshein-alt/ropds/pkg/database"
	"github.com/dshein-alt/ropds/pkg/models"
	"github.com/pkg/errors"
)

type Service struct {
	db *database.DB
}

func NewService(db *database.DB) *Service {
	return &Service{db}
}

// Recompute refreshes all five cached aggregates from their authoritative
// tables. It runs after the scan's deletion phase so the values reflect the
// post-scan state.
func (svc *Service) Recompute(ctx context.Context) error {
	books, err := svc.db.
		NewSelect().
		Model((*models.Book)(nil)).
		Where("b.avail > ?", models.AvailDeleted).
		Count(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	counts := map[string]int{models.CounterAllBooks: books}
	for name, model := range map[string]interface{}{
		models.CounterAllCatalogs: (*models.Catalog)(nil),
		models.CounterAllAuthors:  (*models.Author)(nil),
		models.CounterAllGenres:   (*models.Genre)(nil),
		models.CounterAllSeries:   (*models.Series)(nil),
	} {
		count, err := svc.db.NewSelect().Model(model).Count(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		counts[name] = count
	}

	now := time.Now()
	for name, value := range counts {
		counter := &models.Counter{Name: name, Value: value, UpdatedAt: now}
		q := svc.db.NewInsert().Model(counter)
		_, err := svc.db.Upsert(q, []string{"name"}, []string{"value", "updated_at"}).Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// Retrieve returns one counter's cached value; a counter never written yet
// reads as zero.
func (svc *Service) Retrieve(ctx context.Context, name string) (int, error) {
	counter := &models.Counter{}
	err := svc.db.NewSelect().Model(counter).Where("cnt.name = ?", name).Scan(ctx)
	if err != nil {
		// Missing counter rows only happen before the first scan.
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, errors.WithStack(err)
	}
	return counter.Value, nil
}

// List returns all counters keyed by name.
func (svc *Service) List(ctx context.Context) (map[string]int, error) {
	counters := []*models.Counter{}
	err := svc.db.NewSelect().Model(&counters).Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	out := make(map[string]int, len(counters))
	for _, c := range counters {
		out[c.Name] = c.Value
	}
	return out, nil
}
