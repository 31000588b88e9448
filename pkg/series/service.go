package series

import (
	"context"
	"database/sql"
	"strings"

	"github.com/dshein-alt/ropds/pkg/database"
	"github.com/dshein-alt/ropds/pkg/errcodes"
	"github.com/dshein-alt/ropds/pkg/metadata"
	"github.com/dshein-alt/ropds/pkg/models"
	"github.com/pkg/errors"
)

type RetrieveSeriesOptions struct {
	ID      *int
	SerName *string
}

type ListSeriesOptions struct {
	LangCode int
	Prefix   *string
	Contains *string
	Exact    *string
	Limit    *int
	Offset   *int

	includeTotal bool
}

type Service struct {
	db *database.DB
}

func NewService(db *database.DB) *Service {
	return &Service{db}
}

// Insert returns the series with the given name, creating the row when
// absent.
func (svc *Service) Insert(ctx context.Context, serName string) (*models.Series, error) {
	serName = metadata.StripMeta(serName)
	if serName == "" {
		return nil, errors.New("series name is empty")
	}
	search := strings.ToUpper(serName)

	ser := &models.Series{
		SerName:   serName,
		SearchSer: search,
		LangCode:  metadata.DetectLangCode(search),
	}
	q := svc.db.NewInsert().Model(ser)
	if _, err := svc.db.InsertIgnore(q, "ser_name").Exec(ctx); err != nil {
		return nil, errors.WithStack(err)
	}

	existing := &models.Series{}
	err := svc.db.NewSelect().Model(existing).Where("s.ser_name = ?", serName).Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return existing, nil
}

func (svc *Service) RetrieveSeries(ctx context.Context, opts RetrieveSeriesOptions) (*models.Series, error) {
	ser := &models.Series{}

	q := svc.db.NewSelect().Model(ser)
	if opts.ID != nil {
		q = q.Where("s.id = ?", *opts.ID)
	}
	if opts.SerName != nil {
		q = q.Where("s.ser_name = ?", *opts.SerName)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Series")
		}
		return nil, errors.WithStack(err)
	}
	return ser, nil
}

func (svc *Service) ListSeries(ctx context.Context, opts ListSeriesOptions) ([]*models.Series, error) {
	s, _, err := svc.listSeriesWithTotal(ctx, opts)
	return s, errors.WithStack(err)
}

func (svc *Service) ListSeriesWithTotal(ctx context.Context, opts ListSeriesOptions) ([]*models.Series, int, error) {
	opts.includeTotal = true
	return svc.listSeriesWithTotal(ctx, opts)
}

func (svc *Service) listSeriesWithTotal(ctx context.Context, opts ListSeriesOptions) ([]*models.Series, int, error) {
	series := []*models.Series{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&series).
		OrderExpr("s.search_ser")

	if opts.LangCode != 0 {
		q = q.Where("s.lang_code = ?", opts.LangCode)
	}
	if opts.Prefix != nil {
		q = q.Where("s.search_ser LIKE ?", strings.ToUpper(*opts.Prefix)+"%")
	}
	if opts.Contains != nil {
		q = q.Where("s.search_ser LIKE ?", "%"+strings.ToUpper(*opts.Contains)+"%")
	}
	if opts.Exact != nil {
		q = q.Where("s.search_ser = ?", strings.ToUpper(*opts.Exact))
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	return series, total, nil
}

func (svc *Service) PrefixGroups(ctx context.Context, langCode int, prefix string) ([]database.PrefixGroup, error) {
	return svc.db.PrefixGroups(ctx, database.PrefixGroupQuery{
		Table:    "series",
		Column:   "search_ser",
		LangCode: langCode,
		Prefix:   strings.ToUpper(prefix),
	})
}

// CleanupOrphans deletes series no longer linked to any book.
func (svc *Service) CleanupOrphans(ctx context.Context) (int64, error) {
	res, err := svc.db.
		NewDelete().
		Model((*models.Series)(nil)).
		Where("id NOT IN (SELECT DISTINCT series_id FROM book_series)").
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	return n, errors.WithStack(err)
}

func (svc *Service) Count(ctx context.Context) (int, error) {
	count, err := svc.db.NewSelect().Model((*models.Series)(nil)).Count(ctx)
	return count, errors.WithStack(err)
}
