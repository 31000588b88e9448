package authors

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

type RetrieveAuthorOptions struct {
	ID       *int
	FullName *string
}

type ListAuthorsOptions struct {
	// LangCode restricts to one alphabet bucket; zero means all.
	LangCode int
	// Exactly one of the match options applies; Prefix and Contains operate
	// on the uppercased search column.
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

// Insert returns the author with the given normalised full name, creating
// the row when absent. The insert ignores the unique conflict and re-selects
// so concurrent inserts of the same name converge on one id.
func (svc *Service) Insert(ctx context.Context, fullName string) (*models.Author, error) {
	fullName = metadata.StripMeta(fullName)
	if fullName == "" {
		return nil, errors.New("author name is empty")
	}
	search := strings.ToUpper(fullName)

	author := &models.Author{
		FullName:       fullName,
		SearchFullName: search,
		LangCode:       metadata.DetectLangCode(search),
	}
	q := svc.db.NewInsert().Model(author)
	if _, err := svc.db.InsertIgnore(q, "full_name").Exec(ctx); err != nil {
		return nil, errors.WithStack(err)
	}

	existing := &models.Author{}
	err := svc.db.NewSelect().Model(existing).Where("a.full_name = ?", fullName).Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return existing, nil
}

func (svc *Service) RetrieveAuthor(ctx context.Context, opts RetrieveAuthorOptions) (*models.Author, error) {
	author := &models.Author{}

	q := svc.db.NewSelect().Model(author)
	if opts.ID != nil {
		q = q.Where("a.id = ?", *opts.ID)
	}
	if opts.FullName != nil {
		q = q.Where("a.full_name = ?", *opts.FullName)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Author")
		}
		return nil, errors.WithStack(err)
	}
	return author, nil
}

func (svc *Service) ListAuthors(ctx context.Context, opts ListAuthorsOptions) ([]*models.Author, error) {
	a, _, err := svc.listAuthorsWithTotal(ctx, opts)
	return a, errors.WithStack(err)
}

func (svc *Service) ListAuthorsWithTotal(ctx context.Context, opts ListAuthorsOptions) ([]*models.Author, int, error) {
	opts.includeTotal = true
	return svc.listAuthorsWithTotal(ctx, opts)
}

func (svc *Service) listAuthorsWithTotal(ctx context.Context, opts ListAuthorsOptions) ([]*models.Author, int, error) {
	authors := []*models.Author{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&authors).
		OrderExpr("a.search_full_name")

	if opts.LangCode != 0 {
		q = q.Where("a.lang_code = ?", opts.LangCode)
	}
	if opts.Prefix != nil {
		q = q.Where("a.search_full_name LIKE ?", strings.ToUpper(*opts.Prefix)+"%")
	}
	if opts.Contains != nil {
		q = q.Where("a.search_full_name LIKE ?", "%"+strings.ToUpper(*opts.Contains)+"%")
	}
	if opts.Exact != nil {
		q = q.Where("a.search_full_name = ?", strings.ToUpper(*opts.Exact))
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
	return authors, total, nil
}

// PrefixGroups returns the next-character buckets of the alphabet
// drill-down for the given current prefix.
func (svc *Service) PrefixGroups(ctx context.Context, langCode int, prefix string) ([]database.PrefixGroup, error) {
	return svc.db.PrefixGroups(ctx, database.PrefixGroupQuery{
		Table:    "authors",
		Column:   "search_full_name",
		LangCode: langCode,
		Prefix:   strings.ToUpper(prefix),
	})
}

// CleanupOrphans deletes authors no longer linked to any book.
func (svc *Service) CleanupOrphans(ctx context.Context) (int64, error) {
	res, err := svc.db.
		NewDelete().
		Model((*models.Author)(nil)).
		Where("id NOT IN (SELECT DISTINCT author_id FROM book_authors)").
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	return n, errors.WithStack(err)
}

func (svc *Service) Count(ctx context.Context) (int, error) {
	count, err := svc.db.NewSelect().Model((*models.Author)(nil)).Count(ctx)
	return count, errors.WithStack(err)
}
