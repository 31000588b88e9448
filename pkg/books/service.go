package books

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dshein-alt/ropds/pkg/database"
	"github.com/dshein-alt/ropds/pkg/errcodes"
	"github.com/dshein-alt/ropds/pkg/metadata"
	"github.com/dshein-alt/ropds/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type RetrieveBookOptions struct {
	ID       *int
	Path     *string
	Filename *string
	// WithRelations loads authors, genres and series alongside the row.
	WithRelations bool
}

type ListBooksOptions struct {
	CatalogID *int
	AuthorID  *int
	SeriesID  *int
	GenreID   *int
	ID        *int

	// LangCode restricts to one alphabet bucket; zero means all.
	LangCode int
	// Lang filters on the book's declared language (the ?lang= facet).
	Lang          *string
	TitlePrefix   *string
	TitleContains *string
	TitleExact    *string

	// Recent orders by registration date, newest first.
	Recent bool
	// ShelfUserID lists the user's bookshelf, most recently read first.
	ShelfUserID *int

	HideDoubles bool
	Limit       *int
	Offset      *int

	includeTotal bool
}

// DuplicateGroup is one set of books sharing (search_title, author_key).
type DuplicateGroup struct {
	BookID      int    `bun:"id"`
	SearchTitle string `bun:"search_title"`
	AuthorKey   string `bun:"author_key"`
	Count       int    `bun:"cnt"`
}

type Service struct {
	db *database.DB
}

func NewService(db *database.DB) *Service {
	return &Service{db}
}

// Create inserts a new book row. Derived columns that the caller left empty
// are filled from the title.
func (svc *Service) Create(ctx context.Context, book *models.Book) error {
	if book.SearchTitle == "" {
		book.SearchTitle = strings.ToUpper(book.Title)
	}
	if book.LangCode == 0 {
		book.LangCode = metadata.DetectLangCode(book.SearchTitle)
	}
	if book.RegDate.IsZero() {
		book.RegDate = time.Now()
	}

	_, err := svc.db.NewInsert().Model(book).Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) RetrieveBook(ctx context.Context, opts RetrieveBookOptions) (*models.Book, error) {
	book := &models.Book{}

	q := svc.db.NewSelect().Model(book)
	if opts.WithRelations {
		q = q.
			Relation("Catalog").
			Relation("Authors", func(sq *bun.SelectQuery) *bun.SelectQuery {
				return sq.Order("a.search_full_name")
			}).
			Relation("Genres").
			Relation("Series").
			Relation("Series.Series")
	}
	if opts.ID != nil {
		q = q.Where("b.id = ?", *opts.ID)
	}
	if opts.Path != nil {
		q = q.Where("b.path = ?", *opts.Path)
	}
	if opts.Filename != nil {
		q = q.Where("b.filename = ?", *opts.Filename)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}
	return book, nil
}

func (svc *Service) ListBooks(ctx context.Context, opts ListBooksOptions) ([]*models.Book, error) {
	b, _, err := svc.listBooksWithTotal(ctx, opts)
	return b, errors.WithStack(err)
}

func (svc *Service) ListBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	opts.includeTotal = true
	return svc.listBooksWithTotal(ctx, opts)
}

func (svc *Service) listBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	books := []*models.Book{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&books).
		Relation("Authors", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("a.search_full_name")
		}).
		Relation("Genres").
		Relation("Series").
		Relation("Series.Series").
		Where("b.avail > ?", models.AvailDeleted)

	switch {
	case opts.Recent:
		q = q.OrderExpr("b.reg_date DESC")
	case opts.ShelfUserID != nil:
		q = q.
			Join("JOIN bookshelf AS bsh ON bsh.book_id = b.id").
			Where("bsh.user_id = ?", *opts.ShelfUserID).
			OrderExpr("bsh.read_time DESC")
	case opts.SeriesID != nil:
		q = q.
			Join("JOIN book_series AS bser ON bser.book_id = b.id").
			Where("bser.series_id = ?", *opts.SeriesID).
			OrderExpr("bser.ser_no, b.search_title")
	default:
		q = q.OrderExpr(svc.db.CaseInsensitiveOrder("b.title"))
	}

	if opts.CatalogID != nil {
		q = q.Where("b.catalog_id = ?", *opts.CatalogID)
	}
	if opts.AuthorID != nil {
		q = q.
			Join("JOIN book_authors AS bau ON bau.book_id = b.id").
			Where("bau.author_id = ?", *opts.AuthorID)
	}
	if opts.GenreID != nil {
		q = q.
			Join("JOIN book_genres AS bge ON bge.book_id = b.id").
			Where("bge.genre_id = ?", *opts.GenreID)
	}
	if opts.ID != nil {
		q = q.Where("b.id = ?", *opts.ID)
	}
	if opts.LangCode != 0 {
		q = q.Where("b.lang_code = ?", opts.LangCode)
	}
	if opts.Lang != nil {
		q = q.Where("b.lang = ?", *opts.Lang)
	}
	if opts.TitlePrefix != nil {
		q = q.Where("b.search_title LIKE ?", strings.ToUpper(*opts.TitlePrefix)+"%")
	}
	if opts.TitleContains != nil {
		q = q.Where("b.search_title LIKE ?", "%"+strings.ToUpper(*opts.TitleContains)+"%")
	}
	if opts.TitleExact != nil {
		q = q.Where("b.search_title = ?", strings.ToUpper(*opts.TitleExact))
	}

	// A direct id lookup never collapses duplicates.
	if opts.HideDoubles && opts.ID == nil {
		q = q.Where("b.id = (SELECT min(b2.id) FROM books AS b2 WHERE b2.search_title = b.search_title AND b2.author_key = b.author_key AND b2.avail > 0)")
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
	return books, total, nil
}

// PrefixGroups returns the next-character buckets over available book
// titles.
func (svc *Service) PrefixGroups(ctx context.Context, langCode int, prefix string) ([]database.PrefixGroup, error) {
	return svc.db.PrefixGroups(ctx, database.PrefixGroupQuery{
		Table:    "books",
		Column:   "search_title",
		LangCode: langCode,
		Prefix:   strings.ToUpper(prefix),
		Where:    "avail > 0",
	})
}

// Languages returns the distinct declared languages of available books,
// ordered alphabetically. Books without a language are skipped.
func (svc *Service) Languages(ctx context.Context) ([]string, error) {
	langs := []string{}
	err := svc.db.
		NewSelect().
		Model((*models.Book)(nil)).
		ColumnExpr("DISTINCT b.lang").
		Where("b.avail > ?", models.AvailDeleted).
		Where("b.lang <> ''").
		OrderExpr("b.lang").
		Scan(ctx, &langs)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return langs, nil
}

// BuildAuthorKey joins sorted author ids into the dedup key stored on the
// book row.
func BuildAuthorKey(authorIDs []int) string {
	ids := append([]int(nil), authorIDs...)
	sort.Ints(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ":")
}

// SetBookAuthors replaces the book's author links and recomputes author_key,
// all in one transaction so readers never observe a half-linked book.
func (svc *Service) SetBookAuthors(ctx context.Context, bookID int, authorIDs []int) error {
	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.
			NewDelete().
			Model((*models.BookAuthor)(nil)).
			Where("book_id = ?", bookID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		if len(authorIDs) > 0 {
			links := make([]*models.BookAuthor, len(authorIDs))
			for i, id := range authorIDs {
				links[i] = &models.BookAuthor{BookID: bookID, AuthorID: id}
			}
			if _, err := tx.NewInsert().Model(&links).Exec(ctx); err != nil {
				return errors.WithStack(err)
			}
		}

		_, err = tx.
			NewUpdate().
			Model((*models.Book)(nil)).
			Set("author_key = ?", BuildAuthorKey(authorIDs)).
			Where("id = ?", bookID).
			Exec(ctx)
		return errors.WithStack(err)
	})
	return errors.WithStack(err)
}

// SetBookGenres replaces the book's genre links.
func (svc *Service) SetBookGenres(ctx context.Context, bookID int, genreIDs []int) error {
	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.
			NewDelete().
			Model((*models.BookGenre)(nil)).
			Where("book_id = ?", bookID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		if len(genreIDs) == 0 {
			return nil
		}
		links := make([]*models.BookGenre, len(genreIDs))
		for i, id := range genreIDs {
			links[i] = &models.BookGenre{BookID: bookID, GenreID: id}
		}
		_, err = tx.NewInsert().Model(&links).Exec(ctx)
		return errors.WithStack(err)
	})
	return errors.WithStack(err)
}

// SetBookSeries replaces the book's series link.
func (svc *Service) SetBookSeries(ctx context.Context, bookID, seriesID, serNo int) error {
	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.
			NewDelete().
			Model((*models.BookSeries)(nil)).
			Where("book_id = ?", bookID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		link := &models.BookSeries{BookID: bookID, SeriesID: seriesID, SerNo: serNo}
		_, err = tx.NewInsert().Model(link).Exec(ctx)
		return errors.WithStack(err)
	})
	return errors.WithStack(err)
}

// SweepToUnverified marks every confirmed book as unverified at the start of
// a scan.
func (svc *Service) SweepToUnverified(ctx context.Context) error {
	_, err := svc.db.
		NewUpdate().
		Model((*models.Book)(nil)).
		Set("avail = ?", models.AvailUnverified).
		Where("avail = ?", models.AvailConfirmed).
		Exec(ctx)
	return errors.WithStack(err)
}

// Confirm marks one book as re-observed by the current scan.
func (svc *Service) Confirm(ctx context.Context, bookID int) error {
	_, err := svc.db.
		NewUpdate().
		Model((*models.Book)(nil)).
		Set("avail = ?", models.AvailConfirmed).
		Where("id = ?", bookID).
		Exec(ctx)
	return errors.WithStack(err)
}

// DeleteUnverified removes books the scan did not re-observe, returning the
// number of deleted rows. Link rows go first so no orphaned links survive.
func (svc *Service) DeleteUnverified(ctx context.Context) (int64, error) {
	var deleted int64

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		const stale = "(SELECT id FROM books WHERE avail < 2)"
		for _, table := range []string{"book_authors", "book_genres", "book_series", "bookshelf", "reading_positions"} {
			if _, err := tx.Exec("DELETE FROM " + table + " WHERE book_id IN " + stale); err != nil {
				return errors.WithStack(err)
			}
		}

		res, err := tx.
			NewDelete().
			Model((*models.Book)(nil)).
			Where("avail < ?", models.AvailConfirmed).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		deleted, err = res.RowsAffected()
		return errors.WithStack(err)
	})
	return deleted, errors.WithStack(err)
}

// CountDoubles returns how many available books share this book's
// (search_title, author_key) pair, the book itself included.
func (svc *Service) CountDoubles(ctx context.Context, bookID int) (int, error) {
	book, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &bookID})
	if err != nil {
		return 0, err
	}

	count, err := svc.db.
		NewSelect().
		Model((*models.Book)(nil)).
		Where("b.search_title = ?", book.SearchTitle).
		Where("b.author_key = ?", book.AuthorKey).
		Where("b.avail > ?", models.AvailDeleted).
		Count(ctx)
	return count, errors.WithStack(err)
}

// DuplicateGroups lists the (search_title, author_key) groups holding more
// than one available book.
func (svc *Service) DuplicateGroups(ctx context.Context, limit, offset int) ([]DuplicateGroup, error) {
	groups := []DuplicateGroup{}

	err := svc.db.
		NewSelect().
		TableExpr("books").
		ColumnExpr("min(id) AS id").
		ColumnExpr("search_title").
		ColumnExpr("author_key").
		ColumnExpr("count(*) AS cnt").
		Where("avail > ?", models.AvailDeleted).
		GroupExpr("search_title, author_key").
		Having("count(*) > 1").
		OrderExpr("search_title").
		Limit(limit).
		Offset(offset).
		Scan(ctx, &groups)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return groups, nil
}

// CountDuplicateGroups counts the groups DuplicateGroups would return.
func (svc *Service) CountDuplicateGroups(ctx context.Context) (int, error) {
	var count int
	err := svc.db.
		NewSelect().
		ColumnExpr("count(*)").
		TableExpr("(SELECT 1 FROM books WHERE avail > 0 GROUP BY search_title, author_key HAVING count(*) > 1) AS dup").
		Scan(ctx, &count)
	return count, errors.WithStack(err)
}

// CountAvailable counts books visible to the catalogs; it feeds the
// allbooks counter.
func (svc *Service) CountAvailable(ctx context.Context) (int, error) {
	count, err := svc.db.
		NewSelect().
		Model((*models.Book)(nil)).
		Where("b.avail > ?", models.AvailDeleted).
		Count(ctx)
	return count, errors.WithStack(err)
}
