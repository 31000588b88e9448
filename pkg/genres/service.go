package genres

import (
	"context"
	"database/sql"

	"github.com/dshein-alt/ropds/pkg/database"
	"github.com/dshein-alt/ropds/pkg/errcodes"
	"github.com/dshein-alt/ropds/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

const fallbackLang = "en"

// Section is a translated genre section with the number of genres that have
// at least one available book.
type Section struct {
	ID    int    `bun:"section_id"`
	Name  string `bun:"name"`
	Count int    `bun:"cnt"`
}

// TranslatedGenre is one genre with its display name in the requested
// language and its available-book count.
type TranslatedGenre struct {
	ID    int    `bun:"id"`
	Code  string `bun:"code"`
	Name  string `bun:"name"`
	Count int    `bun:"cnt"`
}

type Service struct {
	db *database.DB
}

func NewService(db *database.DB) *Service {
	return &Service{db}
}

func (svc *Service) RetrieveByCode(ctx context.Context, code string) (*models.Genre, error) {
	genre := &models.Genre{}
	err := svc.db.NewSelect().Model(genre).Where("g.code = ?", code).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Genre")
		}
		return nil, errors.WithStack(err)
	}
	return genre, nil
}

func (svc *Service) RetrieveByID(ctx context.Context, id int) (*models.Genre, error) {
	genre := &models.Genre{}
	err := svc.db.NewSelect().Model(genre).Where("g.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Genre")
		}
		return nil, errors.WithStack(err)
	}
	return genre, nil
}

// ListSections returns the genre sections that have at least one available
// book, named in lang with an English fallback.
func (svc *Service) ListSections(ctx context.Context, lang string) ([]Section, error) {
	sections := []Section{}

	err := svc.db.
		NewSelect().
		TableExpr("genres AS g").
		ColumnExpr("g.section_id AS section_id").
		ColumnExpr("coalesce(max(tr.name), max(fb.name)) AS name").
		ColumnExpr("count(DISTINCT g.id) AS cnt").
		Join("JOIN book_genres AS bg ON bg.genre_id = g.id").
		Join("JOIN books AS b ON b.id = bg.book_id AND b.avail > 0").
		Join("LEFT JOIN genre_section_translations AS tr ON tr.section_id = g.section_id AND tr.lang = ?", lang).
		Join("LEFT JOIN genre_section_translations AS fb ON fb.section_id = g.section_id AND fb.lang = ?", fallbackLang).
		GroupExpr("g.section_id").
		OrderExpr("g.section_id").
		Scan(ctx, &sections)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return sections, nil
}

// ListBySection returns the genres of one section that have available books,
// with translated names and book counts.
func (svc *Service) ListBySection(ctx context.Context, sectionID int, lang string) ([]TranslatedGenre, error) {
	genres := []TranslatedGenre{}

	err := svc.db.
		NewSelect().
		TableExpr("genres AS g").
		ColumnExpr("g.id AS id").
		ColumnExpr("g.code AS code").
		ColumnExpr("coalesce(max(tr.name), max(fb.name), g.code) AS name").
		ColumnExpr("count(bg.book_id) AS cnt").
		Join("JOIN book_genres AS bg ON bg.genre_id = g.id").
		Join("JOIN books AS b ON b.id = bg.book_id AND b.avail > 0").
		Join("LEFT JOIN genre_translations AS tr ON tr.genre_id = g.id AND tr.lang = ?", lang).
		Join("LEFT JOIN genre_translations AS fb ON fb.genre_id = g.id AND fb.lang = ?", fallbackLang).
		Where("g.section_id = ?", sectionID).
		GroupExpr("g.id, g.code").
		OrderExpr("name").
		Scan(ctx, &genres)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return genres, nil
}

// TranslatedName resolves the display name of one genre in lang, falling
// back to English and finally to the genre code.
func (svc *Service) TranslatedName(ctx context.Context, genreID int, lang string) (string, error) {
	translations := []models.GenreTranslation{}
	err := svc.db.
		NewSelect().
		Model(&translations).
		Where("gt.genre_id = ?", genreID).
		Where("gt.lang IN (?)", bun.In([]string{lang, fallbackLang})).
		Scan(ctx)
	if err != nil {
		return "", errors.WithStack(err)
	}

	var fallback string
	for _, tr := range translations {
		if tr.Lang == lang {
			return tr.Name, nil
		}
		if tr.Lang == fallbackLang {
			fallback = tr.Name
		}
	}
	if fallback != "" {
		return fallback, nil
	}

	genre, err := svc.RetrieveByID(ctx, genreID)
	if err != nil {
		return "", err
	}
	return genre.Code, nil
}

// UpsertTranslation inserts or updates one genre translation.
func (svc *Service) UpsertTranslation(ctx context.Context, genreID int, lang, name string) error {
	translation := &models.GenreTranslation{
		GenreID: genreID,
		Lang:    lang,
		Name:    name,
	}
	q := svc.db.NewInsert().Model(translation)
	_, err := svc.db.Upsert(q, []string{"genre_id", "lang"}, []string{"name"}).Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) Count(ctx context.Context) (int, error) {
	count, err := svc.db.NewSelect().Model((*models.Genre)(nil)).Count(ctx)
	return count, errors.WithStack(err)
}
