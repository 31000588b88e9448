package migrations

import (
	"context"

	"github.com/dshein-alt/ropds/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(ctx context.Context, db *bun.DB) error {
		// Table DDL goes through bun so that each backend gets its own
		// autoincrement and timestamp syntax.
		tables := []interface{}{
			(*models.Catalog)(nil),
			(*models.Book)(nil),
			(*models.Author)(nil),
			(*models.Series)(nil),
			(*models.Genre)(nil),
			(*models.GenreTranslation)(nil),
			(*models.GenreSectionTranslation)(nil),
			(*models.BookAuthor)(nil),
			(*models.BookGenre)(nil),
			(*models.BookSeries)(nil),
			(*models.Counter)(nil),
		}
		for _, table := range tables {
			_, err := db.NewCreateTable().Model(table).IfNotExists().Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}

		indexes := []struct {
			name    string
			model   interface{}
			columns []string
			unique  bool
		}{
			{"ux_catalogs_path", (*models.Catalog)(nil), []string{"path"}, true},
			{"ux_books_path_filename", (*models.Book)(nil), []string{"path", "filename"}, true},
			{"ix_books_catalog_id", (*models.Book)(nil), []string{"catalog_id"}, false},
			{"ix_books_search_title", (*models.Book)(nil), []string{"search_title"}, false},
			{"ix_books_author_key", (*models.Book)(nil), []string{"author_key"}, false},
			{"ix_books_reg_date", (*models.Book)(nil), []string{"reg_date"}, false},
			{"ix_books_avail", (*models.Book)(nil), []string{"avail"}, false},
			{"ux_authors_full_name", (*models.Author)(nil), []string{"full_name"}, true},
			{"ix_authors_search_full_name", (*models.Author)(nil), []string{"search_full_name"}, false},
			{"ux_series_ser_name", (*models.Series)(nil), []string{"ser_name"}, true},
			{"ix_series_search_ser", (*models.Series)(nil), []string{"search_ser"}, false},
			{"ux_genres_code", (*models.Genre)(nil), []string{"code"}, true},
			{"ux_genre_translations", (*models.GenreTranslation)(nil), []string{"genre_id", "lang"}, true},
			{"ux_genre_section_translations", (*models.GenreSectionTranslation)(nil), []string{"section_id", "lang"}, true},
			{"ix_book_authors_author_id", (*models.BookAuthor)(nil), []string{"author_id"}, false},
			{"ix_book_genres_genre_id", (*models.BookGenre)(nil), []string{"genre_id"}, false},
			{"ix_book_series_series_id", (*models.BookSeries)(nil), []string{"series_id"}, false},
		}
		for _, ix := range indexes {
			q := db.NewCreateIndex().Model(ix.model).Index(ix.name).Column(ix.columns...).IfNotExists()
			if ix.unique {
				q = q.Unique()
			}
			_, err := q.Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}

		return nil
	}

	down := func(ctx context.Context, db *bun.DB) error {
		tables := []string{
			"counters", "book_series", "book_genres", "book_authors",
			"genre_section_translations", "genre_translations", "genres",
			"series", "authors", "books", "catalogs",
		}
		for _, table := range tables {
			_, err := db.Exec("DROP TABLE IF EXISTS " + table)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}
