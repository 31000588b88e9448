package models

import "github.com/uptrace/bun"

type BookAuthor struct {
	bun.BaseModel `bun:"table:book_authors,alias:ba"`

	BookID   int     `bun:",pk" json:"book_id"`
	AuthorID int     `bun:",pk" json:"author_id"`
	Book     *Book   `bun:"rel:belongs-to,join:book_id=id" json:"-"`
	Author   *Author `bun:"rel:belongs-to,join:author_id=id" json:"-"`
}

type BookGenre struct {
	bun.BaseModel `bun:"table:book_genres,alias:bg"`

	BookID  int    `bun:",pk" json:"book_id"`
	GenreID int    `bun:",pk" json:"genre_id"`
	Book    *Book  `bun:"rel:belongs-to,join:book_id=id" json:"-"`
	Genre   *Genre `bun:"rel:belongs-to,join:genre_id=id" json:"-"`
}

type BookSeries struct {
	bun.BaseModel `bun:"table:book_series,alias:bs"`

	BookID   int     `bun:",pk" json:"book_id"`
	SeriesID int     `bun:",pk" json:"series_id"`
	SerNo    int     `json:"ser_no"`
	Series   *Series `bun:"rel:belongs-to,join:series_id=id" json:"series,omitempty"`
}
