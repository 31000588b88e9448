package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Availability states a book moves through during a scan sweep.
const (
	AvailDeleted    = 0
	AvailUnverified = 1
	AvailConfirmed  = 2
)

// Language codes derived from the first significant character of a name.
// They drive the alphabet bucket navigation, not search.
const (
	LangCodeCyrillic = 1
	LangCodeLatin    = 2
	LangCodeDigit    = 3
	LangCodeOther    = 9
)

type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID          int       `bun:",pk,autoincrement" json:"id"`
	CatalogID   int       `json:"catalog_id"`
	Filename    string    `bun:",nullzero" json:"filename"`
	Path        string    `json:"path"`
	Format      string    `bun:",nullzero" json:"format"`
	Title       string    `bun:",nullzero" json:"title"`
	SearchTitle string    `bun:",nullzero" json:"search_title"`
	AuthorKey   string    `json:"author_key"`
	Annotation  string    `json:"annotation"`
	Docdate     string    `json:"docdate"`
	Lang        string    `json:"lang"`
	LangCode    int       `json:"lang_code"`
	Size        int64     `json:"size"`
	Avail       int       `json:"avail"`
	CatType     int       `json:"cat_type"`
	Cover       int       `json:"cover"`
	CoverType   string    `json:"cover_type"`
	RegDate     time.Time `bun:",nullzero" json:"reg_date"`

	Catalog *Catalog  `bun:"rel:belongs-to,join:catalog_id=id" json:"catalog,omitempty"`
	Authors []*Author `bun:"m2m:book_authors,join:Book=Author" json:"authors,omitempty"`
	Genres  []*Genre  `bun:"m2m:book_genres,join:Book=Genre" json:"genres,omitempty"`
	Series  []*BookSeries `bun:"rel:has-many,join:id=book_id" json:"series,omitempty"`
}
