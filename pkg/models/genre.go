package models

import "github.com/uptrace/bun"

type Genre struct {
	bun.BaseModel `bun:"table:genres,alias:g"`

	ID        int    `bun:",pk,autoincrement" json:"id"`
	Code      string `bun:",nullzero" json:"code"`
	SectionID int    `json:"section_id"`
	// Legacy labels kept for catalogs produced before translations existed.
	Section    string `json:"section"`
	Subsection string `json:"subsection"`
}

type GenreTranslation struct {
	bun.BaseModel `bun:"table:genre_translations,alias:gt"`

	GenreID int    `json:"genre_id"`
	Lang    string `json:"lang"`
	Name    string `json:"name"`
}

type GenreSectionTranslation struct {
	bun.BaseModel `bun:"table:genre_section_translations,alias:gst"`

	SectionID int    `json:"section_id"`
	Lang      string `json:"lang"`
	Name      string `json:"name"`
}
