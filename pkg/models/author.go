package models

import "github.com/uptrace/bun"

type Author struct {
	bun.BaseModel `bun:"table:authors,alias:a"`

	ID             int    `bun:",pk,autoincrement" json:"id"`
	FullName       string `bun:",nullzero" json:"full_name"`
	SearchFullName string `bun:",nullzero" json:"search_full_name"`
	LangCode       int    `json:"lang_code"`
}
