package models

import "github.com/uptrace/bun"

type Series struct {
	bun.BaseModel `bun:"table:series,alias:s"`

	ID       int    `bun:",pk,autoincrement" json:"id"`
	SerName  string `bun:",nullzero" json:"ser_name"`
	SearchSer string `bun:",nullzero" json:"search_ser"`
	LangCode int    `json:"lang_code"`
}
