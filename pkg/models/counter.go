package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Counter names recomputed at the end of every scan.
const (
	CounterAllBooks    = "allbooks"
	CounterAllCatalogs = "allcatalogs"
	CounterAllAuthors  = "allauthors"
	CounterAllGenres   = "allgenres"
	CounterAllSeries   = "allseries"
)

type Counter struct {
	bun.BaseModel `bun:"table:counters,alias:cnt"`

	Name      string    `bun:",pk" json:"name"`
	Value     int       `json:"value"`
	UpdatedAt time.Time `bun:",nullzero" json:"updated_at"`
}
