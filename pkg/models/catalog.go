package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Catalog types. A catalog is a directory, an archive, an INPX index, or a
// single INP file inside one.
const (
	CatTypeNormal = 0
	CatTypeZip    = 1
	CatTypeInpx   = 2
	CatTypeInp    = 3
)

type Catalog struct {
	bun.BaseModel `bun:"table:catalogs,alias:c"`

	ID       int       `bun:",pk,autoincrement" json:"id"`
	ParentID *int      `json:"parent_id,omitempty"`
	Path     string    `bun:",nullzero" json:"path"`
	CatName  string    `bun:",nullzero" json:"cat_name"`
	CatType  int       `json:"cat_type"`
	CatSize  int64     `json:"cat_size"`
	CatMtime time.Time `bun:",nullzero" json:"cat_mtime"`
}
