package models

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID                     int        `bun:",pk,autoincrement" json:"id"`
	Username               string     `bun:",nullzero" json:"username"`
	PasswordHash           string     `bun:",nullzero" json:"-"`
	IsSuperuser            bool       `json:"is_superuser"`
	CreatedAt              time.Time  `bun:",nullzero" json:"created_at"`
	LastLogin              *time.Time `json:"last_login,omitempty"`
	PasswordChangeRequired bool       `json:"password_change_required"`
	DisplayName            string     `json:"display_name"`
	AllowUpload            bool       `json:"allow_upload"`
}

type Bookshelf struct {
	bun.BaseModel `bun:"table:bookshelf,alias:bsh"`

	UserID   int       `bun:",pk" json:"user_id"`
	BookID   int       `bun:",pk" json:"book_id"`
	ReadTime time.Time `bun:",nullzero" json:"read_time"`
}

type ReadingPosition struct {
	bun.BaseModel `bun:"table:reading_positions,alias:rp"`

	UserID    int       `bun:",pk" json:"user_id"`
	BookID    int       `bun:",pk" json:"book_id"`
	Position  string    `json:"position"`
	Progress  float64   `json:"progress"`
	UpdatedAt time.Time `bun:",nullzero" json:"updated_at"`
}
