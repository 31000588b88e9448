package models

import "github.com/uptrace/bun"

// RegisterMany2Many registers the join models bun needs to resolve the m2m
// relations on Book. Call once per bun.DB before any relational query.
func RegisterMany2Many(db *bun.DB) {
	db.RegisterModel((*BookAuthor)(nil), (*BookGenre)(nil), (*BookSeries)(nil))
}
