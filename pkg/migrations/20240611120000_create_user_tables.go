package migrations

import (
	"context"

	"github.com/dshein-alt/ropds/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(ctx context.Context, db *bun.DB) error {
		tables := []interface{}{
			(*models.User)(nil),
			(*models.Bookshelf)(nil),
			(*models.ReadingPosition)(nil),
		}
		for _, table := range tables {
			_, err := db.NewCreateTable().Model(table).IfNotExists().Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}

		_, err := db.NewCreateIndex().
			Model((*models.User)(nil)).
			Index("ux_users_username").
			Column("username").
			Unique().
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.NewCreateIndex().
			Model((*models.Bookshelf)(nil)).
			Index("ix_bookshelf_read_time").
			Column("user_id", "read_time").
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.NewCreateIndex().
			Model((*models.ReadingPosition)(nil)).
			Index("ix_reading_positions_updated_at").
			Column("user_id", "updated_at").
			IfNotExists().
			Exec(ctx)
		return errors.WithStack(err)
	}

	down := func(ctx context.Context, db *bun.DB) error {
		for _, table := range []string{"reading_positions", "bookshelf", "users"} {
			_, err := db.Exec("DROP TABLE IF EXISTS " + table)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}
