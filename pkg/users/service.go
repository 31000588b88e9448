package users

import (
	"context"
	"database/sql"
	"time"

	"github.com/dshein-alt/ropds/pkg/database"
	"github.com/dshein-alt/ropds/pkg/errcodes"
	"github.com/dshein-alt/ropds/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

const adminUsername = "admin"

// Password length bounds enforced for admin resets.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 32
)

type CreateUserOptions struct {
	Username               string
	Password               string
	IsSuperuser            bool
	DisplayName            string
	AllowUpload            bool
	PasswordChangeRequired bool
}

type RetrieveUserOptions struct {
	ID       *int
	Username *string
}

type Service struct {
	db *database.DB
}

func NewService(db *database.DB) *Service {
	return &Service{db}
}

func (svc *Service) Create(ctx context.Context, opts CreateUserOptions) (*models.User, error) {
	hash, err := HashPassword(opts.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:               opts.Username,
		PasswordHash:           hash,
		IsSuperuser:            opts.IsSuperuser,
		DisplayName:            opts.DisplayName,
		AllowUpload:            opts.AllowUpload,
		PasswordChangeRequired: opts.PasswordChangeRequired,
		CreatedAt:              time.Now(),
	}
	if _, err := svc.db.NewInsert().Model(user).Exec(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	return user, nil
}

func (svc *Service) RetrieveUser(ctx context.Context, opts RetrieveUserOptions) (*models.User, error) {
	user := &models.User{}

	q := svc.db.NewSelect().Model(user)
	if opts.ID != nil {
		q = q.Where("u.id = ?", *opts.ID)
	}
	if opts.Username != nil {
		q = q.Where("u.username = ?", *opts.Username)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("User")
		}
		return nil, errors.WithStack(err)
	}
	return user, nil
}

// Authenticate verifies credentials and records the login time. Unknown
// usernames and wrong passwords return the same error so the response does
// not leak which usernames exist.
func (svc *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := svc.RetrieveUser(ctx, RetrieveUserOptions{Username: &username})
	if err != nil {
		if errcodes.IsCode(err, "not_found") {
			return nil, errcodes.Unauthorized("invalid username or password")
		}
		return nil, err
	}

	if !VerifyPassword(password, user.PasswordHash) {
		return nil, errcodes.Unauthorized("invalid username or password")
	}

	now := time.Now()
	user.LastLogin = &now
	_, err = svc.db.
		NewUpdate().
		Model((*models.User)(nil)).
		Set("last_login = ?", now).
		Where("id = ?", user.ID).
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return user, nil
}

func (svc *Service) SetPassword(ctx context.Context, userID int, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	_, err = svc.db.
		NewUpdate().
		Model((*models.User)(nil)).
		Set("password_hash = ?", hash).
		Set("password_change_required = ?", false).
		Where("id = ?", userID).
		Exec(ctx)
	return errors.WithStack(err)
}

// EnsureAdmin creates the admin superuser or resets its password.
func (svc *Service) EnsureAdmin(ctx context.Context, password string) error {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return errcodes.ValidationError("password must be 8 to 32 characters")
	}

	username := adminUsername
	user, err := svc.RetrieveUser(ctx, RetrieveUserOptions{Username: &username})
	if err != nil {
		if errcodes.IsCode(err, "not_found") {
			_, err = svc.Create(ctx, CreateUserOptions{
				Username:    adminUsername,
				Password:    password,
				IsSuperuser: true,
			})
		}
		return err
	}
	return svc.SetPassword(ctx, user.ID, password)
}

// AddToShelf puts a book on the user's shelf, refreshing read_time when it
// is already there.
func (svc *Service) AddToShelf(ctx context.Context, userID, bookID int) error {
	entry := &models.Bookshelf{
		UserID:   userID,
		BookID:   bookID,
		ReadTime: time.Now(),
	}
	q := svc.db.NewInsert().Model(entry)
	_, err := svc.db.Upsert(q, []string{"user_id", "book_id"}, []string{"read_time"}).Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) RemoveFromShelf(ctx context.Context, userID, bookID int) error {
	_, err := svc.db.
		NewDelete().
		Model((*models.Bookshelf)(nil)).
		Where("user_id = ?", userID).
		Where("book_id = ?", bookID).
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) ShelfCount(ctx context.Context, userID int) (int, error) {
	count, err := svc.db.
		NewSelect().
		Model((*models.Bookshelf)(nil)).
		Where("bsh.user_id = ?", userID).
		Count(ctx)
	return count, errors.WithStack(err)
}

// SavePosition upserts the user's reading position for a book, then prunes
// history beyond keep entries. Upsert and prune share one transaction so a
// reader never sees the history over its limit.
func (svc *Service) SavePosition(ctx context.Context, userID, bookID int, position string, progress float64, keep int) error {
	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		pos := &models.ReadingPosition{
			UserID:    userID,
			BookID:    bookID,
			Position:  position,
			Progress:  progress,
			UpdatedAt: time.Now(),
		}
		q := tx.NewInsert().Model(pos)
		_, err := svc.db.Upsert(q, []string{"user_id", "book_id"}, []string{"position", "progress", "updated_at"}).Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		prune := svc.db.DeleteBeyondLimit("reading_positions", "book_id", "user_id = ?", "updated_at", keep)
		// The where clause appears twice in the generated SQL.
		_, err = tx.Exec(prune, userID, userID)
		return errors.WithStack(err)
	})
	return errors.WithStack(err)
}

func (svc *Service) RetrievePosition(ctx context.Context, userID, bookID int) (*models.ReadingPosition, error) {
	pos := &models.ReadingPosition{}
	err := svc.db.
		NewSelect().
		Model(pos).
		Where("rp.user_id = ?", userID).
		Where("rp.book_id = ?", bookID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("ReadingPosition")
		}
		return nil, errors.WithStack(err)
	}
	return pos, nil
}
