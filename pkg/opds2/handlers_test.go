package opds2

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dshein-alt/ropds/pkg/books"
	"github.com/dshein-alt/ropds/pkg/catalogs"
	"github.com/dshein-alt/ropds/pkg/config"
	"github.com/dshein-alt/ropds/pkg/database"
	"github.com/dshein-alt/ropds/pkg/errcodes"
	"github.com/dshein-alt/ropds/pkg/migrations"
	"github.com/dshein-alt/ropds/pkg/models"
	"github.com/dshein-alt/ropds/pkg/users"
	"github.com/labstack/echo/v4"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	models.RegisterMany2Many(db)

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return &database.DB{DB: db, Backend: database.BackendSQLite}
}

func newServer(t *testing.T, db *database.DB, authRequired bool) *echo.Echo {
	t.Helper()

	cfg := &config.Config{
		OPDS: config.OPDSConfig{
			Title:        "ROPDS",
			MaxItems:     30,
			SplitItems:   300,
			AlphabetMenu: true,
			AuthRequired: authRequired,
		},
		Web: config.WebConfig{Language: "en"},
	}

	e := echo.New()
	e.HTTPErrorHandler = errcodes.NewHandler().Handle
	NewHandlers(db, cfg).Register(e)
	return e
}

func seedBook(t *testing.T, db *database.DB, title, lang string) *models.Book {
	t.Helper()
	ctx := context.Background()

	cat, err := catalogs.NewService(db).Ensure(ctx, "lib", models.CatTypeNormal, 0, time.Time{})
	require.NoError(t, err)

	book := &models.Book{
		CatalogID: cat.ID,
		Filename:  title + ".fb2",
		Path:      "lib",
		Format:    "fb2",
		Title:     title,
		Lang:      lang,
		Avail:     models.AvailConfirmed,
	}
	require.NoError(t, books.NewService(db).Create(ctx, book))
	return book
}

func TestRecentFeed(t *testing.T) {
	db := newTestDB(t)
	e := newServer(t, db, false)
	seedBook(t, db, "Test Book Title", "en")

	req := httptest.NewRequest(http.MethodGet, "/opds/v2/recent/?lang=en", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, ContentType, rec.Header().Get(echo.HeaderContentType))

	doc := &Document{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), doc))
	require.Len(t, doc.Publications, 1)
	assert.Equal(t, "Test Book Title", doc.Publications[0].Metadata.Title)

	var openAccess bool
	for _, l := range doc.Publications[0].Links {
		if l.Rel == relOpenAccess {
			openAccess = true
		}
	}
	assert.True(t, openAccess)
}

func TestRootDocument(t *testing.T) {
	db := newTestDB(t)
	e := newServer(t, db, false)

	req := httptest.NewRequest(http.MethodGet, "/opds/v2/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	doc := &Document{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), doc))

	assert.Equal(t, "ROPDS", doc.Metadata.Title)
	assert.NotEmpty(t, doc.Navigation)

	var searchTemplated bool
	for _, l := range doc.Links {
		if l.Rel == "search" && l.Templated {
			searchTemplated = true
		}
	}
	assert.True(t, searchTemplated)
}

func TestBookshelfAuth(t *testing.T) {
	db := newTestDB(t)
	e := newServer(t, db, true)

	_, err := users.NewService(db).Create(context.Background(), users.CreateUserOptions{
		Username: "reader",
		Password: "secret-pass",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/opds/v2/bookshelf/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/opds/v2/bookshelf/", nil)
	req.SetBasicAuth("reader", "secret-pass")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, ContentType, rec.Header().Get(echo.HeaderContentType))
}
