package opds

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshein-alt/ropds/pkg/books"
	"github.com/dshein-alt/ropds/pkg/catalogs"
	"github.com/dshein-alt/ropds/pkg/config"
	"github.com/dshein-alt/ropds/pkg/covers"
	"github.com/dshein-alt/ropds/pkg/database"
	"github.com/dshein-alt/ropds/pkg/errcodes"
	"github.com/dshein-alt/ropds/pkg/migrations"
	"github.com/dshein-alt/ropds/pkg/models"
	"github.com/labstack/echo/v4"
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

func newServer(t *testing.T, db *database.DB) *echo.Echo {
	t.Helper()

	cfg := &config.Config{
		OPDS: config.OPDSConfig{
			Title:        "ROPDS",
			MaxItems:     2,
			SplitItems:   300,
			AlphabetMenu: true,
		},
		Web: config.WebConfig{Language: "en"},
	}

	e := echo.New()
	e.HTTPErrorHandler = errcodes.NewHandler().Handle
	NewHandlers(db, cfg, covers.New(cfg, nil)).Register(e)
	return e
}

func seedBook(t *testing.T, db *database.DB, title string) *models.Book {
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
		Lang:      "ru",
		Size:      4096,
		Avail:     models.AvailConfirmed,
	}
	require.NoError(t, books.NewService(db).Create(ctx, book))
	return book
}

func getFeed(t *testing.T, e *echo.Echo, path string) *Feed {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, ContentType, rec.Header().Get(echo.HeaderContentType))

	feed := &Feed{}
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), feed))
	return feed
}

func linkByRel(feed *Feed, rel string) *Link {
	for i := range feed.Links {
		if feed.Links[i].Rel == rel {
			return &feed.Links[i]
		}
	}
	return nil
}

func TestRootFeed(t *testing.T) {
	db := newTestDB(t)
	e := newServer(t, db)
	seedBook(t, db, "War and Peace")

	feed := getFeed(t, e, "/opds/")
	assert.Equal(t, "tag:root", feed.ID)
	assert.Equal(t, "ROPDS", feed.Title)

	self := linkByRel(feed, "self")
	require.NotNil(t, self)
	assert.Equal(t, "/opds/", self.Href)

	start := linkByRel(feed, "start")
	require.NotNil(t, start)
	assert.Equal(t, "/opds/", start.Href)

	var searchLinks int
	for _, l := range feed.Links {
		if l.Rel == "search" {
			searchLinks++
		}
	}
	assert.Equal(t, 2, searchLinks)
}

func TestLangURLFormsAreEquivalent(t *testing.T) {
	db := newTestDB(t)
	e := newServer(t, db)
	seedBook(t, db, "War and Peace")

	pathForm := getFeed(t, e, "/opds/lang/ru/")
	queryForm := getFeed(t, e, "/opds/?lang=ru")

	var recentHref string
	for _, entry := range pathForm.Entries {
		if entry.Title == "Recent" {
			recentHref = entry.Links[0].Href
		}
	}
	require.NotEmpty(t, recentHref)
	assert.True(t, len(recentHref) > 8 && recentHref[len(recentHref)-8:] == "?lang=ru", recentHref)

	require.Len(t, queryForm.Entries, len(pathForm.Entries))
	for i := range pathForm.Entries {
		assert.Equal(t, pathForm.Entries[i].Links[0].Href, queryForm.Entries[i].Links[0].Href)
	}
}

func TestBookEntryLinks(t *testing.T) {
	db := newTestDB(t)
	e := newServer(t, db)
	seedBook(t, db, "War and Peace")

	feed := getFeed(t, e, "/opds/recent/")
	require.Len(t, feed.Entries, 1)
	entry := feed.Entries[0]
	assert.Equal(t, "War and Peace", entry.Title)

	var openAccess, alternate int
	for _, l := range entry.Links {
		switch l.Rel {
		case relOpenAccess:
			openAccess++
		case "alternate":
			alternate++
			assert.Equal(t, "application/fb2+xml", l.Type)
		}
	}
	// Original plus zipped acquisition for a zippable format.
	assert.Equal(t, 2, openAccess)
	assert.Equal(t, 1, alternate)

	require.NotNil(t, entry.Content)
	assert.Equal(t, "text/html", entry.Content.Type)
	assert.Contains(t, entry.Content.Text, "Size: 4 KB")
}

func TestPaginationNextLink(t *testing.T) {
	db := newTestDB(t)
	e := newServer(t, db) // max_items = 2
	for _, title := range []string{"One", "Two", "Three"} {
		seedBook(t, db, title)
	}

	feed := getFeed(t, e, "/opds/recent/")
	require.Len(t, feed.Entries, 2)
	next := linkByRel(feed, "next")
	require.NotNil(t, next)
	assert.Equal(t, "/opds/recent/1/", next.Href)
	assert.Nil(t, linkByRel(feed, "prev"))

	feed = getFeed(t, e, "/opds/recent/1/")
	require.Len(t, feed.Entries, 1)
	assert.Nil(t, linkByRel(feed, "next"))
	prev := linkByRel(feed, "prev")
	require.NotNil(t, prev)
	assert.Equal(t, "/opds/recent/", prev.Href)
}

func TestBookshelfRequiresAuth(t *testing.T) {
	db := newTestDB(t)
	e := newServer(t, db)

	req := httptest.NewRequest(http.MethodGet, "/opds/bookshelf/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Basic realm="OPDS"`, rec.Header().Get(echo.HeaderWWWAuthenticate))
}

func TestOpenSearchDescription(t *testing.T) {
	db := newTestDB(t)
	e := newServer(t, db)

	req := httptest.NewRequest(http.MethodGet, "/opds/search/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	desc := &OpenSearchDescription{}
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), desc))
	assert.Equal(t, "ROPDS", desc.ShortName)
	require.Len(t, desc.URLs, 1)
	assert.Equal(t, "/opds/search/{searchTerms}/", desc.URLs[0].Template)
}

func TestDownload(t *testing.T) {
	db := newTestDB(t)
	root := t.TempDir()

	cfg := &config.Config{
		Library: config.LibraryConfig{RootPath: root, CoversPath: "covers"},
		OPDS:    config.OPDSConfig{Title: "ROPDS", MaxItems: 30, SplitItems: 300},
		Web:     config.WebConfig{Language: "en"},
	}
	e := echo.New()
	e.HTTPErrorHandler = errcodes.NewHandler().Handle
	NewHandlers(db, cfg, covers.New(cfg, nil)).Register(e)

	book := seedBook(t, db, "War and Peace")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "lib", book.Filename), []byte("<FictionBook/>"), 0o644))

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/opds/download/%d/0/", book.ID), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/fb2+xml", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, []byte("<FictionBook/>"), rec.Body.Bytes())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), `filename="War and Peace.fb2"`)

	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/opds/download/%d/1/", book.ID), nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/fb2+zip", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), `filename="War and Peace.fb2.zip"`)

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, book.Filename, zr.File[0].Name)
}

func TestDownloadMissingFile(t *testing.T) {
	db := newTestDB(t)
	e := newServer(t, db)

	// Catalogued, but the file is gone from disk.
	book := seedBook(t, db, "War and Peace")

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/opds/download/%d/0/", book.ID), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestDownloadMissingBook(t *testing.T) {
	db := newTestDB(t)
	e := newServer(t, db)
	seedBook(t, db, "War and Peace")

	req := httptest.NewRequest(http.MethodGet, "/opds/download/99999/0/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
