package auth

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dshein-alt/ropds/pkg/database"
	"github.com/dshein-alt/ropds/pkg/migrations"
	"github.com/dshein-alt/ropds/pkg/models"
	"github.com/dshein-alt/ropds/pkg/users"
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

func setupServer(t *testing.T) (*echo.Echo, *users.Service) {
	t.Helper()

	svc := users.NewService(newTestDB(t))
	_, err := svc.Create(context.Background(), users.CreateUserOptions{
		Username: "reader",
		Password: "secret-pass",
	})
	require.NoError(t, err)

	e := echo.New()
	handler := func(c echo.Context) error {
		user := UserFrom(c)
		if user == nil {
			return c.String(http.StatusOK, "anonymous")
		}
		return c.String(http.StatusOK, user.Username)
	}
	e.GET("/required", handler, Required(svc))
	e.GET("/optional", handler, Optional(svc))
	return e, svc
}

func TestRequired(t *testing.T) {
	e, _ := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/required", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Basic realm="OPDS"`, rec.Header().Get(echo.HeaderWWWAuthenticate))

	req = httptest.NewRequest(http.MethodGet, "/required", nil)
	req.SetBasicAuth("reader", "wrong")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/required", nil)
	req.SetBasicAuth("reader", "secret-pass")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reader", rec.Body.String())
}

func TestOptional(t *testing.T) {
	e, _ := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/optional", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/optional", nil)
	req.SetBasicAuth("reader", "secret-pass")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reader", rec.Body.String())
}
