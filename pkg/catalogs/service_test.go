package catalogs

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dshein-alt/ropds/pkg/database"
	"github.com/dshein-alt/ropds/pkg/migrations"
	"github.com/dshein-alt/ropds/pkg/models"
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

func TestEnsure_CreatesAncestors(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	mtime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	catalog, err := svc.Ensure(ctx, "fiction/archives/lib.zip", models.CatTypeZip, 2048, mtime)
	require.NoError(t, err)

	assert.Equal(t, "fiction/archives/lib.zip", catalog.Path)
	assert.Equal(t, "lib.zip", catalog.CatName)
	assert.Equal(t, models.CatTypeZip, catalog.CatType)
	assert.Equal(t, int64(2048), catalog.CatSize)

	parentPath := "fiction/archives"
	parent, err := svc.RetrieveCatalog(ctx, RetrieveCatalogOptions{Path: &parentPath})
	require.NoError(t, err)
	assert.Equal(t, models.CatTypeNormal, parent.CatType)
	require.NotNil(t, catalog.ParentID)
	assert.Equal(t, parent.ID, *catalog.ParentID)

	rootPath := "fiction"
	root, err := svc.RetrieveCatalog(ctx, RetrieveCatalogOptions{Path: &rootPath})
	require.NoError(t, err)
	assert.Nil(t, root.ParentID)
	require.NotNil(t, parent.ParentID)
	assert.Equal(t, root.ID, *parent.ParentID)
}

func TestEnsure_Idempotent(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	first, err := svc.Ensure(ctx, "books/sub", models.CatTypeNormal, 0, time.Time{})
	require.NoError(t, err)

	second, err := svc.Ensure(ctx, "books/sub", models.CatTypeNormal, 0, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	total, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestListCatalogs_RootAndChildren(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	_, err := svc.Ensure(ctx, "beta/inner", models.CatTypeNormal, 0, time.Time{})
	require.NoError(t, err)
	_, err = svc.Ensure(ctx, "alpha", models.CatTypeNormal, 0, time.Time{})
	require.NoError(t, err)

	roots, total, err := svc.ListCatalogsWithTotal(ctx, ListCatalogsOptions{Root: true})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, roots, 2)
	assert.Equal(t, "alpha", roots[0].CatName)
	assert.Equal(t, "beta", roots[1].CatName)

	children, err := svc.ListCatalogs(ctx, ListCatalogsOptions{ParentID: &roots[1].ID})
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "inner", children[0].CatName)
}

func TestRetrieveCatalog_NotFound(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	id := 999
	_, err := svc.RetrieveCatalog(context.Background(), RetrieveCatalogOptions{ID: &id})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
