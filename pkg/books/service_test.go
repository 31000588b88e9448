package books

import (
	"context"
	"database/sql"
	"testing"

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

func createBook(ctx context.Context, t *testing.T, svc *Service, title, path, filename string) *models.Book {
	t.Helper()

	book := &models.Book{
		Title:    title,
		Path:     path,
		Filename: filename,
		Format:   "fb2",
		Avail:    models.AvailConfirmed,
	}
	require.NoError(t, svc.Create(ctx, book))
	return book
}

func insertAuthor(ctx context.Context, t *testing.T, db *database.DB, name string) *models.Author {
	t.Helper()

	author := &models.Author{FullName: name, SearchFullName: name, LangCode: models.LangCodeLatin}
	_, err := db.NewInsert().Model(author).Exec(ctx)
	require.NoError(t, err)
	return author
}

func TestCreate_FillsDerivedColumns(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	book := createBook(ctx, t, svc, "Some Title", "dir", "book.fb2")
	assert.NotZero(t, book.ID)
	assert.Equal(t, "SOME TITLE", book.SearchTitle)
	assert.Equal(t, models.LangCodeLatin, book.LangCode)
	assert.False(t, book.RegDate.IsZero())
}

func TestBuildAuthorKey(t *testing.T) {
	assert.Equal(t, "", BuildAuthorKey(nil))
	assert.Equal(t, "7", BuildAuthorKey([]int{7}))
	assert.Equal(t, "3:7:42", BuildAuthorKey([]int{42, 3, 7}))
}

func TestSetBookAuthors_UpdatesAuthorKey(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	book := createBook(ctx, t, svc, "Keyed", "dir", "keyed.fb2")
	a1 := insertAuthor(ctx, t, db, "DOE JOHN")
	a2 := insertAuthor(ctx, t, db, "ROE JANE")

	require.NoError(t, svc.SetBookAuthors(ctx, book.ID, []int{a2.ID, a1.ID}))

	got, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &book.ID, WithRelations: true})
	require.NoError(t, err)
	assert.Equal(t, BuildAuthorKey([]int{a1.ID, a2.ID}), got.AuthorKey)
	require.Len(t, got.Authors, 2)

	require.NoError(t, svc.SetBookAuthors(ctx, book.ID, nil))
	got, err = svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &book.ID, WithRelations: true})
	require.NoError(t, err)
	assert.Equal(t, "", got.AuthorKey)
	assert.Empty(t, got.Authors)
}

func TestSetBookSeries(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	book := createBook(ctx, t, svc, "In Series", "dir", "ser.fb2")
	ser := &models.Series{SerName: "Cycle", SearchSer: "CYCLE", LangCode: models.LangCodeLatin}
	_, err := db.NewInsert().Model(ser).Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.SetBookSeries(ctx, book.ID, ser.ID, 3))

	got, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &book.ID, WithRelations: true})
	require.NoError(t, err)
	require.Len(t, got.Series, 1)
	assert.Equal(t, 3, got.Series[0].SerNo)
	require.NotNil(t, got.Series[0].Series)
	assert.Equal(t, "Cycle", got.Series[0].Series.SerName)
}

func TestSweepConfirmDelete(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	kept := createBook(ctx, t, svc, "Kept", "dir", "kept.fb2")
	createBook(ctx, t, svc, "Gone", "dir", "gone.fb2")

	require.NoError(t, svc.SweepToUnverified(ctx))
	require.NoError(t, svc.Confirm(ctx, kept.ID))

	deleted, err := svc.DeleteUnverified(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, total, err := svc.ListBooksWithTotal(ctx, ListBooksOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, remaining, 1)
	assert.Equal(t, "Kept", remaining[0].Title)
}

func TestDuplicateGroups(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	a42 := insertAuthor(ctx, t, db, "FORTY TWO")
	a43 := insertAuthor(ctx, t, db, "FORTY THREE")

	var dupID int
	for i, filename := range []string{"d1.fb2", "d2.fb2", "d3.fb2"} {
		book := createBook(ctx, t, svc, "Duplicate", "dir", filename)
		require.NoError(t, svc.SetBookAuthors(ctx, book.ID, []int{a42.ID}))
		if i == 0 {
			dupID = book.ID
		}
	}
	other := createBook(ctx, t, svc, "Duplicate", "dir", "other.fb2")
	require.NoError(t, svc.SetBookAuthors(ctx, other.ID, []int{a43.ID}))

	count, err := svc.CountDuplicateGroups(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	groups, err := svc.DuplicateGroups(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 3, groups[0].Count)
	assert.Equal(t, "DUPLICATE", groups[0].SearchTitle)

	doubles, err := svc.CountDoubles(ctx, dupID)
	require.NoError(t, err)
	assert.Equal(t, 3, doubles)

	doubles, err = svc.CountDoubles(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, doubles)
}

func TestListBooks_HideDoubles(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	author := insertAuthor(ctx, t, db, "SAME AUTHOR")
	for _, filename := range []string{"c1.fb2", "c2.fb2"} {
		book := createBook(ctx, t, svc, "Collapsed", "dir", filename)
		require.NoError(t, svc.SetBookAuthors(ctx, book.ID, []int{author.ID}))
	}
	createBook(ctx, t, svc, "Unique", "dir", "u.fb2")

	_, total, err := svc.ListBooksWithTotal(ctx, ListBooksOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	collapsed, total, err := svc.ListBooksWithTotal(ctx, ListBooksOptions{HideDoubles: true})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, collapsed, 2)
}

func TestListBooks_Filters(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	author := insertAuthor(ctx, t, db, "FILTER AUTHOR")
	first := createBook(ctx, t, svc, "Alpha Tale", "dir", "a.fb2")
	first.Lang = "en"
	_, err := db.NewUpdate().Model(first).WherePK().Exec(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.SetBookAuthors(ctx, first.ID, []int{author.ID}))
	createBook(ctx, t, svc, "Beta Tale", "dir", "b.fb2")

	byAuthor, err := svc.ListBooks(ctx, ListBooksOptions{AuthorID: &author.ID})
	require.NoError(t, err)
	require.Len(t, byAuthor, 1)
	assert.Equal(t, "Alpha Tale", byAuthor[0].Title)

	prefix := "alp"
	byPrefix, err := svc.ListBooks(ctx, ListBooksOptions{TitlePrefix: &prefix})
	require.NoError(t, err)
	require.Len(t, byPrefix, 1)

	contains := "ta tale"
	byContains, err := svc.ListBooks(ctx, ListBooksOptions{TitleContains: &contains})
	require.NoError(t, err)
	require.Len(t, byContains, 1)
	assert.Equal(t, "Beta Tale", byContains[0].Title)

	lang := "en"
	byLang, err := svc.ListBooks(ctx, ListBooksOptions{Lang: &lang})
	require.NoError(t, err)
	require.Len(t, byLang, 1)
	assert.Equal(t, "Alpha Tale", byLang[0].Title)
}

func TestPrefixGroups(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	createBook(ctx, t, svc, "Apple", "dir", "1.fb2")
	createBook(ctx, t, svc, "Apricot", "dir", "2.fb2")
	createBook(ctx, t, svc, "Banana", "dir", "3.fb2")

	groups, err := svc.PrefixGroups(ctx, 0, "")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "A", groups[0].Prefix)
	assert.Equal(t, 2, groups[0].Count)

	groups, err = svc.PrefixGroups(ctx, 0, "AP")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "APP", groups[0].Prefix)
	assert.Equal(t, "APR", groups[1].Prefix)
}

func TestRetrieveBook_ByPathFilename(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	createBook(ctx, t, svc, "Located", "archive.zip", "inner.fb2")

	path, filename := "archive.zip", "inner.fb2"
	got, err := svc.RetrieveBook(ctx, RetrieveBookOptions{Path: &path, Filename: &filename})
	require.NoError(t, err)
	assert.Equal(t, "Located", got.Title)

	missing := "missing.fb2"
	_, err = svc.RetrieveBook(ctx, RetrieveBookOptions{Path: &path, Filename: &missing})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
