package inpx

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildINPX(t *testing.T, entries map[string][]string) ([]byte, int64) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, lines := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(strings.Join(lines, "\n")))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes(), int64(buf.Len())
}

func record(fields ...string) string {
	return strings.Join(fields, "\x04")
}

func TestParse(t *testing.T) {
	data, size := buildINPX(t, map[string][]string{
		"fb2-000001.inp": {
			record("Tolstoy,Lev:Doe,John", "prose_classic:sf", "War and Peace", "Classics:Other", "2",
				"100001", "2048000", "", "0", "fb2", "2021-03-04", "ru"),
		},
		"collection.info": {"ignored"},
	})

	records, err := Parse(bytes.NewReader(data), size)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "War and Peace", rec.Meta.Title)
	assert.Equal(t, []string{"Tolstoy Lev", "Doe John"}, rec.Meta.Authors)
	assert.Equal(t, []string{"prose_classic", "sf"}, rec.Meta.Genres)
	assert.Equal(t, "Classics", rec.Meta.SeriesTitle)
	assert.Equal(t, 2, rec.Meta.SeriesIndex)
	assert.Equal(t, "ru", rec.Meta.Lang)
	assert.Equal(t, "2021-03-04", rec.Meta.Docdate)
	assert.Equal(t, "100001.fb2", rec.Filename)
	assert.Equal(t, "fb2-000001.zip", rec.Folder)
	assert.Equal(t, int64(2048000), rec.Size)
	assert.Equal(t, "fb2", rec.Format)
}

func TestParse_SkipsDeletedAndShortRecords(t *testing.T) {
	data, size := buildINPX(t, map[string][]string{
		"lib.inp": {
			record("A", "sf", "Deleted Book", "", "", "1", "10", "", "1", "fb2", "", "en"),
			record("A", "sf", "Too Short", "", "", "2"),
			record("B", "sf", "Kept Book", "", "", "3", "10", "", "0", "fb2", "", "en"),
			record("C", "sf", "Kept Too", "", "", "4", "10", "", "", "epub", "", "en"),
		},
	})

	records, err := Parse(bytes.NewReader(data), size)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Kept Book", records[0].Meta.Title)
	assert.Equal(t, "Kept Too", records[1].Meta.Title)
	assert.Equal(t, "epub", records[1].Format)
}

func TestParse_NotAZip(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte("nope")), 4)
	require.Error(t, err)
}
