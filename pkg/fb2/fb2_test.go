package fb2

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Smallest valid JPEG-ish payload for cover tests; only the magic matters.
var jpegMagic = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

func sampleFB2() string {
	cover := base64.StdEncoding.EncodeToString(jpegMagic)
	return `<?xml version="1.0" encoding="utf-8"?>
<FictionBook xmlns="http://www.gribuser.ru/xml/fictionbook/2.0" xmlns:l="http://www.w3.org/1999/xlink">
  <description>
    <title-info>
      <genre>sf</genre>
      <genre>prose_classic</genre>
      <author>
        <first-name>Ivan</first-name>
        <last-name>Petrov</last-name>
      </author>
      <author>
        <last-name>Smith</last-name>
      </author>
      <book-title>  "The Long Voyage"  </book-title>
      <annotation>
        <p>First line.  </p>
        <p>Second line.</p>
      </annotation>
      <lang>EN</lang>
      <sequence name="Voyages" number="3"/>
      <coverpage><image l:href="#cover.jpg"/></coverpage>
    </title-info>
    <document-info>
      <date>2020-01-15</date>
    </document-info>
  </description>
  <body><p>Text that should never be parsed for metadata.</p></body>
  <binary id="cover.jpg" content-type="image/jpeg">` + cover + `</binary>
</FictionBook>`
}

func TestParseMeta(t *testing.T) {
	meta, err := ParseMeta(strings.NewReader(sampleFB2()))
	require.NoError(t, err)

	assert.Equal(t, "The Long Voyage", meta.Title)
	assert.Equal(t, []string{"Ivan Petrov", "Smith"}, meta.Authors)
	assert.Equal(t, []string{"sf", "prose_classic"}, meta.Genres)
	assert.Equal(t, "en", meta.Lang)
	assert.Equal(t, "Voyages", meta.SeriesTitle)
	assert.Equal(t, 3, meta.SeriesIndex)
	assert.Equal(t, "2020-01-15", meta.Docdate)
	assert.Equal(t, "First line.\nSecond line.", meta.Annotation)
}

func TestParseMeta_MissingFields(t *testing.T) {
	doc := `<FictionBook><description><title-info>
		<book-title>Bare</book-title>
	</title-info></description></FictionBook>`

	meta, err := ParseMeta(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "Bare", meta.Title)
	assert.Empty(t, meta.Authors)
	assert.Empty(t, meta.Genres)
	assert.Zero(t, meta.SeriesIndex)
}

func TestParseMeta_Malformed(t *testing.T) {
	_, err := ParseMeta(strings.NewReader("<FictionBook><description><unclosed"))
	require.Error(t, err)
}

func TestParseCover(t *testing.T) {
	data, mime, err := ParseCover(strings.NewReader(sampleFB2()))
	require.NoError(t, err)
	assert.Equal(t, jpegMagic, data)
	assert.Equal(t, "image/jpeg", mime)
}

func TestParseCover_NoCover(t *testing.T) {
	doc := `<FictionBook><description><title-info>
		<book-title>No Cover</book-title>
	</title-info></description></FictionBook>`

	_, _, err := ParseCover(strings.NewReader(doc))
	require.Error(t, err)
}

func TestParseCover_IgnoresBodyIllustrations(t *testing.T) {
	pic := base64.StdEncoding.EncodeToString([]byte("not a cover"))
	doc := `<FictionBook xmlns:l="http://www.w3.org/1999/xlink">
  <description><title-info>
    <book-title>Illustrated, No Cover</book-title>
  </title-info></description>
  <body><image l:href="#pic.jpg"/></body>
  <binary id="pic.jpg" content-type="image/jpeg">` + pic + `</binary>
</FictionBook>`

	_, _, err := ParseCover(strings.NewReader(doc))
	require.Error(t, err)
}

func TestParseCover_PrefersCoverpageOverOtherImages(t *testing.T) {
	pic := base64.StdEncoding.EncodeToString([]byte("annotation art"))
	cover := base64.StdEncoding.EncodeToString(jpegMagic)
	doc := `<FictionBook xmlns:l="http://www.w3.org/1999/xlink">
  <description><title-info>
    <book-title>Two Images</book-title>
    <annotation><p><image l:href="#pic.jpg"/></p></annotation>
    <coverpage><image l:href="#real.jpg"/></coverpage>
  </title-info></description>
  <binary id="pic.jpg" content-type="image/jpeg">` + pic + `</binary>
  <binary id="real.jpg" content-type="image/jpeg">` + cover + `</binary>
</FictionBook>`

	data, mime, err := ParseCover(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, jpegMagic, data)
	assert.Equal(t, "image/jpeg", mime)
}
