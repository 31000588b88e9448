package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripMeta(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  plain  ", "plain"},
		{"&'-Title.;#\\", "Title"},
		{`"Quoted Title"`, "Quoted Title"},
		{"'Single'", "Single"},
		{"«Кавычки»", "Кавычки"},
		{`"Only opening`, `"Only opening`},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripMeta(tt.in), "input %q", tt.in)
	}
}

func TestDetectLangCode(t *testing.T) {
	assert.Equal(t, LangCodeLatin, DetectLangCode("Abc"))
	assert.Equal(t, LangCodeLatin, DetectLangCode("zed"))
	assert.Equal(t, LangCodeDigit, DetectLangCode("451 degrees"))
	assert.Equal(t, LangCodeCyrillic, DetectLangCode("Пушкин"))
	assert.Equal(t, LangCodeOther, DetectLangCode("漢字"))
	assert.Equal(t, LangCodeOther, DetectLangCode(""))
}

func TestNormalizeAuthorName(t *testing.T) {
	assert.Equal(t, "Doe John", NormalizeAuthorName("John Doe"))
	assert.Equal(t, "Doe John", NormalizeAuthorName("Doe, John"))
	assert.Equal(t, "Smith John Q", NormalizeAuthorName("John  Q   Smith"))
	assert.Equal(t, "Plato", NormalizeAuthorName("Plato"))
	assert.Equal(t, "", NormalizeAuthorName("   "))
}

func TestSniffImageMime(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	gif := []byte("GIF89a\x01\x00\x01\x00")
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0}

	assert.Equal(t, "image/png", SniffImageMime(png))
	assert.Equal(t, "image/gif", SniffImageMime(gif))
	assert.Equal(t, "image/jpeg", SniffImageMime(jpeg))
	assert.Equal(t, "image/jpeg", SniffImageMime([]byte("anything else")))
}

func TestCoverExtension(t *testing.T) {
	assert.Equal(t, "png", CoverExtension("image/png"))
	assert.Equal(t, "gif", CoverExtension("image/gif"))
	assert.Equal(t, "jpg", CoverExtension("image/jpeg"))
	assert.Equal(t, "jpg", CoverExtension(""))
}
