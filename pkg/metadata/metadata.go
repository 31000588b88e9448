// Package metadata defines the format-independent book metadata record the
// parsers produce and the scanner consumes, plus the string helpers shared
// by every parser.
package metadata

import (
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
)

// BookMeta is the result of parsing a single book stream.
type BookMeta struct {
	Title       string
	Authors     []string
	Genres      []string
	Annotation  string
	Lang        string
	SeriesTitle string
	SeriesIndex int
	Docdate     string
	CoverData   []byte
	CoverType   string
}

// HasCover reports whether the parser found embedded cover bytes.
func (m *BookMeta) HasCover() bool {
	return len(m.CoverData) > 0
}

const stripCutset = " \t\r\n&'-.;#\\"

// StripMeta cleans a raw metadata string: trims whitespace and stray
// punctuation, then removes one enclosing matched quote pair.
func StripMeta(s string) string {
	s = strings.Trim(s, stripCutset)
	pairs := [][2]string{{"'", "'"}, {`"`, `"`}, {"«", "»"}}
	for _, pair := range pairs {
		if len(s) >= len(pair[0])+len(pair[1]) && strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) {
			s = strings.TrimPrefix(s, pair[0])
			s = strings.TrimSuffix(s, pair[1])
			break
		}
	}
	return s
}

// Language codes mirrored from the models package to keep the parsers free
// of a database dependency.
const (
	LangCodeCyrillic = 1
	LangCodeLatin    = 2
	LangCodeDigit    = 3
	LangCodeOther    = 9
)

// DetectLangCode buckets a name by its first character. The rule is
// intentionally coarse: it drives alphabet navigation, not search.
func DetectLangCode(s string) int {
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
			return LangCodeLatin
		case r >= '0' && r <= '9':
			return LangCodeDigit
		case r >= 0x0400 && r <= 0x052F:
			return LangCodeCyrillic
		default:
			return LangCodeOther
		}
	}
	return LangCodeOther
}

// NormalizeAuthorName converts a typed-in author name to the stored
// last-name-first form. A comma is taken as an explicit "last, first" marker;
// otherwise the final word is assumed to be the last name and moved to the
// front.
func NormalizeAuthorName(s string) string {
	s = collapseWhitespace(s)
	if s == "" {
		return s
	}
	if strings.Contains(s, ",") {
		return collapseWhitespace(strings.ReplaceAll(s, ",", " "))
	}
	words := strings.Fields(s)
	if len(words) < 2 {
		return s
	}
	last := words[len(words)-1]
	rest := words[:len(words)-1]
	return last + " " + strings.Join(rest, " ")
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// SniffImageMime detects the MIME type of cover bytes from their magic
// numbers. Anything that isn't PNG or GIF is reported as JPEG, which is what
// the overwhelming majority of embedded covers are.
func SniffImageMime(data []byte) string {
	switch mimetype.Detect(data).String() {
	case "image/png":
		return "image/png"
	case "image/gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

// CoverExtension maps a cover MIME type to the file extension used under the
// covers directory.
func CoverExtension(mime string) string {
	switch mime {
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	default:
		return "jpg"
	}
}
