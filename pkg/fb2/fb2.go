// Package fb2 extracts metadata and cover images from FictionBook 2 files.
// The metadata pass streams the XML with a path stack instead of decoding
// the whole document, so multi-megabyte books cost only the description
// block.
package fb2

import (
	"encoding/base64"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/dshein-alt/ropds/pkg/metadata"
	"github.com/pkg/errors"
)

// ParseMeta reads the description block of an FB2 stream into a BookMeta.
// The cover is handled by ParseCover in a second pass since it needs the
// binary elements at the end of the file.
func ParseMeta(r io.Reader) (*metadata.BookMeta, error) {
	meta := &metadata.BookMeta{}
	dec := xml.NewDecoder(r)
	// Books in the wild carry every imaginable 8-bit charset label.
	dec.CharsetReader = charsetReader

	var path []string
	var author authorParts
	var annotationLines []string
	var text strings.Builder

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "malformed fb2 document")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := strings.ToLower(t.Name.Local)
			path = append(path, name)
			text.Reset()

			if pathIs(path, "fictionbook", "description", "title-info", "sequence") {
				for _, attr := range t.Attr {
					switch strings.ToLower(attr.Name.Local) {
					case "name":
						meta.SeriesTitle = metadata.StripMeta(attr.Value)
					case "number":
						if n, err := strconv.Atoi(strings.TrimSpace(attr.Value)); err == nil {
							meta.SeriesIndex = n
						}
					}
				}
			}

		case xml.CharData:
			text.Write(t)
			if inAnnotation(path) {
				line := strings.TrimSpace(string(t))
				if line != "" {
					annotationLines = append(annotationLines, line)
				}
			}

		case xml.EndElement:
			value := strings.TrimSpace(text.String())
			switch {
			case pathIs(path, "fictionbook", "description", "title-info", "book-title"):
				meta.Title = metadata.StripMeta(value)
			case pathIs(path, "fictionbook", "description", "title-info", "genre"):
				if g := strings.ToLower(value); g != "" {
					meta.Genres = append(meta.Genres, g)
				}
			case pathIs(path, "fictionbook", "description", "title-info", "lang"):
				meta.Lang = strings.ToLower(value)
			case pathIs(path, "fictionbook", "description", "document-info", "date"):
				if meta.Docdate == "" {
					meta.Docdate = value
				}
			case pathIs(path, "fictionbook", "description", "title-info", "author", "first-name"):
				author.first = value
			case pathIs(path, "fictionbook", "description", "title-info", "author", "last-name"):
				author.last = value
			case pathIs(path, "fictionbook", "description", "title-info", "author"):
				if name := author.join(); name != "" {
					meta.Authors = append(meta.Authors, name)
				}
				author = authorParts{}
			case pathIs(path, "fictionbook", "description", "title-info", "annotation"):
				meta.Annotation = strings.Join(annotationLines, "\n")
				annotationLines = nil
			case pathIs(path, "fictionbook", "description"):
				// Everything we need is behind us; don't stream the body.
				path = path[:len(path)-1]
				return meta, nil
			}
			path = path[:len(path)-1]
			text.Reset()
		}
	}

	return meta, nil
}

type authorParts struct {
	first string
	last  string
}

func (a authorParts) join() string {
	parts := make([]string, 0, 2)
	if a.first != "" {
		parts = append(parts, a.first)
	}
	if a.last != "" {
		parts = append(parts, a.last)
	}
	return strings.Join(parts, " ")
}

func pathIs(path []string, want ...string) bool {
	if len(path) != len(want) {
		return false
	}
	for i := range want {
		if path[i] != want[i] {
			return false
		}
	}
	return true
}

func inAnnotation(path []string) bool {
	if len(path) < 4 {
		return false
	}
	return path[0] == "fictionbook" && path[1] == "description" &&
		path[2] == "title-info" && path[3] == "annotation"
}

// ParseCover locates the coverpage image reference and decodes the matching
// base64 binary. The returned MIME type is sniffed from the magic bytes,
// falling back to JPEG. Only the image inside description/title-info/coverpage
// counts; body illustrations are ignored.
func ParseCover(r io.Reader) ([]byte, string, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader

	coverID := ""
	var path []string
	var b64 strings.Builder
	inBinary := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", errors.Wrap(err, "malformed fb2 document")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := strings.ToLower(t.Name.Local)
			path = append(path, name)
			switch name {
			case "image":
				// The href may live in any namespace (xlink, l, none).
				if coverID == "" && inCoverpage(path) {
					for _, attr := range t.Attr {
						if strings.ToLower(attr.Name.Local) == "href" {
							coverID = strings.TrimPrefix(strings.TrimSpace(attr.Value), "#")
						}
					}
				}
			case "binary":
				id := ""
				for _, attr := range t.Attr {
					if strings.ToLower(attr.Name.Local) == "id" {
						id = strings.TrimSpace(attr.Value)
					}
				}
				if coverID != "" && id == coverID {
					inBinary = true
					b64.Reset()
				}
			}
		case xml.CharData:
			if inBinary {
				b64.Write(t)
			}
		case xml.EndElement:
			if len(path) > 0 {
				path = path[:len(path)-1]
			}
			if inBinary && strings.ToLower(t.Name.Local) == "binary" {
				data, err := decodeBase64(b64.String())
				if err != nil {
					return nil, "", err
				}
				return data, metadata.SniffImageMime(data), nil
			}
		}
	}

	return nil, "", errors.New("fb2 has no cover")
}

func inCoverpage(path []string) bool {
	return len(path) == 5 && path[0] == "fictionbook" && path[1] == "description" &&
		path[2] == "title-info" && path[3] == "coverpage" && path[4] == "image"
}

func decodeBase64(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
	data, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, errors.Wrap(err, "invalid cover binary")
	}
	return data, nil
}
