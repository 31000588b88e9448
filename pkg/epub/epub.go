// Package epub extracts metadata and cover images from EPUB containers.
package epub

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/dshein-alt/ropds/pkg/htmlutil"
	"github.com/dshein-alt/ropds/pkg/metadata"
	"github.com/pkg/errors"
)

type container struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfPackage struct {
	Metadata opfMetadata `xml:"metadata"`
	Manifest struct {
		Items []opfItem `xml:"item"`
	} `xml:"manifest"`
}

type opfMetadata struct {
	Titles      []string     `xml:"title"`
	Creators    []opfCreator `xml:"creator"`
	Languages   []string     `xml:"language"`
	Subjects    []string     `xml:"subject"`
	Description string       `xml:"description"`
	Dates       []string     `xml:"date"`
	Metas       []opfMeta    `xml:"meta"`
}

type opfCreator struct {
	Name string `xml:",chardata"`
	Role string `xml:"role,attr"`
}

type opfMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

// ParseMeta opens the EPUB container, locates the OPF via
// META-INF/container.xml and maps the Dublin Core metadata into a BookMeta.
// The cover bytes are extracted in the same pass.
func ParseMeta(ra io.ReaderAt, size int64) (*metadata.BookMeta, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, errors.Wrap(err, "not an epub container")
	}

	opfPath, pkg, err := readPackage(zr)
	if err != nil {
		return nil, err
	}

	meta := &metadata.BookMeta{}
	if len(pkg.Metadata.Titles) > 0 {
		meta.Title = metadata.StripMeta(pkg.Metadata.Titles[0])
	}
	meta.Authors = creatorNames(pkg.Metadata.Creators)
	if len(pkg.Metadata.Languages) > 0 {
		meta.Lang = strings.ToLower(strings.TrimSpace(pkg.Metadata.Languages[0]))
	}
	for _, subject := range pkg.Metadata.Subjects {
		if s := strings.ToLower(strings.TrimSpace(subject)); s != "" {
			meta.Genres = append(meta.Genres, s)
		}
	}
	if pkg.Metadata.Description != "" {
		meta.Annotation = htmlutil.StripTags(pkg.Metadata.Description)
	}
	if len(pkg.Metadata.Dates) > 0 {
		meta.Docdate = strings.TrimSpace(pkg.Metadata.Dates[0])
	}
	for _, m := range pkg.Metadata.Metas {
		switch m.Name {
		case "calibre:series":
			meta.SeriesTitle = metadata.StripMeta(m.Content)
		case "calibre:series_index":
			if f, err := strconv.ParseFloat(strings.TrimSpace(m.Content), 64); err == nil {
				meta.SeriesIndex = int(f)
			}
		}
	}

	if href := coverHref(pkg); href != "" {
		full := resolveHref(opfPath, href)
		if data := readZipFile(zr, full); len(data) > 0 {
			meta.CoverData = data
			meta.CoverType = metadata.SniffImageMime(data)
		}
	}

	return meta, nil
}

// ParseCover extracts only the cover image from an EPUB container.
func ParseCover(ra io.ReaderAt, size int64) ([]byte, string, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, "", errors.Wrap(err, "not an epub container")
	}
	opfPath, pkg, err := readPackage(zr)
	if err != nil {
		return nil, "", err
	}
	href := coverHref(pkg)
	if href == "" {
		return nil, "", errors.New("epub has no cover")
	}
	data := readZipFile(zr, resolveHref(opfPath, href))
	if len(data) == 0 {
		return nil, "", errors.New("epub cover entry is missing")
	}
	return data, metadata.SniffImageMime(data), nil
}

// creatorNames prefers creators tagged role="aut"; when none are tagged
// that way, every creator is taken as an author.
func creatorNames(creators []opfCreator) []string {
	var tagged, all []string
	for _, c := range creators {
		name := metadata.StripMeta(c.Name)
		if name == "" {
			continue
		}
		all = append(all, name)
		if c.Role == "aut" {
			tagged = append(tagged, name)
		}
	}
	if len(tagged) > 0 {
		return tagged
	}
	return all
}

func readPackage(zr *zip.Reader) (string, *opfPackage, error) {
	opfPath := ""
	if raw := readZipFile(zr, "META-INF/container.xml"); raw != nil {
		var c container
		if err := xml.Unmarshal(raw, &c); err == nil && len(c.Rootfiles) > 0 {
			opfPath = c.Rootfiles[0].FullPath
		}
	}
	if opfPath == "" {
		// Sloppy containers sometimes ship without container.xml but still
		// carry exactly one package document.
		for _, f := range zr.File {
			if strings.HasSuffix(strings.ToLower(f.Name), ".opf") {
				if opfPath != "" {
					return "", nil, errors.New("epub has multiple package documents")
				}
				opfPath = f.Name
			}
		}
	}
	if opfPath == "" {
		return "", nil, errors.New("epub has no package document")
	}

	raw := readZipFile(zr, opfPath)
	if raw == nil {
		return "", nil, errors.Errorf("epub is missing package document %s", opfPath)
	}
	var pkg opfPackage
	if err := xml.Unmarshal(raw, &pkg); err != nil {
		return "", nil, errors.Wrap(err, "malformed package document")
	}
	return opfPath, &pkg, nil
}

// coverHref tries the three cover conventions in order: the EPUB 3
// cover-image manifest property, the EPUB 2 meta name="cover" pointer, and
// finally an image item whose id is literally "cover".
func coverHref(pkg *opfPackage) string {
	for _, item := range pkg.Manifest.Items {
		if !strings.HasPrefix(item.MediaType, "image/") {
			continue
		}
		for _, prop := range strings.Fields(item.Properties) {
			if prop == "cover-image" {
				return item.Href
			}
		}
	}

	for _, m := range pkg.Metadata.Metas {
		if m.Name != "cover" || m.Content == "" {
			continue
		}
		for _, item := range pkg.Manifest.Items {
			if item.ID == m.Content && strings.HasPrefix(item.MediaType, "image/") {
				return item.Href
			}
		}
	}

	for _, item := range pkg.Manifest.Items {
		if strings.HasPrefix(item.MediaType, "image/") &&
			strings.EqualFold(item.ID, "cover") {
			return item.Href
		}
	}

	return ""
}

func resolveHref(opfPath, href string) string {
	dir := path.Dir(opfPath)
	if dir == "." {
		return path.Clean(href)
	}
	return path.Clean(path.Join(dir, href))
}

func readZipFile(zr *zip.Reader, name string) []byte {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil
		}
		return data
	}
	return nil
}
