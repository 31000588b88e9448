// Package inpx reads INPX library indexes. An INPX is a ZIP of .inp text
// files; each line describes one book in a companion archive, with fields
// separated by byte 0x04.
package inpx

import (
	"archive/zip"
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/dshein-alt/ropds/pkg/metadata"
	"github.com/pkg/errors"
)

// Field indices inside one .inp record.
const (
	fieldAuthor  = 0
	fieldGenre   = 1
	fieldTitle   = 2
	fieldSeries  = 3
	fieldSerNo   = 4
	fieldFile    = 5
	fieldSize    = 6
	fieldDeleted = 8
	fieldExt     = 9
	fieldDate    = 10
	fieldLang    = 11

	minFields = 12
)

// Record is one parsed book entry.
type Record struct {
	Meta     *metadata.BookMeta
	Filename string
	Folder   string
	Size     int64
	Format   string
}

// Parse reads every .inp entry in the index. Records flagged as deleted or
// missing mandatory fields are dropped silently; the index describes
// millions of books and one bad line must not fail the archive.
func Parse(ra io.ReaderAt, size int64) ([]Record, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, errors.Wrap(err, "not an inpx archive")
	}

	var records []Record
	for _, f := range zr.File {
		name := strings.ToLower(f.Name)
		if !strings.HasSuffix(name, ".inp") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "open inp entry %s", f.Name)
		}
		entryRecords, err := parseInp(rc, inpStem(f.Name))
		rc.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "read inp entry %s", f.Name)
		}
		records = append(records, entryRecords...)
	}
	return records, nil
}

func inpStem(name string) string {
	base := name
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	return strings.TrimSuffix(base, ".inp")
}

func parseInp(r io.Reader, stem string) ([]Record, error) {
	var records []Record

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if rec, ok := parseLine(scanner.Text(), stem); ok {
			records = append(records, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return records, nil
}

func parseLine(line string, stem string) (Record, bool) {
	fields := strings.Split(line, "\x04")
	if len(fields) < minFields {
		return Record{}, false
	}
	if del := strings.TrimSpace(fields[fieldDeleted]); del != "" && del != "0" {
		return Record{}, false
	}

	format := strings.ToLower(strings.TrimSpace(fields[fieldExt]))
	stemName := strings.TrimSpace(fields[fieldFile])
	if format == "" || stemName == "" {
		return Record{}, false
	}

	meta := &metadata.BookMeta{
		Title:   metadata.StripMeta(fields[fieldTitle]),
		Lang:    strings.ToLower(strings.TrimSpace(fields[fieldLang])),
		Docdate: strings.TrimSpace(fields[fieldDate]),
	}

	for _, author := range strings.Split(fields[fieldAuthor], ":") {
		// Commas inside one author are decoration, not separators.
		author = strings.Join(strings.Fields(strings.ReplaceAll(author, ",", " ")), " ")
		if author = metadata.StripMeta(author); author != "" {
			meta.Authors = append(meta.Authors, author)
		}
	}
	for _, genre := range strings.Split(fields[fieldGenre], ":") {
		if g := strings.ToLower(strings.TrimSpace(genre)); g != "" {
			meta.Genres = append(meta.Genres, g)
		}
	}
	if series := strings.Split(fields[fieldSeries], ":"); len(series) > 0 {
		meta.SeriesTitle = metadata.StripMeta(series[0])
	}
	if n, err := strconv.Atoi(strings.TrimSpace(fields[fieldSerNo])); err == nil {
		meta.SeriesIndex = n
	}

	size, _ := strconv.ParseInt(strings.TrimSpace(fields[fieldSize]), 10, 64)

	return Record{
		Meta:     meta,
		Filename: stemName + "." + format,
		Folder:   stem + ".zip",
		Size:     size,
		Format:   format,
	}, true
}
