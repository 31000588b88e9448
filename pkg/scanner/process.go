package scanner

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshein-alt/ropds/pkg/books"
	"github.com/dshein-alt/ropds/pkg/catalogs"
	"github.com/dshein-alt/ropds/pkg/epub"
	"github.com/dshein-alt/ropds/pkg/errcodes"
	"github.com/dshein-alt/ropds/pkg/fb2"
	"github.com/dshein-alt/ropds/pkg/inpx"
	"github.com/dshein-alt/ropds/pkg/metadata"
	"github.com/dshein-alt/ropds/pkg/mobi"
	"github.com/dshein-alt/ropds/pkg/models"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"golang.org/x/text/encoding/charmap"
)

// rootCatalogPath stands in for books sitting directly in the library root.
const rootCatalogPath = "."

// unknownAuthor links books whose metadata names nobody. Every book carries
// at least one author row.
const unknownAuthor = "Unknown"

func (s *Scanner) absPath(rel string) string {
	return filepath.Join(s.cfg.Library.RootPath, filepath.FromSlash(rel))
}

func fileStem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// processFile adds or confirms one plain book file.
func (s *Scanner) processFile(ctx context.Context, e entry, stats *ScanStats) {
	log := logger.FromContext(ctx).Data(logger.Data{"path": e.relPath()})

	bookPath := e.relDir
	existing, err := s.books.RetrieveBook(ctx, books.RetrieveBookOptions{Path: &bookPath, Filename: &e.name})
	if err == nil {
		if err := s.books.Confirm(ctx, existing.ID); err != nil {
			log.Warn("confirm failed", logger.Data{"err": err.Error()})
			stats.Errors++
			return
		}
		stats.BooksSkipped++
		return
	}
	if !errcodes.IsCode(err, "not_found") {
		log.Warn("lookup failed", logger.Data{"err": err.Error()})
		stats.Errors++
		return
	}

	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(e.name), "."))
	meta, err := s.parseFileMeta(s.absPath(e.relPath()), format)
	if err != nil {
		log.Debug("parse failed", logger.Data{"err": err.Error()})
		stats.Errors++
		return
	}

	catalogPath := e.relDir
	if catalogPath == "" {
		catalogPath = rootCatalogPath
	}
	catalog, err := s.catalogs.Ensure(ctx, catalogPath, models.CatTypeNormal, 0, e.mtime)
	if err != nil {
		log.Warn("catalog ensure failed", logger.Data{"err": err.Error()})
		stats.Errors++
		return
	}

	if err := s.addBook(ctx, meta, addBookParams{
		path:      bookPath,
		filename:  e.name,
		format:    format,
		size:      e.size,
		catType:   models.CatTypeNormal,
		catalogID: catalog.ID,
	}); err != nil {
		log.Debug("add failed", logger.Data{"err": err.Error()})
		stats.Errors++
		return
	}
	stats.BooksAdded++
}

// processArchive adds or confirms every supported entry of one ZIP archive.
func (s *Scanner) processArchive(ctx context.Context, e entry, stats *ScanStats) {
	log := logger.FromContext(ctx).Data(logger.Data{"archive": e.relPath()})
	relPath := e.relPath()

	if s.cfg.Scanner.SkipUnchanged {
		catalog, err := s.catalogs.RetrieveCatalog(ctx, catalogs.RetrieveCatalogOptions{Path: &relPath})
		if err == nil && catalog.CatSize == e.size && catalog.CatMtime.Equal(e.mtime) {
			if err := s.confirmBooksUnder(ctx, relPath); err == nil {
				stats.ArchivesSkipped++
				return
			}
		}
	}

	absPath := s.absPath(relPath)
	if s.cfg.Scanner.TestZip {
		mtype, err := mimetype.DetectFile(absPath)
		if err != nil || !mtype.Is("application/zip") {
			log.Warn("archive failed the zip test")
			stats.ArchivesSkipped++
			stats.Errors++
			return
		}
	}

	zr, err := zip.OpenReader(absPath)
	if err != nil {
		log.Warn("unreadable archive", logger.Data{"err": err.Error()})
		stats.ArchivesSkipped++
		stats.Errors++
		return
	}
	defer zr.Close()

	catalog, err := s.catalogs.Ensure(ctx, relPath, models.CatTypeZip, e.size, e.mtime)
	if err != nil {
		log.Warn("catalog ensure failed", logger.Data{"err": err.Error()})
		stats.Errors++
		return
	}

	extSet := s.cfg.BookExtensionSet()
	for _, f := range zr.File {
		name := s.decodeZipName(f)
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
		if ext == "zip" || !extSet[ext] {
			continue
		}

		existing, err := s.books.RetrieveBook(ctx, books.RetrieveBookOptions{Path: &relPath, Filename: &name})
		if err == nil {
			if err := s.books.Confirm(ctx, existing.ID); err != nil {
				stats.Errors++
				continue
			}
			stats.BooksSkipped++
			continue
		}
		if !errcodes.IsCode(err, "not_found") {
			stats.Errors++
			continue
		}

		meta, err := s.parseArchiveEntry(f, ext)
		if err != nil {
			log.Debug("entry parse failed", logger.Data{"entry": name, "err": err.Error()})
			stats.Errors++
			continue
		}

		if err := s.addBook(ctx, meta, addBookParams{
			path:      relPath,
			filename:  name,
			format:    ext,
			size:      int64(f.UncompressedSize64),
			catType:   models.CatTypeZip,
			catalogID: catalog.ID,
		}); err != nil {
			log.Debug("entry add failed", logger.Data{"entry": name, "err": err.Error()})
			stats.Errors++
			continue
		}
		stats.BooksAdded++
	}
	stats.ArchivesScanned++
}

// processInpx adds or confirms every record of one INPX index.
func (s *Scanner) processInpx(ctx context.Context, e entry, stats *ScanStats) {
	log := logger.FromContext(ctx).Data(logger.Data{"inpx": e.relPath()})

	f, err := os.Open(s.absPath(e.relPath()))
	if err != nil {
		log.Warn("unreadable inpx", logger.Data{"err": err.Error()})
		stats.Errors++
		return
	}
	defer f.Close()

	records, err := inpx.Parse(f, e.size)
	if err != nil {
		log.Warn("invalid inpx", logger.Data{"err": err.Error()})
		stats.Errors++
		return
	}

	catalog, err := s.catalogs.Ensure(ctx, e.relPath(), models.CatTypeInpx, e.size, e.mtime)
	if err != nil {
		log.Warn("catalog ensure failed", logger.Data{"err": err.Error()})
		stats.Errors++
		return
	}

	for _, rec := range records {
		bookPath := rec.Folder
		if e.relDir != "" {
			bookPath = e.relDir + "/" + rec.Folder
		}

		existing, err := s.books.RetrieveBook(ctx, books.RetrieveBookOptions{Path: &bookPath, Filename: &rec.Filename})
		if err == nil {
			if err := s.books.Confirm(ctx, existing.ID); err != nil {
				stats.Errors++
				continue
			}
			stats.BooksSkipped++
			continue
		}
		if !errcodes.IsCode(err, "not_found") {
			stats.Errors++
			continue
		}

		if err := s.addBook(ctx, rec.Meta, addBookParams{
			path:      bookPath,
			filename:  rec.Filename,
			format:    rec.Format,
			size:      rec.Size,
			catType:   models.CatTypeInpx,
			catalogID: catalog.ID,
		}); err != nil {
			log.Debug("record add failed", logger.Data{"file": rec.Filename, "err": err.Error()})
			stats.Errors++
			continue
		}
		stats.BooksAdded++
	}
	stats.ArchivesScanned++
}

type addBookParams struct {
	path      string
	filename  string
	format    string
	size      int64
	catType   int
	catalogID int
}

// addBook inserts a new confirmed book, saves its cover and links authors,
// genres and series.
func (s *Scanner) addBook(ctx context.Context, meta *metadata.BookMeta, p addBookParams) error {
	title := meta.Title
	if title == "" {
		title = fileStem(p.filename)
	}

	book := &models.Book{
		CatalogID:  p.catalogID,
		Filename:   p.filename,
		Path:       p.path,
		Format:     p.format,
		Title:      title,
		Annotation: meta.Annotation,
		Docdate:    meta.Docdate,
		Lang:       meta.Lang,
		Size:       p.size,
		Avail:      models.AvailConfirmed,
		CatType:    p.catType,
	}
	if meta.HasCover() {
		book.Cover = 1
		book.CoverType = meta.CoverType
	}

	if err := s.books.Create(ctx, book); err != nil {
		return err
	}

	if meta.HasCover() {
		if err := s.saveCover(book.ID, meta); err != nil {
			logger.FromContext(ctx).Warn("cover save failed", logger.Data{"book_id": book.ID, "err": err.Error()})
		}
	}

	names := meta.Authors
	if len(names) == 0 {
		names = []string{unknownAuthor}
	}
	authorIDs := make([]int, 0, len(names))
	for _, name := range names {
		author, err := s.authors.Insert(ctx, metadata.NormalizeAuthorName(name))
		if err != nil {
			return err
		}
		authorIDs = append(authorIDs, author.ID)
	}
	if err := s.books.SetBookAuthors(ctx, book.ID, authorIDs); err != nil {
		return err
	}

	genreIDs := make([]int, 0, len(meta.Genres))
	for _, code := range meta.Genres {
		genre, err := s.genres.RetrieveByCode(ctx, code)
		if err != nil {
			// Unknown codes are silently dropped.
			if errcodes.IsCode(err, "not_found") {
				continue
			}
			return err
		}
		genreIDs = append(genreIDs, genre.ID)
	}
	if len(genreIDs) > 0 {
		if err := s.books.SetBookGenres(ctx, book.ID, genreIDs); err != nil {
			return err
		}
	}

	if meta.SeriesTitle != "" {
		ser, err := s.series.Insert(ctx, meta.SeriesTitle)
		if err != nil {
			return err
		}
		if err := s.books.SetBookSeries(ctx, book.ID, ser.ID, meta.SeriesIndex); err != nil {
			return err
		}
	}

	return nil
}

func (s *Scanner) saveCover(bookID int, meta *metadata.BookMeta) error {
	dir := s.cfg.CoversDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WithStack(err)
	}
	name := fmt.Sprintf("%d.%s", bookID, metadata.CoverExtension(meta.CoverType))
	return errors.WithStack(os.WriteFile(filepath.Join(dir, name), meta.CoverData, 0o644))
}

// parseFileMeta extracts metadata from a plain file on disk. Formats without
// a parser yield an empty record; the title falls back to the file stem.
func (s *Scanner) parseFileMeta(absPath, format string) (*metadata.BookMeta, error) {
	switch format {
	case "fb2":
		f, err := os.Open(absPath)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		defer f.Close()

		meta, err := fb2.ParseMeta(f)
		if err != nil {
			return nil, err
		}
		// Covers live in the binary elements past the description, so they
		// need a second pass from the top.
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, errors.WithStack(err)
		}
		if data, mime, err := fb2.ParseCover(f); err == nil {
			meta.CoverData = data
			meta.CoverType = mime
		}
		return meta, nil
	case "epub":
		f, err := os.Open(absPath)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return epub.ParseMeta(f, info.Size())
	case "mobi":
		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return mobi.Parse(data)
	default:
		return &metadata.BookMeta{}, nil
	}
}

// parseArchiveEntry extracts metadata from one ZIP entry.
func (s *Scanner) parseArchiveEntry(f *zip.File, format string) (*metadata.BookMeta, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	switch format {
	case "fb2":
		meta, err := fb2.ParseMeta(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		if cover, mime, err := fb2.ParseCover(bytes.NewReader(data)); err == nil {
			meta.CoverData = cover
			meta.CoverType = mime
		}
		return meta, nil
	case "epub":
		return epub.ParseMeta(bytes.NewReader(data), int64(len(data)))
	case "mobi":
		return mobi.Parse(data)
	default:
		return &metadata.BookMeta{}, nil
	}
}

// decodeZipName recovers entry names written in a legacy single-byte
// codepage. UTF-8 flagged names pass through.
func (s *Scanner) decodeZipName(f *zip.File) string {
	if !f.NonUTF8 {
		return f.Name
	}

	var cm *charmap.Charmap
	switch s.cfg.Library.ZipCodepage {
	case "cp1251":
		cm = charmap.Windows1251
	default:
		cm = charmap.CodePage866
	}
	decoded, err := cm.NewDecoder().String(f.Name)
	if err != nil {
		return f.Name
	}
	return decoded
}

func (s *Scanner) confirmBooksUnder(ctx context.Context, path string) error {
	_, err := s.db.
		NewUpdate().
		Model((*models.Book)(nil)).
		Set("avail = ?", models.AvailConfirmed).
		Where("path = ?", path).
		Exec(ctx)
	return errors.WithStack(err)
}
