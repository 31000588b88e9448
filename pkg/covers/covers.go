// Package covers resolves cover images for catalogued books, from the saved
// covers directory, the book container itself, or an external converter.
package covers

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/dshein-alt/ropds/pkg/config"
	"github.com/dshein-alt/ropds/pkg/epub"
	"github.com/dshein-alt/ropds/pkg/errcodes"
	"github.com/dshein-alt/ropds/pkg/exttools"
	"github.com/dshein-alt/ropds/pkg/fb2"
	"github.com/dshein-alt/ropds/pkg/metadata"
	"github.com/dshein-alt/ropds/pkg/mobi"
	"github.com/dshein-alt/ropds/pkg/models"
	"github.com/pkg/errors"
)

const (
	thumbSize   = 100
	jpegQuality = 85
)

type Service struct {
	cfg   *config.Config
	tools *exttools.Tools
}

func New(cfg *config.Config, tools *exttools.Tools) *Service {
	return &Service{cfg: cfg, tools: tools}
}

// ReadBookBytes loads the raw book file. Books catalogued inside an archive
// are read out of the ZIP at their path; plain books straight off disk.
func (s *Service) ReadBookBytes(book *models.Book) ([]byte, error) {
	root := s.cfg.Library.RootPath

	if book.CatType == models.CatTypeNormal {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(book.Path), book.Filename))
		if err != nil {
			// A catalogued book whose file vanished is a 404, not a 500.
			if os.IsNotExist(err) {
				return nil, errcodes.NotFound("Book file")
			}
			return nil, errors.WithStack(err)
		}
		return data, nil
	}

	zr, err := zip.OpenReader(filepath.Join(root, filepath.FromSlash(book.Path)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errcodes.NotFound("Book file")
		}
		return nil, errors.WithStack(err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != book.Filename {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		return data, errors.WithStack(err)
	}
	return nil, errcodes.NotFound("Book file")
}

// Extract returns the cover bytes and MIME type for a book. The saved cover
// file is preferred; otherwise the cover is pulled out of the container on
// demand, shelling out to a converter for PDF and DJVU.
func (s *Service) Extract(ctx context.Context, book *models.Book) ([]byte, string, error) {
	if book.Cover == 0 {
		return nil, "", errcodes.NotFound("Cover")
	}

	name := fmt.Sprintf("%d.%s", book.ID, metadata.CoverExtension(book.CoverType))
	if data, err := os.ReadFile(filepath.Join(s.cfg.CoversDir(), name)); err == nil {
		return data, book.CoverType, nil
	}

	raw, err := s.ReadBookBytes(book)
	if err != nil {
		return nil, "", err
	}

	switch book.Format {
	case "fb2":
		data, mime, err := fb2.ParseCover(bytes.NewReader(raw))
		if err != nil {
			return nil, "", err
		}
		return data, mime, nil
	case "epub":
		data, mime, err := epub.ParseCover(bytes.NewReader(raw), int64(len(raw)))
		if err != nil {
			return nil, "", err
		}
		return data, mime, nil
	case "mobi":
		meta, err := mobi.Parse(raw)
		if err != nil {
			return nil, "", err
		}
		if !meta.HasCover() {
			return nil, "", errcodes.NotFound("Cover")
		}
		return meta.CoverData, meta.CoverType, nil
	case "pdf", "djvu":
		data, err := s.tools.RenderCover(ctx, raw, book.Format)
		if err != nil {
			return nil, "", err
		}
		return data, "image/jpeg", nil
	}
	return nil, "", errcodes.NotFound("Cover")
}

// Thumbnail shrinks cover bytes to fit the thumbnail box and re-encodes
// them as JPEG.
func Thumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	img = imaging.Fit(img, thumbSize, thumbSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}
