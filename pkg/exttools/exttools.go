// Package exttools shells out to pdftoppm and ddjvu to render first-page
// covers for formats without an embedded one.
package exttools

import (
	"bytes"
	"context"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

const (
	// maxDimension bounds the longer side of the rendered page.
	maxDimension = 600
	jpegQuality  = 85
)

// Tools holds the resolved converter binaries. An empty path means the tool
// was not found and the capability is disabled.
type Tools struct {
	pdftoppm string
	ddjvu    string
}

// Detect probes PATH for the converters once at startup. Missing tools are
// logged and leave their capability off.
func Detect(ctx context.Context) *Tools {
	log := logger.FromContext(ctx)
	t := &Tools{}

	if path, err := exec.LookPath("pdftoppm"); err == nil {
		t.pdftoppm = path
	} else {
		log.Warn("pdftoppm not found, PDF covers disabled")
	}
	if path, err := exec.LookPath("ddjvu"); err == nil {
		t.ddjvu = path
	} else {
		log.Warn("ddjvu not found, DJVU covers disabled")
	}
	return t
}

// Supports reports whether a cover can be rendered for the given format.
func (t *Tools) Supports(format string) bool {
	switch format {
	case "pdf":
		return t.pdftoppm != ""
	case "djvu":
		return t.ddjvu != ""
	}
	return false
}

// RenderCover writes the source bytes into a temp directory, runs the
// converter on the first page and returns the page as a JPEG.
func (t *Tools) RenderCover(ctx context.Context, data []byte, format string) ([]byte, error) {
	if !t.Supports(format) {
		return nil, errors.Errorf("no converter for format %s", format)
	}

	dir, err := os.MkdirTemp("", "ropds-cover-")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "source."+format)
	if err := os.WriteFile(src, data, 0o600); err != nil {
		return nil, errors.WithStack(err)
	}

	var out string
	var cmd *exec.Cmd
	switch format {
	case "pdf":
		// pdftoppm appends the page number itself.
		cmd = exec.CommandContext(ctx, t.pdftoppm,
			"-jpeg", "-f", "1", "-l", "1", "-scale-to", "600", "-singlefile",
			src, filepath.Join(dir, "page"))
		out = filepath.Join(dir, "page.jpg")
	case "djvu":
		out = filepath.Join(dir, "page.tiff")
		cmd = exec.CommandContext(ctx, t.ddjvu,
			"-format=tiff", "-page=1", "-size=600x600", src, out)
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, errors.Wrapf(err, "converter failed: %s", bytes.TrimSpace(output))
	}

	rendered, err := os.ReadFile(out)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return reencodeJPEG(rendered)
}

// reencodeJPEG normalises converter output to a bounded JPEG.
func reencodeJPEG(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.WithStack(err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxDimension || bounds.Dy() > maxDimension {
		img = imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}
