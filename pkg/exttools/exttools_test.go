package exttools

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupports(t *testing.T) {
	empty := &Tools{}
	assert.False(t, empty.Supports("pdf"))
	assert.False(t, empty.Supports("djvu"))
	assert.False(t, empty.Supports("fb2"))

	full := &Tools{pdftoppm: "/usr/bin/pdftoppm", ddjvu: "/usr/bin/ddjvu"}
	assert.True(t, full.Supports("pdf"))
	assert.True(t, full.Supports("djvu"))
	assert.False(t, full.Supports("epub"))
}

func TestRenderCoverUnsupported(t *testing.T) {
	empty := &Tools{}

	_, err := empty.RenderCover(context.Background(), []byte("%PDF-1.4"), "pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no converter")
}

func TestReencodeJPEG(t *testing.T) {
	// A page taller than the bound must be fit into 600x600.
	img := image.NewRGBA(image.Rect(0, 0, 400, 1200))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	data, err := reencodeJPEG(buf.Bytes())
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.LessOrEqual(t, decoded.Bounds().Dx(), maxDimension)
	assert.Equal(t, maxDimension, decoded.Bounds().Dy())
}

func TestReencodeJPEGKeepsSmallImages(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 120, 180))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	data, err := reencodeJPEG(buf.Bytes())
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 120, decoded.Bounds().Dx())
	assert.Equal(t, 180, decoded.Bounds().Dy())
}
