package mobi

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jpegMagic = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

type exthRecord struct {
	recType uint32
	value   []byte
}

// buildMOBI assembles a minimal PalmDB file: record zero with a MOBI header,
// an EXTH block and the full name, followed by the given extra records.
func buildMOBI(t *testing.T, lang byte, fullName string, exth []exthRecord, extra [][]byte) []byte {
	t.Helper()
	be := binary.BigEndian

	var exthBlock []byte
	if len(exth) > 0 {
		body := make([]byte, 0, 64)
		for _, rec := range exth {
			entry := make([]byte, 8+len(rec.value))
			be.PutUint32(entry[0:], rec.recType)
			be.PutUint32(entry[4:], uint32(len(entry)))
			copy(entry[8:], rec.value)
			body = append(body, entry...)
		}
		exthBlock = make([]byte, 12+len(body))
		copy(exthBlock, "EXTH")
		be.PutUint32(exthBlock[4:], uint32(len(exthBlock)))
		be.PutUint32(exthBlock[8:], uint32(len(exth)))
		copy(exthBlock[12:], body)
	}

	const mobiHeaderLen = 232
	rec0 := make([]byte, 16+mobiHeaderLen)
	copy(rec0[16:], "MOBI")
	be.PutUint32(rec0[20:], mobiHeaderLen)
	rec0[95] = lang
	be.PutUint32(rec0[108:], 1) // first image record
	if len(exthBlock) > 0 {
		be.PutUint32(rec0[128:], 0x40)
		rec0 = append(rec0, exthBlock...)
	}
	be.PutUint32(rec0[84:], uint32(len(rec0)))
	be.PutUint32(rec0[88:], uint32(len(fullName)))
	rec0 = append(rec0, fullName...)

	records := append([][]byte{rec0}, extra...)

	header := make([]byte, 78+len(records)*8)
	copy(header, "test-book")
	be.PutUint16(header[76:], uint16(len(records)))

	offset := uint32(len(header))
	var body []byte
	for i, rec := range records {
		be.PutUint32(header[78+i*8:], offset)
		offset += uint32(len(rec))
		body = append(body, rec...)
	}
	return append(header, body...)
}

func TestParse(t *testing.T) {
	data := buildMOBI(t, 9, "Fallback Name", []exthRecord{
		{100, []byte("John Doe & Jane Roe; Third Writer")},
		{103, []byte("<p>Intro.</p><p>Outro.</p>")},
		{105, []byte("Thriller")},
		{106, []byte("2021-06-01")},
		{201, []byte{0, 0, 0, 0}},
		{503, []byte("The Real Title")},
	}, [][]byte{jpegMagic})

	meta, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "The Real Title", meta.Title)
	assert.Equal(t, []string{"John Doe", "Jane Roe", "Third Writer"}, meta.Authors)
	assert.Equal(t, "Intro.\nOutro.", meta.Annotation)
	assert.Equal(t, []string{"thriller"}, meta.Genres)
	assert.Equal(t, "2021-06-01", meta.Docdate)
	assert.Equal(t, "en", meta.Lang)
	assert.Equal(t, jpegMagic, meta.CoverData)
	assert.Equal(t, "image/jpeg", meta.CoverType)
}

func TestParse_FullNameWhenNoEXTHTitle(t *testing.T) {
	data := buildMOBI(t, 25, "Имя книги", nil, nil)

	meta, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "Имя книги", meta.Title)
	assert.Equal(t, "ru", meta.Lang)
	assert.Empty(t, meta.CoverData)
}

func TestParse_CoverFallbackToFirstImage(t *testing.T) {
	// No CoverOffset record; the first image record after first_image_index
	// is used.
	data := buildMOBI(t, 9, "Pictures", []exthRecord{
		{100, []byte("Solo Author")},
	}, [][]byte{[]byte("not an image"), jpegMagic})

	meta, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, jpegMagic, meta.CoverData)
}

func TestParse_NotAMobi(t *testing.T) {
	_, err := Parse([]byte("too short"))
	require.Error(t, err)

	_, err = Parse(make([]byte, 4096))
	require.Error(t, err)
}

func TestParse_HeaderLengthOverrunsRecord(t *testing.T) {
	data := buildMOBI(t, 9, "X", []exthRecord{
		{100, []byte("Solo Author")},
	}, nil)

	// Record zero starts right after the PalmDB header and record table.
	rec0 := 78 + 1*8
	binary.BigEndian.PutUint32(data[rec0+20:], 0xFFFF0000)

	_, err := Parse(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overruns")
}

func TestParse_FullNameOffsetOverflow(t *testing.T) {
	data := buildMOBI(t, 9, "Name", nil, nil)

	rec0 := 78 + 1*8
	binary.BigEndian.PutUint32(data[rec0+84:], 0xFFFFFFF0)
	binary.BigEndian.PutUint32(data[rec0+88:], 0x20)

	meta, err := Parse(data)
	require.NoError(t, err)
	assert.Empty(t, meta.Title)
}
