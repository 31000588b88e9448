// Package mobi extracts metadata and cover images from Mobipocket files.
// A MOBI file is a PalmDB container: record zero holds the PalmDOC and MOBI
// headers plus an optional EXTH block, and images live in their own records
// starting at first_image_index.
package mobi

import (
	"encoding/binary"
	"strings"

	"github.com/dshein-alt/ropds/pkg/htmlutil"
	"github.com/dshein-alt/ropds/pkg/metadata"
	"github.com/pkg/errors"
)

const (
	pdbHeaderSize    = 78
	pdbRecordEntry   = 8
	mobiMagicOffset  = 16
	exthFlagPresent  = 0x40
	exthTypeAuthor   = 100
	exthTypeDesc     = 103
	exthTypeSubject  = 105
	exthTypePubDate  = 106
	exthTypeCover    = 201
	exthTypeTitle    = 503
)

// mobiLanguages maps the low byte of the MOBI locale field to ISO 639-1.
var mobiLanguages = map[byte]string{
	1:  "ar",
	2:  "bg",
	3:  "ca",
	4:  "zh",
	5:  "cs",
	6:  "da",
	7:  "de",
	8:  "el",
	9:  "en",
	10: "es",
	11: "fi",
	12: "fr",
	13: "he",
	14: "hu",
	16: "it",
	17: "ja",
	18: "ko",
	19: "nl",
	20: "no",
	21: "pl",
	22: "pt",
	24: "ro",
	25: "ru",
	26: "hr",
	27: "sk",
	29: "sv",
	30: "th",
	31: "tr",
	34: "uk",
	36: "vi",
	37: "lt",
	38: "lv",
	39: "et",
}

// Parse reads the whole MOBI byte stream into a BookMeta, cover included.
// MOBI needs random access into the record table, so the caller hands over
// the full file contents rather than a stream.
func Parse(data []byte) (*metadata.BookMeta, error) {
	records, err := pdbRecords(data)
	if err != nil {
		return nil, err
	}

	rec0 := records[0]
	if len(rec0) < mobiMagicOffset+232 || string(rec0[mobiMagicOffset:mobiMagicOffset+4]) != "MOBI" {
		return nil, errors.New("record zero has no MOBI header")
	}

	be := binary.BigEndian
	headerLen := be.Uint32(rec0[20:])
	localeLang := rec0[95]
	fullNameOffset := be.Uint32(rec0[84:])
	fullNameLength := be.Uint32(rec0[88:])
	firstImageIndex := be.Uint32(rec0[108:])
	exthFlags := be.Uint32(rec0[128:])

	meta := &metadata.BookMeta{}
	if lang, ok := mobiLanguages[localeLang]; ok {
		meta.Lang = lang
	}
	// Both values come straight from the file; sum in 64 bits so a crafted
	// offset can't wrap past the length check.
	if end := uint64(fullNameOffset) + uint64(fullNameLength); fullNameOffset > 0 && end <= uint64(len(rec0)) {
		meta.Title = metadata.StripMeta(string(rec0[fullNameOffset:end]))
	}

	coverOffset := int64(-1)
	if exthFlags&exthFlagPresent != 0 {
		exthStart := uint64(mobiMagicOffset) + uint64(headerLen)
		if exthStart > uint64(len(rec0)) {
			return nil, errors.New("MOBI header length overruns record zero")
		}
		parseEXTH(rec0[exthStart:], meta, &coverOffset)
	}

	if cover := coverRecord(records, firstImageIndex, coverOffset); len(cover) > 0 {
		meta.CoverData = cover
		meta.CoverType = metadata.SniffImageMime(cover)
	}

	return meta, nil
}

func pdbRecords(data []byte) ([][]byte, error) {
	if len(data) < pdbHeaderSize+pdbRecordEntry {
		return nil, errors.New("file too short for a PalmDB header")
	}
	be := binary.BigEndian
	count := int(be.Uint16(data[76:]))
	if count == 0 || pdbHeaderSize+count*pdbRecordEntry > len(data) {
		return nil, errors.New("PalmDB record table is truncated")
	}

	offsets := make([]uint32, count+1)
	for i := 0; i < count; i++ {
		offsets[i] = be.Uint32(data[pdbHeaderSize+i*pdbRecordEntry:])
	}
	offsets[count] = uint32(len(data))

	records := make([][]byte, count)
	for i := 0; i < count; i++ {
		start, end := offsets[i], offsets[i+1]
		if start > end || end > uint32(len(data)) {
			return nil, errors.New("PalmDB record offsets are out of order")
		}
		records[i] = data[start:end]
	}
	return records, nil
}

func parseEXTH(exth []byte, meta *metadata.BookMeta, coverOffset *int64) {
	be := binary.BigEndian
	if len(exth) < 12 || string(exth[:4]) != "EXTH" {
		return
	}
	count := be.Uint32(exth[8:])
	pos := uint32(12)
	for i := uint32(0); i < count; i++ {
		if pos+8 > uint32(len(exth)) {
			return
		}
		recType := be.Uint32(exth[pos:])
		recLen := be.Uint32(exth[pos+4:])
		if recLen < 8 || pos+recLen > uint32(len(exth)) {
			return
		}
		value := exth[pos+8 : pos+recLen]
		pos += recLen

		switch recType {
		case exthTypeAuthor:
			meta.Authors = append(meta.Authors, splitAuthors(string(value))...)
		case exthTypeDesc:
			meta.Annotation = htmlutil.StripTags(string(value))
		case exthTypeSubject:
			if s := strings.ToLower(strings.TrimSpace(string(value))); s != "" {
				meta.Genres = append(meta.Genres, s)
			}
		case exthTypePubDate:
			meta.Docdate = strings.TrimSpace(string(value))
		case exthTypeCover:
			if len(value) == 4 {
				*coverOffset = int64(be.Uint32(value))
			}
		case exthTypeTitle:
			if title := metadata.StripMeta(string(value)); title != "" {
				meta.Title = title
			}
		}
	}
}

// splitAuthors breaks a combined author field on the separators Mobipocket
// tools use.
func splitAuthors(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '&' || r == ';'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if name := metadata.StripMeta(f); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// coverRecord picks first_image_index + CoverOffset, falling back to the
// first record that looks like an image.
func coverRecord(records [][]byte, firstImage uint32, coverOffset int64) []byte {
	if coverOffset >= 0 {
		idx := int64(firstImage) + coverOffset
		if idx >= 0 && idx < int64(len(records)) && isImage(records[idx]) {
			return records[idx]
		}
	}
	for i := int(firstImage); i >= 0 && i < len(records); i++ {
		if isImage(records[i]) {
			return records[i]
		}
	}
	return nil
}

func isImage(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	switch {
	case data[0] == 0xFF && data[1] == 0xD8:
		return true
	case data[0] == 0x89 && string(data[1:4]) == "PNG":
		return true
	case string(data[:4]) == "GIF8":
		return true
	}
	return false
}
