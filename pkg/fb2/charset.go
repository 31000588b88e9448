package fb2

import (
	"io"

	"golang.org/x/net/html/charset"
)

// charsetReader lets the XML decoder handle the windows-1251 and koi8-r
// declarations that older FB2 files carry.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	return charset.NewReaderLabel(label, input)
}
