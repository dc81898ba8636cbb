package engine

// sanitize.go prepares raw upload bytes for the tokenizer. Windows tools
// prepend a UTF-8 BOM and some accounting exports carry invalid byte
// sequences; both would otherwise corrupt the first header cell.

import (
	"bytes"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SanitizeUpload strips a leading UTF-8 BOM and replaces invalid byte
// sequences with the Unicode replacement character, returning the file as
// a string ready for Tokenize.
func SanitizeUpload(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)

	if utf8.Valid(data) {
		return string(data)
	}

	var buf bytes.Buffer
	buf.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.Write(data[:size])
			data = data[size:]
		}
	}
	return buf.String()
}
