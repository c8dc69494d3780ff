package feed

import (
	"bytes"
	"regexp"

	"golang.org/x/text/encoding/unicode"
)

var utf16DeclRe = regexp.MustCompile(`(?i)(<\?xml[^>]*?encoding\s*=\s*["'])utf-16(?:le|be)?(["'])`)

// toUTF8 transcodes UTF-16 bodies so the ASCII markers in Classify and the
// XML parser both see UTF-8. The encoding declaration is rewritten to match.
// Any other body is returned unchanged; declared 8-bit charsets are left to the parser.
func toUTF8(body []byte) []byte {
	order, bom, ok := utf16Order(body)
	if !ok {
		return body
	}
	policy := unicode.IgnoreBOM
	if bom {
		policy = unicode.UseBOM
	}
	out, err := unicode.UTF16(order, policy).NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return utf16DeclRe.ReplaceAll(out, []byte("${1}UTF-8${2}"))
}

// utf16Order sniffs a byte order mark, or a BOM-less "<" followed by a NUL byte.
func utf16Order(b []byte) (order unicode.Endianness, bom, ok bool) {
	switch {
	case bytes.HasPrefix(b, []byte{0xFF, 0xFE}):
		return unicode.LittleEndian, true, true
	case bytes.HasPrefix(b, []byte{0xFE, 0xFF}):
		return unicode.BigEndian, true, true
	case bytes.HasPrefix(b, []byte{'<', 0x00}):
		return unicode.LittleEndian, false, true
	case bytes.HasPrefix(b, []byte{0x00, '<'}):
		return unicode.BigEndian, false, true
	}
	return unicode.LittleEndian, false, false
}
