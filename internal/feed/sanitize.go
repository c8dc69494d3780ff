package feed

import (
	"regexp"
	"strings"
)

var (
	controlCharRe = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)
	ampersandRe   = regexp.MustCompile(`&(?:amp|lt|gt|quot|apos|#[0-9]+|#[xX][0-9a-fA-F]+);|&`)
)

const byteOrderMark = "\uFEFF"

// Sanitize repairs common well-formedness defects in feed markup: control characters
// other than tab, newline and carriage return are removed, and any & that does not
// start a predefined or numeric entity is escaped. Valid markup passes through unchanged.
func Sanitize(s string) string {
	s = controlCharRe.ReplaceAllString(s, "")
	s = strings.TrimLeft(s, byteOrderMark)
	return ampersandRe.ReplaceAllStringFunc(s, func(m string) string {
		if m == "&" {
			return "&amp;"
		}
		return m
	})
}
