package feed

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// Shape is the pre-parse classification of a response body.
type Shape int

const (
	ShapeNotFeed Shape = iota
	ShapeMarkup
)

func (s Shape) String() string {
	if s == ShapeMarkup {
		return "markup"
	}
	return "not-feed"
}

const classifyWindow = 300

var (
	htmlMarkers = []string{"<!doctype html", "<html"}
	feedMarkers = []string{"<rss", "<?xml", "<feed", "<rdf:rdf"}
)

// Classify decides from the head of body whether it is worth handing to the XML parser.
// HTML documents are rejected before any parse is attempted.
func Classify(body []byte) Shape {
	b := bytes.TrimSpace(bytes.TrimPrefix(body, []byte(byteOrderMark)))
	head := strings.ToLower(string(headRunes(b, classifyWindow)))

	for _, m := range htmlMarkers {
		if strings.HasPrefix(head, m) {
			return ShapeNotFeed
		}
	}
	for _, m := range feedMarkers {
		if strings.Contains(head, m) {
			return ShapeMarkup
		}
	}
	return ShapeNotFeed
}

// sample returns the head of body for diagnostics.
func sample(body []byte) string {
	return strings.ToValidUTF8(string(headRunes(bytes.TrimSpace(body), classifyWindow)), "")
}

// headRunes returns the prefix of b holding at most n runes.
func headRunes(b []byte, n int) []byte {
	end := 0
	for i := 0; end < len(b) && i < n; i++ {
		_, size := utf8.DecodeRune(b[end:])
		end += size
	}
	return b[:end]
}
