package render

import (
	"encoding/json"
	"io"

	"github.com/ppiankov/newsdesk/internal/feed"
)

type jsonBatch struct {
	Results []feed.Result `json:"results"`
}

// JSONFormatter writes results in the same shape the HTTP API returns.
type JSONFormatter struct{}

// NewJSON creates a JSON formatter.
func NewJSON() *JSONFormatter {
	return &JSONFormatter{}
}

// Format writes a single result as a bare object and several as {"results": [...]}.
func (f *JSONFormatter) Format(w io.Writer, results []feed.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	if len(results) == 1 {
		return enc.Encode(results[0])
	}
	if results == nil {
		results = []feed.Result{}
	}
	return enc.Encode(jsonBatch{Results: results})
}
