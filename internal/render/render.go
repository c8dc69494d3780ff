// Package render writes pipeline results for humans and machines.
package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ppiankov/newsdesk/internal/feed"
)

const (
	FormatTerminal = "terminal"
	FormatJSON     = "json"
)

// Formatter writes a batch of results.
type Formatter interface {
	Format(w io.Writer, results []feed.Result) error
}

// Entry is one line of a check report.
type Entry struct {
	Result    feed.Result
	StartedAt time.Time
	Duration  time.Duration
}

// New returns the formatter for format. color only affects terminal output.
func New(format string, color bool) (Formatter, error) {
	switch strings.ToLower(format) {
	case FormatTerminal, "":
		return NewTerminal(color), nil
	case FormatJSON:
		return NewJSON(), nil
	default:
		return nil, fmt.Errorf("unknown format %q (want terminal or json)", format)
	}
}
