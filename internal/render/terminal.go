package render

import (
	"fmt"
	"io"
	"time"

	"github.com/ppiankov/newsdesk/internal/feed"
)

// TerminalFormatter formats results for terminal output.
type TerminalFormatter struct {
	color bool
}

// NewTerminal creates a terminal formatter. Set color=true for ANSI colors.
func NewTerminal(color bool) *TerminalFormatter {
	return &TerminalFormatter{color: color}
}

// Format writes each result as a numbered headline list, or its failure.
func (f *TerminalFormatter) Format(w io.Writer, results []feed.Result) error {
	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if !res.OK {
			f.writeFailure(w, res)
			continue
		}
		f.writeResult(w, res)
	}
	return nil
}

func (f *TerminalFormatter) writeResult(w io.Writer, res feed.Result) {
	title := res.SourceTitle
	if title == "" {
		title = res.Source
	}
	header := fmt.Sprintf("%s (%s), %d items", title, res.Source, res.Count)
	if res.Dialect != "" {
		header += " [" + res.Dialect + "]"
	}
	fmt.Fprintln(w, f.bold(header))
	fmt.Fprintln(w)

	if len(res.Items) == 0 {
		fmt.Fprintln(w, "  No items.")
		return
	}

	width := len(fmt.Sprint(len(res.Items)))
	for i, it := range res.Items {
		headline := it.Title
		if headline == "" {
			headline = "(untitled)"
		}
		fmt.Fprintf(w, "  %*d. %s\n", width, i+1, headline)
		if it.PubDate != "" {
			fmt.Fprintf(w, "  %*s  %s\n", width, "", f.dim(it.PubDate))
		}
		if it.Link != "" {
			fmt.Fprintf(w, "  %*s  %s\n", width, "", f.dim(it.Link))
		}
	}
}

func (f *TerminalFormatter) writeFailure(w io.Writer, res feed.Result) {
	fmt.Fprintf(w, "%s %s: %s\n", f.red(f.bold(string(res.Code))), res.Source, res.Error)
	if res.Message != "" {
		fmt.Fprintf(w, "  %s\n", f.dim(res.Message))
	}
}

// Summary writes one line per entry: status, source, item count or code, duration.
func (f *TerminalFormatter) Summary(w io.Writer, entries []Entry) error {
	maxSrc := 6 // "Source"
	for _, e := range entries {
		if len(e.Result.Source) > maxSrc {
			maxSrc = len(e.Result.Source)
		}
	}

	failed := 0
	fmt.Fprintf(w, "  %-4s  %-*s  %-14s  %8s\n", "", maxSrc, "Source", "Result", "Time")
	for _, e := range entries {
		status := f.green("ok  ")
		detail := fmt.Sprintf("%d items", e.Result.Count)
		if !e.Result.OK {
			failed++
			status = f.red("FAIL")
			detail = string(e.Result.Code)
		}
		fmt.Fprintf(w, "  %s  %-*s  %-14s  %8s\n",
			status, maxSrc, e.Result.Source, detail, e.Duration.Round(time.Millisecond))
	}
	fmt.Fprintln(w)

	summary := fmt.Sprintf("%d sources, %d failed", len(entries), failed)
	if failed > 0 {
		fmt.Fprintln(w, f.yellow(summary))
	} else {
		fmt.Fprintln(w, f.dim(summary))
	}
	return nil
}

// ANSI helpers, no-op when color=false.

func (f *TerminalFormatter) paint(code, s string) string {
	if !f.color {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func (f *TerminalFormatter) bold(s string) string   { return f.paint("1", s) }
func (f *TerminalFormatter) dim(s string) string    { return f.paint("2", s) }
func (f *TerminalFormatter) red(s string) string    { return f.paint("31", s) }
func (f *TerminalFormatter) green(s string) string  { return f.paint("32", s) }
func (f *TerminalFormatter) yellow(s string) string { return f.paint("33", s) }

