// Package feed fetches syndication feeds and normalizes them into a stable item list.
package feed

import (
	"errors"
	"fmt"
)

// Code classifies a failed pipeline run. Values are stable and safe to expose to clients.
type Code string

const (
	CodeUnknownSource Code = "UNKNOWN_SRC"
	CodeHTTP          Code = "HTTP"
	CodeTimeout       Code = "TIMEOUT"
	CodeNetwork       Code = "NETWORK"
	CodeNotRSS        Code = "NOT_RSS"
	CodeParse         Code = "PARSE"
	CodeUnknown       Code = "UNKNOWN"
)

// Codes lists every code in classification order.
var Codes = []Code{
	CodeUnknownSource,
	CodeHTTP,
	CodeTimeout,
	CodeNetwork,
	CodeNotRSS,
	CodeParse,
	CodeUnknown,
}

// Describe returns the human-readable category for the code.
func (c Code) Describe() string {
	switch c {
	case CodeUnknownSource:
		return "unknown source"
	case CodeHTTP:
		return "upstream returned an error status"
	case CodeTimeout:
		return "upstream timed out"
	case CodeNetwork:
		return "upstream unreachable"
	case CodeNotRSS:
		return "upstream did not return a feed"
	case CodeParse:
		return "feed could not be parsed"
	default:
		return "unexpected error"
	}
}

// Error is a classified pipeline failure.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code carried by err, or CodeUnknown.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return CodeUnknown
}

// Item is a normalized feed entry. Missing fields are empty strings.
type Item struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	PubDate string `json:"pubDate"`
}

// Result is the sole output of a pipeline run. It is either a success with items
// or a failure with a code, never both.
type Result struct {
	OK          bool   `json:"ok"`
	Source      string `json:"source"`
	SourceTitle string `json:"sourceTitle,omitempty"`
	Dialect     string `json:"dialect,omitempty"`
	Items       []Item `json:"items"`
	Count       int    `json:"count"`
	Code        Code   `json:"code,omitempty"`
	Error       string `json:"error,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Success builds a successful result. A nil items slice becomes empty.
func Success(source, title, dialect string, items []Item) Result {
	if items == nil {
		items = []Item{}
	}
	return Result{
		OK:          true,
		Source:      source,
		SourceTitle: title,
		Dialect:     dialect,
		Items:       items,
		Count:       len(items),
	}
}

// Failure builds a failed result from err. The message keeps the low-level detail for
// diagnostics; Error holds the stable category.
func Failure(source string, err error) Result {
	code := CodeOf(err)
	msg := ""
	if err != nil {
		msg = err.Error()
		var fe *Error
		if errors.As(err, &fe) {
			msg = fe.Message
			if fe.Err != nil {
				if msg != "" {
					msg += ": "
				}
				msg += fe.Err.Error()
			}
		}
	}
	return Result{
		OK:      false,
		Source:  source,
		Items:   []Item{},
		Code:    code,
		Error:   code.Describe(),
		Message: msg,
	}
}
