// Package source holds the read-only registry of named feed endpoints.
package source

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DefaultKey is used when a caller does not name a source.
const DefaultKey = "nhk"

// Source is a named, preconfigured feed endpoint.
type Source struct {
	Key   string // lookup key, e.g. "nhk"
	Title string // display title used when the feed declares none
	URL   string // feed URL
}

// Defaults is the built-in source set.
var Defaults = []Source{
	{Key: "nhk", Title: "NHK", URL: "https://www3.nhk.or.jp/rss/news/cat0.xml"},
	{Key: "kyodo", Title: "共同社", URL: "https://english.kyodonews.net/rss/all.xml"},
	{Key: "yahoo", Title: "Yahoo", URL: "https://news.yahoo.co.jp/rss/topics/top-picks.xml"},
	{Key: "cnn", Title: "CNN", URL: "http://rss.cnn.com/rss/edition.rss"},
}

// Registry resolves source keys. It is immutable after construction and safe for
// concurrent use.
type Registry struct {
	byKey map[string]Source
	order []string
}

// NewRegistry validates sources and builds a registry. Keys are normalized with
// Normalize and must be unique.
func NewRegistry(sources []Source) (*Registry, error) {
	if len(sources) == 0 {
		return nil, errors.New("source: at least one source is required")
	}

	r := &Registry{byKey: make(map[string]Source, len(sources))}
	for i, s := range sources {
		s.Key = Normalize(s.Key)
		s.URL = strings.TrimSpace(s.URL)
		s.Title = strings.TrimSpace(s.Title)

		if s.Key == "" {
			return nil, fmt.Errorf("source[%d]: key is required", i)
		}
		if _, dup := r.byKey[s.Key]; dup {
			return nil, fmt.Errorf("source %q: duplicate key", s.Key)
		}
		u, err := url.Parse(s.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("source %q: invalid url %q", s.Key, s.URL)
		}
		if s.Title == "" {
			s.Title = s.Key
		}

		r.byKey[s.Key] = s
		r.order = append(r.order, s.Key)
	}
	return r, nil
}

// MustDefault returns a registry of the built-in sources.
func MustDefault() *Registry {
	r, err := NewRegistry(Defaults)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the source registered under key.
func (r *Registry) Lookup(key string) (Source, bool) {
	s, ok := r.byKey[Normalize(key)]
	return s, ok
}

// Keys returns the registered keys in configuration order.
func (r *Registry) Keys() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns the registered sources in configuration order.
func (r *Registry) All() []Source {
	out := make([]Source, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.byKey[k])
	}
	return out
}

// Normalize canonicalizes a source key.
func Normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
