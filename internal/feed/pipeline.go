package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/newsdesk/internal/privacy"
	"github.com/ppiankov/newsdesk/internal/source"
	"github.com/sirupsen/logrus"
)

// Resolver maps a source key to its endpoint.
type Resolver interface {
	Lookup(key string) (source.Source, bool)
}

// Pipeline turns a source key into a Result. It holds no per-run state; concurrent
// Runs are independent.
type Pipeline struct {
	sources Resolver
	fetcher *Fetcher
	opts    Options
	client  *http.Client
	redact  *privacy.Redactor
	log     logrus.FieldLogger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Failures are logged at warn, unexpected ones at error.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithHTTPClient sets the client used for upstream requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) { p.client = c }
}

// WithRedactor masks matches in failure messages before they leave Run.
func WithRedactor(r *privacy.Redactor) Option {
	return func(p *Pipeline) { p.redact = r }
}

// New creates a pipeline over sources.
func New(sources Resolver, opts Options, options ...Option) *Pipeline {
	p := &Pipeline{
		sources: sources,
		opts:    opts.withDefaults(),
		log:     discardLogger(),
	}
	for _, o := range options {
		o(p)
	}
	p.fetcher = NewFetcher(p.opts, p.client, p.log)
	return p
}

// Run fetches and normalizes the feed registered under key. It never panics and
// never returns a partially successful result.
func (p *Pipeline) Run(ctx context.Context, key string) (res Result) {
	key = source.Normalize(key)
	start := time.Now()
	log := p.log.WithField("source", key)

	defer func() {
		if r := recover(); r != nil {
			err := &Error{Code: CodeUnknown, Message: "pipeline panic", Err: fmt.Errorf("%v", r)}
			log.WithError(err).Error("feed pipeline failed unexpectedly")
			res = p.failure(key, "", err)
		}
	}()

	src, ok := p.sources.Lookup(key)
	if !ok {
		return p.failure(key, "", &Error{
			Code:    CodeUnknownSource,
			Message: fmt.Sprintf("source %q is not registered", key),
		})
	}

	ext, err := p.acquire(ctx, src)
	if err != nil {
		entry := log.WithFields(logrus.Fields{
			"code":     CodeOf(err),
			"duration": time.Since(start).Round(time.Millisecond),
		}).WithError(err)
		if CodeOf(err) == CodeUnknown {
			entry.Error("feed pipeline failed unexpectedly")
		} else {
			entry.Warn("feed unavailable")
		}
		return p.failure(src.Key, src.URL, err)
	}

	title := ext.Title
	if title == "" {
		title = src.Title
	}
	log.WithFields(logrus.Fields{
		"dialect":  ext.Dialect,
		"items":    len(ext.Items),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("feed normalized")
	return Success(src.Key, title, ext.Dialect, ext.Items)
}

// failure builds a failed Result whose message carries no credentials from rawURL
// or from the configured redaction patterns.
func (p *Pipeline) failure(key, rawURL string, err error) Result {
	res := Failure(key, err)
	if rawURL != "" {
		if masked := privacy.RedactURL(rawURL); masked != rawURL {
			res.Message = strings.ReplaceAll(res.Message, rawURL, masked)
		}
	}
	res.Message = p.redact.Apply(res.Message)
	return res
}

// acquire runs fetch, status check, classification, sanitization, parse and extraction,
// stopping at the first failure.
func (p *Pipeline) acquire(ctx context.Context, src source.Source) (Extraction, error) {
	out, err := p.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return Extraction{}, err
	}
	out.Body = toUTF8(out.Body)

	if !out.OK() {
		return Extraction{}, &Error{
			Code:    CodeHTTP,
			Message: fmt.Sprintf("upstream status %d: %s", out.StatusCode, sample(out.Body)),
		}
	}

	if Classify(out.Body) != ShapeMarkup {
		return Extraction{}, &Error{
			Code:    CodeNotRSS,
			Message: fmt.Sprintf("content-type %q: %s", out.ContentType, sample(out.Body)),
		}
	}

	clean := Sanitize(string(out.Body))

	doc, err := parseDocument(clean)
	if err != nil {
		return Extraction{}, &Error{Code: CodeParse, Message: "parse feed", Err: err}
	}

	if ext, ok := Extract(doc, p.opts.MaxItems); ok {
		return ext, nil
	}
	if ext, ok := ExtractFallback(clean, p.opts.MaxItems); ok {
		return ext, nil
	}

	root := "none"
	if r := rootElement(doc); r != nil {
		root = r.Data
	}
	return Extraction{}, &Error{
		Code:    CodeNotRSS,
		Message: fmt.Sprintf("root element %q is not a feed", root),
	}
}
