package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/ppiankov/newsdesk/internal/privacy"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTimeout      = 12 * time.Second
	DefaultAttempts     = 2
	DefaultBackoff      = 350 * time.Millisecond
	DefaultMaxBodyBytes = 5 << 20
	DefaultUserAgent    = "Mozilla/5.0 (compatible; newsdesk/1.0; +https://github.com/ppiankov/newsdesk)"

	acceptHeader = "application/rss+xml, application/rdf+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"
)

// Options bound a single pipeline run.
type Options struct {
	Timeout      time.Duration // per attempt
	Attempts     int           // total tries, not retries
	Backoff      time.Duration // fixed delay between attempts
	UserAgent    string
	MaxBodyBytes int64
	MaxItems     int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Timeout:      DefaultTimeout,
		Attempts:     DefaultAttempts,
		Backoff:      DefaultBackoff,
		UserAgent:    DefaultUserAgent,
		MaxBodyBytes: DefaultMaxBodyBytes,
		MaxItems:     DefaultMaxItems,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.Attempts <= 0 {
		o.Attempts = d.Attempts
	}
	if o.Backoff < 0 {
		o.Backoff = 0
	}
	if o.UserAgent == "" {
		o.UserAgent = d.UserAgent
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = d.MaxBodyBytes
	}
	if o.MaxItems <= 0 {
		o.MaxItems = d.MaxItems
	}
	return o
}

// Outcome is one upstream response. Non-2xx responses are outcomes too; callers
// decide what a status means.
type Outcome struct {
	Body        []byte
	ContentType string
	StatusCode  int
	FinalURL    string // after redirects
	Attempts    int
}

// OK reports whether the upstream answered with a 2xx status.
func (o *Outcome) OK() bool {
	return o.StatusCode >= 200 && o.StatusCode < 300
}

// feedTransport sets the headers strict upstreams expect on every request.
type feedTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *feedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", acceptHeader)
	return t.base.RoundTrip(req)
}

// backoffSleep waits between attempts. Tests replace it to run instantly.
var backoffSleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fetcher performs timeout-bounded GET requests with a fixed-delay retry policy.
// Only timeouts and network failures are retried.
type Fetcher struct {
	client *http.Client
	opts   Options
	log    logrus.FieldLogger
}

// NewFetcher creates a fetcher. A nil client uses http.DefaultTransport.
func NewFetcher(opts Options, client *http.Client, log logrus.FieldLogger) *Fetcher {
	base := http.DefaultTransport
	c := &http.Client{}
	if client != nil {
		*c = *client
		if client.Transport != nil {
			base = client.Transport
		}
	}
	opts = opts.withDefaults()
	c.Transport = &feedTransport{base: base, userAgent: opts.UserAgent}
	if log == nil {
		log = discardLogger()
	}
	return &Fetcher{client: c, opts: opts, log: log}
}

type retryPhase int

const (
	phaseIdle retryPhase = iota
	phaseAttempting
	phaseWaiting
	phaseExhausted
)

// Fetch retrieves rawURL. The returned error is always a *Error with CodeTimeout or
// CodeNetwork.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Outcome, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, &Error{Code: CodeNetwork, Message: "invalid feed url", Err: err}
	}

	var (
		phase   = phaseIdle
		attempt int
		lastErr error
	)
	for {
		switch phase {
		case phaseIdle:
			phase = phaseAttempting

		case phaseAttempting:
			attempt++
			out, err := f.attempt(ctx, rawURL)
			if err == nil {
				out.Attempts = attempt
				return out, nil
			}
			lastErr = err
			f.log.WithFields(logrus.Fields{
				"url":     privacy.RedactURL(rawURL),
				"attempt": attempt,
				"code":    CodeOf(err),
			}).WithError(err).Debug("fetch attempt failed")

			if ctx.Err() != nil || attempt >= f.opts.Attempts {
				phase = phaseExhausted
			} else {
				phase = phaseWaiting
			}

		case phaseWaiting:
			if err := backoffSleep(ctx, f.opts.Backoff); err != nil {
				lastErr = &Error{Code: CodeTimeout, Message: "fetch aborted", Err: err}
				phase = phaseExhausted
				continue
			}
			phase = phaseAttempting

		case phaseExhausted:
			return nil, lastErr
		}
	}
}

func (f *Fetcher) attempt(ctx context.Context, rawURL string) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{Code: CodeNetwork, Message: "build request", Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return nil, transportError(ctx, err)
	}

	return &Outcome{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

// transportError classifies a failed round trip. Deadline and cancellation count as
// timeouts; everything else, TLS included, is a network failure.
func transportError(ctx context.Context, err error) error {
	var ne net.Error
	if ctx.Err() != nil ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return &Error{Code: CodeTimeout, Message: "request timed out", Err: err}
	}
	return &Error{Code: CodeNetwork, Message: "request failed", Err: err}
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
