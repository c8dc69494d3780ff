package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// stubBackoff makes retry waits instant and records the requested delays.
func stubBackoff(t *testing.T) func() []time.Duration {
	t.Helper()
	old := backoffSleep
	var mu sync.Mutex
	var delays []time.Duration
	backoffSleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return ctx.Err()
	}
	t.Cleanup(func() { backoffSleep = old })
	return func() []time.Duration {
		mu.Lock()
		defer mu.Unlock()
		return append([]time.Duration(nil), delays...)
	}
}

// hang blocks until the client gives up on the request.
func hang(r *http.Request) {
	select {
	case <-r.Context().Done():
	case <-time.After(5 * time.Second):
	}
}

func testOptions() Options {
	o := DefaultOptions()
	o.Timeout = 100 * time.Millisecond
	return o
}

func TestFetch_Success(t *testing.T) {
	stubBackoff(t)

	var gotUA, gotAccept string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
		fmt.Fprint(w, rss2Feed)
	}))
	defer ts.Close()

	f := NewFetcher(testOptions(), nil, nil)
	out, err := f.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !out.OK() || out.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", out.StatusCode)
	}
	if out.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", out.Attempts)
	}
	if out.ContentType != "application/rss+xml; charset=utf-8" {
		t.Errorf("content type = %q", out.ContentType)
	}
	if string(out.Body) != rss2Feed {
		t.Error("body mismatch")
	}
	if gotUA != DefaultUserAgent {
		t.Errorf("user agent = %q, want %q", gotUA, DefaultUserAgent)
	}
	if !strings.Contains(gotAccept, "application/rss+xml") {
		t.Errorf("accept = %q, want rss media type", gotAccept)
	}
}

func TestFetch_CustomUserAgent(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer ts.Close()

	o := testOptions()
	o.UserAgent = "news-web proxy"
	if _, err := NewFetcher(o, ts.Client(), nil).Fetch(context.Background(), ts.URL); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotUA != "news-web proxy" {
		t.Errorf("user agent = %q", gotUA)
	}
}

func TestFetch_HTTPErrorNotRetried(t *testing.T) {
	stubBackoff(t)

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	}))
	defer ts.Close()

	out, err := NewFetcher(testOptions(), nil, nil).Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if out.OK() {
		t.Error("500 should not be OK")
	}
	if out.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", out.StatusCode)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on HTTP status)", calls.Load())
	}
}

func TestFetch_TimeoutRetriedOnceThenFails(t *testing.T) {
	delays := stubBackoff(t)

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		hang(r)
	}))
	defer ts.Close()

	_, err := NewFetcher(testOptions(), nil, nil).Fetch(context.Background(), ts.URL)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if code := CodeOf(err); code != CodeTimeout {
		t.Errorf("code = %s, want %s (err: %v)", code, CodeTimeout, err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if d := delays(); len(d) != 1 || d[0] != DefaultBackoff {
		t.Errorf("backoff delays = %v, want [%v]", d, DefaultBackoff)
	}
}

func TestFetch_TimeoutThenSuccess(t *testing.T) {
	stubBackoff(t)

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			hang(r)
			return
		}
		fmt.Fprint(w, rss2Feed)
	}))
	defer ts.Close()

	out, err := NewFetcher(testOptions(), nil, nil).Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if out.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", out.Attempts)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestFetch_NetworkFailure(t *testing.T) {
	stubBackoff(t)

	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := ts.URL
	ts.Close()

	_, err := NewFetcher(testOptions(), nil, nil).Fetch(context.Background(), addr)
	if code := CodeOf(err); code != CodeNetwork {
		t.Errorf("code = %s, want %s (err: %v)", code, CodeNetwork, err)
	}
}

func TestFetch_AttemptsConfigurable(t *testing.T) {
	delays := stubBackoff(t)

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		hang(r)
	}))
	defer ts.Close()

	o := testOptions()
	o.Attempts = 3
	o.Backoff = time.Second
	_, _ = NewFetcher(o, nil, nil).Fetch(context.Background(), ts.URL)

	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if d := delays(); len(d) != 2 || d[0] != time.Second || d[1] != time.Second {
		t.Errorf("delays = %v, want two fixed 1s waits", d)
	}
}

func TestFetch_CallerCancelStopsRetry(t *testing.T) {
	stubBackoff(t)

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	ts := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		cancel()
		hang(r)
	}))
	defer ts.Close()

	o := testOptions()
	o.Timeout = 5 * time.Second
	o.Attempts = 5
	_, err := NewFetcher(o, nil, nil).Fetch(ctx, ts.URL)
	if code := CodeOf(err); code != CodeTimeout {
		t.Errorf("code = %s, want %s", code, CodeTimeout)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 after caller cancel", calls.Load())
	}
}

func TestFetch_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "ftp://example.com/rss", "not a url", "http://"} {
		_, err := NewFetcher(testOptions(), nil, nil).Fetch(context.Background(), u)
		if code := CodeOf(err); code != CodeNetwork {
			t.Errorf("Fetch(%q) code = %s, want %s", u, code, CodeNetwork)
		}
	}
}

func TestFetch_BodyLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 4096))
	}))
	defer ts.Close()

	o := testOptions()
	o.MaxBodyBytes = 100
	out, err := NewFetcher(o, nil, nil).Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(out.Body) != 100 {
		t.Errorf("body length = %d, want 100", len(out.Body))
	}
}

func TestBackoffSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := backoffSleep(ctx, time.Minute); err == nil {
		t.Error("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled sleep should return immediately")
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	o := Options{Backoff: -1}.withDefaults()
	if o.Timeout != DefaultTimeout || o.Attempts != DefaultAttempts || o.MaxItems != DefaultMaxItems {
		t.Errorf("defaults not applied: %+v", o)
	}
	if o.Backoff != 0 {
		t.Errorf("negative backoff = %v, want 0", o.Backoff)
	}
	if o.UserAgent != DefaultUserAgent || o.MaxBodyBytes != DefaultMaxBodyBytes {
		t.Errorf("defaults not applied: %+v", o)
	}
}

func TestFetch_FollowsRedirect(t *testing.T) {
	stubBackoff(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/old.xml", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new.xml", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, rss2Feed)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	out, err := NewFetcher(testOptions(), nil, nil).Fetch(context.Background(), ts.URL+"/old.xml")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if out.FinalURL != ts.URL+"/new.xml" {
		t.Errorf("final url = %q, want %q", out.FinalURL, ts.URL+"/new.xml")
	}
	if !out.OK() {
		t.Errorf("status = %d, want 200", out.StatusCode)
	}
}
