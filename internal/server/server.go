// Package server exposes the feed pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/ppiankov/newsdesk/internal/config"
	"github.com/ppiankov/newsdesk/internal/feed"
	"github.com/ppiankov/newsdesk/internal/logging"
	"github.com/ppiankov/newsdesk/internal/source"
	"github.com/ppiankov/newsdesk/internal/store"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 10 * time.Second

// Runner produces a result for a source key.
type Runner interface {
	Run(ctx context.Context, key string) feed.Result
}

// Recorder persists run outcomes.
type Recorder interface {
	RecordRun(ctx context.Context, in store.RunInput) (store.Run, error)
}

// Server serves /api/news, /api/sources and /healthz.
type Server struct {
	runner   Runner
	sources  *source.Registry
	cfg      config.ServerConfig
	recorder Recorder
	log      logrus.FieldLogger
	cache    *cache.Cache
	flight   singleflight.Group
	limiter  *rate.Limiter
}

// Option configures a Server.
type Option func(*Server)

// WithRecorder records every pipeline run the server performs.
func WithRecorder(r Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a server. A non-positive cfg.CacheTTL disables the response cache and a
// non-positive cfg.RateLimit disables rate limiting.
func New(runner Runner, sources *source.Registry, cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		runner:  runner,
		sources: sources,
		cfg:     cfg,
		log:     logging.Discard(),
	}
	for _, o := range opts {
		o(s)
	}
	if ttl := cfg.CacheTTL.Duration; ttl > 0 {
		s.cache = cache.New(ttl, 2*ttl)
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return s
}

// Handler returns the full middleware chain: CORS, request IDs, access log, then routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /api/news", s.rateLimit(http.HandlerFunc(s.handleNews)))
	mux.Handle("GET /api/sources", http.HandlerFunc(s.handleSources))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		ExposedHeaders: []string{requestIDHeader, "X-Cache"},
	})

	return requestID(s.accessLog(c.Handler(mux)))
}

// ListenAndServe serves on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.WithField("addr", s.cfg.Addr).Info("server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.log.Info("server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

type newsResponse struct {
	feed.Result
	Allowed []string `json:"allowed,omitempty"`
}

type sourceEntry struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("src")
	if strings.TrimSpace(key) == "" {
		key = source.DefaultKey
	}
	key = source.Normalize(key)

	res, hit := s.result(r.Context(), key)

	resp := newsResponse{Result: res}
	if res.Code == feed.CodeUnknownSource {
		resp.Allowed = s.sources.Keys()
	}

	if res.OK {
		ttl := int(s.cfg.CacheTTL.Seconds())
		if ttl <= 0 {
			ttl = int(config.DefaultCacheTTL.Seconds())
		}
		w.Header().Set("Cache-Control", fmt.Sprintf("public, s-maxage=%d, stale-while-revalidate=%d", ttl, 2*ttl))
	} else {
		w.Header().Set("Cache-Control", "no-store")
	}
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}

	writeJSON(w, statusFor(s.cfg.StatusPolicy, res), resp)
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	all := s.sources.All()
	out := make([]sourceEntry, 0, len(all))
	for _, src := range all {
		out = append(out, sourceEntry{Key: src.Key, Title: src.Title})
	}
	writeJSON(w, http.StatusOK, map[string][]sourceEntry{"sources": out})
}

// result serves key from cache, or runs the pipeline once for all concurrent callers.
// Only successful results are cached.
func (s *Server) result(ctx context.Context, key string) (feed.Result, bool) {
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			if res, ok := v.(feed.Result); ok {
				return res, true
			}
		}
	}

	// The shared run must outlive any single caller that disconnects.
	runCtx := context.WithoutCancel(ctx)
	v, _, _ := s.flight.Do(key, func() (any, error) {
		start := time.Now()
		res := s.runner.Run(runCtx, key)
		s.record(runCtx, res, start)
		if res.OK && s.cache != nil {
			s.cache.SetDefault(key, res)
		}
		return res, nil
	})
	return v.(feed.Result), false
}

func (s *Server) record(ctx context.Context, res feed.Result, start time.Time) {
	if s.recorder == nil || res.Code == feed.CodeUnknownSource {
		return
	}
	_, err := s.recorder.RecordRun(ctx, store.RunInput{
		Source:    res.Source,
		Origin:    store.OriginServer,
		OK:        res.OK,
		Code:      string(res.Code),
		Dialect:   res.Dialect,
		Items:     res.Count,
		Duration:  time.Since(start),
		StartedAt: start,
	})
	if err != nil {
		s.log.WithError(err).WithField("source", res.Source).Warn("record run failed")
	}
}

// statusFor maps a result to an HTTP status under the configured policy.
func statusFor(policy string, res feed.Result) int {
	if res.OK {
		return http.StatusOK
	}
	if res.Code == feed.CodeUnknownSource {
		return http.StatusBadRequest
	}
	if policy != config.StatusPolicyMapped {
		return http.StatusOK
	}
	switch res.Code {
	case feed.CodeTimeout:
		return http.StatusGatewayTimeout
	case feed.CodeHTTP, feed.CodeNetwork, feed.CodeNotRSS, feed.CodeParse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"message": "Too Many Requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
