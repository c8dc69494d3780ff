package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/newsdesk/internal/feed"
	"github.com/ppiankov/newsdesk/internal/privacy"
	"github.com/ppiankov/newsdesk/internal/source"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile   = "config.yaml"
	DefaultStoragePath  = ".newsdesk/newsdesk.db"
	DefaultRetainDays   = 30
	DefaultAddr         = ":8080"
	DefaultCacheTTL     = 30 * time.Second
	DefaultStatusPolicy = StatusPolicyStable
	DefaultRateLimit    = 5.0
	DefaultRateBurst    = 10

	StatusPolicyStable = "stable"
	StatusPolicyMapped = "mapped"

	maxAttempts = 10
	maxItems    = 500
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "12s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Fetch   FetchConfig    `yaml:"fetch"`
	Feed    FeedConfig     `yaml:"feed"`
	Sources []SourceConfig `yaml:"sources"`
	Storage StorageConfig  `yaml:"storage"`
	Server  ServerConfig   `yaml:"server"`
	Privacy PrivacyConfig  `yaml:"privacy"`
}

type FetchConfig struct {
	Timeout      Duration `yaml:"timeout"`
	Attempts     int      `yaml:"attempts"`
	Backoff      Duration `yaml:"backoff"`
	UserAgent    string   `yaml:"user_agent"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
}

type FeedConfig struct {
	MaxItems int `yaml:"max_items"`
}

type SourceConfig struct {
	Key   string `yaml:"key"`
	Title string `yaml:"title"`
	URL   string `yaml:"url"`
}

type StorageConfig struct {
	Path       string `yaml:"path"`
	RetainDays int    `yaml:"retain_days"`
	Disabled   bool   `yaml:"disabled"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	CacheTTL       Duration `yaml:"cache_ttl"`
	StatusPolicy   string   `yaml:"status_policy"`
	RateLimit      float64  `yaml:"rate_limit"` // requests per second
	RateBurst      int      `yaml:"rate_burst"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type PrivacyConfig struct {
	// Redact holds regular expressions masked in failure messages.
	Redact []string `yaml:"redact"`
}

// Load reads config.yaml from dir, applies defaults, and validates.
// A missing file is reported with an error wrapping os.ErrNotExist.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Fetch.Timeout.Duration == 0 {
		cfg.Fetch.Timeout.Duration = feed.DefaultTimeout
	}
	if cfg.Fetch.Attempts == 0 {
		cfg.Fetch.Attempts = feed.DefaultAttempts
	}
	if cfg.Fetch.Backoff.Duration == 0 {
		cfg.Fetch.Backoff.Duration = feed.DefaultBackoff
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = feed.DefaultUserAgent
	}
	if cfg.Fetch.MaxBodyBytes == 0 {
		cfg.Fetch.MaxBodyBytes = feed.DefaultMaxBodyBytes
	}
	if cfg.Feed.MaxItems == 0 {
		cfg.Feed.MaxItems = feed.DefaultMaxItems
	}
	if len(cfg.Sources) == 0 {
		for _, s := range source.Defaults {
			cfg.Sources = append(cfg.Sources, SourceConfig{Key: s.Key, Title: s.Title, URL: s.URL})
		}
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.RetainDays == 0 {
		cfg.Storage.RetainDays = DefaultRetainDays
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if cfg.Server.CacheTTL.Duration == 0 {
		cfg.Server.CacheTTL.Duration = DefaultCacheTTL
	}
	if cfg.Server.StatusPolicy == "" {
		cfg.Server.StatusPolicy = DefaultStatusPolicy
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = DefaultRateLimit
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = DefaultRateBurst
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
}

func validate(cfg *Config) error {
	if cfg.Fetch.Timeout.Duration < 0 {
		return errors.New("fetch.timeout: must be positive")
	}
	if cfg.Fetch.Attempts < 1 || cfg.Fetch.Attempts > maxAttempts {
		return fmt.Errorf("fetch.attempts: %d out of range 1..%d", cfg.Fetch.Attempts, maxAttempts)
	}
	if cfg.Fetch.Backoff.Duration < 0 {
		return errors.New("fetch.backoff: must not be negative")
	}
	if cfg.Fetch.MaxBodyBytes < 0 {
		return errors.New("fetch.max_body_bytes: must not be negative")
	}
	if cfg.Feed.MaxItems < 1 || cfg.Feed.MaxItems > maxItems {
		return fmt.Errorf("feed.max_items: %d out of range 1..%d", cfg.Feed.MaxItems, maxItems)
	}
	if _, err := cfg.Registry(); err != nil {
		return fmt.Errorf("sources: %w", err)
	}
	if _, err := privacy.New(cfg.Privacy.Redact); err != nil {
		return fmt.Errorf("privacy.redact: %w", err)
	}
	if cfg.Storage.RetainDays < 0 {
		return errors.New("storage.retain_days: must not be negative")
	}

	switch cfg.Server.StatusPolicy {
	case StatusPolicyStable, StatusPolicyMapped:
		// valid
	default:
		return fmt.Errorf("server.status_policy: unknown policy %q (want stable or mapped)", cfg.Server.StatusPolicy)
	}
	if cfg.Server.RateLimit < 0 {
		return errors.New("server.rate_limit: must not be negative")
	}
	if cfg.Server.RateBurst < 0 {
		return errors.New("server.rate_burst: must not be negative")
	}

	return nil
}

// FeedOptions returns the pipeline options described by the fetch and feed sections.
func (c *Config) FeedOptions() feed.Options {
	return feed.Options{
		Timeout:      c.Fetch.Timeout.Duration,
		Attempts:     c.Fetch.Attempts,
		Backoff:      c.Fetch.Backoff.Duration,
		UserAgent:    c.Fetch.UserAgent,
		MaxBodyBytes: c.Fetch.MaxBodyBytes,
		MaxItems:     c.Feed.MaxItems,
	}
}

// Registry builds the source registry from the sources section.
func (c *Config) Registry() (*source.Registry, error) {
	sources := make([]source.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		sources = append(sources, source.Source{Key: s.Key, Title: s.Title, URL: s.URL})
	}
	return source.NewRegistry(sources)
}

// Redactor compiles the privacy.redact patterns.
func (c *Config) Redactor() (*privacy.Redactor, error) {
	return privacy.New(c.Privacy.Redact)
}
