package cli

import (
	"path/filepath"
	"testing"

	"github.com/ppiankov/newsdesk/internal/config"
	"github.com/ppiankov/newsdesk/internal/source"
)

func TestInitAction(t *testing.T) {
	old := configDir
	t.Cleanup(func() { configDir = old })
	configDir = filepath.Join(t.TempDir(), "nested", ".newsdesk")

	out, err := captureStdout(t, func() error { return initAction(nil, nil) })
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	requireContains(t, out, "created:")
	requireContains(t, out, "Initialized")

	// The example config must load cleanly and match the built-in sources.
	cfg, err := config.Load(configDir)
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if len(cfg.Sources) != len(source.Defaults) {
		t.Errorf("sources: got %d, want %d", len(cfg.Sources), len(source.Defaults))
	}
	for i, s := range source.Defaults {
		if cfg.Sources[i].Key != s.Key || cfg.Sources[i].URL != s.URL || cfg.Sources[i].Title != s.Title {
			t.Errorf("source %d: got %+v, want %+v", i, cfg.Sources[i], s)
		}
	}

	out, err = captureStdout(t, func() error { return initAction(nil, nil) })
	if err != nil {
		t.Fatalf("second init: %v", err)
	}
	requireContains(t, out, "already initialized")
}
