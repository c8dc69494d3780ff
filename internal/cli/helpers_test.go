package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/newsdesk/internal/store"
	"github.com/spf13/cobra"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Wire</title>
    <item><title>First headline</title><link>https://example.com/1</link><pubDate>Mon, 02 Mar 2026 09:00:00 +0900</pubDate></item>
    <item><title>Second &amp; last</title><link>https://example.com/2</link></item>
  </channel>
</rss>`

// useTestConfig writes a config pointing "wire" at wireURL and "broken" at brokenURL
// into a temp dir, and points the CLI at it for the duration of the test.
func useTestConfig(t *testing.T, wireURL, brokenURL string) (dir, dbPath string) {
	t.Helper()
	dir = t.TempDir()
	dbPath = filepath.Join(dir, "newsdesk.db")

	content := "fetch:\n" +
		"  timeout: 2s\n" +
		"  attempts: 1\n" +
		"sources:\n" +
		"  - key: wire\n" +
		"    title: Wire\n" +
		"    url: \"" + wireURL + "\"\n" +
		"  - key: broken\n" +
		"    url: \"" + brokenURL + "\"\n" +
		"storage:\n" +
		"  path: \"" + dbPath + "\"\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}

	oldConfigDir := configDir
	oldFormat := fetchFormat
	oldNoColor := noColor
	oldLevel := logLevel
	oldLogFormat := logFormat
	t.Cleanup(func() {
		configDir = oldConfigDir
		fetchFormat = oldFormat
		noColor = oldNoColor
		logLevel = oldLevel
		logFormat = oldLogFormat
	})
	configDir = dir
	fetchFormat = "terminal"
	noColor = true
	logLevel = "error"
	logFormat = "text"
	return dir, dbPath
}

func testCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("open stdout pipe: %v", err)
	}

	os.Stdout = writer
	runErr := fn()
	_ = writer.Close()
	os.Stdout = oldStdout

	out, readErr := io.ReadAll(reader)
	_ = reader.Close()
	if readErr != nil {
		t.Fatalf("read stdout pipe: %v", readErr)
	}
	return string(out), runErr
}

func openStoreForTest(t *testing.T, path string) *store.Store {
	t.Helper()

	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()

	if !strings.Contains(got, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, got)
	}
}
