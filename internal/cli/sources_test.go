package cli

import (
	"strings"
	"testing"
)

func TestSourcesAction(t *testing.T) {
	useTestConfig(t, "https://example.com/rss?api_key=s3cret", "https://example.com/broken.xml")

	out, err := captureStdout(t, func() error { return sourcesAction(nil, nil) })
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	requireContains(t, out, "wire")
	requireContains(t, out, "Wire")
	requireContains(t, out, "broken")
	requireContains(t, out, "api_key=xxxxx")
	if strings.Contains(out, "s3cret") {
		t.Errorf("source URL credentials leaked:\n%s", out)
	}
}

func TestSourcesAction_DefaultMarked(t *testing.T) {
	old := configDir
	t.Cleanup(func() { configDir = old })
	configDir = t.TempDir()

	out, err := captureStdout(t, func() error { return sourcesAction(nil, nil) })
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	requireContains(t, out, "* nhk")
	requireContains(t, out, "  cnn")
}
