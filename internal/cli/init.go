package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/newsdesk/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with an example config",
	Args:  cobra.NoArgs,
	RunE:  initAction,
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(configPath, []byte(exampleConfig))
	if err != nil {
		return err
	}

	if !wrote {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Printf("Initialized %s.\n", configDir)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# newsdesk configuration

fetch:
  timeout: 12s
  attempts: 2        # total tries; only timeouts and network errors are retried
  backoff: 350ms
  # user_agent: "Mozilla/5.0 (compatible; newsdesk/1.0)"
  max_body_bytes: 5242880

feed:
  max_items: 30

sources:
  - key: nhk
    title: NHK
    url: https://www3.nhk.or.jp/rss/news/cat0.xml
  - key: kyodo
    title: 共同社
    url: https://english.kyodonews.net/rss/all.xml
  - key: yahoo
    title: Yahoo
    url: https://news.yahoo.co.jp/rss/topics/top-picks.xml
  - key: cnn
    title: CNN
    url: http://rss.cnn.com/rss/edition.rss

storage:
  path: .newsdesk/newsdesk.db
  retain_days: 30

server:
  addr: ":8080"
  cache_ttl: 30s
  status_policy: stable   # stable: 200 for feed failures; mapped: 502/504/500
  rate_limit: 5
  rate_burst: 10
  allowed_origins:
    - "*"

privacy:
  redact: []
  # - "(?i)session=\\w+"
`
