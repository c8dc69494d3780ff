// Package cli provides the command-line interface for newsdesk.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ppiankov/newsdesk/internal/config"
	"github.com/ppiankov/newsdesk/internal/feed"
	"github.com/ppiankov/newsdesk/internal/logging"
	"github.com/ppiankov/newsdesk/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var (
	configDir string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:           "newsdesk",
	Short:         "Fetch and normalize news feeds",
	Long:          "newsdesk fetches RSS 2.0, RSS 1.0 (RDF) and Atom feeds from configured sources and normalizes them into a stable headline list, on the terminal or over HTTP.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("newsdesk %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", defaultConfigDir(), "config directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatText, "log format: text, json")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(doctorCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".newsdesk"
	}
	return filepath.Join(home, ".newsdesk")
}

// loadConfig reads the config directory, falling back to built-in defaults when no
// config file exists yet.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configDir)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger() (*logrus.Logger, error) {
	return logging.New(logLevel, logFormat, os.Stderr)
}

// newPipeline wires the configured sources and fetch options into a pipeline.
func newPipeline(cfg *config.Config, log logrus.FieldLogger) (*feed.Pipeline, error) {
	reg, err := cfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("sources: %w", err)
	}
	redactor, err := cfg.Redactor()
	if err != nil {
		return nil, fmt.Errorf("privacy: %w", err)
	}
	return feed.New(reg, cfg.FeedOptions(), feed.WithLogger(log), feed.WithRedactor(redactor)), nil
}

// openStore opens the run log, or returns nil when storage is disabled.
func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.Storage.Disabled {
		return nil, nil
	}
	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return db, nil
}
