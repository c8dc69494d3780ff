package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/ppiankov/newsdesk/internal/feed"
	"github.com/ppiankov/newsdesk/internal/render"
	"github.com/ppiankov/newsdesk/internal/source"
	"github.com/ppiankov/newsdesk/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	fetchFormat string
	noColor     bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [source]",
	Short: "Fetch one source and print its headlines",
	Args:  cobra.MaximumNArgs(1),
	RunE:  fetchAction,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchFormat, "format", render.FormatTerminal, "output format: terminal, json")
	fetchCmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")
	rootCmd.AddCommand(fetchCmd)
}

func fetchAction(cmd *cobra.Command, args []string) error {
	key := source.DefaultKey
	if len(args) == 1 {
		key = args[0]
	}

	formatter, err := render.New(fetchFormat, useColor())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	pipeline, err := newPipeline(cfg, log)
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	res := pipeline.Run(ctx, key)
	recordResult(ctx, db, log, res, start, time.Since(start))

	if err := formatter.Format(os.Stdout, []feed.Result{res}); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if !res.OK {
		return fmt.Errorf("%s: %s", res.Code, res.Error)
	}
	return nil
}

// useColor reports whether terminal output should carry ANSI colors.
func useColor() bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// recordResult appends res to the run log. Unknown sources and a nil store are skipped;
// a failed write is logged, never fatal.
func recordResult(ctx context.Context, db *store.Store, log logrus.FieldLogger, res feed.Result, start time.Time, elapsed time.Duration) {
	if db == nil || res.Code == feed.CodeUnknownSource {
		return
	}
	_, err := db.RecordRun(ctx, store.RunInput{
		Source:    res.Source,
		Origin:    store.OriginCLI,
		OK:        res.OK,
		Code:      string(res.Code),
		Dialect:   res.Dialect,
		Items:     res.Count,
		Duration:  elapsed,
		StartedAt: start,
	})
	if err != nil {
		log.WithError(err).WithField("source", res.Source).Warn("record run failed")
	}
}
