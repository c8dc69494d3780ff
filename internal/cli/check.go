package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/newsdesk/internal/render"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// checkParallelism bounds concurrent upstream requests during check.
const checkParallelism = 4

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Fetch every configured source and report which ones work",
	Args:  cobra.NoArgs,
	RunE:  checkAction,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func checkAction(cmd *cobra.Command, _ []string) error {
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
	reg, err := cfg.Registry()
	if err != nil {
		return fmt.Errorf("sources: %w", err)
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

	keys := reg.Keys()
	entries := make([]render.Entry, len(keys))

	// Run never fails, so the group only bounds parallelism.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(checkParallelism)
	for i, key := range keys {
		g.Go(func() error {
			start := time.Now()
			res := pipeline.Run(gctx, key)
			entries[i] = render.Entry{Result: res, StartedAt: start, Duration: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, e := range entries {
		recordResult(ctx, db, log, e.Result, e.StartedAt, e.Duration)
		if !e.Result.OK {
			failed++
		}
	}

	if err := render.NewTerminal(useColor()).Summary(os.Stdout, entries); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(entries))
	}
	return nil
}
