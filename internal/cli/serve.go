package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ppiankov/newsdesk/internal/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the news API over HTTP",
	Args:  cobra.NoArgs,
	RunE:  serveAction,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func serveAction(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
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

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []server.Option{server.WithLogger(log)}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() { _ = db.Close() }()
		if n, err := db.PruneOld(ctx, cfg.Storage.RetainDays); err != nil {
			log.WithError(err).Warn("prune run log failed")
		} else if n > 0 {
			log.WithField("removed", n).Info("pruned run log")
		}
		opts = append(opts, server.WithRecorder(db))
	}

	fmt.Printf("newsdesk serving %d sources on %s\n", len(reg.Keys()), cfg.Server.Addr)
	return server.New(pipeline, reg, cfg.Server, opts...).ListenAndServe(ctx)
}
