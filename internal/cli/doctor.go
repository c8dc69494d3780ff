package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ppiankov/newsdesk/internal/config"
	"github.com/ppiankov/newsdesk/internal/store"
	"github.com/spf13/cobra"
)

// unhealthyPct is the success rate below which a source is reported.
const unhealthyPct = 50.0

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, storage and recent source health",
	Args:  cobra.NoArgs,
	RunE:  doctorAction,
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printInfo("config directory %s missing, using defaults (run 'newsdesk init')", configDir)
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	cfg, err := config.Load(configDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = config.Default()
		printInfo("config.yaml not found, using built-in defaults")
	case err != nil:
		printCheck(false, "config.yaml: %v", err)
		return fmt.Errorf("some checks failed")
	default:
		printCheck(true, "config.yaml (%d sources, status policy %s)", len(cfg.Sources), cfg.Server.StatusPolicy)
	}

	if cfg.Storage.Disabled {
		printInfo("run log disabled")
	} else {
		db, err := store.Open(cfg.Storage.Path)
		if err != nil {
			printCheck(false, "database: %v", err)
			ok = false
		} else {
			defer func() { _ = db.Close() }()
			printCheck(true, "database %s", cfg.Storage.Path)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			checkSourceHealth(ctx, db)
		}
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

// checkSourceHealth reports sources that mostly failed over the last week. Informational only.
func checkSourceHealth(ctx context.Context, db *store.Store) {
	stats, err := db.GetSourceStats(ctx, time.Now().AddDate(0, 0, -7))
	if err != nil || len(stats) == 0 {
		return
	}

	fmt.Println()
	for _, st := range stats {
		if st.Total >= 3 && successPct(st) < unhealthyPct {
			printInfo("unhealthy: %s, %d of %d runs failed (last: %s)", st.Source, st.Failed, st.Total, lastCodeOrOK(st.LastCode))
		}
	}
}

func lastCodeOrOK(code string) string {
	if isOK(code) {
		return "ok"
	}
	return code
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}
