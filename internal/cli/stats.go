package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ppiankov/newsdesk/internal/feed"
	"github.com/ppiankov/newsdesk/internal/store"
	"github.com/spf13/cobra"
)

var (
	statsSince  string
	statsFormat string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show fetch success rates per source",
	Args:  cobra.NoArgs,
	RunE:  statsAction,
}

func init() {
	statsCmd.Flags().StringVar(&statsSince, "since", "7d", "time window (e.g. 7d, 48h)")
	statsCmd.Flags().StringVar(&statsFormat, "format", "terminal", "output format: terminal, json")
	rootCmd.AddCommand(statsCmd)
}

func statsAction(cmd *cobra.Command, _ []string) error {
	sinceDur, err := parseDuration(statsSince)
	if err != nil {
		return fmt.Errorf("parse --since: %w", err)
	}
	if statsFormat != "terminal" && statsFormat != "json" && statsFormat != "" {
		return fmt.Errorf("unknown format %q (want terminal or json)", statsFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.Disabled {
		return fmt.Errorf("storage is disabled in config")
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := cmd.Context()
	sinceTime := time.Now().Add(-sinceDur)

	stats, err := db.GetSourceStats(ctx, sinceTime)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	codes, err := db.CodeCounts(ctx, sinceTime)
	if err != nil {
		return fmt.Errorf("get code counts: %w", err)
	}

	if statsFormat == "json" {
		return printStatsJSON(os.Stdout, stats, codes, sinceDur)
	}
	if len(stats) == 0 {
		fmt.Fprintln(os.Stdout, "No runs recorded. Run 'newsdesk fetch' or 'newsdesk check' first.")
		return nil
	}
	printStats(os.Stdout, stats, codes, sinceDur, time.Now())
	return nil
}

type jsonStatsOutput struct {
	Since   string            `json:"since"`
	Sources []jsonSourceStats `json:"sources"`
	Codes   map[string]int    `json:"codes"`
}

type jsonSourceStats struct {
	Source        string  `json:"source"`
	Total         int     `json:"total"`
	Succeeded     int     `json:"succeeded"`
	Failed        int     `json:"failed"`
	SuccessPct    float64 `json:"success_pct"`
	AvgDurationMS int64   `json:"avg_duration_ms"`
	LastRun       string  `json:"last_run"`
	LastCode      string  `json:"last_code,omitempty"`
}

func printStatsJSON(w io.Writer, stats []store.SourceStats, codes map[string]int, since time.Duration) error {
	out := jsonStatsOutput{
		Since:   formatStatsDuration(since),
		Sources: make([]jsonSourceStats, 0, len(stats)),
		Codes:   codes,
	}
	if out.Codes == nil {
		out.Codes = map[string]int{}
	}
	for _, st := range stats {
		out.Sources = append(out.Sources, jsonSourceStats{
			Source:        st.Source,
			Total:         st.Total,
			Succeeded:     st.Succeeded,
			Failed:        st.Failed,
			SuccessPct:    successPct(st),
			AvgDurationMS: st.AvgDuration.Milliseconds(),
			LastRun:       st.LastRun.UTC().Format(time.RFC3339),
			LastCode:      st.LastCode,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printStats(w io.Writer, stats []store.SourceStats, codes map[string]int, since time.Duration, now time.Time) {
	total := 0
	for _, st := range stats {
		total += st.Total
	}
	fmt.Fprintf(w, "newsdesk stats, %s: %s runs across %d sources\n\n",
		formatStatsDuration(since), humanize.Comma(int64(total)), len(stats))

	sorted := make([]store.SourceStats, len(stats))
	copy(sorted, stats)
	sort.SliceStable(sorted, func(i, j int) bool {
		return successPct(sorted[i]) < successPct(sorted[j])
	})

	maxSrc := 6 // "Source"
	for _, st := range sorted {
		if len(st.Source) > maxSrc {
			maxSrc = len(st.Source)
		}
	}

	fmt.Fprintln(w, "--- Success Rate by Source ---")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-*s  %5s  %6s  %7s  %8s  %s\n", maxSrc, "Source", "Runs", "Failed", "Success", "Avg", "Last run")
	for _, st := range sorted {
		last := humanize.RelTime(st.LastRun, now, "ago", "from now")
		if !isOK(st.LastCode) {
			last += " (" + st.LastCode + ")"
		}
		fmt.Fprintf(w, "  %-*s  %5d  %6d  %6.0f%%  %8s  %s\n",
			maxSrc, st.Source, st.Total, st.Failed, successPct(st), st.AvgDuration, last)
	}
	fmt.Fprintln(w)

	if len(codes) == 0 {
		return
	}
	fmt.Fprintln(w, "--- Failures by Code ---")
	fmt.Fprintln(w)
	for _, code := range feed.Codes {
		n, ok := codes[string(code)]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "  %-11s  %5d  %s\n", code, n, code.Describe())
	}
	fmt.Fprintln(w)
}

func isOK(code string) bool {
	return code == ""
}

func successPct(st store.SourceStats) float64 {
	if st.Total == 0 {
		return 0
	}
	return float64(st.Succeeded) / float64(st.Total) * 100
}

// parseDuration handles both Go durations and "Nd" day notation.
func parseDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: %s", s)
	}
	return d, nil
}

func formatStatsDuration(d time.Duration) string {
	hours := int(d.Hours())
	if hours >= 24 && hours%24 == 0 {
		return fmt.Sprintf("%d days", hours/24)
	}
	return fmt.Sprintf("%dh", hours)
}
