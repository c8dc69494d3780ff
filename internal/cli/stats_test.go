package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/newsdesk/internal/store"
)

func TestPrintStats(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	stats := []store.SourceStats{
		{Source: "nhk", Total: 1200, Succeeded: 1190, Failed: 10, AvgDuration: 420 * time.Millisecond, LastRun: now.Add(-5 * time.Minute)},
		{Source: "cnn", Total: 10, Succeeded: 2, Failed: 8, AvgDuration: 12 * time.Second, LastRun: now.Add(-2 * time.Hour), LastCode: "TIMEOUT"},
	}
	codes := map[string]int{"TIMEOUT": 8, "HTTP": 10}

	var buf bytes.Buffer
	printStats(&buf, stats, codes, 7*24*time.Hour, now)
	out := buf.String()

	requireContains(t, out, "7 days: 1,210 runs across 2 sources")
	requireContains(t, out, "Success Rate by Source")
	requireContains(t, out, "5 minutes ago")
	requireContains(t, out, "2 hours ago (TIMEOUT)")
	requireContains(t, out, "Failures by Code")
	requireContains(t, out, "upstream timed out")

	// least reliable first
	if strings.Index(out, "cnn") > strings.Index(out, "nhk") {
		t.Errorf("expected cnn before nhk, got:\n%s", out)
	}
	// codes follow classification order
	if strings.Index(out, "HTTP ") > strings.Index(out, "TIMEOUT ") {
		t.Errorf("expected HTTP before TIMEOUT, got:\n%s", out)
	}
}

func TestPrintStatsJSON(t *testing.T) {
	stats := []store.SourceStats{
		{Source: "nhk", Total: 4, Succeeded: 3, Failed: 1, AvgDuration: 250 * time.Millisecond,
			LastRun: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), LastCode: "PARSE"},
	}

	var buf bytes.Buffer
	if err := printStatsJSON(&buf, stats, nil, 48*time.Hour); err != nil {
		t.Fatalf("print json: %v", err)
	}

	var got jsonStatsOutput
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if got.Since != "2 days" || len(got.Sources) != 1 {
		t.Fatalf("unexpected output: %+v", got)
	}
	s := got.Sources[0]
	if s.SuccessPct != 75 || s.AvgDurationMS != 250 || s.LastRun != "2026-03-10T12:00:00Z" || s.LastCode != "PARSE" {
		t.Errorf("unexpected source stats: %+v", s)
	}
	if got.Codes == nil {
		t.Error("codes should be an empty object, not null")
	}
}

func TestStatsAction(t *testing.T) {
	ts := newUpstream(t)
	_, dbPath := useTestConfig(t, ts.URL+"/rss", ts.URL+"/html")

	oldSince, oldFormat := statsSince, statsFormat
	t.Cleanup(func() { statsSince, statsFormat = oldSince, oldFormat })
	statsSince, statsFormat = "7d", "terminal"

	out, err := captureStdout(t, func() error {
		return statsAction(testCommand(), nil)
	})
	if err != nil {
		t.Fatalf("stats on empty log: %v", err)
	}
	requireContains(t, out, "No runs recorded")

	st := openStoreForTest(t, dbPath)
	if _, err := st.RecordRun(context.Background(), store.RunInput{Source: "wire", OK: true, Items: 2, StartedAt: time.Now()}); err != nil {
		t.Fatalf("record: %v", err)
	}

	out, err = captureStdout(t, func() error {
		return statsAction(testCommand(), nil)
	})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	requireContains(t, out, "1 runs across 1 sources")
	requireContains(t, out, "wire")
}

func TestStatsAction_BadInput(t *testing.T) {
	ts := newUpstream(t)
	useTestConfig(t, ts.URL+"/rss", ts.URL+"/html")

	oldSince, oldFormat := statsSince, statsFormat
	t.Cleanup(func() { statsSince, statsFormat = oldSince, oldFormat })

	statsSince, statsFormat = "soon", "terminal"
	if err := statsAction(testCommand(), nil); err == nil {
		t.Error("expected error for bad --since")
	}
	statsSince, statsFormat = "7d", "yaml"
	if err := statsAction(testCommand(), nil); err == nil {
		t.Error("expected error for bad --format")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"7d", 7 * 24 * time.Hour, false},
		{"48h", 48 * time.Hour, false},
		{"30m", 30 * time.Minute, false},
		{"0d", 0, true},
		{"-1h", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDuration(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
