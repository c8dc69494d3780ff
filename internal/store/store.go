// Package store keeps a SQLite log of pipeline runs. Feed items are never persisted.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Origins of a recorded run.
const (
	OriginCLI    = "cli"
	OriginServer = "server"
)

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Store struct {
	db *sql.DB
}

// Run is one recorded pipeline invocation.
type Run struct {
	ID        int64
	RunID     string
	Source    string
	Origin    string
	OK        bool
	Code      string
	Dialect   string
	Items     int
	Duration  time.Duration
	StartedAt time.Time
}

type RunInput struct {
	Source    string
	Origin    string
	OK        bool
	Code      string
	Dialect   string
	Items     int
	Duration  time.Duration
	StartedAt time.Time
}

// SourceStats aggregates runs for one source.
type SourceStats struct {
	Source      string
	Total       int
	Succeeded   int
	Failed      int
	AvgDuration time.Duration
	LastRun     time.Time
	LastCode    string
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The server records runs from many goroutines; sqlite allows one writer.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordRun appends a run to the log and returns it with its assigned IDs.
func (s *Store) RecordRun(ctx context.Context, in RunInput) (Run, error) {
	if s == nil || s.db == nil {
		return Run{}, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	src := strings.TrimSpace(in.Source)
	if src == "" {
		return Run{}, errors.New("source is required")
	}
	if in.StartedAt.IsZero() {
		return Run{}, errors.New("started_at is required")
	}
	if in.OK && in.Code != "" {
		return Run{}, fmt.Errorf("successful run cannot carry code %q", in.Code)
	}
	if !in.OK && in.Code == "" {
		return Run{}, errors.New("failed run requires a code")
	}
	if in.Items < 0 {
		return Run{}, errors.New("item count must not be negative")
	}
	origin := in.Origin
	if origin == "" {
		origin = OriginCLI
	}

	run := Run{
		RunID:     uuid.NewString(),
		Source:    src,
		Origin:    origin,
		OK:        in.OK,
		Code:      in.Code,
		Dialect:   in.Dialect,
		Items:     in.Items,
		Duration:  in.Duration.Round(time.Millisecond),
		StartedAt: in.StartedAt.UTC(),
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO fetch_runs(run_id, source, origin, ok, code, dialect, item_count, duration_ms, started_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.RunID, run.Source, run.Origin, boolToInt(run.OK), run.Code, run.Dialect,
		run.Items, run.Duration.Milliseconds(), formatTime(run.StartedAt))
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}

	run.ID, err = res.LastInsertId()
	if err != nil {
		return Run{}, fmt.Errorf("read run id: %w", err)
	}
	return run, nil
}

// RecentRuns returns up to limit runs, newest first. An empty source matches all.
func (s *Store) RecentRuns(ctx context.Context, source string, limit int) ([]Run, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, run_id, source, origin, ok, code, dialect, item_count, duration_ms, started_at
		FROM fetch_runs`
	var args []any
	if source != "" {
		query += " WHERE source = ?"
		args = append(args, source)
	}
	query += " ORDER BY started_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetSourceStats returns per-source aggregates for runs started at or after since.
func (s *Store) GetSourceStats(ctx context.Context, since time.Time) ([]SourceStats, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.source,
			COUNT(*) AS total,
			SUM(r.ok) AS succeeded,
			AVG(r.duration_ms) AS avg_ms,
			MAX(r.started_at) AS last_run,
			(SELECT l.code FROM fetch_runs l
				WHERE l.source = r.source AND l.started_at >= ?
				ORDER BY l.started_at DESC, l.id DESC LIMIT 1) AS last_code
		FROM fetch_runs r
		WHERE r.started_at >= ?
		GROUP BY r.source
		ORDER BY r.source
	`, formatTime(since), formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("get source stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []SourceStats
	for rows.Next() {
		var (
			st       SourceStats
			avgMS    float64
			lastRun  string
			lastCode sql.NullString
		)
		if err := rows.Scan(&st.Source, &st.Total, &st.Succeeded, &avgMS, &lastRun, &lastCode); err != nil {
			return nil, fmt.Errorf("scan source stats: %w", err)
		}
		st.Failed = st.Total - st.Succeeded
		st.AvgDuration = time.Duration(avgMS * float64(time.Millisecond)).Round(time.Millisecond)
		st.LastCode = lastCode.String
		st.LastRun, err = parseTime(lastRun)
		if err != nil {
			return nil, fmt.Errorf("parse last_run: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source stats: %w", err)
	}

	return stats, nil
}

// CodeCounts returns how often each failure code occurred since the given time.
func (s *Store) CodeCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT code, COUNT(*) FROM fetch_runs
		WHERE ok = 0 AND started_at >= ?
		GROUP BY code
	`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("get code counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			code string
			n    int
		)
		if err := rows.Scan(&code, &n); err != nil {
			return nil, fmt.Errorf("scan code counts: %w", err)
		}
		counts[code] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate code counts: %w", err)
	}
	return counts, nil
}

// PruneOld deletes runs older than retainDays and returns how many were removed.
func (s *Store) PruneOld(ctx context.Context, retainDays int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if retainDays <= 0 {
		return 0, nil
	}

	cutoff := formatTime(time.Now().AddDate(0, 0, -retainDays))
	res, err := s.db.ExecContext(ctx, "DELETE FROM fetch_runs WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune old runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner) (Run, error) {
	var (
		run       Run
		ok        int
		durMS     int64
		startedAt string
	)
	if err := scanner.Scan(&run.ID, &run.RunID, &run.Source, &run.Origin, &ok, &run.Code,
		&run.Dialect, &run.Items, &durMS, &startedAt); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.OK = ok != 0
	run.Duration = time.Duration(durMS) * time.Millisecond

	var err error
	run.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	return run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(timeLayout, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
