// Package history records test runs in a SQLite database so that past
// results can be listed from the command line.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/apitest/packages/core/runner"
	"github.com/google/uuid"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// DefaultPath is where history is kept when no location is configured.
const DefaultPath = ".apitest/history.db"

const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// ErrRunNotFound is returned when a run ID has no stored record.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	environment TEXT NOT NULL DEFAULT '',
	files       INTEGER NOT NULL,
	passed      INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	skipped     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS tests (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	file        TEXT NOT NULL,
	name        TEXT NOT NULL,
	line        INTEGER NOT NULL,
	status      TEXT NOT NULL,
	status_code INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);
`

// Run summarizes one invocation of the test command.
type Run struct {
	ID          string
	StartedAt   time.Time
	Duration    time.Duration
	Environment string
	Files       int
	Passed      int
	Failed      int
	Skipped     int
}

// Test is the stored outcome of a single test within a run.
type Test struct {
	File       string
	Name       string
	Line       int
	Status     string
	StatusCode int
	Duration   time.Duration
	Message    string
}

// Store represents a history database
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// Open opens (creating if needed) the history database at location.
// Accepted forms are a plain path, sqlite:path and sqlite://path.
func Open(location string) (*Store, error) {
	dsn, err := parseLocation(location)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(dsn); dir != "." && dsn != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps :memory: databases consistent
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{
		db:           db,
		queryTimeout: 30 * time.Second,
	}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// NewRun builds a Run and its tests from runner results. Tests skipped by
// the name filter are not recorded.
func NewRun(environment string, results []*runner.RunResult, started time.Time, duration time.Duration) (*Run, []Test) {
	run := &Run{
		ID:          uuid.NewString(),
		StartedAt:   started,
		Duration:    duration,
		Environment: environment,
		Files:       len(results),
	}

	var tests []Test
	for _, result := range results {
		for _, r := range result.Results {
			if r.SkipReason == runner.SkipFiltered {
				continue
			}

			test := Test{
				File:     result.File,
				Name:     r.Name,
				Line:     r.Line,
				Duration: r.Duration,
			}
			if r.Response != nil {
				test.StatusCode = r.Response.StatusCode
			}

			switch {
			case r.Skipped:
				test.Status = StatusSkipped
				test.Message = r.SkipReason
				run.Skipped++
			case r.Error != nil:
				test.Status = StatusError
				test.Message = r.Error.Error()
				run.Failed++
			case r.Passed:
				test.Status = StatusPassed
				run.Passed++
			default:
				test.Status = StatusFailed
				test.Message = firstFailure(r)
				run.Failed++
			}

			tests = append(tests, test)
		}
	}

	return run, tests
}

func firstFailure(r *runner.TestResult) string {
	for _, a := range r.Assertions {
		if !a.Passed {
			return a.Message
		}
	}
	return ""
}

// Save stores a run and its tests in one transaction.
func (s *Store) Save(ctx context.Context, run *Run, tests []Test) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, duration_ms, environment, files, passed, failed, skipped)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixMilli(), run.Duration.Milliseconds(), run.Environment,
		run.Files, run.Passed, run.Failed, run.Skipped)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tests (run_id, position, file, name, line, status, status_code, duration_ms, message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing test insert: %w", err)
	}
	defer stmt.Close()

	for i, t := range tests {
		if _, err := stmt.ExecContext(ctx, run.ID, i, t.File, t.Name, t.Line, t.Status,
			t.StatusCode, t.Duration.Milliseconds(), t.Message); err != nil {
			return fmt.Errorf("inserting test %q: %w", t.Name, err)
		}
	}

	return tx.Commit()
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, duration_ms, environment, files, passed, failed, skipped
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run        Run
			started    int64
			durationMs int64
		)
		if err := rows.Scan(&run.ID, &started, &durationMs, &run.Environment,
			&run.Files, &run.Passed, &run.Failed, &run.Skipped); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		run.StartedAt = time.UnixMilli(started)
		run.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

// Tests returns the stored tests of a run in execution order. id may be
// a unique prefix of the run ID.
func (s *Store) Tests(ctx context.Context, id string) (string, []Test, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var ids []string
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM runs WHERE id LIKE ? || '%' LIMIT 2`, id)
	if err != nil {
		return "", nil, fmt.Errorf("query failed: %w", err)
	}
	for rows.Next() {
		var full string
		if err := rows.Scan(&full); err != nil {
			rows.Close()
			return "", nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ids = append(ids, full)
	}
	rows.Close()

	switch len(ids) {
	case 0:
		return "", nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 2:
		return "", nil, fmt.Errorf("run id %q is ambiguous", id)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT file, name, line, status, status_code, duration_ms, message
		 FROM tests WHERE run_id = ? ORDER BY position`, ids[0])
	if err != nil {
		return "", nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var tests []Test
	for rows.Next() {
		var (
			t          Test
			durationMs int64
		)
		if err := rows.Scan(&t.File, &t.Name, &t.Line, &t.Status, &t.StatusCode, &durationMs, &t.Message); err != nil {
			return "", nil, fmt.Errorf("failed to scan row: %w", err)
		}
		t.Duration = time.Duration(durationMs) * time.Millisecond
		tests = append(tests, t)
	}

	if err := rows.Err(); err != nil {
		return "", nil, fmt.Errorf("row iteration error: %w", err)
	}
	return ids[0], tests, nil
}

// Prune deletes all but the keep most recent runs and reports how many
// runs were removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	return res.RowsAffected()
}

// parseLocation parses a history location into a SQLite DSN.
// Supported formats:
// - path/to/history.db
// - sqlite://path/to/history.db
// - sqlite:./history.db
func parseLocation(location string) (string, error) {
	location = strings.TrimSpace(location)

	switch {
	case strings.HasPrefix(location, "sqlite://"):
		location = strings.TrimPrefix(location, "sqlite://")
	case strings.HasPrefix(location, "sqlite:"):
		location = strings.TrimPrefix(location, "sqlite:")
	case strings.Contains(location, "://"):
		return "", fmt.Errorf("unsupported history location: %s", location)
	}

	if location == "" {
		return "", errors.New("empty history location")
	}
	return location, nil
}
