// Package store records launcher runs in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Outcomes recorded for a run.
const (
	OutcomeOK             = "ok"
	OutcomeRuntimeMissing = "runtime_missing"
	OutcomeEnvFailed      = "env_failed"
	OutcomeInstallFailed  = "install_failed"
	OutcomeAppExited      = "app_exited"
	OutcomeFailed         = "failed"
	OutcomeInterrupted    = "interrupted"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	command         TEXT NOT NULL,
	started_at      TEXT NOT NULL,
	finished_at     TEXT,
	runtime_path    TEXT NOT NULL DEFAULT '',
	runtime_version TEXT NOT NULL DEFAULT '',
	env_created     INTEGER NOT NULL DEFAULT 0,
	deps_installed  INTEGER NOT NULL DEFAULT 0,
	outcome         TEXT NOT NULL DEFAULT '',
	exit_code       INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Run is one invocation of the launcher.
type Run struct {
	ID             string
	Command        string
	StartedAt      time.Time
	FinishedAt     *time.Time
	RuntimePath    string
	RuntimeVersion string
	EnvCreated     bool
	DepsInstalled  bool
	Outcome        string
	ExitCode       int
	Error          string
}

// Store wraps the history database.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path. Use ":memory:" in tests.
func New(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("store.New: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store.New: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.New: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.New: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun inserts a new run and returns its id.
func (s *Store) StartRun(command string, startedAt time.Time) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, command, started_at) VALUES (?, ?, ?)`,
		id, command, startedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("store.StartRun: %w", err)
	}
	return id, nil
}

// FinishRun stores the final state of a run.
func (s *Store) FinishRun(r *Run, finishedAt time.Time) error {
	res, err := s.db.Exec(`
		UPDATE runs SET
			finished_at = ?, runtime_path = ?, runtime_version = ?,
			env_created = ?, deps_installed = ?, outcome = ?, exit_code = ?, error = ?
		WHERE id = ?`,
		finishedAt.UTC().Format(timeLayout), r.RuntimePath, r.RuntimeVersion,
		r.EnvCreated, r.DepsInstalled, r.Outcome, r.ExitCode, r.Error,
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("store.FinishRun: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store.FinishRun: run %s not found", r.ID)
	}
	return nil
}

// CloseOrphanedRuns marks runs that never finished (the launcher was killed)
// as interrupted. It returns the number of runs closed.
func (s *Store) CloseOrphanedRuns(now time.Time) (int, error) {
	res, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, outcome = ? WHERE finished_at IS NULL`,
		now.UTC().Format(timeLayout), OutcomeInterrupted,
	)
	if err != nil {
		return 0, fmt.Errorf("store.CloseOrphanedRuns: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store.CloseOrphanedRuns: %w", err)
	}
	return int(n), nil
}

const runColumns = `id, command, started_at, finished_at, runtime_path, runtime_version,
	env_created, deps_installed, outcome, exit_code, error`

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store.RecentRuns: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store.RecentRuns: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// LastInstall returns the most recent run that installed dependencies, or nil.
func (s *Store) LastInstall() (*Run, error) {
	row := s.db.QueryRow(
		`SELECT ` + runColumns + ` FROM runs WHERE deps_installed = 1 ORDER BY started_at DESC LIMIT 1`)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store.LastInstall: %w", err)
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r          Run
		startedAt  string
		finishedAt sql.NullString
	)
	err := sc.Scan(&r.ID, &r.Command, &startedAt, &finishedAt, &r.RuntimePath, &r.RuntimeVersion,
		&r.EnvCreated, &r.DepsInstalled, &r.Outcome, &r.ExitCode, &r.Error)
	if err != nil {
		return nil, err
	}

	r.StartedAt, err = time.Parse(timeLayout, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(timeLayout, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		r.FinishedAt = &t
	}
	return &r, nil
}
