// Package store provides a SQLite-backed ledger of pipeline runs. Every
// answered query is persisted with its intent, rewritten query, the sources
// that fed the answer and any degradation, so operators can inspect recent
// behaviour with `cinerag runs` or GET /api/runs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Run is one recorded pipeline invocation.
type Run struct {
	// ID is a random UUID assigned on Record when empty.
	ID string `json:"id"`
	// Query is the user's question as received.
	Query string `json:"query"`
	// Intent is the classified intent label.
	Intent string `json:"intent"`
	// RewrittenQuery is the query actually sent to the retrievers.
	RewrittenQuery string `json:"rewritten_query"`
	// Sources lists the labels of the reranked items used as context.
	Sources []string `json:"sources"`
	// Response is the generated answer or the generation error sentinel.
	Response string `json:"response"`
	// Degraded is true when any stage fell back to an empty result.
	Degraded bool `json:"degraded"`
	// Duration is the end-to-end latency of the run.
	Duration time.Duration `json:"duration_ns"`
	// CreatedAt is when the run was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// RunStore persists and lists pipeline runs. Implementations must be safe for
// concurrent use.
type RunStore interface {
	// Record persists a single run.
	Record(ctx context.Context, run Run) error
	// Recent returns the most recent n runs, newest first.
	Recent(ctx context.Context, n int) ([]Run, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a RunStore backed by a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultDBPath returns the default path for the run ledger database.
// It resolves to ~/.cinerag/runs.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".cinerag")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "runs.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Single connection: avoids SQLITE_BUSY and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS runs (
    seq             INTEGER PRIMARY KEY AUTOINCREMENT,
    id              TEXT    NOT NULL UNIQUE,
    query           TEXT    NOT NULL,
    intent          TEXT    NOT NULL,
    rewritten_query TEXT    NOT NULL,
    sources         TEXT    NOT NULL DEFAULT '[]',  -- JSON array of labels
    response        TEXT    NOT NULL,
    degraded        INTEGER NOT NULL DEFAULT 0,
    duration_ms     INTEGER NOT NULL,
    created_at      INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Record persists a single run. A missing ID is filled with a random UUID.
func (s *SQLiteStore) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Sources == nil {
		run.Sources = []string{}
	}
	sources, err := json.Marshal(run.Sources)
	if err != nil {
		return fmt.Errorf("store: encode sources: %w", err)
	}
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	const q = `INSERT INTO runs (id, query, intent, rewritten_query, sources, response, degraded, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q,
		run.ID, run.Query, run.Intent, run.RewrittenQuery, string(sources),
		run.Response, run.Degraded, run.Duration.Milliseconds(), createdAt.Unix())
	if err != nil {
		return fmt.Errorf("store: record: %w", err)
	}
	return nil
}

// Recent returns the most recent n runs, newest first. If fewer than n runs
// exist, all are returned.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Run, error) {
	const q = `
SELECT id, query, intent, rewritten_query, sources, response, degraded, duration_ms, created_at
FROM   runs
ORDER  BY created_at DESC, seq DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			sources    string
			durationMS int64
			ts         int64
		)
		if err := rows.Scan(&r.ID, &r.Query, &r.Intent, &r.RewrittenQuery, &sources,
			&r.Response, &r.Degraded, &durationMS, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &r.Sources); err != nil {
			return nil, fmt.Errorf("store: decode sources for run %s: %w", r.ID, err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.CreatedAt = time.Unix(ts, 0)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return runs, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
