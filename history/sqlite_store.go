package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists runs in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dsn.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			pipeline TEXT NOT NULL,
			correlation_id TEXT,
			trigger_name TEXT,
			started_at INTEGER NOT NULL,
			ended_at INTEGER,
			error TEXT,
			steps TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_pipeline ON runs(pipeline)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save inserts run, replacing any row with the same id.
func (s *SQLiteStore) Save(ctx context.Context, run Run) error {
	if err := validate(run); err != nil {
		return err
	}

	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	var endedAt sql.NullInt64
	if run.EndedAt != nil {
		endedAt = sql.NullInt64{Int64: run.EndedAt.UnixNano(), Valid: true}
	}

	query := `INSERT OR REPLACE INTO runs (id, pipeline, correlation_id, trigger_name, started_at, ended_at, error, steps)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		run.ID, run.Pipeline, run.CorrelationID, run.Trigger,
		run.StartedAt.UnixNano(), endedAt, run.Error, string(steps))
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// Runs returns runs ordered by start time, most recent first.
func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, pipeline, correlation_id, trigger_name, started_at, ended_at, error, steps
		FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns the run with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, pipeline, correlation_id, trigger_name, started_at, ended_at, error, steps
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run           Run
		correlationID sql.NullString
		trigger       sql.NullString
		startedAt     int64
		endedAt       sql.NullInt64
		errText       sql.NullString
		steps         sql.NullString
	)
	if err := sc.Scan(&run.ID, &run.Pipeline, &correlationID, &trigger, &startedAt, &endedAt, &errText, &steps); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}

	run.CorrelationID = correlationID.String
	run.Trigger = trigger.String
	run.StartedAt = time.Unix(0, startedAt)
	if endedAt.Valid {
		t := time.Unix(0, endedAt.Int64)
		run.EndedAt = &t
	}
	run.Error = errText.String
	if steps.Valid && steps.String != "" && steps.String != "null" {
		if err := json.Unmarshal([]byte(steps.String), &run.Steps); err != nil {
			return Run{}, fmt.Errorf("failed to unmarshal steps: %w", err)
		}
	}
	return run, nil
}

// Verify the stores implement Store.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*DiskStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
