// ABOUTME: SQLite-backed run history: persists run summaries after finalization
// ABOUTME: so the CLI and API can list past runs without keeping state in memory.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/chalkmotion/chalkmotion/pipeline"
)

// Store persists run summaries. Runs serialize themselves explicitly after
// finalization; the store never observes a run in flight.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			audience TEXT NOT NULL,
			quality TEXT NOT NULL,
			succeeded INTEGER NOT NULL,
			final_output TEXT NOT NULL,
			speech_provider TEXT NOT NULL,
			completed_steps TEXT NOT NULL,
			errors TEXT NOT NULL,
			warnings TEXT NOT NULL,
			total_seconds REAL NOT NULL,
			created_at TEXT NOT NULL
		);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts a run summary.
func (s *Store) Save(sum *pipeline.Summary) error {
	steps, err := json.Marshal(sum.CompletedSteps)
	if err != nil {
		return fmt.Errorf("marshal completed steps: %w", err)
	}
	errs, err := json.Marshal(sum.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}
	warns, err := json.Marshal(sum.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO runs (run_id, topic, audience, quality, succeeded, final_output,
			speech_provider, completed_steps, errors, warnings, total_seconds, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
			succeeded = excluded.succeeded,
			final_output = excluded.final_output,
			speech_provider = excluded.speech_provider,
			completed_steps = excluded.completed_steps,
			errors = excluded.errors,
			warnings = excluded.warnings,
			total_seconds = excluded.total_seconds`,
		sum.RunID, sum.Topic, sum.Audience, sum.Quality, boolToInt(sum.Succeeded),
		sum.FinalOutput, sum.SpeechProvider, string(steps), string(errs), string(warns),
		sum.TotalSeconds, sum.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// Get returns a run summary by ID, or (nil, nil) when absent.
func (s *Store) Get(runID string) (*pipeline.Summary, error) {
	row := s.db.QueryRow(
		`SELECT run_id, topic, audience, quality, succeeded, final_output,
			speech_provider, completed_steps, errors, warnings, total_seconds, created_at
		 FROM runs WHERE run_id = ?`, runID)
	sum, err := scanSummary(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return sum, nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(limit int) ([]*pipeline.Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT run_id, topic, audience, quality, succeeded, final_output,
			speech_provider, completed_steps, errors, warnings, total_seconds, created_at
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sums []*pipeline.Summary
	for rows.Next() {
		sum, err := scanSummary(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		sums = append(sums, sum)
	}
	return sums, rows.Err()
}

func scanSummary(scan func(dest ...any) error) (*pipeline.Summary, error) {
	var (
		sum       pipeline.Summary
		succeeded int
		steps     string
		errs      string
		warns     string
		createdAt string
	)
	if err := scan(&sum.RunID, &sum.Topic, &sum.Audience, &sum.Quality, &succeeded,
		&sum.FinalOutput, &sum.SpeechProvider, &steps, &errs, &warns,
		&sum.TotalSeconds, &createdAt); err != nil {
		return nil, err
	}
	sum.Succeeded = succeeded != 0
	if err := json.Unmarshal([]byte(steps), &sum.CompletedSteps); err != nil {
		return nil, fmt.Errorf("unmarshal completed steps: %w", err)
	}
	if err := json.Unmarshal([]byte(errs), &sum.Errors); err != nil {
		return nil, fmt.Errorf("unmarshal errors: %w", err)
	}
	if err := json.Unmarshal([]byte(warns), &sum.Warnings); err != nil {
		return nil, fmt.Errorf("unmarshal warnings: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		sum.CreatedAt = ts
	}
	return &sum, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
