// SQLite-backed checkpoint and run stores.
//
// Information Hiding:
// - SQLite connection management hidden behind interfaces
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteStorage implements CheckpointStore and RunStore using SQLite.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteStorage struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStorage, error) {
	// Create parent directory if needed
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			question TEXT NOT NULL,
			state BLOB NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_checkpoints_status
		ON checkpoints(status, updated_at DESC);

		CREATE INDEX IF NOT EXISTS idx_checkpoints_run
		ON checkpoints(run_id);

		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			user_email TEXT,
			status TEXT NOT NULL,
			turns INTEGER NOT NULL,
			cost_usd REAL NOT NULL,
			duration_ms INTEGER NOT NULL,
			answer TEXT,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_created
		ON runs(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveCheckpoint stores a checkpoint, replacing any previous row with the
// same ID. Zero timestamps are filled with the current time.
func (s *SqliteStorage) SaveCheckpoint(ctx context.Context, cp Checkpoint) error {
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = now
	}
	if cp.Status == "" {
		cp.Status = CheckpointPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO checkpoints
		(id, run_id, chat_id, question, state, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.ID,
		cp.RunID,
		cp.ChatID,
		cp.Question,
		cp.State,
		string(cp.Status),
		cp.CreatedAt.Unix(),
		cp.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint fetches a checkpoint by ID.
// Returns nil, nil if not found.
func (s *SqliteStorage) LoadCheckpoint(ctx context.Context, id string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, chat_id, question, state, status, created_at, updated_at
		FROM checkpoints WHERE id = ?`,
		id)

	cp, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cp, nil
}

// MarkResumed flips a checkpoint to resumed.
func (s *SqliteStorage) MarkResumed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE checkpoints SET status = ?, updated_at = ? WHERE id = ?",
		string(CheckpointResumed), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark checkpoint resumed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("checkpoint not found: %s", id)
	}
	return nil
}

// ListPending lists checkpoints awaiting an answer, most recent first.
func (s *SqliteStorage) ListPending(ctx context.Context) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, chat_id, question, state, status, created_at, updated_at
		FROM checkpoints
		WHERE status = ?
		ORDER BY updated_at DESC`,
		string(CheckpointPending))
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	checkpoints := []Checkpoint{} // Start with empty slice, not nil
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, *cp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoints: %w", err)
	}

	return checkpoints, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanCheckpoint scans a single checkpoint row.
func scanCheckpoint(row rowScanner) (*Checkpoint, error) {
	var cp Checkpoint
	var statusStr string
	var createdAt, updatedAt int64

	err := row.Scan(
		&cp.ID,
		&cp.RunID,
		&cp.ChatID,
		&cp.Question,
		&cp.State,
		&statusStr,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
	}

	status, err := ParseCheckpointStatus(statusStr)
	if err != nil {
		// Invalid status in database indicates data corruption or schema
		// mismatch. Return error rather than silently defaulting.
		return nil, fmt.Errorf("invalid checkpoint status %q in database: %w", statusStr, err)
	}
	cp.Status = status
	cp.CreatedAt = time.Unix(createdAt, 0)
	cp.UpdatedAt = time.Unix(updatedAt, 0)

	return &cp, nil
}

// RecordRun stores a run outcome and supersedes any checkpoints still
// pending for the same run, in one transaction.
func (s *SqliteStorage) RecordRun(ctx context.Context, rec RunRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// defer tx.Rollback() is safe even after Commit() - it becomes a no-op
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
		(run_id, chat_id, user_email, status, turns, cost_usd, duration_ms, answer, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.ChatID,
		rec.UserEmail,
		rec.Status,
		rec.Turns,
		rec.CostUSD,
		rec.Duration.Milliseconds(),
		rec.Answer,
		rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE checkpoints SET status = ?, updated_at = ? WHERE run_id = ? AND status = ?",
		string(CheckpointSuperseded), time.Now().Unix(), rec.RunID, string(CheckpointPending))
	if err != nil {
		return fmt.Errorf("failed to supersede checkpoints: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListRuns lists recorded runs, most recent first.
// A non-positive limit returns all runs.
func (s *SqliteStorage) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT run_id, chat_id, user_email, status, turns, cost_usd, duration_ms, answer, created_at
		FROM runs
		ORDER BY created_at DESC, run_id`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{} // Start with empty slice, not nil
	for rows.Next() {
		var rec RunRecord
		var userEmail, answer sql.NullString
		var durationMs, createdAt int64

		err := rows.Scan(
			&rec.RunID,
			&rec.ChatID,
			&userEmail,
			&rec.Status,
			&rec.Turns,
			&rec.CostUSD,
			&durationMs,
			&answer,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		if userEmail.Valid {
			rec.UserEmail = userEmail.String
		}
		if answer.Valid {
			rec.Answer = answer.String
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		rec.CreatedAt = time.Unix(createdAt, 0)
		runs = append(runs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// Verify SqliteStorage implements all interfaces
var _ CheckpointStore = (*SqliteStorage)(nil)
var _ RunStore = (*SqliteStorage)(nil)
