package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/haikalllp/smoothie-rs-queuer/internal/config"
	"github.com/haikalllp/smoothie-rs-queuer/internal/queue"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; users clear the journal after a bump.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Entry is one journaled outcome.
type Entry struct {
	ID           int64
	TaskID       int64
	SourcePath   string
	OutputDir    string
	Recipe       string
	Status       queue.Status
	ErrorMessage string
	StartedAt    *time.Time
	FinishedAt   *time.Time
	RecordedAt   time.Time
}

// Store manages the outcome journal backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database under the log dir.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "history.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (run 'squeuer history clear' or delete the database)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Record journals the terminal outcome of task.
func (s *Store) Record(ctx context.Context, task *queue.Task) error {
	if task == nil {
		return errors.New("task required")
	}
	if !task.Status.IsTerminal() {
		return fmt.Errorf("record task %d: status %s is not terminal", task.ID, task.Status)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (task_id, source_path, output_dir, recipe, status, error_message, started_at, finished_at, recorded_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.SourcePath,
		task.OutputDir,
		task.Recipe,
		string(task.Status),
		nullableString(task.ErrorMessage),
		formatTimePtr(task.StartedAt),
		formatTimePtr(task.FinishedAt),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert history row: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first. limit <= 0 returns
// everything.
func (s *Store) List(ctx context.Context, limit int) ([]*Entry, error) {
	query := "SELECT id, task_id, source_path, output_dir, recipe, status, error_message, started_at, finished_at, recorded_at FROM history ORDER BY id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan history row: %w", scanErr)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}

// Clear removes all entries and returns how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM history")
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count cleared rows: %w", err)
	}
	return count, nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		id          int64
		taskID      int64
		sourcePath  string
		outputDir   string
		recipe      string
		statusStr   string
		errMessage  sql.NullString
		startedRaw  sql.NullString
		finishedRaw sql.NullString
		recordedRaw string
	)
	if err := scanner.Scan(
		&id,
		&taskID,
		&sourcePath,
		&outputDir,
		&recipe,
		&statusStr,
		&errMessage,
		&startedRaw,
		&finishedRaw,
		&recordedRaw,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:           id,
		TaskID:       taskID,
		SourcePath:   sourcePath,
		OutputDir:    outputDir,
		Recipe:       recipe,
		Status:       queue.Status(statusStr),
		ErrorMessage: errMessage.String,
		StartedAt:    parseTimePtr(startedRaw),
		FinishedAt:   parseTimePtr(finishedRaw),
	}
	if ts, err := parseTimeString(recordedRaw); err == nil {
		entry.RecordedAt = ts
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTimePtr(ts *time.Time) any {
	if ts == nil {
		return nil
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

func parseTimePtr(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	ts, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &ts
}

func parseTimeString(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q", raw)
}
