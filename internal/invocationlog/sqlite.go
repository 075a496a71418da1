// ABOUTME: SQLite-backed invocation log Store with a TTL sweeper
// ABOUTME: SQLite has no native per-row expiry, so Sweep deletes rows past expires_at

package invocationlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists invocation events in a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at path for the
// invocation log, sharing the schema-creation idiom used by the metadata store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "invocationlog")

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("invocationlog: creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("invocationlog: opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("invocationlog: enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("invocationlog: creating schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS invocation_log (
			sort_key       TEXT PRIMARY KEY,
			skill_id       TEXT NOT NULL,
			invoked_at     TEXT NOT NULL,
			session_id     TEXT NOT NULL,
			method         TEXT NOT NULL,
			duration_ms    INTEGER NOT NULL,
			status         TEXT NOT NULL,
			error_message  TEXT,
			params_excerpt TEXT,
			expires_at     TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_invocation_log_skill_invoked
			ON invocation_log(skill_id, invoked_at);

		CREATE INDEX IF NOT EXISTS idx_invocation_log_expires
			ON invocation_log(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// AppendBatch inserts every event in a single transaction.
func (s *SQLiteStore) AppendBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("invocationlog: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO invocation_log
			(sort_key, skill_id, invoked_at, session_id, method, duration_ms, status, error_message, params_excerpt, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("invocationlog: preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		_, err := stmt.ExecContext(ctx,
			e.SortKey,
			e.SkillID,
			e.InvokedAt.UTC().Format(time.RFC3339Nano),
			e.SessionID,
			e.Method,
			e.DurationMS,
			string(e.Status),
			e.ErrorMessage,
			e.ParamsExcerpt,
			e.ExpiresAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("invocationlog: inserting event %q: %w", e.SortKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("invocationlog: committing batch: %w", err)
	}
	s.logger.Debug("appended invocation log batch", "count", len(events))
	return nil
}

// Query returns events for skillID, most-recent-first (by sort_key), limited
// to limit rows and optionally filtered to since.
func (s *SQLiteStore) Query(ctx context.Context, skillID string, since *time.Time, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT sort_key, skill_id, invoked_at, session_id, method, duration_ms, status, error_message, params_excerpt, expires_at
		FROM invocation_log
		WHERE skill_id = ?
	`
	args := []any{skillID}
	if since != nil {
		query += " AND invoked_at >= ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	query += " ORDER BY sort_key DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("invocationlog: querying events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var invokedAt, expiresAt, status string
		var errorMessage, paramsExcerpt sql.NullString

		if err := rows.Scan(&e.SortKey, &e.SkillID, &invokedAt, &e.SessionID, &e.Method, &e.DurationMS, &status, &errorMessage, &paramsExcerpt, &expiresAt); err != nil {
			return nil, fmt.Errorf("invocationlog: scanning event row: %w", err)
		}
		e.Status = Status(status)
		e.ErrorMessage = errorMessage.String
		e.ParamsExcerpt = paramsExcerpt.String

		e.InvokedAt, err = time.Parse(time.RFC3339Nano, invokedAt)
		if err != nil {
			return nil, fmt.Errorf("invocationlog: parsing invoked_at: %w", err)
		}
		e.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("invocationlog: parsing expires_at: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("invocationlog: iterating event rows: %w", err)
	}
	return events, nil
}

// Sweep deletes rows whose expires_at has passed, returning the count removed.
func (s *SQLiteStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM invocation_log WHERE expires_at <= ?`, now.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("invocationlog: sweeping expired events: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("invocationlog: getting rows affected: %w", err)
	}
	if rows > 0 {
		s.logger.Debug("swept expired invocation log rows", "count", rows)
	}
	return int(rows), nil
}
