// ABOUTME: SQLite implementation of MetadataStore using modernc.org/sqlite
// ABOUTME: WAL mode, schema created at open, (status, updated_at) index for active listing

package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// isBusyErr reports whether err looks like SQLite contention (SQLITE_BUSY or
// a locked database), the only condition IncrementInvocation retries on.
func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// SQLiteStore implements MetadataStore backed by a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at path and ensures the
// schema exists. Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "metastore")

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("metastore: creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("metastore: opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("metastore: enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("metastore: enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("metastore: creating schema: %w", err)
	}

	logger.Info("SQLite metastore initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS skill_metadata (
			id                TEXT PRIMARY KEY,
			status            TEXT NOT NULL,
			version           INTEGER NOT NULL,
			invocation_count  INTEGER NOT NULL DEFAULT 0,
			last_invoked_at   TEXT,
			created_at        TEXT NOT NULL,
			updated_at        TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_skill_metadata_status_updated
			ON skill_metadata(status, updated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite metastore")
	return s.db.Close()
}

// Put inserts or replaces the metadata record for meta.ID.
func (s *SQLiteStore) Put(ctx context.Context, meta SkillMeta) error {
	query := `
		INSERT INTO skill_metadata (id, status, version, invocation_count, last_invoked_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			version = excluded.version,
			invocation_count = excluded.invocation_count,
			last_invoked_at = excluded.last_invoked_at,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		meta.ID,
		meta.Status,
		meta.Version,
		meta.InvocationCount,
		formatNullableTime(meta.LastInvokedAt),
		meta.CreatedAt.UTC().Format(time.RFC3339),
		meta.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("metastore: upserting metadata: %w", err)
	}
	s.logger.Debug("put skill metadata", "id", meta.ID, "status", meta.Status, "version", meta.Version)
	return nil
}

// Get retrieves the metadata record for id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (SkillMeta, error) {
	query := `
		SELECT id, status, version, invocation_count, last_invoked_at, created_at, updated_at
		FROM skill_metadata WHERE id = ?
	`
	row := s.db.QueryRowContext(ctx, query, id)
	return scanSkillMeta(row)
}

// List returns metadata records, optionally filtered by status, ordered by
// updated_at descending using the secondary index.
func (s *SQLiteStore) List(ctx context.Context, status string) ([]SkillMeta, error) {
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, status, version, invocation_count, last_invoked_at, created_at, updated_at
			FROM skill_metadata WHERE status = ? ORDER BY updated_at DESC
		`, status)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, status, version, invocation_count, last_invoked_at, created_at, updated_at
			FROM skill_metadata ORDER BY updated_at DESC
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("metastore: listing metadata: %w", err)
	}
	defer rows.Close()

	var out []SkillMeta
	for rows.Next() {
		meta, err := scanSkillMeta(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metastore: iterating metadata rows: %w", err)
	}
	return out, nil
}

// Delete removes the metadata record for id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM skill_metadata WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("metastore: deleting metadata: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("metastore: getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementInvocation atomically bumps invocation_count and last_invoked_at
// in a single UPDATE, so concurrent callers never lose a count. SQLite's
// single-writer model means a concurrent writer can surface SQLITE_BUSY
// under load, so contention is retried with bounded exponential backoff,
// mirroring the Redis implementation's retry loop.
func (s *SQLiteStore) IncrementInvocation(ctx context.Context, id string, at time.Time) error {
	var lastErr error
	for attempt := 0; attempt < incrementMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 10 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		result, err := s.db.ExecContext(ctx, `
			UPDATE skill_metadata
			SET invocation_count = invocation_count + 1, last_invoked_at = ?, updated_at = ?
			WHERE id = ?
		`, at.UTC().Format(time.RFC3339), at.UTC().Format(time.RFC3339), id)
		if err != nil {
			if isBusyErr(err) {
				lastErr = err
				continue
			}
			return fmt.Errorf("metastore: incrementing invocation count: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("metastore: getting rows affected: %w", err)
		}
		if rows == 0 {
			return ErrNotFound
		}
		return nil
	}
	return fmt.Errorf("metastore: incrementing invocation count after %d attempts: %w", incrementMaxAttempts, lastErr)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSkillMeta(row rowScanner) (SkillMeta, error) {
	var meta SkillMeta
	var createdAt, updatedAt string
	var lastInvokedAt sql.NullString

	err := row.Scan(&meta.ID, &meta.Status, &meta.Version, &meta.InvocationCount, &lastInvokedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SkillMeta{}, ErrNotFound
	}
	if err != nil {
		return SkillMeta{}, fmt.Errorf("metastore: scanning metadata row: %w", err)
	}

	meta.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return SkillMeta{}, fmt.Errorf("metastore: parsing created_at: %w", err)
	}
	meta.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return SkillMeta{}, fmt.Errorf("metastore: parsing updated_at: %w", err)
	}
	if lastInvokedAt.Valid {
		t, err := time.Parse(time.RFC3339, lastInvokedAt.String)
		if err != nil {
			return SkillMeta{}, fmt.Errorf("metastore: parsing last_invoked_at: %w", err)
		}
		meta.LastInvokedAt = &t
	}
	return meta, nil
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "constraint failed")
}
