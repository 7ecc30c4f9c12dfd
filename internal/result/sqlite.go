package result

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const createResultsTable = `
CREATE TABLE IF NOT EXISTS results (
    key        TEXT PRIMARY KEY,
    value      BLOB NOT NULL,
    written_at DATETIME NOT NULL,
    expires_at DATETIME
)`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createResultsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create results table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Put persists value under key. Without refresh, an existing unexpired
// record makes the write a no-op; expired records are overwritten in place.
func (s *SQLiteStore) Put(ctx context.Context, key string, value json.RawMessage, expiresAt *time.Time, refresh bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if !refresh {
		var existingExpiry sql.NullTime
		err := tx.QueryRowContext(ctx,
			"SELECT expires_at FROM results WHERE key = ?", key,
		).Scan(&existingExpiry)
		switch {
		case err == nil:
			if !existingExpiry.Valid || time.Now().UTC().Before(existingExpiry.Time) {
				// Idempotent write: the key already holds an unexpired value.
				return nil
			}
		case errors.Is(err, sql.ErrNoRows):
		default:
			return fmt.Errorf("check existing record: %w", err)
		}
	}

	var expires any
	if expiresAt != nil {
		expires = expiresAt.UTC()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO results (key, value, written_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value,
			written_at = excluded.written_at, expires_at = excluded.expires_at`,
		key, []byte(value), time.Now().UTC(), expires,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return tx.Commit()
}

// Get retrieves the record for key. Expired records return ErrExpired but
// remain stored.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Record, error) {
	rec := &Record{Key: key}
	var value []byte
	var expires sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT value, written_at, expires_at FROM results WHERE key = ?", key,
	).Scan(&value, &rec.WrittenAt, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}

	rec.Value = json.RawMessage(value)
	if expires.Valid {
		t := expires.Time
		rec.ExpiresAt = &t
	}
	if rec.Expired(time.Now().UTC()) {
		return nil, ErrExpired
	}
	return rec, nil
}
