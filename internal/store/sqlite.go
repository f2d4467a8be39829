package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const dsnPragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Pragmas in the DSN are applied to every pooled connection.
	dsn := dbPath + "?" + dsnPragmas
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS local_storage (
		profile_key TEXT NOT NULL,
		item_key TEXT NOT NULL,
		value TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (profile_key, item_key)
	);
	CREATE INDEX IF NOT EXISTS idx_local_storage_updated ON local_storage(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetItem returns the stored value for a profile item.
func (s *SQLiteStore) GetItem(ctx context.Context, profileKey, itemKey string) (string, bool, error) {
	query := `SELECT value FROM local_storage WHERE profile_key = ? AND item_key = ?`

	var value string
	err := s.db.QueryRowContext(ctx, query, profileKey, itemKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("scan local storage item: %w", err)
	}
	return value, true, nil
}

// SetItem creates or overwrites a profile item.
func (s *SQLiteStore) SetItem(ctx context.Context, profileKey, itemKey, value string) error {
	query := `
	INSERT INTO local_storage (profile_key, item_key, value, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(profile_key, item_key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	now := time.Now().Unix()
	if _, err := s.db.ExecContext(ctx, query, profileKey, itemKey, value, now, now); err != nil {
		return fmt.Errorf("upsert local storage item: %w", err)
	}
	return nil
}

// DeleteStaleItems removes items whose last write is older than ttl.
func (s *SQLiteStore) DeleteStaleItems(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM local_storage WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("delete stale items: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
