// This file implements an SQLite-backed audit store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file, optionally with
// a "file:" prefix and query parameters. If the directory doesn't exist, it
// will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: creating SQLite store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore.NewSQLiteStore: DSN not set")
		return nil, ErrDSNNotSet
	}

	dir := filepath.Dir(sqliteFilePath(dsn))
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("SQLiteStore.NewSQLiteStore: failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("SQLiteStore.NewSQLiteStore: failed to open connection", "error", err)
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		slog.Error("SQLiteStore.NewSQLiteStore: ping failed", "error", err)
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		db.Close()
		slog.Error("SQLiteStore.NewSQLiteStore: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: migrations applied", "dir", dir)
	return &SQLiteStore{db: db}, nil
}

// sqliteFilePath strips the "file:" scheme and query string from a DSN.
func sqliteFilePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}

func (s *SQLiteStore) RecordAudit(ctx context.Context, e AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, kind, user_id, display_name, text, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID.String(), string(e.Kind), e.UserID, nilIfEmpty(e.DisplayName), e.Text, e.Time)
	if err != nil {
		slog.Error("SQLiteStore.RecordAudit: insert failed", "error", err, "userID", e.UserID, "kind", e.Kind)
		return fmt.Errorf("failed to insert audit entry for %s: %w", e.UserID, err)
	}
	slog.Debug("SQLiteStore.RecordAudit: recorded", "id", e.ID, "userID", e.UserID, "kind", e.Kind)
	return nil
}

func (s *SQLiteStore) ListAudit(ctx context.Context, userID string, limit int) ([]AuditEntry, error) {
	if limit < 1 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, user_id, display_name, text, created_at FROM audit_log
		 WHERE (? = '' OR user_id = ?) ORDER BY seq DESC LIMIT ?`,
		userID, userID, limit)
	if err != nil {
		slog.Error("SQLiteStore.ListAudit: query failed", "error", err)
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	entries, err := scanAuditEntries(rows)
	if err != nil {
		slog.Error("SQLiteStore.ListAudit: scan failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLiteStore.ListAudit: succeeded", "count", len(entries))
	return entries, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
