// This file implements a PostgreSQL-backed audit store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 10
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 5
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	if cfg.DSN == "" {
		slog.Error("PostgresStore.NewPostgresStore: DSN not set")
		return nil, ErrDSNNotSet
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("PostgresStore.NewPostgresStore: failed to open connection", "error", err)
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		slog.Error("PostgresStore.NewPostgresStore: ping failed", "error", err)
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}
	return newPostgresStoreFromDB(db)
}

// newPostgresStoreFromDB runs migrations on an open connection.
func newPostgresStoreFromDB(db *sql.DB) (*PostgresStore, error) {
	if _, err := db.Exec(postgresMigrations); err != nil {
		db.Close()
		slog.Error("PostgresStore.NewPostgresStore: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore.NewPostgresStore: migrations applied")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) RecordAudit(ctx context.Context, e AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, kind, user_id, display_name, text, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID.String(), string(e.Kind), e.UserID, nilIfEmpty(e.DisplayName), e.Text, e.Time)
	if err != nil {
		slog.Error("PostgresStore.RecordAudit: insert failed", "error", err, "userID", e.UserID, "kind", e.Kind)
		return fmt.Errorf("failed to insert audit entry for %s: %w", e.UserID, err)
	}
	slog.Debug("PostgresStore.RecordAudit: recorded", "id", e.ID, "userID", e.UserID, "kind", e.Kind)
	return nil
}

func (s *PostgresStore) ListAudit(ctx context.Context, userID string, limit int) ([]AuditEntry, error) {
	var lim interface{}
	if limit > 0 {
		lim = limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, user_id, display_name, text, created_at FROM audit_log
		 WHERE ($1 = '' OR user_id = $1) ORDER BY seq DESC LIMIT $2`,
		userID, lim)
	if err != nil {
		slog.Error("PostgresStore.ListAudit: query failed", "error", err)
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	entries, err := scanAuditEntries(rows)
	if err != nil {
		slog.Error("PostgresStore.ListAudit: scan failed", "error", err)
		return nil, err
	}
	slog.Debug("PostgresStore.ListAudit: succeeded", "count", len(entries))
	return entries, nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
