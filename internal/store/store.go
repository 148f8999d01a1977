// Package store provides the audit log backends for NaijaCare.
//
// It includes an in-memory store plus SQLite and PostgreSQL stores. The audit
// log is append-only: one entry per inbound message and per /start command.
package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDSN selects the in-memory audit store.
const MemoryDSN = "memory"

// ErrDSNNotSet is returned when a database store is created without a DSN.
var ErrDSNNotSet = errors.New("database DSN not set")

// AuditKind classifies an audit entry.
type AuditKind string

const (
	AuditKindMessage AuditKind = "message"
	AuditKindStart   AuditKind = "start"
)

// AuditEntry is one line of the audit log.
type AuditEntry struct {
	ID          uuid.UUID `json:"id"`
	Kind        AuditKind `json:"kind"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Text        string    `json:"text"`
	Time        time.Time `json:"time"`
}

// NewAuditEntry fills in a fresh ID and normalizes the timestamp to UTC.
func NewAuditEntry(kind AuditKind, userID, displayName, text string, at time.Time) AuditEntry {
	if at.IsZero() {
		at = time.Now()
	}
	return AuditEntry{
		ID:          uuid.New(),
		Kind:        kind,
		UserID:      userID,
		DisplayName: displayName,
		Text:        text,
		Time:        at.UTC(),
	}
}

// AuditStore records and lists audit entries.
type AuditStore interface {
	RecordAudit(ctx context.Context, e AuditEntry) error
	// ListAudit returns up to limit entries, newest first. An empty userID
	// lists every user; a limit below 1 means no limit.
	ListAudit(ctx context.Context, userID string, limit int) ([]AuditEntry, error)
	Close() error
}

// Opts holds configuration options for database stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for database stores.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path or DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns the database/sql driver name for dsn: "postgres" for
// PostgreSQL URLs and keyword strings, "sqlite3" for everything else.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// Open creates the audit store selected by dsn.
func Open(dsn string) (AuditStore, error) {
	switch {
	case strings.EqualFold(strings.TrimSpace(dsn), MemoryDSN):
		slog.Debug("store.Open: using in-memory audit store")
		return NewInMemoryStore(), nil
	case DetectDSNType(dsn) == "postgres":
		slog.Debug("store.Open: using Postgres audit store")
		return NewPostgresStore(WithPostgresDSN(dsn))
	default:
		slog.Debug("store.Open: using SQLite audit store")
		return NewSQLiteStore(WithSQLiteDSN(dsn))
	}
}

// InMemoryStore keeps audit entries in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []AuditEntry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) RecordAudit(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *InMemoryStore) ListAudit(_ context.Context, userID string, limit int) ([]AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AuditEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if userID != "" && e.UserID != userID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
