// Package session holds the volatile per-user conversation state.
//
// Sessions live for the lifetime of the process only. The store guards its map
// with one mutex and every session with its own, so mutations for different
// users never contend and a single user's history is never interleaved.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/NaijaCare/internal/models"
)

// DefaultMaxHistory is the number of role/content entries kept per user.
const DefaultMaxHistory = 14

// Opts holds configuration options for the Store.
type Opts struct {
	MaxHistory int
	Now        func() time.Time
}

// Option defines a configuration option for the Store.
type Option func(*Opts)

// WithMaxHistory caps the retained history. Values below 1 are ignored.
func WithMaxHistory(n int) Option {
	return func(o *Opts) {
		if n > 0 {
			o.MaxHistory = n
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		if now != nil {
			o.Now = now
		}
	}
}

type entry struct {
	mu      sync.Mutex
	session models.Session
}

// Store maps user identifiers to sessions.
type Store struct {
	mu         sync.Mutex
	entries    map[string]*entry
	maxHistory int
	now        func() time.Time
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	cfg := Opts{MaxHistory: DefaultMaxHistory, Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("session.NewStore: created", "maxHistory", cfg.MaxHistory)
	return &Store{
		entries:    make(map[string]*entry),
		maxHistory: cfg.MaxHistory,
		now:        cfg.Now,
	}
}

// MaxHistory returns the configured history cap.
func (s *Store) MaxHistory() int {
	return s.maxHistory
}

func (s *Store) newSession(userID string) models.Session {
	now := s.now()
	return models.Session{
		UserID:    userID,
		Language:  models.LanguageEnglish,
		History:   []models.ChatMessage{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// entryFor returns the entry for userID, creating it when absent.
func (s *Store) entryFor(userID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		e = &entry{session: s.newSession(userID)}
		s.entries[userID] = e
		slog.Debug("session.Store: created session", "userID", userID)
	}
	return e
}

// GetOrCreate returns a copy of the user's session, creating a default one on first use.
func (s *Store) GetOrCreate(userID string) models.Session {
	e := s.entryFor(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone()
}

// Snapshot returns a copy of the user's session without creating it.
func (s *Store) Snapshot(userID string) (models.Session, bool) {
	s.mu.Lock()
	e, ok := s.entries[userID]
	s.mu.Unlock()
	if !ok {
		return models.Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone(), true
}

// Update applies fn to the user's session under that session's lock, then
// enforces the history cap. It returns a copy of the updated session.
func (s *Store) Update(userID string, fn func(*models.Session)) models.Session {
	e := s.entryFor(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.session)
	e.session.History = truncate(e.session.History, s.maxHistory)
	e.session.UpdatedAt = s.now()
	return e.session.Clone()
}

// SetLanguage changes the user's language mode. Unsupported languages leave
// the current mode in place.
func (s *Store) SetLanguage(userID string, lang models.Language) models.Session {
	return s.Update(userID, func(sess *models.Session) {
		if models.IsValidLanguage(lang) {
			sess.Language = lang
		}
	})
}

// AppendMessage adds one entry to the user's history, evicting the oldest
// entries beyond the cap.
func (s *Store) AppendMessage(userID string, role models.Role, content string) models.Session {
	ts := s.now()
	return s.Update(userID, func(sess *models.Session) {
		sess.History = append(sess.History, models.ChatMessage{Role: role, Content: content, Timestamp: ts})
	})
}

// ClearHistory empties the user's history and keeps the language mode.
func (s *Store) ClearHistory(userID string) models.Session {
	return s.Update(userID, func(sess *models.Session) {
		sess.History = []models.ChatMessage{}
	})
}

// Reset replaces the user's session with a fresh default one.
func (s *Store) Reset(userID string) models.Session {
	fresh := s.newSession(userID)
	return s.Update(userID, func(sess *models.Session) {
		*sess = fresh
	})
}

// Delete forgets the user entirely.
func (s *Store) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
}

// Len returns the number of sessions held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// truncate keeps only the most recent max entries.
func truncate(history []models.ChatMessage, max int) []models.ChatMessage {
	if max <= 0 || len(history) <= max {
		return history
	}
	kept := make([]models.ChatMessage, max)
	copy(kept, history[len(history)-max:])
	return kept
}
