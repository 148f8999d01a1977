// Package router decides how NaijaCare answers each inbound message.
//
// A turn is classified once, in a fixed priority order (language switch,
// emergency, menu shortcut, hospital query, free-form), and produces one or
// more replies. Only the free-form path touches conversation history and the
// language-model gateway.
package router

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/NaijaCare/internal/genai"
	"github.com/BTreeMap/NaijaCare/internal/hospital"
	"github.com/BTreeMap/NaijaCare/internal/metrics"
	"github.com/BTreeMap/NaijaCare/internal/models"
	"github.com/BTreeMap/NaijaCare/internal/replies"
	"github.com/BTreeMap/NaijaCare/internal/session"
	"github.com/BTreeMap/NaijaCare/internal/store"
	"github.com/BTreeMap/NaijaCare/internal/triage"
)

// DefaultPersona is the system prompt sent ahead of every free-form conversation.
const DefaultPersona = "You are NaijaCare AI, a friendly health guide for people in Nigeria chatting on WhatsApp. " +
	"Give short, practical, safe guidance about symptoms, common illnesses such as malaria and typhoid, " +
	"maternal and child health, and when to see a health worker. You are not a doctor and must not diagnose " +
	"or prescribe prescription-only drugs. If anything sounds serious, tell the person to go to the nearest " +
	"hospital or call 112. Keep answers under 150 words."

// DefaultLanguageInstructions tell the model which language to answer in.
var DefaultLanguageInstructions = map[models.Language]string{
	models.LanguageEnglish: "Reply in simple, clear English.",
	models.LanguagePidgin:  "Reply in Nigerian Pidgin English, the way people talk for Lagos and Port Harcourt. Keep am simple.",
}

// Gateway answers a conversation with assistant text.
type Gateway interface {
	Complete(ctx context.Context, messages []models.ChatMessage) (string, error)
}

// Result describes how one message was handled.
type Result struct {
	Outcome triage.Outcome
	// Command is set when the message was handled as a slash command.
	Command Command
	// HospitalFallthrough is true when a "state, area" message matched no
	// hospital and was answered on the free-form path instead.
	HospitalFallthrough bool
	Replies             []string
}

// Opts holds configuration options for the Router.
type Opts struct {
	Directory *hospital.Directory
	Gateway   Gateway
	Audit     store.AuditStore
	Metrics   *metrics.Metrics
	Persona   string
}

// Option defines a configuration option for the Router.
type Option func(*Opts)

// WithDirectory sets the hospital directory used for "state, area" lookups.
func WithDirectory(d *hospital.Directory) Option {
	return func(o *Opts) { o.Directory = d }
}

// WithGateway sets the language-model gateway for free-form messages.
func WithGateway(g Gateway) Option {
	return func(o *Opts) { o.Gateway = g }
}

// WithAudit sets the audit log.
func WithAudit(a store.AuditStore) Option {
	return func(o *Opts) { o.Audit = a }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Opts) { o.Metrics = m }
}

// WithPersona overrides the system prompt.
func WithPersona(p string) Option {
	return func(o *Opts) {
		if p != "" {
			o.Persona = p
		}
	}
}

// Router is the message orchestrator.
type Router struct {
	sessions     *session.Store
	directory    *hospital.Directory
	gateway      Gateway
	audit        store.AuditStore
	metrics      *metrics.Metrics
	persona      string
	instructions map[models.Language]string
	turns        *turnLocks
}

// New creates a Router over the given session store.
func New(sessions *session.Store, opts ...Option) *Router {
	cfg := Opts{
		Directory: hospital.Empty(),
		Persona:   DefaultPersona,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Directory == nil {
		cfg.Directory = hospital.Empty()
	}
	if sessions == nil {
		sessions = session.NewStore()
	}
	slog.Debug("Router.New: created", "hospitals", cfg.Directory.Len(), "gateway_set", cfg.Gateway != nil, "audit_set", cfg.Audit != nil)
	return &Router{
		sessions:     sessions,
		directory:    cfg.Directory,
		gateway:      cfg.Gateway,
		audit:        cfg.Audit,
		metrics:      cfg.Metrics,
		persona:      cfg.Persona,
		instructions: DefaultLanguageInstructions,
		turns:        newTurnLocks(),
	}
}

// Sessions exposes the underlying session store.
func (r *Router) Sessions() *session.Store {
	return r.sessions
}

// DeleteSession drops userID's session once any turn in progress for that
// user has finished.
func (r *Router) DeleteSession(userID string) {
	unlock := r.turns.lock(userID)
	defer unlock()
	r.sessions.Delete(userID)
}

// HandleMessage is the transport entry point: it records the message in the
// audit log, runs slash commands, and routes everything else.
func (r *Router) HandleMessage(ctx context.Context, msg models.InboundMessage) (Result, error) {
	if err := msg.Validate(); err != nil {
		return Result{}, err
	}

	cmd, isCommand := ParseCommand(msg.Body)
	kind := store.AuditKindMessage
	if isCommand && cmd == CommandStart {
		kind = store.AuditKindStart
	}
	r.recordAudit(ctx, store.NewAuditEntry(kind, msg.From, msg.DisplayName, msg.Body, msg.Time))

	if isCommand {
		return r.HandleCommand(msg.From, cmd), nil
	}
	return r.Route(ctx, msg.From, msg.Body), nil
}

// Route classifies text and produces the replies for one turn. Turns from the
// same user are handled one at a time; different users proceed in parallel.
func (r *Router) Route(ctx context.Context, userID, text string) Result {
	unlock := r.turns.lock(userID)
	defer unlock()

	sess := r.sessions.GetOrCreate(userID)
	out := triage.Classify(text)
	slog.Debug("Router.Route: classified", "userID", userID, "outcome", out.String(), "length", len(text))

	var res Result
	switch out.Kind {
	case triage.KindLanguageSwitch:
		r.sessions.SetLanguage(userID, out.Language)
		res = Result{Outcome: out, Replies: []string{
			replies.Render(replies.LanguageSwitched, out.Language),
			replies.Render(replies.Menu, out.Language),
		}}
	case triage.KindEmergency:
		slog.Warn("Router.Route: emergency keyword detected", "userID", userID)
		res = Result{Outcome: out, Replies: []string{replies.Render(replies.Emergency, sess.Language)}}
	case triage.KindMenuShortcut:
		id, _ := replies.OptionID(out.Option)
		res = Result{Outcome: out, Replies: []string{replies.Render(id, sess.Language)}}
	case triage.KindHospitalQuery:
		matches := r.directory.Search(out.State, out.Area)
		if len(matches) > 0 {
			slog.Debug("Router.Route: hospital matches", "userID", userID, "state", out.State, "area", out.Area, "count", len(matches))
			res = Result{Outcome: out, Replies: []string{
				replies.Hospitals(sess.Language, out.State, out.Area, matches, hospital.MaxDisplayResults),
			}}
			break
		}
		slog.Debug("Router.Route: no hospital match, answering as free-form", "userID", userID, "state", out.State, "area", out.Area)
		res = r.freeform(ctx, userID, text)
		res.HospitalFallthrough = true
	default:
		res = r.freeform(ctx, userID, text)
	}

	r.metrics.ObserveOutcome(string(res.Outcome.Kind))
	return res
}

// freeform appends the user turn, asks the gateway, and appends the reply on
// success. No store lock is held while the gateway call is in flight.
func (r *Router) freeform(ctx context.Context, userID, text string) Result {
	sess := r.sessions.AppendMessage(userID, models.RoleUser, text)

	messages := make([]models.ChatMessage, 0, len(sess.History)+2)
	messages = append(messages,
		models.ChatMessage{Role: models.RoleSystem, Content: r.persona},
		models.ChatMessage{Role: models.RoleSystem, Content: r.instructionFor(sess.Language)},
	)
	messages = append(messages, sess.History...)

	res := Result{Outcome: triage.Freeform()}
	if r.gateway == nil {
		r.metrics.ObserveGateway("not_configured", 0)
		res.Replies = []string{replies.Render(replies.NotConnected, sess.Language)}
		return res
	}

	start := time.Now()
	answer, err := r.gateway.Complete(ctx, messages)
	elapsed := time.Since(start)
	switch {
	case errors.Is(err, genai.ErrNotConfigured):
		r.metrics.ObserveGateway("not_configured", elapsed)
		slog.Warn("Router.freeform: gateway not configured", "userID", userID)
		res.Replies = []string{replies.Render(replies.NotConnected, sess.Language)}
		return res
	case err != nil:
		r.metrics.ObserveGateway("error", elapsed)
		slog.Error("Router.freeform: gateway call failed", "userID", userID, "error", err, "duration", elapsed)
		res.Replies = []string{replies.Render(replies.Failure, sess.Language)}
		return res
	}

	r.metrics.ObserveGateway("success", elapsed)
	r.sessions.AppendMessage(userID, models.RoleAssistant, answer)
	slog.Debug("Router.freeform: answered", "userID", userID, "historyLen", len(sess.History)+1, "duration", elapsed)
	res.Replies = []string{answer}
	return res
}

func (r *Router) instructionFor(lang models.Language) string {
	if s, ok := r.instructions[lang]; ok {
		return s
	}
	return r.instructions[models.LanguageEnglish]
}

func (r *Router) recordAudit(ctx context.Context, e store.AuditEntry) {
	if r.audit == nil {
		return
	}
	if err := r.audit.RecordAudit(ctx, e); err != nil {
		r.metrics.IncAuditFailure()
		slog.Warn("Router.recordAudit: audit write failed", "userID", e.UserID, "kind", e.Kind, "error", err)
	}
}

// turnLocks hands out one mutex per user, dropping it once no turn holds it.
type turnLocks struct {
	mu    sync.Mutex
	locks map[string]*turnLock
}

type turnLock struct {
	mu   sync.Mutex
	refs int
}

func newTurnLocks() *turnLocks {
	return &turnLocks{locks: make(map[string]*turnLock)}
}

func (t *turnLocks) lock(userID string) func() {
	t.mu.Lock()
	l, ok := t.locks[userID]
	if !ok {
		l = &turnLock{}
		t.locks[userID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, userID)
		}
		t.mu.Unlock()
	}
}

func (t *turnLocks) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
