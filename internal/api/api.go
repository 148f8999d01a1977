// Package api exposes NaijaCare over HTTP.
//
// The server mounts health and metrics endpoints, a direct message endpoint
// that runs the router without a chat transport, read-only session and audit
// inspection, and the Twilio WhatsApp webhook when that transport is active.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/NaijaCare/internal/messaging"
	"github.com/BTreeMap/NaijaCare/internal/router"
	"github.com/BTreeMap/NaijaCare/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":8080"
	// DefaultRequestTimeout bounds a single request, including the model call
	// made by POST /messages.
	DefaultRequestTimeout = 60 * time.Second
	// TwilioWebhookPath is where Twilio posts inbound WhatsApp messages.
	TwilioWebhookPath = "/webhooks/twilio"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	Audit          store.AuditStore
	Twilio         *messaging.TwilioService
	MetricsHandler http.Handler
	RequestTimeout time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		if addr != "" {
			o.Addr = addr
		}
	}
}

// WithAudit enables GET /audit backed by the given store.
func WithAudit(a store.AuditStore) Option {
	return func(o *Opts) { o.Audit = a }
}

// WithTwilio mounts the Twilio webhook of the given service.
func WithTwilio(t *messaging.TwilioService) Option {
	return func(o *Opts) { o.Twilio = t }
}

// WithMetricsHandler replaces the default Prometheus handler for GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(o *Opts) { o.MetricsHandler = h }
}

// WithRequestTimeout sets the per-request timeout. Non-positive values are ignored.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Opts) {
		if d > 0 {
			o.RequestTimeout = d
		}
	}
}

// Server serves the NaijaCare HTTP API.
type Server struct {
	router  *router.Router
	audit   store.AuditStore
	twilio  *messaging.TwilioService
	metrics http.Handler
	timeout time.Duration
	handler http.Handler
	srv     *http.Server
	started time.Time
}

// NewServer builds the API server around the given message router.
func NewServer(r *router.Router, opts ...Option) (*Server, error) {
	if r == nil {
		return nil, fmt.Errorf("router cannot be nil")
	}
	cfg := Opts{
		Addr:           DefaultAddr,
		RequestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MetricsHandler == nil {
		cfg.MetricsHandler = promhttp.Handler()
	}

	s := &Server{
		router:  r,
		audit:   cfg.Audit,
		twilio:  cfg.Twilio,
		metrics: cfg.MetricsHandler,
		timeout: cfg.RequestTimeout,
		started: time.Now(),
	}
	s.handler = s.routes()
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	slog.Debug("api.NewServer: configured", "addr", cfg.Addr, "audit", cfg.Audit != nil, "twilio", cfg.Twilio != nil)
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/health", s.healthHandler)
	r.Method(http.MethodGet, "/metrics", s.metrics)

	r.Post("/messages", s.messagesHandler)
	r.Get("/sessions/{userID}", s.getSessionHandler)
	r.Delete("/sessions/{userID}", s.deleteSessionHandler)
	r.Get("/audit", s.auditHandler)

	if s.twilio != nil {
		r.Post(TwilioWebhookPath, s.twilio.TwilioWebhookHandler)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusNotFound, notFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusMethodNotAllowed, methodNotAllowed)
	})
	return r
}

// Handler returns the HTTP handler with all routes mounted.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// ListenAndServe serves until Shutdown is called. A clean shutdown returns nil.
func (s *Server) ListenAndServe() error {
	slog.Info("api.ListenAndServe: listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("api.Shutdown: stopping HTTP server")
	return s.srv.Shutdown(ctx)
}
