package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BTreeMap/NaijaCare/internal/models"
	"github.com/BTreeMap/NaijaCare/internal/router"
	"github.com/BTreeMap/NaijaCare/internal/store"
	"github.com/BTreeMap/NaijaCare/internal/triage"
	"github.com/go-chi/chi/v5"
)

const (
	// DefaultAuditLimit is the number of audit entries returned when no limit is given.
	DefaultAuditLimit = 50
	// MaxAuditLimit caps the limit query parameter of GET /audit.
	MaxAuditLimit = 1000
)

var (
	notFound         = models.Error("Not found")
	methodNotAllowed = models.Error("Method not allowed")
)

// messageResponse is the result body of POST /messages.
type messageResponse struct {
	Kind                triage.Kind `json:"kind,omitempty"`
	Outcome             string      `json:"outcome,omitempty"`
	Command             string      `json:"command,omitempty"`
	HospitalFallthrough bool        `json:"hospital_fallthrough,omitempty"`
	Replies             []string    `json:"replies"`
}

func newMessageResponse(res router.Result) messageResponse {
	out := messageResponse{
		Command:             string(res.Command),
		HospitalFallthrough: res.HospitalFallthrough,
		Replies:             res.Replies,
	}
	if res.Command == router.CommandNone {
		out.Kind = res.Outcome.Kind
		out.Outcome = res.Outcome.String()
	}
	if out.Replies == nil {
		out.Replies = []string{}
	}
	return out
}

// healthHandler reports liveness plus a probe of the audit store.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]any{
		"status":         "healthy",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"sessions":       s.router.Sessions().Len(),
	}

	if s.audit != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if _, err := s.audit.ListAudit(ctx, "", 1); err != nil {
			slog.Warn("Server.healthHandler: audit store probe failed", "error", err)
			healthData["status"] = "degraded"
			healthData["error"] = "Audit store unavailable"
		}
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, statusCode, healthData)
}

// messagesHandler routes one message as if it had arrived over a chat transport
// and returns the replies instead of sending them.
func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var msg models.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		slog.Warn("Server.messagesHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}

	res, err := s.router.HandleMessage(r.Context(), msg)
	if err != nil {
		if errors.Is(err, models.ErrEmptySender) || errors.Is(err, models.ErrEmptyBody) {
			slog.Warn("Server.messagesHandler: validation failed", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.messagesHandler: routing failed", "error", err, "from", msg.From)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to handle message"))
		return
	}

	slog.Debug("Server.messagesHandler: message handled", "from", msg.From, "outcome", res.Outcome.String(), "command", res.Command, "replies", len(res.Replies))
	writeJSONResponse(w, http.StatusOK, models.Success(newMessageResponse(res)))
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	sess, ok := s.router.Sessions().Snapshot(userID)
	if !ok {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sess))
}

func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	s.router.DeleteSession(userID)
	slog.Info("Server.deleteSessionHandler: session deleted", "user", userID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session deleted", nil))
}

// auditHandler lists audit entries newest first. Query parameters: user
// (optional filter) and limit (1..MaxAuditLimit, default DefaultAuditLimit).
func (s *Server) auditHandler(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Audit log not configured"))
		return
	}

	limit := DefaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxAuditLimit {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("limit must be an integer between 1 and "+strconv.Itoa(MaxAuditLimit)))
			return
		}
		limit = n
	}

	entries, err := s.audit.ListAudit(r.Context(), r.URL.Query().Get("user"), limit)
	if err != nil {
		slog.Error("Server.auditHandler: failed to list audit entries", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read audit log"))
		return
	}
	if entries == nil {
		entries = []store.AuditEntry{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(entries))
}
