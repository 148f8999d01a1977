package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/BTreeMap/NaijaCare/internal/messaging"
	"github.com/BTreeMap/NaijaCare/internal/metrics"
	"github.com/BTreeMap/NaijaCare/internal/models"
	"github.com/BTreeMap/NaijaCare/internal/replies"
	"github.com/BTreeMap/NaijaCare/internal/router"
	"github.com/BTreeMap/NaijaCare/internal/session"
	"github.com/BTreeMap/NaijaCare/internal/store"
	"github.com/BTreeMap/NaijaCare/internal/triage"
	"github.com/BTreeMap/NaijaCare/internal/twiliowhatsapp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// brokenAudit fails every call.
type brokenAudit struct{}

func (brokenAudit) RecordAudit(context.Context, store.AuditEntry) error {
	return errors.New("connection refused")
}

func (brokenAudit) ListAudit(context.Context, string, int) ([]store.AuditEntry, error) {
	return nil, errors.New("connection refused")
}

func (brokenAudit) Close() error { return nil }

func newTestServer(t *testing.T, opts ...Option) (*Server, *router.Router) {
	t.Helper()
	r := router.New(session.NewStore())
	s, err := NewServer(r, opts...)
	require.NoError(t, err)
	return s, r
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp apiResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func postMessage(t *testing.T, h http.Handler, from, body string) (*httptest.ResponseRecorder, messageResponse) {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"from": from, "body": body})
	require.NoError(t, err)
	rec, resp := do(t, h, http.MethodPost, "/messages", bytes.NewReader(payload))
	var out messageResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(resp.Result, &out))
	}
	return rec, out
}

func TestNewServerRequiresRouter(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)
}

func TestNewServerOptions(t *testing.T) {
	s, _ := newTestServer(t, WithAddr(":9090"), WithAddr(""))
	assert.Equal(t, ":9090", s.Addr())

	s, _ = newTestServer(t)
	assert.Equal(t, DefaultAddr, s.Addr())
	assert.Equal(t, DefaultRequestTimeout, s.timeout)

	s, _ = newTestServer(t, WithRequestTimeout(-1))
	assert.Equal(t, DefaultRequestTimeout, s.timeout)
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t, WithAudit(store.NewInMemoryStore()))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body, "sessions")
}

func TestHealthHandlerDegraded(t *testing.T) {
	s, _ := newTestServer(t, WithAudit(brokenAudit{}))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestMessagesHandlerEmergency(t *testing.T) {
	s, _ := newTestServer(t)
	rec, out := postMessage(t, s.Handler(), "2348012345678", "I have chest pain")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, triage.KindEmergency, out.Kind)
	assert.Empty(t, out.Command)
	require.Len(t, out.Replies, 1)
	assert.Equal(t, replies.Render(replies.Emergency, models.LanguageEnglish), out.Replies[0])
}

func TestMessagesHandlerCommand(t *testing.T) {
	s, _ := newTestServer(t)
	rec, out := postMessage(t, s.Handler(), "2348012345678", "/start")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "start", out.Command)
	assert.Empty(t, out.Kind)
	assert.Equal(t, []string{replies.Render(replies.Welcome, models.LanguageEnglish)}, out.Replies)
}

func TestMessagesHandlerFreeformWithoutGateway(t *testing.T) {
	s, _ := newTestServer(t)
	rec, out := postMessage(t, s.Handler(), "2348012345678", "my belle dey pain me")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, triage.KindFreeform, out.Kind)
	assert.Equal(t, []string{replies.Render(replies.NotConnected, models.LanguageEnglish)}, out.Replies)
}

func TestMessagesHandlerBadRequests(t *testing.T) {
	s, _ := newTestServer(t)

	rec, resp := do(t, s.Handler(), http.MethodPost, "/messages", strings.NewReader("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", resp.Status)

	rec, _ = postMessage(t, s.Handler(), "", "hello")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = postMessage(t, s.Handler(), "2348012345678", "   ")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHandlers(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec, _ := do(t, h, http.MethodGet, "/sessions/2348012345678", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = postMessage(t, h, "2348012345678", "abeg talk pidgin")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := do(t, h, http.MethodGet, "/sessions/2348012345678", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sess models.Session
	require.NoError(t, json.Unmarshal(resp.Result, &sess))
	assert.Equal(t, "2348012345678", sess.UserID)
	assert.Equal(t, models.LanguagePidgin, sess.Language)

	rec, resp = do(t, h, http.MethodDelete, "/sessions/2348012345678", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Session deleted", resp.Message)

	rec, _ = do(t, h, http.MethodGet, "/sessions/2348012345678", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuditHandler(t *testing.T) {
	audit := store.NewInMemoryStore()
	r := router.New(session.NewStore(), router.WithAudit(audit))
	s, err := NewServer(r, WithAudit(audit))
	require.NoError(t, err)
	h := s.Handler()

	postMessage(t, h, "111111", "/start")
	postMessage(t, h, "222222", "1")
	postMessage(t, h, "111111", "Lagos, Ikeja")

	rec, resp := do(t, h, http.MethodGet, "/audit?user=111111", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []store.AuditEntry
	require.NoError(t, json.Unmarshal(resp.Result, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "Lagos, Ikeja", entries[0].Text)
	assert.Equal(t, store.AuditKindStart, entries[1].Kind)

	rec, resp = do(t, h, http.MethodGet, "/audit?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(resp.Result, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "111111", entries[0].UserID)

	rec, resp = do(t, h, http.MethodGet, "/audit?user=nobody", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", string(resp.Result))

	for _, bad := range []string{"0", "-3", "abc", "1001"} {
		rec, _ = do(t, h, http.MethodGet, "/audit?limit="+bad, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", bad)
	}
}

func TestAuditHandlerUnavailable(t *testing.T) {
	s, _ := newTestServer(t)
	rec, _ := do(t, s.Handler(), http.MethodGet, "/audit", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s, _ = newTestServer(t, WithAudit(brokenAudit{}))
	rec, _ = do(t, s.Handler(), http.MethodGet, "/audit", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	r := router.New(session.NewStore(), router.WithMetrics(m))
	s, err := NewServer(r, WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	require.NoError(t, err)

	postMessage(t, s.Handler(), "2348012345678", "I have chest pain")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "naijacare_router_messages_total")
}

func TestTwilioWebhookMount(t *testing.T) {
	form := url.Values{"From": {"whatsapp:+2348012345678"}, "Body": {"hello"}}
	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, TwilioWebhookPath, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req
	}

	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, newReq())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	tw := messaging.NewTwilioService(twiliowhatsapp.NewMockClient())
	s, _ = newTestServer(t, WithTwilio(tw))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, newReq())
	require.Equal(t, http.StatusOK, rec.Code)

	msg := <-tw.Responses()
	assert.Equal(t, "2348012345678", msg.From)
	assert.Equal(t, "hello", msg.Body)
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	rec, resp := do(t, s.Handler(), http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "error", resp.Status)

	rec, resp = do(t, s.Handler(), http.MethodPut, "/messages", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "error", resp.Status)
}

func TestWriteJSONResponseFallback(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSONResponse(rec, http.StatusOK, map[string]any{"bad": make(chan int)})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(fallbackErrorResponse), rec.Body.String())
}
