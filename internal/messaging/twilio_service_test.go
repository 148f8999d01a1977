package messaging

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/BTreeMap/NaijaCare/internal/twiliowhatsapp"
)

func TestTwilioService_ImplementsService(t *testing.T) {
	var _ Service = (*TwilioService)(nil)
}

func webhookRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "http://example.com/webhooks/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// twilioSignature computes the X-Twilio-Signature value for a form POST.
func twilioSignature(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestTwilioWebhookHandler_EmitsInbound(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	form := url.Values{
		"From":        {"whatsapp:+2348012345678"},
		"Body":        {"abeg talk pidgin"},
		"ProfileName": {"Ada"},
		"MessageSid":  {"SM1"},
	}
	rec := httptest.NewRecorder()
	svc.TwilioWebhookHandler(rec, webhookRequest(form))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<Response></Response>") {
		t.Errorf("expected empty TwiML, got %q", rec.Body.String())
	}
	msg := <-svc.Responses()
	if msg.From != "2348012345678" || msg.DisplayName != "Ada" || msg.Body != "abeg talk pidgin" {
		t.Errorf("unexpected inbound message: %+v", msg)
	}
	if msg.Time.IsZero() {
		t.Error("expected receive time to be set")
	}
}

func TestTwilioWebhookHandler_MissingFields(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	rec := httptest.NewRecorder()
	svc.TwilioWebhookHandler(rec, webhookRequest(url.Values{"From": {"whatsapp:+2348012345678"}}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	svc.TwilioWebhookHandler(rec, webhookRequest(url.Values{"From": {"whatsapp:+12"}, "Body": {"hi"}}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid sender, got %d", rec.Code)
	}
}

func TestTwilioWebhookHandler_Signature(t *testing.T) {
	const token = "test-auth-token"
	svc := NewTwilioService(twiliowhatsapp.NewMockClient(), WithSignatureValidation(token, ""))
	form := url.Values{"From": {"whatsapp:+2348012345678"}, "Body": {"1"}}

	rec := httptest.NewRecorder()
	req := webhookRequest(form)
	req.Header.Set(TwilioSignatureHeader, "bogus")
	svc.TwilioWebhookHandler(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for bad signature, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = webhookRequest(form)
	req.Header.Set(TwilioSignatureHeader, twilioSignature(token, "http://example.com/webhooks/twilio", form))
	svc.TwilioWebhookHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for valid signature, got %d", rec.Code)
	}
	if msg := <-svc.Responses(); msg.Body != "1" {
		t.Errorf("unexpected body %q", msg.Body)
	}
}

func TestTwilioService_WebhookURL(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	req := httptest.NewRequest(http.MethodPost, "http://bot.example.ng/webhooks/twilio?x=1", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	if got := svc.webhookURL(req); got != "https://bot.example.ng/webhooks/twilio?x=1" {
		t.Errorf("unexpected URL %q", got)
	}

	fixed := NewTwilioService(twiliowhatsapp.NewMockClient(), WithSignatureValidation("t", "https://public.example/hook"))
	if got := fixed.webhookURL(req); got != "https://public.example/hook" {
		t.Errorf("expected configured URL, got %q", got)
	}
}

func TestTwilioService_SendAndStop(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)

	if err := svc.SendMessage(context.Background(), "whatsapp:+2348012345678", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgs := mock.Messages(); len(msgs) != 1 || msgs[0].To != "2348012345678" {
		t.Errorf("unexpected sent messages: %+v", msgs)
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if _, ok := <-svc.Responses(); ok {
		t.Error("expected closed channel after Stop")
	}
	if err := svc.SendMessage(context.Background(), "2348012345678", "hello"); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}

	rec := httptest.NewRecorder()
	svc.TwilioWebhookHandler(rec, webhookRequest(url.Values{"From": {"whatsapp:+2348012345678"}, "Body": {"hi"}}))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after stop, got %d", rec.Code)
	}
}
