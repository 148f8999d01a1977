package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/NaijaCare/internal/models"
	"github.com/BTreeMap/NaijaCare/internal/twiliowhatsapp"
	twilioclient "github.com/twilio/twilio-go/client"
)

// TwilioSignatureHeader carries the request signature Twilio computes with the auth token.
const TwilioSignatureHeader = "X-Twilio-Signature"

// emptyTwiML acknowledges a webhook without an inline reply; replies go out over the REST API.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// TwilioOption configures a TwilioService.
type TwilioOption func(*TwilioService)

// WithSignatureValidation rejects webhook requests whose X-Twilio-Signature
// does not match authToken. publicURL is the webhook URL as configured in
// Twilio; when empty it is rebuilt from the request.
func WithSignatureValidation(authToken, publicURL string) TwilioOption {
	return func(s *TwilioService) {
		v := twilioclient.NewRequestValidator(authToken)
		s.validator = &v
		s.publicURL = publicURL
	}
}

// TwilioService implements Service for the Twilio WhatsApp API. Inbound
// messages arrive through TwilioWebhookHandler.
type TwilioService struct {
	client    twiliowhatsapp.TwilioWhatsAppSender // real Twilio client or MockClient
	inbox     *inbox
	validator *twilioclient.RequestValidator
	publicURL string
}

// NewTwilioService creates a new TwilioService.
func NewTwilioService(client twiliowhatsapp.TwilioWhatsAppSender, opts ...TwilioOption) *TwilioService {
	s := &TwilioService{
		client: client,
		inbox:  newInbox("TwilioService"),
	}
	for _, opt := range opts {
		opt(s)
	}
	slog.Debug("TwilioService.New: created", "signature_validation", s.validator != nil)
	return s
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone number.
// It removes all non-numeric characters, including the "whatsapp:" prefix Twilio adds.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := CanonicalizePhone(recipient)
	if err != nil {
		return "", err
	}
	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start is a no-op; inbound traffic is pushed to the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the Responses channel.
func (s *TwilioService) Stop() error {
	s.inbox.close()
	slog.Info("TwilioService.Stop: stopped and channel closed")
	return nil
}

// SendMessage sends a message via Twilio.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.inbox.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendMessage: invalid recipient", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		return err
	}
	slog.Debug("TwilioService.SendMessage: sent", "to", canonicalTo, "body_length", len(body))
	return nil
}

// Responses returns the channel of inbound messages.
func (s *TwilioService) Responses() <-chan models.InboundMessage {
	return s.inbox.ch
}

// TwilioWebhookHandler handles inbound Twilio webhook requests and emits them
// on the Responses channel.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("TwilioService.Webhook: failed to parse form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if s.validator != nil {
		params := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
		if !s.validator.Validate(s.webhookURL(r), params, r.Header.Get(TwilioSignatureHeader)) {
			slog.Warn("TwilioService.Webhook: signature validation failed", "remote", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	if from == "" || body == "" {
		slog.Warn("TwilioService.Webhook: missing fields", "from_set", from != "", "body_length", len(body))
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	canonical, err := s.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		slog.Warn("TwilioService.Webhook: invalid sender", "error", err)
		http.Error(w, "Invalid sender", http.StatusBadRequest)
		return
	}

	slog.Info("TwilioService.Webhook: inbound message", "from", canonical, "sid", r.FormValue("MessageSid"), "body_length", len(body))
	if !s.inbox.emit(models.InboundMessage{
		From:        canonical,
		DisplayName: r.FormValue("ProfileName"),
		Body:        body,
		Time:        time.Now(),
	}) {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, emptyTwiML)
}

// webhookURL returns the URL Twilio signed: the configured public URL, or one
// rebuilt from the request honoring X-Forwarded-Proto.
func (s *TwilioService) webhookURL(r *http.Request) string {
	if s.publicURL != "" {
		return s.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
