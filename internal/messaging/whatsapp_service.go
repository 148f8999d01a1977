package messaging

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/NaijaCare/internal/models"
	"github.com/BTreeMap/NaijaCare/internal/whatsapp"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client    whatsapp.WhatsAppSender
	waClient  *whatsapp.Client // set when client is the real client, for event handling
	inbox     *inbox
	handlerID uint32
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given WhatsAppSender.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	service := &WhatsAppService{
		client: client,
		inbox:  newInbox("WhatsAppService"),
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService.New: created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService.New: created with interface client (likely mock)")
	}
	return service
}

// ValidateAndCanonicalizeRecipient reduces a WhatsApp number to its digits.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// Start subscribes to WhatsApp message events.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService.Start: no full client available, skipping event handling (likely mock)")
		return nil
	}
	s.handlerID = s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleIncomingMessage(v)
		case *events.Connected:
			slog.Info("WhatsAppService: connected")
		case *events.Disconnected:
			slog.Warn("WhatsAppService: disconnected")
		case *events.LoggedOut:
			slog.Error("WhatsAppService: logged out, delete the device store and scan a new QR code", "reason", v.Reason)
		}
	})
	slog.Info("WhatsAppService.Start: event handler registered")
	return nil
}

// Stop unsubscribes from events and closes the Responses channel.
func (s *WhatsAppService) Stop() error {
	if s.waClient != nil && s.waClient.GetClient() != nil && s.handlerID != 0 {
		s.waClient.GetClient().RemoveEventHandler(s.handlerID)
	}
	s.inbox.close()
	slog.Info("WhatsAppService.Stop: stopped and channel closed")
	return nil
}

// SendMessage sends a text message.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	if s.inbox.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService.SendMessage: invalid recipient", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		slog.Error("WhatsAppService.SendMessage: send failed", "error", err, "to", canonicalTo)
		return err
	}
	slog.Debug("WhatsAppService.SendMessage: sent", "to", canonicalTo, "body_length", len(body))
	return nil
}

// Responses returns the channel of inbound messages.
func (s *WhatsAppService) Responses() <-chan models.InboundMessage {
	return s.inbox.ch
}

// handleIncomingMessage forwards direct text messages from other users.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt == nil || evt.Message == nil {
		return
	}
	if evt.Info.IsFromMe || evt.Info.IsGroup {
		slog.Debug("WhatsAppService: ignoring own or group message", "chat", evt.Info.Chat.String())
		return
	}

	var text string
	switch {
	case evt.Message.Conversation != nil:
		text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		text = *evt.Message.ExtendedTextMessage.Text
	default:
		slog.Debug("WhatsAppService: ignoring non-text message", "from", evt.Info.Sender.User)
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	from, ok := s.senderPhone(evt.Info.MessageSource)
	if !ok {
		slog.Warn("WhatsAppService: cannot resolve sender phone number, dropping message", "sender", evt.Info.Sender.String())
		return
	}

	at := evt.Info.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	s.inbox.emit(models.InboundMessage{
		From:        from,
		DisplayName: evt.Info.PushName,
		Body:        text,
		Time:        at,
	})
}

// senderPhone returns the phone number of a direct message sender. Chats in
// LID addressing mode carry an opaque identifier instead, which is mapped back
// through the alternate address or the device's LID store.
func (s *WhatsAppService) senderPhone(src types.MessageSource) (string, bool) {
	if src.Sender.Server == types.DefaultUserServer {
		return src.Sender.User, true
	}
	if src.SenderAlt.Server == types.DefaultUserServer {
		return src.SenderAlt.User, true
	}
	if src.Sender.Server != types.HiddenUserServer || s.waClient == nil || s.waClient.GetClient() == nil {
		return "", false
	}
	pn, err := s.waClient.GetClient().Store.LIDs.GetPNForLID(context.Background(), src.Sender.ToNonAD())
	if err != nil || pn.IsEmpty() {
		slog.Debug("WhatsAppService.senderPhone: LID lookup failed", "lid", src.Sender.String(), "error", err)
		return "", false
	}
	return pn.User, true
}
