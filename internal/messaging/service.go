// Package messaging connects chat transports to the NaijaCare router.
//
// A Service delivers inbound text messages on its Responses channel and sends
// replies; the Dispatcher drains that channel and answers each message.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/BTreeMap/NaijaCare/internal/models"
)

// Constants for service configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for the inbound channel
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines how long an inbound message may wait for buffer space
	DefaultChannelTimeout = 1 * time.Second
	// MinPhoneDigits is the shortest accepted phone number
	MinPhoneDigits = 6
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

var phoneNumberRegex = regexp.MustCompile(`\D`)

// Service defines a pluggable chat transport.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., event subscription).
	Start(ctx context.Context) error

	// Stop stops background processing and closes the Responses channel.
	Stop() error

	// Responses returns a channel of inbound user messages.
	Responses() <-chan models.InboundMessage
}

// CanonicalizePhone strips everything but digits from a phone number or
// WhatsApp address ("whatsapp:+234 801..." becomes "234801...").
func CanonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < MinPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, MinPhoneDigits)
	}
	return canonical, nil
}

// inbox is the inbound channel shared by every Service implementation. Sends
// never race with close: emit holds the read lock for the whole send.
type inbox struct {
	name    string
	mu      sync.RWMutex
	stopped bool
	ch      chan models.InboundMessage
}

func newInbox(name string) *inbox {
	return &inbox{name: name, ch: make(chan models.InboundMessage, DefaultChannelBufferSize)}
}

// emit forwards msg, dropping it if the service is stopped or the buffer
// stays full for DefaultChannelTimeout.
func (b *inbox) emit(msg models.InboundMessage) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		slog.Warn(b.name+": dropping inbound message (service stopped)", "from", msg.From)
		return false
	}
	select {
	case b.ch <- msg:
		slog.Debug(b.name+": inbound message forwarded", "from", msg.From, "body_length", len(msg.Body))
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(b.name+": inbound channel blocked, dropping message", "from", msg.From, "timeout", DefaultChannelTimeout)
		return false
	}
}

func (b *inbox) isStopped() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stopped
}

// close marks the inbox stopped and closes the channel once.
func (b *inbox) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	close(b.ch)
}
