// Package whatsapp wraps the Whatsmeow client so NaijaCare can chat on a WhatsApp account.
//
// The linked device is kept in a whatsmeow SQL store (SQLite or PostgreSQL).
// On first run the login QR code is printed to the terminal or written to a file.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/BTreeMap/NaijaCare/internal/store"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Constants for WhatsApp client configuration
const (
	// DefaultSQLitePath is the default path for the whatsmeow device database
	DefaultSQLitePath = "/var/lib/naijacare/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users
	JIDSuffix = types.DefaultUserServer
	// DefaultLogLevel is the whatsmeow internal log level
	DefaultLogLevel = "WARN"
)

// WhatsAppSender is an interface for sending WhatsApp messages (for production and testing)
type WhatsAppSender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow device database connection string
	QRPath      string // path to write login QR code
	NumericCode bool   // print the raw pairing code instead of a QR code
	LogLevel    string // whatsmeow log level
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow device database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput writes the login QR code to path instead of stdout.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode prints the raw login code instead of rendering a QR code.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// WithLogLevel sets the whatsmeow internal log level (DEBUG, INFO, WARN, ERROR).
func WithLogLevel(level string) Option {
	return func(o *Opts) {
		if level != "" {
			o.LogLevel = strings.ToUpper(level)
		}
	}
}

// resolveOpts applies options and fills in defaults.
func resolveOpts(opts ...Option) Opts {
	cfg := Opts{LogLevel: DefaultLogLevel}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DBDSN == "" {
		cfg.DBDSN = "file:" + DefaultSQLitePath + "?_foreign_keys=on"
	}
	return cfg
}

// foreignKeysEnabled reports whether a SQLite DSN turns on foreign keys, which whatsmeow requires.
func foreignKeysEnabled(dsn string) bool {
	return strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "foreign_keys")
}

// Client wraps the Whatsmeow client.
type Client struct {
	waClient  *whatsmeow.Client
	closeOnce sync.Once
}

// NewClient opens the device store, logs in if needed, and connects.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := resolveOpts(opts...)
	dbDriver := store.DetectDSNType(cfg.DBDSN)
	slog.Debug("whatsapp.NewClient: options set", "driver", dbDriver, "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)

	if dbDriver == "sqlite3" && !foreignKeysEnabled(cfg.DBDSN) {
		slog.Warn("whatsapp.NewClient: SQLite device store does not enable foreign keys; whatsmeow requires them",
			"dsn_example", "file:"+cfg.DBDSN+"?_foreign_keys=on")
	}

	container, err := sqlstore.New(ctx, dbDriver, cfg.DBDSN, waLog.Stdout("Database", cfg.LogLevel, true))
	if err != nil {
		slog.Error("whatsapp.NewClient: failed to initialize device store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("whatsapp.NewClient: failed to get device", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", cfg.LogLevel, true))
	if waClient.Store.ID == nil {
		if err := login(ctx, waClient, cfg); err != nil {
			return nil, err
		}
	} else {
		slog.Debug("whatsapp.NewClient: already paired, connecting")
		if err := waClient.Connect(); err != nil {
			slog.Error("whatsapp.NewClient: failed to connect", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
	}
	slog.Info("whatsapp.NewClient: connected")
	return &Client{waClient: waClient}, nil
}

// login runs the QR pairing flow until WhatsApp reports success or failure.
func login(ctx context.Context, waClient *whatsmeow.Client, cfg Opts) error {
	slog.Info("whatsapp.login: pairing required, starting QR code flow")
	qrChan, err := waClient.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to get QR channel: %w", err)
	}
	if err := waClient.Connect(); err != nil {
		slog.Error("whatsapp.login: failed to connect", "error", err)
		return fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
	}

	writer := io.Writer(os.Stdout)
	if cfg.QRPath != "" {
		f, err := os.Create(cfg.QRPath)
		if err != nil {
			slog.Error("whatsapp.login: failed to create QR file", "error", err)
			return fmt.Errorf("failed to create QR file: %w", err)
		}
		defer f.Close()
		writer = f
	}

	for evt := range qrChan {
		switch evt.Event {
		case "code":
			if cfg.NumericCode {
				fmt.Fprintln(writer, evt.Code)
			} else {
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
			}
		case "success":
			slog.Info("whatsapp.login: paired successfully")
			return nil
		default:
			slog.Warn("whatsapp.login: login event", "event", evt.Event)
			if evt.Error != nil {
				return fmt.Errorf("whatsapp login failed: %w", evt.Error)
			}
		}
	}
	if waClient.Store.ID == nil {
		return fmt.Errorf("whatsapp login did not complete")
	}
	return nil
}

// SendMessage sends a text message to a phone number given as bare digits.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if c.waClient == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if c.waClient.Store == nil {
		return fmt.Errorf("whatsapp client store not available")
	}
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}

	jid := types.NewJID(to, JIDSuffix)
	msg := &waE2E.Message{Conversation: &body}
	if _, err := c.waClient.SendMessage(ctx, jid, msg); err != nil {
		slog.Error("whatsapp.SendMessage: send failed", "error", err, "to", to)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("whatsapp.SendMessage: sent", "to", to, "body_length", len(body))
	return nil
}

// GetClient returns the underlying whatsmeow client for event handling
func (c *Client) GetClient() *whatsmeow.Client {
	return c.waClient
}

// Close disconnects from WhatsApp. It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.waClient != nil {
			c.waClient.Disconnect()
			slog.Info("whatsapp.Close: disconnected")
		}
	})
}

// MockClient records sent messages instead of talking to WhatsApp.
type MockClient struct {
	mu      sync.Mutex
	Sent    []SentMessage
	SendErr error
}

// SentMessage is one message captured by MockClient.
type SentMessage struct {
	To   string
	Body string
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.Sent = append(m.Sent, SentMessage{To: to, Body: body})
	return nil
}

// Messages returns a copy of the captured messages.
func (m *MockClient) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.Sent))
	copy(out, m.Sent)
	return out
}
