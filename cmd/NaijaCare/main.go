package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/NaijaCare/internal/api"
	"github.com/BTreeMap/NaijaCare/internal/genai"
	"github.com/BTreeMap/NaijaCare/internal/hospital"
	"github.com/BTreeMap/NaijaCare/internal/lockfile"
	"github.com/BTreeMap/NaijaCare/internal/messaging"
	"github.com/BTreeMap/NaijaCare/internal/metrics"
	"github.com/BTreeMap/NaijaCare/internal/router"
	"github.com/BTreeMap/NaijaCare/internal/session"
	"github.com/BTreeMap/NaijaCare/internal/store"
	"github.com/BTreeMap/NaijaCare/internal/twiliowhatsapp"
	"github.com/BTreeMap/NaijaCare/internal/util"
	"github.com/BTreeMap/NaijaCare/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for NaijaCare state data
	DefaultStateDir = "/var/lib/naijacare"
	// DefaultAuditDBFileName is the SQLite audit log filename inside the state directory
	DefaultAuditDBFileName = "audit.db"
	// DefaultWhatsAppDBFileName is the whatsmeow device store filename inside the state directory
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultHospitalsFile is the hospital directory JSON file
	DefaultHospitalsFile = "hospitals.json"
	// DefaultLogLevel is used when LOG_LEVEL is unset
	DefaultLogLevel = "debug"
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout = 15 * time.Second
)

// Transport names accepted by -transport.
const (
	TransportHTTP     = "http"
	TransportWhatsApp = "whatsapp"
	TransportTwilio   = "twilio"
)

func main() {
	initializeLogger(os.Getenv("LOG_LEVEL"))

	config := loadEnvironmentConfig()
	config, err := parseCommandLineFlags(config, os.Args[1:])
	if err != nil {
		slog.Error("Failed to parse command line flags", "error", err)
		os.Exit(2)
	}
	initializeLogger(config.LogLevel)
	config = resolveDefaults(config)

	if err := validateConfig(config); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping NaijaCare", "transport", config.Transport, "state_dir", config.StateDir, "api_addr", config.APIAddr)
	if err := run(ctx, config); err != nil {
		slog.Error("NaijaCare failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("NaijaCare exited successfully")
}

// Config holds environment and flag configuration.
type Config struct {
	StateDir         string
	Transport        string
	APIAddr          string
	OpenAIKey        string
	OpenAIModel      string
	OpenAIBaseURL    string
	GatewayTimeout   time.Duration
	MaxHistory       int
	HospitalsFile    string
	PersonaFile      string
	AuditDSN         string
	WhatsAppDSN      string
	WhatsAppLogLevel string
	QROutput         string
	NumericCode      bool
	LogLevel         string

	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioFromNumber        string
	TwilioValidateSignature bool
	TwilioWebhookURL        string
}

// initializeLogger sets up structured text logging at the given level.
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// loadEnvironmentConfig loads configuration from environment variables and .env file.
// DSNs left unset here are derived from the state directory by resolveDefaults.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:         util.GetEnv("NAIJACARE_STATE_DIR", DefaultStateDir),
		Transport:        strings.ToLower(util.GetEnv("NAIJACARE_TRANSPORT", TransportHTTP)),
		APIAddr:          util.GetEnv("API_ADDR", api.DefaultAddr),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      util.GetEnv("OPENAI_MODEL", genai.DefaultModel),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		GatewayTimeout:   util.ParseDurationEnv("GATEWAY_TIMEOUT", genai.DefaultTimeout),
		MaxHistory:       util.ParseIntEnv("MAX_HISTORY", session.DefaultMaxHistory),
		HospitalsFile:    util.GetEnv("HOSPITALS_FILE", DefaultHospitalsFile),
		PersonaFile:      os.Getenv("PERSONA_FILE"),
		AuditDSN:         os.Getenv("AUDIT_DB_DSN"),
		WhatsAppDSN:      os.Getenv("WHATSAPP_DB_DSN"),
		WhatsAppLogLevel: util.GetEnv("WHATSAPP_LOG_LEVEL", whatsapp.DefaultLogLevel),
		LogLevel:         util.GetEnv("LOG_LEVEL", DefaultLogLevel),

		TwilioAccountSID:        os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:         os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:        os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioValidateSignature: util.ParseBoolEnv("TWILIO_VALIDATE_SIGNATURE", false),
		TwilioWebhookURL:        os.Getenv("TWILIO_WEBHOOK_URL"),
	}

	slog.Debug("environment variables loaded",
		"NAIJACARE_STATE_DIR", config.StateDir,
		"NAIJACARE_TRANSPORT", config.Transport,
		"API_ADDR", config.APIAddr,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"MAX_HISTORY", config.MaxHistory,
		"HOSPITALS_FILE", config.HospitalsFile,
		"PERSONA_FILE", config.PersonaFile,
		"AUDIT_DB_DSN_SET", config.AuditDSN != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "")

	return config
}

// parseCommandLineFlags applies command line overrides on top of the environment.
func parseCommandLineFlags(config Config, args []string) (Config, error) {
	fs := flag.NewFlagSet("naijacare", flag.ContinueOnError)
	fs.StringVar(&config.StateDir, "state-dir", config.StateDir, "state directory for NaijaCare data (overrides $NAIJACARE_STATE_DIR)")
	fs.StringVar(&config.Transport, "transport", config.Transport, "chat transport: http, whatsapp or twilio (overrides $NAIJACARE_TRANSPORT)")
	fs.StringVar(&config.APIAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&config.OpenAIKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&config.OpenAIModel, "openai-model", config.OpenAIModel, "chat model (overrides $OPENAI_MODEL)")
	fs.StringVar(&config.OpenAIBaseURL, "openai-base-url", config.OpenAIBaseURL, "OpenAI-compatible base URL (overrides $OPENAI_BASE_URL)")
	fs.DurationVar(&config.GatewayTimeout, "gateway-timeout", config.GatewayTimeout, "language model request timeout (overrides $GATEWAY_TIMEOUT)")
	fs.IntVar(&config.MaxHistory, "max-history", config.MaxHistory, "conversation turns kept per user (overrides $MAX_HISTORY)")
	fs.StringVar(&config.HospitalsFile, "hospitals-file", config.HospitalsFile, "hospital directory JSON file (overrides $HOSPITALS_FILE)")
	fs.StringVar(&config.PersonaFile, "persona-file", config.PersonaFile, "text file replacing the built-in system prompt (overrides $PERSONA_FILE)")
	fs.StringVar(&config.AuditDSN, "audit-dsn", config.AuditDSN, "audit log DSN: SQLite path, postgres:// URL or \"memory\" (overrides $AUDIT_DB_DSN)")
	fs.StringVar(&config.WhatsAppDSN, "whatsapp-dsn", config.WhatsAppDSN, "whatsmeow device store DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&config.QROutput, "qr-output", config.QROutput, "path to write login QR code")
	fs.BoolVar(&config.NumericCode, "numeric-code", config.NumericCode, "print the raw pairing code instead of a QR code")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level: debug, info, warn, error (overrides $LOG_LEVEL)")

	if err := fs.Parse(args); err != nil {
		return config, err
	}
	config.Transport = strings.ToLower(strings.TrimSpace(config.Transport))

	slog.Debug("flags parsed",
		"stateDir", config.StateDir,
		"transport", config.Transport,
		"apiAddr", config.APIAddr,
		"openaiKeySet", config.OpenAIKey != "",
		"gatewayTimeout", config.GatewayTimeout,
		"maxHistory", config.MaxHistory,
		"auditDSN_set", config.AuditDSN != "",
		"whatsappDSN_set", config.WhatsAppDSN != "")
	return config, nil
}

// resolveDefaults fills DSNs that were not configured from the final state directory.
func resolveDefaults(config Config) Config {
	if config.AuditDSN == "" {
		config.AuditDSN = filepath.Join(config.StateDir, DefaultAuditDBFileName)
		slog.Debug("No audit DSN provided, defaulting to SQLite", "sqlite_path", config.AuditDSN)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
	return config
}

// validateConfig rejects configurations that cannot start.
func validateConfig(config Config) error {
	switch config.Transport {
	case TransportHTTP, TransportWhatsApp:
	case TransportTwilio:
		var missing []string
		if config.TwilioAccountSID == "" {
			missing = append(missing, "TWILIO_ACCOUNT_SID")
		}
		if config.TwilioAuthToken == "" {
			missing = append(missing, "TWILIO_AUTH_TOKEN")
		}
		if config.TwilioFromNumber == "" {
			missing = append(missing, "TWILIO_FROM_NUMBER")
		}
		if len(missing) > 0 {
			return fmt.Errorf("twilio transport requires %s", strings.Join(missing, ", "))
		}
	default:
		return fmt.Errorf("unknown transport %q (want %s, %s or %s)", config.Transport, TransportHTTP, TransportWhatsApp, TransportTwilio)
	}
	if config.MaxHistory <= 0 {
		return fmt.Errorf("max history must be positive, got %d", config.MaxHistory)
	}
	return nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(config Config) []whatsapp.Option {
	waOpts := []whatsapp.Option{
		whatsapp.WithDBDSN(config.WhatsAppDSN),
		whatsapp.WithLogLevel(config.WhatsAppLogLevel),
	}
	if config.QROutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(config.QROutput))
	}
	if config.NumericCode {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	return waOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(config Config) []genai.Option {
	return []genai.Option{
		genai.WithAPIKey(config.OpenAIKey),
		genai.WithBaseURL(config.OpenAIBaseURL),
		genai.WithModel(config.OpenAIModel),
		genai.WithTimeout(config.GatewayTimeout),
	}
}

// buildTwilioServiceOptions enables webhook signature checks when configured.
func buildTwilioServiceOptions(config Config) []messaging.TwilioOption {
	if !config.TwilioValidateSignature {
		return nil
	}
	return []messaging.TwilioOption{messaging.WithSignatureValidation(config.TwilioAuthToken, config.TwilioWebhookURL)}
}

// loadDirectory loads the hospital directory. A missing or malformed file is
// logged and leaves the directory empty; hospital queries then fall through.
func loadDirectory(path string) *hospital.Directory {
	dir, err := hospital.LoadFile(path)
	switch {
	case errors.Is(err, hospital.ErrSourceMissing):
		slog.Warn("Hospital directory not found, hospital lookups disabled", "path", path)
	case err != nil:
		slog.Warn("Hospital directory could not be parsed, hospital lookups disabled", "path", path, "error", err)
	default:
		slog.Info("Hospital directory loaded", "path", path, "records", dir.Len())
	}
	return dir
}

// loadPersona reads the system prompt override. An empty path keeps the
// built-in persona.
func loadPersona(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read persona file %s: %w", path, err)
	}
	persona := strings.TrimSpace(string(data))
	if persona == "" {
		return "", fmt.Errorf("persona file %s is empty", path)
	}
	slog.Info("Persona loaded", "path", path, "length", len(persona))
	return persona, nil
}

// run wires every module together and blocks until ctx is cancelled or the
// API server fails.
func run(ctx context.Context, config Config) error {
	lock, err := lockfile.AcquireLock(config.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	m := metrics.New(nil)

	directory := loadDirectory(config.HospitalsFile)
	m.SetHospitalRecords(directory.Len())

	audit, err := store.Open(config.AuditDSN)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer func() {
		if err := audit.Close(); err != nil {
			slog.Warn("Failed to close audit log", "error", err)
		}
	}()

	gateway, err := genai.NewClient(buildGenAIOptions(config)...)
	if err != nil {
		return fmt.Errorf("failed to create language model gateway: %w", err)
	}
	slog.Info("Language model gateway ready", "configured", gateway.Configured(), "model", gateway.Model())

	persona, err := loadPersona(config.PersonaFile)
	if err != nil {
		return err
	}

	sessions := session.NewStore(session.WithMaxHistory(config.MaxHistory))
	rt := router.New(sessions,
		router.WithDirectory(directory),
		router.WithGateway(gateway),
		router.WithAudit(audit),
		router.WithMetrics(m),
		router.WithPersona(persona),
	)

	apiOpts := []api.Option{api.WithAddr(config.APIAddr), api.WithAudit(audit)}

	var service messaging.Service
	switch config.Transport {
	case TransportWhatsApp:
		waClient, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(config)...)
		if err != nil {
			return fmt.Errorf("failed to start WhatsApp client: %w", err)
		}
		defer waClient.Close()
		service = messaging.NewWhatsAppService(waClient)
	case TransportTwilio:
		twClient, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(config.TwilioAccountSID),
			twiliowhatsapp.WithAuthToken(config.TwilioAuthToken),
			twiliowhatsapp.WithFromWhats(config.TwilioFromNumber),
		)
		if err != nil {
			return fmt.Errorf("failed to create Twilio client: %w", err)
		}
		twService := messaging.NewTwilioService(twClient, buildTwilioServiceOptions(config)...)
		apiOpts = append(apiOpts, api.WithTwilio(twService))
		service = twService
	}

	var dispatcher *messaging.Dispatcher
	if service != nil {
		if err := service.Start(ctx); err != nil {
			return fmt.Errorf("failed to start messaging service: %w", err)
		}
		dispatcher = messaging.NewDispatcher(service, rt, m)
		dispatcher.Start(ctx)
	}

	server, err := api.NewServer(rt, apiOpts...)
	if err != nil {
		return err
	}
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case runErr = <-serverErr:
		slog.Error("API server stopped unexpectedly", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("API server shutdown failed", "error", err)
	}
	if service != nil {
		if err := service.Stop(); err != nil {
			slog.Warn("Messaging service stop failed", "error", err)
		}
		dispatcher.Wait()
	}
	return runErr
}
