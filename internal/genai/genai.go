// Package genai provides the language-model gateway used for free-form health questions.
//
// It wraps the OpenAI chat completions API. Each call is a single attempt with
// a fixed upper bound on its duration; retries are left to the user.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/NaijaCare/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Defaults for the chat completion request.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.6
	DefaultMaxTokens   = 600
	DefaultTimeout     = 30 * time.Second
)

var (
	// ErrNotConfigured is returned when no API key was provided.
	ErrNotConfigured = errors.New("genai client not configured: missing API key")
	// ErrEmptyResponse is returned when the provider answers without any text.
	ErrEmptyResponse = errors.New("genai response contained no content")
)

// chatService defines the minimal surface of the OpenAI chat completions service.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key. Without one the client reports ErrNotConfigured on every call.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel sets the model identifier.
func WithModel(model string) Option {
	return func(o *Opts) {
		if model != "" {
			o.Model = model
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxTokens sets the completion token limit.
func WithMaxTokens(n int64) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// Client is the LLM gateway.
type Client struct {
	chat        chatService
	model       string
	temperature float64
	maxTokens   int64
	timeout     time.Duration
}

// NewClient builds a gateway client. A missing API key is not an error here:
// the client is created unconnected and every call returns ErrNotConfigured.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		Timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return nil, fmt.Errorf("invalid temperature %.2f: must be between 0 and 2", cfg.Temperature)
	}
	if cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("invalid max tokens %d: must be positive", cfg.MaxTokens)
	}

	c := &Client{
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}
	if cfg.APIKey == "" {
		slog.Warn("genai.NewClient: no API key configured, free-form questions will not be answered")
		return c, nil
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)
	c.chat = &cli.Chat.Completions
	slog.Debug("genai.NewClient: client configured", "model", c.model, "temperature", c.temperature, "maxTokens", c.maxTokens, "timeout", c.timeout, "baseURL_set", cfg.BaseURL != "")
	return c, nil
}

// Configured reports whether the client has credentials.
func (c *Client) Configured() bool {
	return c != nil && c.chat != nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Complete sends the ordered messages and returns the assistant's reply verbatim.
func (c *Client) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("genai: no messages to send")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(c.maxTokens),
	}

	start := time.Now()
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			slog.Error("genai.Complete: provider returned error status", "status", apiErr.StatusCode, "model", c.model, "duration", time.Since(start))
			return "", fmt.Errorf("chat completion failed with status %d: %w", apiErr.StatusCode, err)
		}
		slog.Error("genai.Complete: request failed", "error", err, "model", c.model, "duration", time.Since(start))
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		slog.Error("genai.Complete: empty response", "model", c.model)
		return "", ErrEmptyResponse
	}

	slog.Debug("genai.Complete: response received", "model", c.model, "messages", len(messages), "duration", time.Since(start))
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []models.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case models.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
