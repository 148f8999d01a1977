// Package models defines the core data structures for NaijaCare.
//
// It includes the conversation types shared by the router, the session store,
// the LLM gateway and the chat transports.
package models

import (
	"errors"
	"strings"
	"time"
)

// Language selects the register used for templated replies and for the
// instruction given to the language model.
type Language string

const (
	// LanguageEnglish is the default language mode for every new session.
	LanguageEnglish Language = "english"
	// LanguagePidgin selects Nigerian Pidgin.
	LanguagePidgin Language = "pidgin"
)

// IsValidLanguage checks if the given language mode is supported.
func IsValidLanguage(l Language) bool {
	switch l {
	case LanguageEnglish, LanguagePidgin:
		return true
	default:
		return false
	}
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single entry of a conversation sent to or received from the model.
type ChatMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Session is the volatile per-user conversation state.
type Session struct {
	UserID    string        `json:"user_id"`
	Language  Language      `json:"language"`
	History   []ChatMessage `json:"history"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Clone returns a deep copy so callers never share the history slice with the store.
func (s Session) Clone() Session {
	out := s
	if s.History != nil {
		out.History = make([]ChatMessage, len(s.History))
		copy(out.History, s.History)
	}
	return out
}

// InboundMessage is one text message delivered by a chat transport.
type InboundMessage struct {
	From        string    `json:"from"`
	DisplayName string    `json:"display_name,omitempty"`
	Body        string    `json:"body"`
	Time        time.Time `json:"time"`
}

// ErrEmptySender and ErrEmptyBody are returned by InboundMessage.Validate.
var (
	ErrEmptySender = errors.New("sender cannot be empty")
	ErrEmptyBody   = errors.New("message body cannot be empty")
)

// Validate checks that the message carries a sender and a non-blank body.
func (m InboundMessage) Validate() error {
	if strings.TrimSpace(m.From) == "" {
		return ErrEmptySender
	}
	if strings.TrimSpace(m.Body) == "" {
		return ErrEmptyBody
	}
	return nil
}

// HospitalRecord is one entry of the static hospital directory.
type HospitalRecord struct {
	State   string `json:"state"`
	Area    string `json:"area"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
