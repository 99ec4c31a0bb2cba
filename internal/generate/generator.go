package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/antoniostano/scenegen/internal/chat"
)

// Message is one entry of the generator's conversational context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FromTurn maps a stored turn onto the generator's wire vocabulary.
func FromTurn(t chat.Turn) Message {
	role := RoleUser
	if t.Role == chat.RoleAI {
		role = RoleAssistant
	}
	return Message{Role: role, Content: t.Content}
}

// Generator produces raw model output for a conversational context. It is
// opaque and fallible; an empty result is reported as
// chat.ErrEmptyResponse.
type Generator interface {
	Generate(ctx context.Context, msgs []Message) (string, error)
}

// GeneratorConfig controls generator construction.
type GeneratorConfig struct {
	Mode   string
	URL    string
	APIKey string
	Model  string
}

// NewGenerator builds a generator for the configured mode. Auto prefers
// the HTTP endpoint when one is configured and falls back to the mock.
func NewGenerator(cfg GeneratorConfig) (Generator, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.URL) != "" {
			return NewHTTPGenerator(cfg.URL, cfg.APIKey, cfg.Model), nil
		}
		return NewMockGenerator(), nil
	case "http":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, errors.New("generator URL is required for http mode")
		}
		return NewHTTPGenerator(cfg.URL, cfg.APIKey, cfg.Model), nil
	case "mock":
		return NewMockGenerator(), nil
	default:
		return nil, fmt.Errorf("unsupported generator mode %q", cfg.Mode)
	}
}
