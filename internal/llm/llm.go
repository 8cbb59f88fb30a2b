// Package llm provides a provider-agnostic client for chat-style
// completions, with a structured mode that decodes model output into Go
// types and a tool-augmented mode that routes generation through a
// session's tool gateway.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/remedyhq/remedy/internal/gateway"
)

// Role identifies a chat message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role
	Content string
}

// Options tunes one generation call. Zero values fall back to backend
// defaults.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Result is the outcome of one generation call.
type Result struct {
	Content string
	Usage   Usage
}

// Generator is the completion contract both backends satisfy.
type Generator interface {
	// Generate issues a plain completion.
	Generate(ctx context.Context, msgs []Message, opts *Options) (*Result, error)

	// GenerateWithTools routes the completion through the tool gateway so
	// the model may invoke external tools mid-generation. Backends
	// without this capability fall back to Generate.
	GenerateWithTools(ctx context.Context, msgs []Message, creds gateway.Credentials, opts *Options) (*Result, error)

	// Provider names the backend ("anthropic", "openai").
	Provider() string
}

// MalformedOutputError means a structured generation call produced
// output that could not be decoded into the requested shape.
type MalformedOutputError struct {
	Raw string
	Err error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed structured output: %v", e.Err)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

// Config selects and configures a backend.
type Config struct {
	Provider string // "anthropic" or "openai"
	APIKey   string
	Model    string
}

// New constructs the configured backend.
func New(cfg Config) (Generator, error) {
	switch cfg.Provider {
	case "", "anthropic":
		return NewAnthropicClient(cfg.APIKey, cfg.Model), nil
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Structured issues a completion that must come back as JSON matching
// the caller's shape description, then decodes it into T. The decode is
// strict: unknown fields fail, surfacing MalformedOutputError instead of
// propagating partially-typed data.
func Structured[T any](ctx context.Context, g Generator, msgs []Message, shape string, opts *Options) (T, error) {
	var zero T

	instruction := Message{
		Role:    RoleUser,
		Content: "Respond with ONLY valid JSON matching this shape, no markdown fencing or explanation:\n\n" + shape,
	}
	res, err := g.Generate(ctx, append(append([]Message(nil), msgs...), instruction), opts)
	if err != nil {
		return zero, err
	}

	text := StripFences(res.Content)

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.DisallowUnknownFields()
	var out T
	if err := dec.Decode(&out); err != nil {
		return zero, &MalformedOutputError{Raw: text, Err: err}
	}
	return out, nil
}

// StripFences removes a wrapping Markdown code fence, if present. Models
// routinely wrap JSON in ```json fences despite instructions not to.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.SplitN(text, "\n", 2)
	if len(lines) > 1 {
		text = lines[1]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
