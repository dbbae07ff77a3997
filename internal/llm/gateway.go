// Package llm is the adapter between the analysis stages and an external
// text-generation service.
package llm

import (
	"context"
	"errors"
	"strings"
)

// Role tags a message in a prompt.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged turn sent to the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Schema names a JSON schema the model output must conform to.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

// Request is a single completion request.
type Request struct {
	// Model overrides the client default when set.
	Model       string
	Messages    []Message
	Temperature float64
	// JSON asks for a JSON object response. Schema implies JSON.
	JSON      bool
	Schema    *Schema
	MaxTokens int
}

// Response carries the raw generated text. Text may be empty.
type Response struct {
	Text  string
	Model string
}

// Gateway sends prompts to a language model.
type Gateway interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, req Request) (Response, error)

// Complete calls f(ctx, req).
func (f GatewayFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

var (
	ErrNotConfigured = errors.New("llm: client not configured")
	ErrNoMessages    = errors.New("llm: request has no messages")
)

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant builds an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// splitSystem joins all system messages into one instruction block and
// returns the remaining conversation turns in order.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	turns := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if s := strings.TrimSpace(m.Content); s != "" {
				system = append(system, s)
			}
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n\n"), turns
}
