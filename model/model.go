// Package model abstracts LLM providers behind a single Generate interface
// and resolves (role, provider) pairs into concrete model handles. Providers
// are ranked by configured priority and skipped when their credentials are
// absent, so one misconfigured vendor never takes the engine down.
package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchpilot/couchpilot/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// ToolChoice constrains whether the model may call tools on this request.
type ToolChoice string

const (
	// ToolChoiceAuto lets the model decide whether to call tools.
	ToolChoiceAuto ToolChoice = "auto"
	// ToolChoiceNone forbids tool calls; used for the forced final answer
	// once the iteration budget is spent.
	ToolChoiceNone ToolChoice = "none"
)

// Request captures the normalized model input assembled by the agent loop.
type Request struct {
	Instructions string           `json:"instructions"`
	Contents     []core.Content   `json:"contents"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	ToolChoice   ToolChoice       `json:"tool_choice,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completed model turn: assistant text, any tool calls the
// model requested, and usage accounting.
type Response struct {
	ID           string       `json:"id"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"`
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the interface the agent loop drives.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a scriptable in-memory Model for tests and examples. Each
// Generate call consumes the next scripted response in order; once the
// script runs out it answers with plain text.
type MockModel struct {
	mu       sync.Mutex
	info     Info
	script   []Response
	fallback string
	requests []Request
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		fallback: "done",
	}
}

// Script appends responses that subsequent Generate calls return in order.
func (m *MockModel) Script(responses ...Response) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, responses...)
	return m
}

// SetFallback sets the text answered after the script is exhausted.
func (m *MockModel) SetFallback(text string) { m.fallback = text }

// Requests returns a copy of every request Generate has received.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]
		if next.ID == "" {
			next.ID = core.NewID()
		}
		return &next, nil
	}
	return &Response{
		ID:           core.NewID(),
		Content:      core.NewAssistantContent(m.fallback),
		FinishReason: "stop",
	}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

// TextResponse builds a plain assistant text response for scripting.
func TextResponse(text string) Response {
	return Response{
		Content:      core.NewAssistantContent(text),
		FinishReason: "stop",
	}
}

// ToolCallResponse builds a response requesting the given function calls.
func ToolCallResponse(calls ...core.FunctionCall) Response {
	content := core.Content{Role: "assistant"}
	for _, fc := range calls {
		if fc.ID == "" {
			fc.ID = core.NewID()
		}
		content.Parts = append(content.Parts, core.FunctionCallPart{FunctionCall: fc})
	}
	return Response{Content: content, FinishReason: "tool_calls"}
}

// ErrModelFailure wraps a provider failure for scripted mocks.
func ErrModelFailure(provider, detail string) error {
	return &core.ProviderError{Provider: provider, Err: fmt.Errorf("%s", detail)}
}
