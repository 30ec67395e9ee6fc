package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/Shahrukh072/ai-backend/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is the normalized model input produced by the engine.
type Request struct {
	Instructions string           `json:"instructions"`
	Messages     []core.Message   `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// Usage captures token usage statistics for a response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the provider reply: final text, or one or more requested tool
// calls, never both interpreted at once (tool calls win when present).
type Response struct {
	Text         string          `json:"text,omitempty"`
	ToolCalls    []core.ToolCall `json:"tool_calls,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Usage        *Usage          `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the single reasoning contract required by the engine. It must
// support the same call shape regardless of backing provider.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// ScriptedModel is an in-memory Model that replays a fixed sequence of
// responses and records every request it receives. Useful for tests that
// drive the reasoning/tool loop deterministically.
type ScriptedModel struct {
	mu       sync.Mutex
	info     Info
	script   []scriptStep
	pos      int
	requests []Request
}

type scriptStep struct {
	resp *Response
	err  error
}

// NewScriptedModel constructs an empty scripted model with tool support.
func NewScriptedModel() *ScriptedModel {
	return &ScriptedModel{
		info: Info{Name: "scripted", Provider: "test", SupportsTools: true},
	}
}

// AddText enqueues a final-answer response.
func (m *ScriptedModel) AddText(text string) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptStep{resp: &Response{Text: text, FinishReason: "stop"}})
	return m
}

// AddToolCalls enqueues a response requesting the given tool calls.
func (m *ScriptedModel) AddToolCalls(calls ...core.ToolCall) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptStep{resp: &Response{ToolCalls: calls, FinishReason: "tool_calls"}})
	return m
}

// AddError enqueues a provider failure.
func (m *ScriptedModel) AddError(err error) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptStep{err: err})
	return m
}

// Generate implements Model by replaying the next scripted step.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.pos >= len(m.script) {
		return nil, fmt.Errorf("scripted model exhausted after %d calls", m.pos)
	}
	step := m.script[m.pos]
	m.pos++
	if step.err != nil {
		return nil, step.err
	}
	return step.resp, nil
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }

// Requests returns a copy of every request received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns how many Generate invocations have been served.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
