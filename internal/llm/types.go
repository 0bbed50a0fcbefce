// Package llm provides the unified model-facing types and the provider
// adapters that map them onto heterogeneous LLM backend APIs.
package llm

import (
	"context"
	"log/slog"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message represents a chat message in provider-neutral form. Wire
// format conversion happens at the adapter boundary.
type Message struct {
	Role      string     `json:"role"` // system, user, assistant, tool
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and ToolName label tool-result messages (Role "tool")
	// so adapters can correlate them with the originating call.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Request is a single completion request. Tools are in the OpenAI
// function envelope (registry.Schemas output).
type Request struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []map[string]any
	MaxTokens int
}

// Result is the unified final response from any provider.
type Result struct {
	Model      string
	Content    string
	ToolCalls  []ToolCall
	StopReason string

	InputTokens  int
	OutputTokens int
}

// StreamEventKind identifies the type of stream event.
type StreamEventKind int

const (
	// KindText is an incremental text delta from the model.
	KindText StreamEventKind = iota

	// KindToolCall fires when the model starts a tool invocation.
	// The complete call (with parsed arguments) arrives in the Result.
	KindToolCall

	// KindStatus carries transient progress notes (rate-limit waits).
	KindStatus
)

// StreamEvent is a single event in a streaming response.
type StreamEvent struct {
	Kind StreamEventKind

	// Text is set for KindText and KindStatus events.
	Text string

	// ToolName is set for KindToolCall events.
	ToolName string
}

// StreamCallback receives streaming events in emission order.
type StreamCallback func(event StreamEvent)

// Provider is implemented by every backend adapter.
type Provider interface {
	// Name returns the provider identifier (anthropic, openai, ...).
	Name() string

	// StreamCompletion sends one completion request, invoking cb for
	// every stream event, and returns the assembled final result.
	// cb may be nil for callers that only need the Result.
	StreamCompletion(ctx context.Context, req Request, cb StreamCallback) (*Result, error)

	// SupportsNativeToolCalls reports whether the backend parses and
	// emits structured tool calls itself. When false, wrap the
	// provider in [NewSimulated].
	SupportsNativeToolCalls() bool

	// Ping verifies the backend is reachable and credentials work.
	Ping(ctx context.Context) error
}
