// Package llm abstracts chat-completion backends behind one interface.
//
// Information Hiding (per implementation):
// - SDK client construction and authentication
// - Request/response conversion to the backend's native shapes
// - Streaming transport details

package llm

import (
	"context"
)

// Chat roles shared across providers. Each provider translates these to
// its native role vocabulary.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Provider is the abstract interface over chat-completion backends.
// Implementations hide backend-specific wire formats while exposing a
// consistent surface for plain, formatted, tool-calling, and streaming
// completions.
type Provider interface {
	// Name identifies the backend for logging and cost accounting.
	Name() string

	// Model returns the model identifier requests are sent to.
	Model() string

	// Chat sends a chat completion request.
	Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error)

	// ChatWithFormat sends a chat completion request asking for a specific
	// response format. Backends without native structured output ignore the
	// format, so callers must still parse defensively.
	ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (LLMResponse, error)

	// ChatWithTools offers tool definitions with the request. The model may
	// respond with tool calls in LLMResponse.ToolCalls.
	ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error)

	// StreamChat streams a chat completion, sending text chunks to the
	// channel as they arrive. Token usage is returned when the backend
	// reports it, typically on the final chunk.
	StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error)
}
