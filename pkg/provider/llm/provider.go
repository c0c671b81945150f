// Package llm defines the Provider interface for chat-model backends.
//
// The agent workflow drives every model interaction through this interface:
// response generation with tool calling, knowledge extraction, emotional
// reflection and concept summarization. Implementations wrap a concrete SDK
// (see the anyllm subpackage) so the workflow stays decoupled from any vendor.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history.
	Messages []Message

	// Tools is the set of tools offered to the model for this request. The
	// model may answer with tool calls instead of (or alongside) text.
	Tools []ToolSpec

	// SystemPrompt is injected ahead of the history. Providers without a
	// dedicated system channel prepend it as a "system"-role message.
	SystemPrompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero selects the
	// provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	// Content is the assistant's text. Empty when the model responds
	// exclusively with tool calls.
	Content string

	// ToolCalls lists requested tool invocations. The caller executes them
	// and appends the results to the conversation before the next turn.
	ToolCalls []ToolCall

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any chat-model backend.
//
// Implementations must propagate context cancellation promptly and be safe
// for concurrent use.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata about the underlying model. The
	// result is constant for the lifetime of the Provider instance.
	Capabilities() Capabilities
}
