package llm

// Message is a single entry in a conversation history.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string

	// Content is the text content of the message.
	Content string

	// ToolCalls holds tool invocations requested by the assistant.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is "tool", identifying which tool call this
	// message answers.
	ToolCallID string
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	// ID is the provider-assigned identifier for this call.
	ID string

	// Name is the tool name.
	Name string

	// Arguments is the JSON-encoded argument object.
	Arguments string
}

// ToolSpec describes a tool offered to the model.
type ToolSpec struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does; it is included in prompts.
	Description string

	// Parameters is the JSON Schema of the tool's input object.
	Parameters map[string]any
}

// Capabilities describes what the underlying model supports.
type Capabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens caps a single completion.
	MaxOutputTokens int

	// SupportsToolCalling indicates native function/tool calling support.
	SupportsToolCalling bool
}
