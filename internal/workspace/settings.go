package workspace

import "slices"

// Settings is the per-workspace configuration record, stored as config.json in
// the workspace directory. Zero values are not meaningful; always start from
// [DefaultSettings] so a partially written record still behaves sensibly.
type Settings struct {
	// SystemPrompt is the base persona prompt prepended to every turn.
	SystemPrompt string `json:"system_prompt"`

	// AllowSearch gates web-facing tools when EnabledTools is unset.
	AllowSearch bool `json:"allow_search"`

	// EnabledTools is an allowlist of tool names. Nil means all tools are
	// enabled; an empty non-nil slice disables everything.
	EnabledTools []string `json:"enabled_tools"`

	// ChatMessageLimit caps the conversation history sent to the model,
	// keeping the most recent messages.
	ChatMessageLimit int `json:"chat_message_limit"`

	// GraphK, GraphDepth and GraphIncludeDescriptions bound the retrieval
	// traversal for this workspace.
	GraphK                   int  `json:"graph_k"`
	GraphDepth               int  `json:"graph_depth"`
	GraphIncludeDescriptions bool `json:"graph_include_descriptions"`

	// IsToolEnabled exposes this workspace as a consultable expert tool named
	// ask_<ToolName> to other workspaces.
	IsToolEnabled   bool   `json:"is_tool_enabled,omitempty"`
	ToolName        string `json:"tool_name,omitempty"`
	ToolDescription string `json:"tool_description,omitempty"`
}

// DefaultSettings returns the settings applied to a workspace that has no
// config.json yet.
func DefaultSettings() Settings {
	return Settings{
		SystemPrompt:     "You are a helpful assistant with a long-term memory.",
		AllowSearch:      true,
		ChatMessageLimit: 20,
		GraphK:           3,
		GraphDepth:       1,
	}
}

// ToolEnabled reports whether the named tool passes this workspace's
// allowlist. A nil allowlist enables every tool.
func (s Settings) ToolEnabled(name string) bool {
	if s.EnabledTools == nil {
		return true
	}
	return slices.Contains(s.EnabledTools, name)
}
