// Package builtin provides the agent's built-in tool set: note management,
// knowledge-graph editing, search and analytics, concept and skill retrieval,
// and ingestion monitoring.
//
// Every tool is workspace-scoped: it carries a workspace_id parameter that
// the roster injects when the model omits it, and resolves its workspace
// through the shared [workspace.Manager].
//
// All handlers are safe for concurrent use.
package builtin

import (
	"strings"

	"github.com/sporelab/mycelium/internal/ingest"
	"github.com/sporelab/mycelium/internal/tool"
	"github.com/sporelab/mycelium/internal/workspace"
	"github.com/sporelab/mycelium/pkg/memory"
)

// defaultTopK is the default result limit for the search tools.
const defaultTopK = 3

// NewTools constructs the full built-in tool set. tracker may be nil, in
// which case the ingestion tools are omitted.
func NewTools(m *workspace.Manager, tracker *ingest.Tracker) []tool.Tool {
	var out []tool.Tool
	out = append(out, noteTools(m)...)
	out = append(out, graphTools(m)...)
	out = append(out, insightTools(m)...)
	out = append(out, knowledgeTools(m)...)
	if tracker != nil {
		out = append(out, ingestionTools(tracker)...)
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Schema helpers
// ─────────────────────────────────────────────────────────────────────────────

// workspaceIDProp is shared by every workspace-scoped tool.
var workspaceIDProp = map[string]any{
	"type":        "string",
	"description": "The workspace to operate on. Defaults to the current workspace.",
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func intProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// excerpt truncates s to at most n runes, appending an ellipsis when cut.
func excerpt(s string, n int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "…"
}

// syncSuffix renders a trailing warning when a graph mutation persisted but
// its vector index sync failed.
func syncSuffix(sync memory.SyncResult) string {
	if sync.FullySynced() {
		return ""
	}
	return " (Warning: semantic index sync failed; the change is saved but may not appear in searches until reindexing.)"
}
