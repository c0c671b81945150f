// Package tool defines the agent's tool surface: a Definition the model can
// call, a Handler executing it, and a Registry that assembles the per-turn
// roster from built-in tools and dynamic sources (MCP servers, exposed
// workspaces).
package tool

import "context"

// Definition describes a callable tool to the model.
type Definition struct {
	// Name is the unique tool identifier presented to the model.
	Name string

	// Description tells the model when to call the tool.
	Description string

	// Parameters is the JSON-schema object describing the tool's arguments.
	Parameters map[string]any

	// WorkspaceScoped marks tools operating on the calling workspace's data.
	// The roster injects the workspace_id argument into their calls when the
	// model omits it.
	WorkspaceScoped bool
}

// Handler executes a tool call. args is the JSON-encoded argument object;
// "{}" is valid for parameter-less tools. The returned string is fed back to
// the model as the tool result.
type Handler func(ctx context.Context, args string) (string, error)

// Tool pairs a definition with its handler.
type Tool struct {
	Definition
	Handler Handler
}

// Source supplies tools resolved at snapshot time, so rosters pick up
// catalogue changes (reconnected MCP servers, newly exposed workspaces)
// without re-registration.
type Source interface {
	Tools(ctx context.Context) ([]Tool, error)
}

// SourceFunc adapts a function to the [Source] interface.
type SourceFunc func(ctx context.Context) ([]Tool, error)

// Tools implements [Source].
func (f SourceFunc) Tools(ctx context.Context) ([]Tool, error) { return f(ctx) }
