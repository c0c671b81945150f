package concept

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sporelab/mycelium/internal/retrieval"
	"github.com/sporelab/mycelium/internal/tool"
	"github.com/sporelab/mycelium/internal/workspace"
)

// Consultation depth is wider than conversational retrieval: an explicit
// cross-workspace question deserves a broader slice of the target graph.
const (
	consultK     = 5
	consultDepth = 2
)

// WorkspaceToolSource exposes workspaces marked as tools (an "ask_<name>"
// tool per exposed workspace) as a [tool.Source]. The exposed set is
// re-scanned at every roster snapshot, so toggling a workspace's tool
// setting takes effect on the next turn.
func WorkspaceToolSource(m *workspace.Manager, log *slog.Logger) tool.Source {
	if log == nil {
		log = slog.Default()
	}
	return tool.SourceFunc(func(ctx context.Context) ([]tool.Tool, error) {
		exposed, err := m.Exposed()
		if err != nil {
			return nil, fmt.Errorf("concept: list exposed workspaces: %w", err)
		}

		tools := make([]tool.Tool, 0, len(exposed))
		for _, e := range exposed {
			tools = append(tools, tool.Tool{
				Definition: tool.Definition{
					Name:        e.Name,
					Description: e.Description,
					Parameters: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"query": map[string]any{
								"type":        "string",
								"description": "The question to ask this knowledge base.",
							},
						},
						"required": []string{"query"},
					},
				},
				Handler: consultHandler(m, e.WorkspaceID),
			})
		}
		return tools, nil
	})
}

// consultHandler answers a query against the target workspace's memory.
func consultHandler(m *workspace.Manager, targetID string) tool.Handler {
	return func(ctx context.Context, args string) (string, error) {
		var in struct {
			Query string `json:"query"`
		}
		if args != "" {
			if err := json.Unmarshal([]byte(args), &in); err != nil {
				return "", fmt.Errorf("concept: consult %q: invalid arguments: %w", targetID, err)
			}
		}
		if in.Query == "" {
			return "", fmt.Errorf("concept: consult %q: query is required", targetID)
		}

		ws, err := m.Open(targetID)
		if err != nil {
			return "", fmt.Errorf("concept: consult %q: %w", targetID, err)
		}

		res, err := retrieval.New(ws.Store(), nil).Retrieve(ctx, in.Query, retrieval.Options{
			K:                   consultK,
			Depth:               consultDepth,
			IncludeDescriptions: true,
		})
		if err != nil {
			return "", fmt.Errorf("concept: consult %q: %w", targetID, err)
		}
		if res.Context == "" {
			return fmt.Sprintf("No relevant information found in workspace '%s' for query: %s", targetID, in.Query), nil
		}
		return res.Context, nil
	}
}
