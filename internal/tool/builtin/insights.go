package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sporelab/mycelium/internal/tool"
	"github.com/sporelab/mycelium/internal/workspace"
	"github.com/sporelab/mycelium/pkg/memory/graph"
)

// Analytics defaults, shared with the stats CLI.
const (
	// DefaultInsightLimit caps the result count of the analytics tools.
	DefaultInsightLimit = 10

	// DefaultGapMaxDegree is the highest degree still considered a stub.
	DefaultGapMaxDegree = 2

	// DefaultGapMinNodes is the smallest graph worth analysing for gaps.
	DefaultGapMinNodes = 5
)

type insightsArgs struct {
	WorkspaceID string `json:"workspace_id"`
	Limit       int    `json:"limit,omitempty"`
	SampleSize  int    `json:"sample_size,omitempty"`
	MaxDegree   int    `json:"max_degree,omitempty"`
}

// rankedJSON is the wire shape of one analytics result row.
type rankedJSON struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description string  `json:"description,omitempty"`
	Centrality  float64 `json:"centrality,omitempty"`
	Degree      int     `json:"degree"`
}

func encodeRanked(toolName string, ranked []graph.Ranked, empty string) (string, error) {
	if len(ranked) == 0 {
		return empty, nil
	}
	rows := make([]rankedJSON, 0, len(ranked))
	for _, r := range ranked {
		rows = append(rows, rankedJSON{
			Name:        r.Name,
			Type:        r.Type,
			Description: r.Description,
			Centrality:  r.Centrality,
			Degree:      r.Degree,
		})
	}
	out, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("builtin: %s: failed to encode result: %w", toolName, err)
	}
	return string(out), nil
}

func makeInsightHandler(m *workspace.Manager, toolName string, run func(g *graph.Graph, a insightsArgs) (string, error)) tool.Handler {
	return func(ctx context.Context, args string) (string, error) {
		var a insightsArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("builtin: %s: failed to parse arguments: %w", toolName, err)
		}
		if a.Limit <= 0 {
			a.Limit = DefaultInsightLimit
		}
		ws, err := m.Open(a.WorkspaceID)
		if err != nil {
			return "", fmt.Errorf("builtin: %s: %w", toolName, err)
		}
		return run(ws.Store().Graph(), a)
	}
}

// insightTools returns the read-only graph analytics tool set.
func insightTools(m *workspace.Manager) []tool.Tool {
	return []tool.Tool{
		{
			Definition: tool.Definition{
				Name:            "get_hot_topics",
				Description:     "List the most densely connected entities in the knowledge graph, the subjects the memory knows most about.",
				WorkspaceScoped: true,
				Parameters: objectSchema(map[string]any{
					"workspace_id": workspaceIDProp,
					"limit":        intProp("Maximum number of entities. Defaults to 10."),
				}),
			},
			Handler: makeInsightHandler(m, "get_hot_topics", func(g *graph.Graph, a insightsArgs) (string, error) {
				return encodeRanked("get_hot_topics", g.HotTopics(a.Limit), "The knowledge graph is empty.")
			}),
		},
		{
			Definition: tool.Definition{
				Name:            "get_connectors",
				Description:     "List the entities that bridge otherwise separate areas of the knowledge graph, ranked by betweenness centrality.",
				WorkspaceScoped: true,
				Parameters: objectSchema(map[string]any{
					"workspace_id": workspaceIDProp,
					"limit":        intProp("Maximum number of entities. Defaults to 10."),
					"sample_size":  intProp("Approximate with this many sampled nodes to speed up large graphs. Omit for an exact result."),
				}),
			},
			Handler: makeInsightHandler(m, "get_connectors", func(g *graph.Graph, a insightsArgs) (string, error) {
				return encodeRanked("get_connectors", g.Connectors(a.Limit, a.SampleSize), "The knowledge graph is empty.")
			}),
		},
		{
			Definition: tool.Definition{
				Name:            "get_knowledge_gaps",
				Description:     "List sparsely connected stub entities that would benefit from more facts or relations.",
				WorkspaceScoped: true,
				Parameters: objectSchema(map[string]any{
					"workspace_id": workspaceIDProp,
					"limit":        intProp("Maximum number of entities. Defaults to 10."),
					"max_degree":   intProp("Highest connection count still considered a gap. Defaults to 2."),
				}),
			},
			Handler: makeInsightHandler(m, "get_knowledge_gaps", func(g *graph.Graph, a insightsArgs) (string, error) {
				maxDegree := a.MaxDegree
				if maxDegree <= 0 {
					maxDegree = DefaultGapMaxDegree
				}
				gaps := g.KnowledgeGaps(a.Limit, maxDegree, DefaultGapMinNodes)
				return encodeRanked("get_knowledge_gaps", gaps,
					"No knowledge gaps found. The graph is either well connected or too small to analyse.")
			}),
		},
	}
}
