package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sporelab/mycelium/internal/tool"
	"github.com/sporelab/mycelium/internal/workspace"
)

// ─────────────────────────────────────────────────────────────────────────────
// search_concepts
// ─────────────────────────────────────────────────────────────────────────────

type searchConceptsArgs struct {
	WorkspaceID string `json:"workspace_id"`
	Query       string `json:"query"`
	TopK        int    `json:"top_k,omitempty"`
}

func makeSearchConceptsHandler(m *workspace.Manager) tool.Handler {
	return func(ctx context.Context, args string) (string, error) {
		var a searchConceptsArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("builtin: search_concepts: failed to parse arguments: %w", err)
		}
		if a.Query == "" {
			return "", fmt.Errorf("builtin: search_concepts: query must not be empty")
		}
		ws, err := m.Open(a.WorkspaceID)
		if err != nil {
			return "", fmt.Errorf("builtin: search_concepts: %w", err)
		}
		k := a.TopK
		if k <= 0 {
			k = defaultTopK
		}
		results, err := ws.Store().SearchConcepts(ctx, a.Query, k)
		if err != nil {
			return "", fmt.Errorf("builtin: search_concepts: %w", err)
		}
		if len(results) == 0 {
			return "No concepts derived for this workspace yet.", nil
		}

		type match struct {
			ID       string  `json:"id"`
			Title    string  `json:"title"`
			Summary  string  `json:"summary"`
			Distance float64 `json:"distance"`
		}
		matches := make([]match, len(results))
		for i, r := range results {
			matches[i] = match{
				ID:       r.ID,
				Title:    r.Metadata["title"],
				Summary:  r.Document,
				Distance: r.Distance,
			}
		}
		out, err := json.Marshal(matches)
		if err != nil {
			return "", fmt.Errorf("builtin: search_concepts: failed to encode result: %w", err)
		}
		return string(out), nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// search_skills
// ─────────────────────────────────────────────────────────────────────────────

func makeSearchSkillsHandler(m *workspace.Manager) tool.Handler {
	return func(ctx context.Context, args string) (string, error) {
		var a searchConceptsArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("builtin: search_skills: failed to parse arguments: %w", err)
		}
		if a.Query == "" {
			return "", fmt.Errorf("builtin: search_skills: query must not be empty")
		}
		ws, err := m.Open(a.WorkspaceID)
		if err != nil {
			return "", fmt.Errorf("builtin: search_skills: %w", err)
		}
		k := a.TopK
		if k <= 0 {
			k = defaultTopK
		}
		results, err := ws.Store().SearchSkills(ctx, a.Query, k)
		if err != nil {
			return "", fmt.Errorf("builtin: search_skills: %w", err)
		}
		if len(results) == 0 {
			return "No matching skills found.", nil
		}

		type match struct {
			ID          string  `json:"id"`
			Title       string  `json:"title"`
			Explanation string  `json:"explanation"`
			Distance    float64 `json:"distance"`
		}
		matches := make([]match, len(results))
		for i, r := range results {
			matches[i] = match{
				ID:          r.ID,
				Title:       r.Metadata["title"],
				Explanation: r.Metadata["explanation"],
				Distance:    r.Distance,
			}
		}
		out, err := json.Marshal(matches)
		if err != nil {
			return "", fmt.Errorf("builtin: search_skills: failed to encode result: %w", err)
		}
		return string(out), nil
	}
}

// knowledgeTools returns the concept and skill retrieval tool set.
func knowledgeTools(m *workspace.Manager) []tool.Tool {
	return []tool.Tool{
		{
			Definition: tool.Definition{
				Name:            "search_concepts",
				Description:     "Retrieve high-level concept summaries derived from the knowledge graph's communities. Use when the user asks to explore a topic or concept.",
				WorkspaceScoped: true,
				Parameters: objectSchema(map[string]any{
					"workspace_id": workspaceIDProp,
					"query":        stringProp("Topic or concept to look up."),
					"top_k":        intProp("Maximum number of concepts. Defaults to 3."),
				}, "query"),
			},
			Handler: makeSearchConceptsHandler(m),
		},
		{
			Definition: tool.Definition{
				Name:            "search_skills",
				Description:     "Retrieve learned procedures (skills). The result includes each skill's full explanation to follow.",
				WorkspaceScoped: true,
				Parameters: objectSchema(map[string]any{
					"workspace_id": workspaceIDProp,
					"query":        stringProp("What you are trying to do."),
					"top_k":        intProp("Maximum number of skills. Defaults to 3."),
				}, "query"),
			},
			Handler: makeSearchSkillsHandler(m),
		},
	}
}
