package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sporelab/mycelium/internal/retrieval"
	"github.com/sporelab/mycelium/internal/tool"
	"github.com/sporelab/mycelium/internal/workspace"
)

// ─────────────────────────────────────────────────────────────────────────────
// Node mutations
// ─────────────────────────────────────────────────────────────────────────────

type graphNodeArgs struct {
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

func makeAddGraphNodeHandler(m *workspace.Manager) tool.Handler {
	return func(ctx context.Context, args string) (string, error) {
		var a graphNodeArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("builtin: add_graph_node: failed to parse arguments: %w", err)
		}
		if a.Name == "" {
			return "", fmt.Errorf("builtin: add_graph_node: name must not be empty")
		}
		ws, err := m.Open(a.WorkspaceID)
		if err != nil {
			return "", fmt.Errorf("builtin: add_graph_node: %w", err)
		}
		sync, err := ws.Store().AddEntity(ctx, a.Name, a.Type, a.Description)
		if err != nil {
			return "", fmt.Errorf("builtin: add_graph_node %q: %w", a.Name, err)
		}
		return fmt.Sprintf("Added entity %q.%s", a.Name, syncSuffix(sync)), nil
	}
}

func makeUpdateGraphNodeHandler(m *workspace.Manager) tool.Handler {
	return func(ctx context.Context, args string) (string, error) {
		var a graphNodeArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("builtin: update_graph_node: failed to parse arguments: %w", err)
		}
		ws, err := m.Open(a.WorkspaceID)
		if err != nil {
			return "", fmt.Errorf("builtin: update_graph_node: %w", err)
		}
		found, sync, err := ws.Store().UpdateEntity(ctx, a.Name, a.Type, a.Description)
		if err != nil {
			return "", fmt.Errorf("builtin: update_graph_node %q: %w", a.Name, err)
		}
		if !found {
			return fmt.Sprintf("Entity %q not found.", a.Name), nil
		}
		return fmt.Sprintf("Updated entity %q.%s", a.Name, syncSuffix(sync)), nil
	}
}

type deleteNodeArgs struct {
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
}

func makeDeleteGraphNodeHandler(m *workspace.Manager) tool.Handler {
	return func(ctx context.Context, args string) (string, error) {
		var a deleteNodeArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("builtin: delete_graph_node: failed to parse arguments: %w", err)
		}
		ws, err := m.Open(a.WorkspaceID)
		if err != nil {
			return "", fmt.Errorf("builtin: delete_graph_node: %w", err)
		}
		found, sync, err := ws.Store().DeleteEntity(ctx, a.Name)
		if err != nil {
			return "", fmt.Errorf("builtin: delete_graph_node %q: %w", a.Name, err)
		}
		if !found {
			return fmt.Sprintf("Entity %q not found.", a.Name), nil
		}
		return fmt.Sprintf("Deleted entity %q and its relations.%s", a.Name, syncSuffix(sync)), nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Edge mutations
// ─────────────────────────────────────────────────────────────────────────────

type graphEdgeArgs struct {
	WorkspaceID string `json:"workspace_id"`
	Source      string `json:"source"`
	Target      string `json:"target"`
	Relation    string `json:"relation,omitempty"`
}

func makeAddGraphEdgeHandler(m *workspace.Manager) tool.Handler {
	return func(ctx context.Context, args string) (string, error) {
		var a graphEdgeArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("builtin: add_graph_edge: failed to parse arguments: %w", err)
		}
		if a.Source == "" || a.Target == "" {
			return "", fmt.Errorf("builtin: add_graph_edge: source and target must not be empty")
		}
		ws, err := m.Open(a.WorkspaceID)
		if err != nil {
			return "", fmt.Errorf("builtin: add_graph_edge: %w", err)
		}
		sync, err := ws.Store().AddRelation(ctx, a.Source, a.Target, a.Relation)
		if err != nil {
			return "", fmt.Errorf("builtin: add_graph_edge: %w", err)
		}
		return fmt.Sprintf("Related %q to %q via %q.%s", a.Source, a.Target, a.Relation, syncSuffix(sync)), nil
	}
}

func makeUpdateGraphEdgeHandler(m *workspace.Manager) tool.Handler {
	return func(ctx context.Context, args string) (string, error) {
		var a graphEdgeArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("builtin: update_graph_edge: failed to parse arguments: %w", err)
		}
		ws, err := m.Open(a.WorkspaceID)
		if err != nil {
			return "", fmt.Errorf("builtin: update_graph_edge: %w", err)
		}
		found, err := ws.Store().UpdateRelation(ctx, a.Source, a.Target, a.Relation)
		if err != nil {
			return "", fmt.Errorf("builtin: update_graph_edge: %w", err)
		}
		if !found {
			return fmt.Sprintf("No relation between %q and %q.", a.Source, a.Target), nil
		}
		return fmt.Sprintf("Relabelled the %q–%q relation to %q.", a.Source, a.Target, a.Relation), nil
	}
}

func makeDeleteGraphEdgeHandler(m *workspace.Manager) tool.Handler {
	return func(ctx context.Context, args string) (string, error) {
		var a graphEdgeArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("builtin: delete_graph_edge: failed to parse arguments: %w", err)
		}
		ws, err := m.Open(a.WorkspaceID)
		if err != nil {
			return "", fmt.Errorf("builtin: delete_graph_edge: %w", err)
		}
		found, err := ws.Store().DeleteRelation(ctx, a.Source, a.Target)
		if err != nil {
			return "", fmt.Errorf("builtin: delete_graph_edge: %w", err)
		}
		if !found {
			return fmt.Sprintf("No relation between %q and %q.", a.Source, a.Target), nil
		}
		return fmt.Sprintf("Deleted the relation between %q and %q.", a.Source, a.Target), nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// search_graph_nodes
// ─────────────────────────────────────────────────────────────────────────────

type searchNodesArgs struct {
	WorkspaceID string `json:"workspace_id"`
	Query       string `json:"query"`
	TopK        int    `json:"top_k,omitempty"`
}

func makeSearchGraphNodesHandler(m *workspace.Manager) tool.Handler {
	return func(ctx context.Context, args string) (string, error) {
		var a searchNodesArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("builtin: search_graph_nodes: failed to parse arguments: %w", err)
		}
		if a.Query == "" {
			return "", fmt.Errorf("builtin: search_graph_nodes: query must not be empty")
		}
		ws, err := m.Open(a.WorkspaceID)
		if err != nil {
			return "", fmt.Errorf("builtin: search_graph_nodes: %w", err)
		}
		k := a.TopK
		if k <= 0 {
			k = defaultTopK
		}
		results, err := ws.Store().RelatedNodes(ctx, a.Query, k)
		if err != nil {
			return "", fmt.Errorf("builtin: search_graph_nodes: %w", err)
		}

		type match struct {
			Name        string  `json:"name"`
			Type        string  `json:"type"`
			Description string  `json:"description"`
			Distance    float64 `json:"distance"`
		}
		g := ws.Store().Graph()
		matches := []match{}
		for _, r := range results {
			node, ok := g.Node(r.ID)
			if !ok {
				continue
			}
			matches = append(matches, match{
				Name:        node.Name,
				Type:        node.Type,
				Description: node.Description,
				Distance:    r.Distance,
			})
		}
		if len(matches) == 0 {
			return "No matching entities found.", nil
		}
		out, err := json.Marshal(matches)
		if err != nil {
			return "", fmt.Errorf("builtin: search_graph_nodes: failed to encode result: %w", err)
		}
		return string(out), nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// traverse_graph_node
// ─────────────────────────────────────────────────────────────────────────────

type traverseArgs struct {
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	Depth       int    `json:"depth,omitempty"`
}

func makeTraverseGraphNodeHandler(m *workspace.Manager) tool.Handler {
	return func(ctx context.Context, args string) (string, error) {
		var a traverseArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("builtin: traverse_graph_node: failed to parse arguments: %w", err)
		}
		if a.Name == "" {
			return "", fmt.Errorf("builtin: traverse_graph_node: name must not be empty")
		}
		ws, err := m.Open(a.WorkspaceID)
		if err != nil {
			return "", fmt.Errorf("builtin: traverse_graph_node: %w", err)
		}
		if !ws.Store().Graph().HasNode(a.Name) {
			return fmt.Sprintf("Entity %q not found.", a.Name), nil
		}

		depth := a.Depth
		if depth <= 0 {
			depth = retrieval.DefaultDepth
		}
		r := retrieval.New(ws.Store(), nil)
		res, err := r.Retrieve(ctx, a.Name, retrieval.Options{
			FocusedNode:         a.Name,
			Depth:               depth,
			IncludeDescriptions: true,
		})
		if err != nil {
			return "", fmt.Errorf("builtin: traverse_graph_node %q: %w", a.Name, err)
		}
		return res.Context, nil
	}
}

// graphTools returns the knowledge-graph tool set.
func graphTools(m *workspace.Manager) []tool.Tool {
	return []tool.Tool{
		{
			Definition: tool.Definition{
				Name:            "add_graph_node",
				Description:     "Add an entity to the knowledge graph, or merge new facts into an existing one.",
				WorkspaceScoped: true,
				Parameters: objectSchema(map[string]any{
					"workspace_id": workspaceIDProp,
					"name":         stringProp("Exact entity name."),
					"type":         stringProp("Category, e.g. Person, Project, Technology."),
					"description":  stringProp("Brief facts about the entity."),
				}, "name"),
			},
			Handler: makeAddGraphNodeHandler(m),
		},
		{
			Definition: tool.Definition{
				Name:            "update_graph_node",
				Description:     "Replace an existing entity's type and description.",
				WorkspaceScoped: true,
				Parameters: objectSchema(map[string]any{
					"workspace_id": workspaceIDProp,
					"name":         stringProp("Exact entity name."),
					"type":         stringProp("New category."),
					"description":  stringProp("New description."),
				}, "name"),
			},
			Handler: makeUpdateGraphNodeHandler(m),
		},
		{
			Definition: tool.Definition{
				Name:            "delete_graph_node",
				Description:     "Delete an entity and all of its relations from the knowledge graph.",
				WorkspaceScoped: true,
				Parameters: objectSchema(map[string]any{
					"workspace_id": workspaceIDProp,
					"name":         stringProp("Exact entity name."),
				}, "name"),
			},
			Handler: makeDeleteGraphNodeHandler(m),
		},
		{
			Definition: tool.Definition{
				Name:            "add_graph_edge",
				Description:     "Relate two entities in the knowledge graph. Unknown endpoints are created as placeholder entities.",
				WorkspaceScoped: true,
				Parameters: objectSchema(map[string]any{
					"workspace_id": workspaceIDProp,
					"source":       stringProp("Source entity name."),
					"target":       stringProp("Target entity name."),
					"relation":     stringProp("Relationship label, e.g. works_on."),
				}, "source", "target"),
			},
			Handler: makeAddGraphEdgeHandler(m),
		},
		{
			Definition: tool.Definition{
				Name:            "update_graph_edge",
				Description:     "Relabel an existing relation between two entities.",
				WorkspaceScoped: true,
				Parameters: objectSchema(map[string]any{
					"workspace_id": workspaceIDProp,
					"source":       stringProp("Source entity name."),
					"target":       stringProp("Target entity name."),
					"relation":     stringProp("New relationship label."),
				}, "source", "target"),
			},
			Handler: makeUpdateGraphEdgeHandler(m),
		},
		{
			Definition: tool.Definition{
				Name:            "delete_graph_edge",
				Description:     "Delete the relation between two entities.",
				WorkspaceScoped: true,
				Parameters: objectSchema(map[string]any{
					"workspace_id": workspaceIDProp,
					"source":       stringProp("Source entity name."),
					"target":       stringProp("Target entity name."),
				}, "source", "target"),
			},
			Handler: makeDeleteGraphEdgeHandler(m),
		},
		{
			Definition: tool.Definition{
				Name:            "search_graph_nodes",
				Description:     "Semantically search the knowledge graph for entities matching a query.",
				WorkspaceScoped: true,
				Parameters: objectSchema(map[string]any{
					"workspace_id": workspaceIDProp,
					"query":        stringProp("What to look for."),
					"top_k":        intProp("Maximum number of matches. Defaults to 3."),
				}, "query"),
			},
			Handler: makeSearchGraphNodesHandler(m),
		},
		{
			Definition: tool.Definition{
				Name:            "traverse_graph_node",
				Description:     "Trace relationships outward from a named entity, reporting connected entities and how they relate.",
				WorkspaceScoped: true,
				Parameters: objectSchema(map[string]any{
					"workspace_id": workspaceIDProp,
					"name":         stringProp("Exact entity name to start from."),
					"depth":        intProp("How many hops to traverse. Defaults to 1."),
				}, "name"),
			},
			Handler: makeTraverseGraphNodeHandler(m),
		},
	}
}
