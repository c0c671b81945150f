package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Registry collects built-in tools and dynamic sources. The agent takes a
// [Roster] snapshot for each generation request and again before each
// tool-execution round; the registry itself is only mutated during startup.
// Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	static  []Tool
	sources []Source
	log     *slog.Logger
}

// NewRegistry returns an empty Registry. A nil logger defaults to
// slog.Default().
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{log: log}
}

// Register adds built-in tools. Names must be unique among registered tools
// and each tool must carry a handler.
func (r *Registry) Register(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range tools {
		if t.Name == "" {
			return fmt.Errorf("tool: register: name must not be empty")
		}
		if t.Handler == nil {
			return fmt.Errorf("tool: register %q: handler must not be nil", t.Name)
		}
		for _, existing := range r.static {
			if existing.Name == t.Name {
				return fmt.Errorf("tool: register %q: duplicate name", t.Name)
			}
		}
		r.static = append(r.static, t)
	}
	return nil
}

// AddSource appends a dynamic tool source, queried at every snapshot.
func (r *Registry) AddSource(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, s)
}

// Snapshot resolves the current roster: all built-in tools plus everything
// the sources report right now. A failing source is logged and skipped so one
// unreachable MCP server does not take the whole roster down. Name collisions
// keep the earlier tool.
func (r *Registry) Snapshot(ctx context.Context) *Roster {
	r.mu.RLock()
	static := make([]Tool, len(r.static))
	copy(static, r.static)
	sources := make([]Source, len(r.sources))
	copy(sources, r.sources)
	r.mu.RUnlock()

	ros := &Roster{tools: make(map[string]Tool, len(static))}
	for _, t := range static {
		ros.add(t, r.log)
	}
	for _, s := range sources {
		tools, err := s.Tools(ctx)
		if err != nil {
			r.log.Warn("tool source unavailable, skipping", "error", err)
			continue
		}
		for _, t := range tools {
			ros.add(t, r.log)
		}
	}
	return ros
}

// Roster is an immutable point-in-time tool set. One roster serves one agent
// turn.
type Roster struct {
	order []string
	tools map[string]Tool
}

func (ros *Roster) add(t Tool, log *slog.Logger) {
	if t.Name == "" || t.Handler == nil {
		log.Warn("dropping malformed tool", "name", t.Name)
		return
	}
	if _, dup := ros.tools[t.Name]; dup {
		log.Warn("dropping duplicate tool", "name", t.Name)
		return
	}
	ros.tools[t.Name] = t
	ros.order = append(ros.order, t.Name)
}

// Definitions returns the definitions passing the enabled filter, in
// registration order. A nil filter returns everything.
func (ros *Roster) Definitions(enabled func(name string) bool) []Definition {
	defs := make([]Definition, 0, len(ros.order))
	for _, name := range ros.order {
		if enabled != nil && !enabled(name) {
			continue
		}
		defs = append(defs, ros.tools[name].Definition)
	}
	return defs
}

// Len returns the number of tools in the roster.
func (ros *Roster) Len() int { return len(ros.order) }

// Execute runs the named tool. For workspace-scoped tools the workspace_id
// argument is injected when the model left it out, so a tool call can never
// silently land in the wrong workspace's data.
func (ros *Roster) Execute(ctx context.Context, workspaceID, name, args string) (string, error) {
	t, ok := ros.tools[name]
	if !ok {
		return "", fmt.Errorf("tool: %q not found", name)
	}

	if t.WorkspaceScoped {
		injected, err := injectWorkspaceID(args, workspaceID)
		if err != nil {
			return "", fmt.Errorf("tool: %q: %w", name, err)
		}
		args = injected
	}

	out, err := t.Handler(ctx, args)
	if err != nil {
		return "", fmt.Errorf("tool: %q: %w", name, err)
	}
	return out, nil
}

// injectWorkspaceID sets workspace_id in the JSON argument object when it is
// absent or empty. An empty args string counts as the empty object.
func injectWorkspaceID(args, workspaceID string) (string, error) {
	m := map[string]any{}
	if args != "" {
		if err := json.Unmarshal([]byte(args), &m); err != nil {
			return "", fmt.Errorf("invalid args JSON: %w", err)
		}
	}
	if v, ok := m["workspace_id"].(string); !ok || v == "" {
		m["workspace_id"] = workspaceID
	}
	out, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
