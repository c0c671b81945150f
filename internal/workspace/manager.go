// Package workspace manages the on-disk state of one conversational
// workspace: its settings and emotion records, its note/skill/script records,
// and its memory store. Each workspace owns a directory under the manager's
// base directory:
//
//	<base>/<id>/config.json    settings
//	<base>/<id>/emotion.json   emotional state
//	<base>/<id>/graph.json     knowledge graph snapshot
//	<base>/<id>/notes/         note records
//	<base>/<id>/skills/        skill records
//	<base>/<id>/scripts/       generated lesson scripts
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/sporelab/mycelium/pkg/memory"
	"github.com/sporelab/mycelium/pkg/memory/vector"
	"github.com/sporelab/mycelium/pkg/provider/embeddings"
)

// ErrInvalidID is returned for workspace ids containing characters outside
// letters, digits, spaces, dashes and underscores.
var ErrInvalidID = errors.New("workspace: invalid workspace id")

// ErrWorkspaceExists is returned by [Manager.Create] and [Manager.Rename]
// when the target id is already taken.
var ErrWorkspaceExists = errors.New("workspace: workspace already exists")

// ErrWorkspaceNotFound is returned for operations on ids with no directory.
var ErrWorkspaceNotFound = errors.New("workspace: workspace not found")

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)

// IndexSet names the four vector collections backing one workspace's store.
type IndexSet struct {
	Entities vector.Index
	Notes    vector.Index
	Concepts vector.Index
	Skills   vector.Index
}

// IndexFactory supplies the vector backends for a workspace. Implementations
// typically derive per-workspace collection names from id. A nil factory (or
// zero-valued IndexSet fields) falls back to in-process indexes.
type IndexFactory func(id string) IndexSet

// Config configures a [Manager].
type Config struct {
	// BaseDir is the root directory holding one subdirectory per workspace.
	BaseDir string

	// Embeddings is shared by every workspace's memory store. Required.
	Embeddings embeddings.Provider

	// Indexes supplies vector backends per workspace. Optional.
	Indexes IndexFactory

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Manager opens and caches workspaces. Safe for concurrent use.
type Manager struct {
	cfg Config
	log *slog.Logger

	mu   sync.Mutex
	open map[string]*Workspace
}

// NewManager validates cfg and returns a Manager. No workspaces are opened
// until first use.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("workspace: base directory is required")
	}
	if cfg.Embeddings == nil {
		return nil, fmt.Errorf("workspace: embeddings provider is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{cfg: cfg, log: log, open: make(map[string]*Workspace)}, nil
}

// Open returns the workspace with the given id, creating its directory and
// loading its graph snapshot on first access. Subsequent calls return the
// same instance.
func (m *Manager) Open(id string) (*Workspace, error) {
	if !idPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ws, ok := m.open[id]; ok {
		return ws, nil
	}

	dir := filepath.Join(m.cfg.BaseDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: open %s: %w", id, err)
	}

	var ix IndexSet
	if m.cfg.Indexes != nil {
		ix = m.cfg.Indexes(id)
	}
	store, err := memory.Open(memory.Config{
		SnapshotPath: filepath.Join(dir, "graph.json"),
		Embeddings:   m.cfg.Embeddings,
		Entities:     ix.Entities,
		Notes:        ix.Notes,
		Concepts:     ix.Concepts,
		Skills:       ix.Skills,
		Logger:       m.log.With("workspace", id),
	})
	if err != nil {
		return nil, fmt.Errorf("workspace: open %s: %w", id, err)
	}

	ws := &Workspace{
		ID:    id,
		dir:   dir,
		store: store,
		log:   m.log.With("workspace", id),
	}
	m.open[id] = ws
	return ws, nil
}

// Exists reports whether a directory for id is present, without opening it.
func (m *Manager) Exists(id string) bool {
	info, err := os.Stat(filepath.Join(m.cfg.BaseDir, id))
	return err == nil && info.IsDir()
}

// Create opens a new workspace, failing if the directory already exists.
func (m *Manager) Create(id string) (*Workspace, error) {
	if !idPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if _, err := os.Stat(filepath.Join(m.cfg.BaseDir, id)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkspaceExists, id)
	}
	return m.Open(id)
}

// List returns the ids of every workspace directory under the base
// directory, sorted.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.cfg.BaseDir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("workspace: list: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Remove deletes the workspace directory and drops any cached instance. The
// vector backends are cleared first so shared backends (postgres) do not keep
// orphaned rows.
func (m *Manager) Remove(ctx context.Context, id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	dir := filepath.Join(m.cfg.BaseDir, id)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrWorkspaceNotFound, id)
	}

	if m.cfg.Indexes != nil {
		ix := m.cfg.Indexes(id)
		for _, col := range []vector.Index{ix.Entities, ix.Notes, ix.Concepts, ix.Skills} {
			if col == nil {
				continue
			}
			if err := col.Clear(ctx); err != nil {
				return fmt.Errorf("workspace: remove %s: clear index: %w", id, err)
			}
		}
	}

	m.mu.Lock()
	delete(m.open, id)
	m.mu.Unlock()

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("workspace: remove %s: %w", id, err)
	}
	return nil
}

// ExposedTool describes a workspace that other workspaces may consult as an
// expert tool.
type ExposedTool struct {
	WorkspaceID string

	// Name is the tool name presented to the model, prefixed ask_.
	Name        string
	Description string
}

// Exposed scans every workspace's settings and returns those exposed as
// consultable tools. Workspaces with unreadable settings are skipped.
func (m *Manager) Exposed() ([]ExposedTool, error) {
	ids, err := m.List()
	if err != nil {
		return nil, err
	}

	var out []ExposedTool
	for _, id := range ids {
		ws, err := m.Open(id)
		if err != nil {
			continue
		}
		st, err := ws.Settings()
		if err != nil || !st.IsToolEnabled || st.ToolName == "" {
			continue
		}
		desc := st.ToolDescription
		if desc == "" {
			desc = fmt.Sprintf("Consult the %s workspace for expert knowledge.", id)
		}
		out = append(out, ExposedTool{
			WorkspaceID: id,
			Name:        "ask_" + strings.ReplaceAll(st.ToolName, " ", "_"),
			Description: desc,
		})
	}
	return out, nil
}
