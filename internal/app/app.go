// Package app wires all Mycelium subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, the accessor methods hand them to the CLI commands, and
// Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithManager, WithRegistry). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sporelab/mycelium/internal/agent"
	"github.com/sporelab/mycelium/internal/concept"
	"github.com/sporelab/mycelium/internal/config"
	"github.com/sporelab/mycelium/internal/ingest"
	"github.com/sporelab/mycelium/internal/tool"
	"github.com/sporelab/mycelium/internal/tool/builtin"
	"github.com/sporelab/mycelium/internal/tool/mcpbridge"
	"github.com/sporelab/mycelium/internal/workspace"
	"github.com/sporelab/mycelium/pkg/memory/vector"
	"github.com/sporelab/mycelium/pkg/memory/vector/pgindex"
	"github.com/sporelab/mycelium/pkg/provider/embeddings"
	"github.com/sporelab/mycelium/pkg/provider/llm"
)

// defaultDataDir is used when memory.data_dir is not configured.
const defaultDataDir = "memory_data"

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main via the config registry.
type Providers struct {
	Chat       llm.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes and orchestrates the Mycelium memory engine.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	manager  *workspace.Manager
	registry *tool.Registry
	bridge   *mcpbridge.Bridge
	tracker  *ingest.Tracker
	pipeline *ingest.Pipeline
	runner   *agent.Runner
	concepts *concept.Generator

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithManager injects a workspace manager instead of creating one from config.
func WithManager(m *workspace.Manager) Option {
	return func(a *App) { a.manager = m }
}

// WithRegistry injects a tool registry instead of building the default roster.
func WithRegistry(r *tool.Registry) Option {
	return func(a *App) { a.registry = r }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: workspace manager and vector
// backend, tool roster assembly, MCP server connection, agent runner and
// ingestion pipeline construction. A missing chat provider leaves the runner
// and concept generator nil; commands that need the model report it then.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Workspace manager + memory backends ──────────────────────────
	if err := a.initMemory(ctx); err != nil {
		return nil, fmt.Errorf("app: init memory: %w", err)
	}

	// ── 2. Ingestion tracker + pipeline ─────────────────────────────────
	if err := a.initIngest(); err != nil {
		return nil, fmt.Errorf("app: init ingest: %w", err)
	}

	// ── 3. Tool roster (builtins + MCP + exposed workspaces) ────────────
	if err := a.initTools(ctx); err != nil {
		return nil, fmt.Errorf("app: init tools: %w", err)
	}

	// ── 4. Agent runner + concept generator ─────────────────────────────
	if err := a.initAgent(); err != nil {
		return nil, fmt.Errorf("app: init agent: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initMemory sets up the workspace manager, backed by pgvector collections
// when the postgres backend is configured.
func (a *App) initMemory(ctx context.Context) error {
	if a.manager != nil {
		return nil // injected
	}
	if a.providers.Embeddings == nil {
		return fmt.Errorf("embeddings provider is required")
	}

	dataDir := a.cfg.Memory.DataDir
	if dataDir == "" {
		dataDir = defaultDataDir
	}

	var indexes workspace.IndexFactory
	if a.cfg.Memory.VectorBackend == config.BackendPostgres {
		store, err := pgindex.NewStore(ctx, a.cfg.Memory.PostgresDSN, a.cfg.Memory.EmbeddingDimensions)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
		indexes = func(id string) workspace.IndexSet {
			return workspace.IndexSet{
				Entities: store.Collection(id + "_" + vector.CollectionEntities),
				Notes:    store.Collection(id + "_" + vector.CollectionNotes),
				Concepts: store.Collection(id + "_" + vector.CollectionConcepts),
				Skills:   store.Collection(id + "_" + vector.CollectionSkills),
			}
		}
		slog.Info("vector backend ready", "backend", "postgres", "dimensions", a.cfg.Memory.EmbeddingDimensions)
	}

	m, err := workspace.NewManager(workspace.Config{
		BaseDir:    dataDir,
		Embeddings: a.providers.Embeddings,
		Indexes:    indexes,
	})
	if err != nil {
		return err
	}
	a.manager = m
	slog.Info("workspace manager ready", "data_dir", dataDir)
	return nil
}

// initIngest creates the job tracker and chunking pipeline.
func (a *App) initIngest() error {
	a.tracker = ingest.NewTracker()
	p, err := ingest.NewPipeline(a.tracker, ingest.Chunker{
		Size:    a.cfg.Ingest.ChunkSize,
		Overlap: a.cfg.Ingest.ChunkOverlap,
	}, nil)
	if err != nil {
		return err
	}
	a.pipeline = p
	return nil
}

// initTools assembles the tool registry: builtin workspace tools, tools from
// configured MCP servers, and ask_* tools for exposed workspaces.
func (a *App) initTools(ctx context.Context) error {
	if a.registry != nil {
		return nil // injected
	}

	reg := tool.NewRegistry(nil)
	if err := reg.Register(builtin.NewTools(a.manager, a.tracker)...); err != nil {
		return err
	}

	if len(a.cfg.MCP.Servers) > 0 {
		a.bridge = mcpbridge.New(nil)
		a.closers = append(a.closers, a.bridge.Close)
		for _, srv := range a.cfg.MCP.Servers {
			if err := a.bridge.Connect(ctx, srv.Bridge()); err != nil {
				return fmt.Errorf("connect mcp server %q: %w", srv.Name, err)
			}
			slog.Info("connected MCP server", "name", srv.Name)
		}
		reg.AddSource(a.bridge)
	}

	reg.AddSource(concept.WorkspaceToolSource(a.manager, nil))

	a.registry = reg
	return nil
}

// initAgent builds the turn runner and the concept generator. Both need the
// chat model; without one they stay nil.
func (a *App) initAgent() error {
	if a.providers.Chat == nil {
		slog.Warn("no chat provider configured; agent turns, ingestion and concept derivation are unavailable")
		return nil
	}

	r, err := agent.New(agent.Config{
		Manager:       a.manager,
		Model:         a.providers.Chat,
		Registry:      a.registry,
		MaxToolRounds: a.cfg.Agent.MaxToolRounds,
		Temperature:   a.cfg.Agent.Temperature,
	})
	if err != nil {
		return err
	}
	a.runner = r

	g, err := concept.NewGenerator(a.providers.Chat, nil)
	if err != nil {
		return err
	}
	a.concepts = g
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Manager returns the workspace manager.
func (a *App) Manager() *workspace.Manager { return a.manager }

// Registry returns the tool registry.
func (a *App) Registry() *tool.Registry { return a.registry }

// Tracker returns the ingestion job tracker.
func (a *App) Tracker() *ingest.Tracker { return a.tracker }

// Pipeline returns the ingestion pipeline.
func (a *App) Pipeline() *ingest.Pipeline { return a.pipeline }

// Runner returns the agent turn runner, or an error when no chat provider is
// configured.
func (a *App) Runner() (*agent.Runner, error) {
	if a.runner == nil {
		return nil, fmt.Errorf("app: providers.chat is not configured")
	}
	return a.runner, nil
}

// Concepts returns the concept generator, or an error when no chat provider
// is configured.
func (a *App) Concepts() (*concept.Generator, error) {
	if a.concepts == nil {
		return nil, fmt.Errorf("app: providers.chat is not configured")
	}
	return a.concepts, nil
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
