// Command mycelium is the CLI entry point for the Mycelium memory engine.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/spf13/cobra"

	"github.com/sporelab/mycelium/internal/app"
	"github.com/sporelab/mycelium/internal/concept"
	"github.com/sporelab/mycelium/internal/config"
	"github.com/sporelab/mycelium/internal/observe"
	"github.com/sporelab/mycelium/internal/resilience"
	"github.com/sporelab/mycelium/internal/tool/builtin"
	"github.com/sporelab/mycelium/pkg/memory/graph"
	"github.com/sporelab/mycelium/pkg/provider/embeddings"
	ollamaembed "github.com/sporelab/mycelium/pkg/provider/embeddings/ollama"
	oaembed "github.com/sporelab/mycelium/pkg/provider/embeddings/openai"
	"github.com/sporelab/mycelium/pkg/provider/llm"
	"github.com/sporelab/mycelium/pkg/provider/llm/anyllm"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// logLevel backs the default slog handler so hot reload can adjust verbosity
// without rebuilding the logger.
var logLevel = new(slog.LevelVar)

var cfgPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "mycelium",
		Short: "Mycelium — graph + vector personal memory engine",
		Long: `Mycelium keeps long-term memory for conversational agents: a knowledge
graph extracted from conversations and documents, semantic indexes over
entities, notes, skills and concepts, and an agent workflow that retrieves,
responds, extracts and reflects on every turn.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to the YAML configuration file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Mycelium v%s (%s)\n", version, commit)
		},
	})

	chatCmd := &cobra.Command{
		Use:   "chat [workspace]",
		Short: "Interactive conversation through the agent workflow",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runChat,
	}
	rootCmd.AddCommand(chatCmd)

	ingestCmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Extract knowledge from a document into a workspace",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	}
	ingestCmd.Flags().StringP("workspace", "w", "default", "target workspace id")
	rootCmd.AddCommand(ingestCmd)

	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "Re-embed every graph node of a workspace",
		RunE:  runReindex,
	}
	reindexCmd.Flags().StringP("workspace", "w", "default", "target workspace id")
	rootCmd.AddCommand(reindexCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show graph and index statistics for a workspace",
		RunE:  runStats,
	}
	statsCmd.Flags().StringP("workspace", "w", "default", "target workspace id")
	statsCmd.Flags().Int("top", 5, "entities to list per analytics section")
	statsCmd.Flags().Int("sample", 0, "approximate connector centrality with this many sampled nodes (0 = exact)")
	rootCmd.AddCommand(statsCmd)

	conceptsCmd := &cobra.Command{
		Use:   "concepts",
		Short: "Derive and inspect higher-level concepts",
	}
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Cluster the knowledge graph and summarise each cluster",
		RunE:  runConceptsGenerate,
	}
	generateCmd.Flags().StringP("workspace", "w", "default", "target workspace id")
	generateCmd.Flags().Float64("resolution", concept.DefaultResolution, "community detection resolution")
	generateCmd.Flags().Int("max-clusters", concept.DefaultMaxClusters, "summarise at most this many clusters")
	generateCmd.Flags().Int("min-cluster-size", concept.DefaultMinClusterSize, "ignore clusters smaller than this")
	conceptsCmd.AddCommand(generateCmd)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted concepts",
		RunE:  runConceptsList,
	}
	listCmd.Flags().StringP("workspace", "w", "default", "target workspace id")
	conceptsCmd.AddCommand(listCmd)
	rootCmd.AddCommand(conceptsCmd)

	workspaceCmd := &cobra.Command{
		Use:   "workspace",
		Short: "Manage workspaces",
	}
	workspaceCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List workspace ids",
		RunE:  runWorkspaceList,
	})
	workspaceCmd.AddCommand(&cobra.Command{
		Use:   "create <id>",
		Short: "Create an empty workspace",
		Args:  cobra.ExactArgs(1),
		RunE:  runWorkspaceCreate,
	})
	workspaceCmd.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a workspace and all its memory",
		Args:  cobra.ExactArgs(1),
		RunE:  runWorkspaceRemove,
	})
	rootCmd.AddCommand(workspaceCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ── Setup ─────────────────────────────────────────────────────────────────────

// setup loads config, installs the logger and telemetry, builds providers and
// wires the application. The returned teardown flushes telemetry and closes
// subsystems.
func setup(ctx context.Context) (*app.App, *config.Config, func(), error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil, fmt.Errorf("config file %q not found — copy configs/example.yaml to get started", cfgPath)
		}
		return nil, nil, nil, err
	}

	slog.SetDefault(newLogger(cfg.Logging))

	observeShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init telemetry: %w", err)
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		return nil, nil, nil, err
	}

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		return nil, nil, nil, err
	}

	teardown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
		if err := observeShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}
	return application, cfg, teardown, nil
}

// newLogger builds the default slog handler from the logging config.
func newLogger(lc config.LoggingConfig) *slog.Logger {
	logLevel.Set(slogLevel(lc.Level))
	opts := &slog.HandlerOptions{Level: logLevel}
	if lc.JSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Chat ──────────────────────────────────────────────────────────────────
	// openai, anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile
	// all share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterChat(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterChat("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return ollamaembed.New(entry.BaseURL, entry.Model)
	})
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.Chat.Name; name != "" {
		p, err := reg.CreateChat(cfg.Providers.Chat)
		if err != nil {
			return nil, fmt.Errorf("create chat provider %q: %w", name, err)
		}
		if len(cfg.Providers.ChatFallbacks) > 0 {
			fb := resilience.NewChatFallback(p, name, resilience.FallbackConfig{})
			for _, entry := range cfg.Providers.ChatFallbacks {
				fp, err := reg.CreateChat(entry)
				if err != nil {
					return nil, fmt.Errorf("create chat fallback %q: %w", entry.Name, err)
				}
				fb.AddFallback(entry.Name, fp)
			}
			p = fb
		}
		ps.Chat = p
		slog.Info("provider created", "kind", "chat", "name", name, "model", cfg.Providers.Chat.Model,
			"fallbacks", len(cfg.Providers.ChatFallbacks))
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		if len(cfg.Providers.EmbeddingsFallbacks) > 0 {
			fb := resilience.NewEmbeddingsFallback(p, name, resilience.FallbackConfig{})
			for _, entry := range cfg.Providers.EmbeddingsFallbacks {
				fp, err := reg.CreateEmbeddings(entry)
				if err != nil {
					return nil, fmt.Errorf("create embeddings fallback %q: %w", entry.Name, err)
				}
				fb.AddFallback(entry.Name, fp)
			}
			p = fb
		}
		ps.Embeddings = p
		slog.Info("provider created", "kind", "embeddings", "name", name, "model", cfg.Providers.Embeddings.Model,
			"fallbacks", len(cfg.Providers.EmbeddingsFallbacks))
	}

	return ps, nil
}

// ── chat ──────────────────────────────────────────────────────────────────────

func runChat(cmd *cobra.Command, args []string) error {
	workspaceID := "default"
	if len(args) == 1 {
		workspaceID = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, _, teardown, err := setup(ctx)
	if err != nil {
		return err
	}
	defer teardown()

	runner, err := application.Runner()
	if err != nil {
		return err
	}

	// Hot reload: adjust log verbosity in place; anything else needs a
	// restart.
	watcher, err := config.NewWatcher(cfgPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level updated", "level", d.NewLogLevel)
		}
		if d.AgentChanged || d.MCPChanged {
			slog.Warn("agent or MCP configuration changed; restart to apply")
		}
	})
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	defer watcher.Stop()

	fmt.Printf("Chatting in workspace %q. Ctrl+D or /quit to leave.\n", workspaceID)

	var history []llm.Message
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		history = append(history, llm.Message{Role: "user", Content: line})
		reply, err := runner.Turn(ctx, workspaceID, history)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Error("turn failed", "err", err)
			history = history[:len(history)-1]
			continue
		}
		history = append(history, reply.Messages...)

		fmt.Println(reply.Content)
		if reply.Entities > 0 || reply.Relations > 0 {
			slog.Debug("knowledge extracted", "entities", reply.Entities, "relations", reply.Relations)
		}
	}

	fmt.Println("goodbye")
	return scanner.Err()
}

// ── ingest ────────────────────────────────────────────────────────────────────

func runIngest(cmd *cobra.Command, args []string) error {
	workspaceID, _ := cmd.Flags().GetString("workspace")
	path := args[0]

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, _, teardown, err := setup(ctx)
	if err != nil {
		return err
	}
	defer teardown()

	runner, err := application.Runner()
	if err != nil {
		return err
	}
	ws, err := application.Manager().Open(workspaceID)
	if err != nil {
		return err
	}

	sum, err := application.Pipeline().Run(ctx, workspaceID, path, string(data),
		runner.Extractor().PipelineFunc(ws.Store()))
	if err != nil {
		return err
	}
	if sum.Cancelled {
		fmt.Printf("ingestion cancelled after %d chunks\n", sum.Chunks)
		return nil
	}
	fmt.Printf("ingested %q: %d chunks, %d entities, %d relations\n",
		path, sum.Chunks, sum.Entities, sum.Relations)
	return nil
}

// ── reindex ───────────────────────────────────────────────────────────────────

func runReindex(cmd *cobra.Command, args []string) error {
	workspaceID, _ := cmd.Flags().GetString("workspace")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, _, teardown, err := setup(ctx)
	if err != nil {
		return err
	}
	defer teardown()

	ws, err := application.Manager().Open(workspaceID)
	if err != nil {
		return err
	}
	n, err := ws.Store().Reindex(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("re-embedded %d graph nodes in workspace %q\n", n, workspaceID)
	return nil
}

// ── stats ─────────────────────────────────────────────────────────────────────

func runStats(cmd *cobra.Command, args []string) error {
	workspaceID, _ := cmd.Flags().GetString("workspace")

	ctx := cmd.Context()
	application, _, teardown, err := setup(ctx)
	if err != nil {
		return err
	}
	defer teardown()

	ws, err := application.Manager().Open(workspaceID)
	if err != nil {
		return err
	}
	st, err := ws.Store().Stats(ctx)
	if err != nil {
		return err
	}
	notes, err := ws.Notes()
	if err != nil {
		return err
	}

	fmt.Printf("workspace %q\n", workspaceID)
	fmt.Printf("  graph nodes     : %d\n", st.Nodes)
	fmt.Printf("  graph edges     : %d\n", st.Edges)
	fmt.Printf("  entity vectors  : %d\n", st.Entities)
	fmt.Printf("  note vectors    : %d\n", st.Notes)
	fmt.Printf("  concept vectors : %d\n", st.Concepts)
	fmt.Printf("  skill vectors   : %d\n", st.Skills)
	fmt.Printf("  notes on disk   : %d\n", len(notes))

	top, _ := cmd.Flags().GetInt("top")
	sample, _ := cmd.Flags().GetInt("sample")
	g := ws.Store().Graph()
	printRanked("hot topics", g.HotTopics(top))
	printRanked("connectors", g.Connectors(top, sample))
	printRanked("knowledge gaps", g.KnowledgeGaps(top, builtin.DefaultGapMaxDegree, builtin.DefaultGapMinNodes))
	return nil
}

// printRanked renders one analytics section of the stats output.
func printRanked(title string, ranked []graph.Ranked) {
	fmt.Printf("%s:\n", title)
	if len(ranked) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, r := range ranked {
		fmt.Printf("  %-24s %-12s degree %-3d centrality %.3f\n", r.Name, r.Type, r.Degree, r.Centrality)
	}
}

// ── concepts ──────────────────────────────────────────────────────────────────

func runConceptsGenerate(cmd *cobra.Command, args []string) error {
	workspaceID, _ := cmd.Flags().GetString("workspace")
	resolution, _ := cmd.Flags().GetFloat64("resolution")
	maxClusters, _ := cmd.Flags().GetInt("max-clusters")
	minSize, _ := cmd.Flags().GetInt("min-cluster-size")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, _, teardown, err := setup(ctx)
	if err != nil {
		return err
	}
	defer teardown()

	gen, err := application.Concepts()
	if err != nil {
		return err
	}
	ws, err := application.Manager().Open(workspaceID)
	if err != nil {
		return err
	}

	concepts, err := gen.Generate(ctx, ws, concept.Options{
		Resolution:     resolution,
		MaxClusters:    maxClusters,
		MinClusterSize: minSize,
	})
	if err != nil {
		return err
	}
	if len(concepts) == 0 {
		fmt.Println("no clusters large enough to summarise")
		return nil
	}
	for _, c := range concepts {
		fmt.Printf("%s — %s (%d entities)\n", c.ID, c.Title, len(c.Entities))
	}
	return nil
}

func runConceptsList(cmd *cobra.Command, args []string) error {
	workspaceID, _ := cmd.Flags().GetString("workspace")

	application, _, teardown, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer teardown()

	ws, err := application.Manager().Open(workspaceID)
	if err != nil {
		return err
	}
	concepts, err := concept.Load(ws)
	if err != nil {
		return err
	}
	if len(concepts) == 0 {
		fmt.Println("no concepts generated yet")
		return nil
	}
	for _, c := range concepts {
		fmt.Printf("%s — %s\n", c.ID, c.Title)
		fmt.Printf("    %s\n", c.Summary)
	}
	return nil
}

// ── workspace ─────────────────────────────────────────────────────────────────

func runWorkspaceList(cmd *cobra.Command, args []string) error {
	application, _, teardown, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer teardown()

	ids, err := application.Manager().List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("no workspaces")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func runWorkspaceCreate(cmd *cobra.Command, args []string) error {
	application, _, teardown, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer teardown()

	if _, err := application.Manager().Create(args[0]); err != nil {
		return err
	}
	fmt.Printf("created workspace %q\n", args[0])
	return nil
}

func runWorkspaceRemove(cmd *cobra.Command, args []string) error {
	application, _, teardown, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer teardown()

	if err := application.Manager().Remove(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("removed workspace %q\n", args[0])
	return nil
}
