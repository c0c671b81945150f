// Package agent drives the conversational workflow over a workspace's
// memory: retrieve context, generate (looping through tool calls), extract
// knowledge from the exchange and reflect on the persona's emotional state.
//
// The workflow is an explicit state progression per turn:
//
//	retrieve → generate → {tools ⟲ generate} → extract → reflect → end
//
// A [Runner] holds the providers; all per-turn state (history, retrieved
// context, workspace) lives in the [Runner.Turn] call so a single Runner
// serves every workspace concurrently.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sporelab/mycelium/internal/observe"
	"github.com/sporelab/mycelium/internal/retrieval"
	"github.com/sporelab/mycelium/internal/tool"
	"github.com/sporelab/mycelium/internal/workspace"
	"github.com/sporelab/mycelium/pkg/provider/llm"
)

// DefaultMaxToolRounds caps how many tool-call rounds one turn may take
// before the model is forced to answer with what it has.
const DefaultMaxToolRounds = 5

// Config assembles a Runner.
type Config struct {
	// Manager resolves workspace ids to open workspaces. Required.
	Manager *workspace.Manager

	// Model produces responses, extractions and reflections. Required.
	Model llm.Provider

	// Registry supplies the tool roster, re-snapshotted at generation and
	// again at every tool-execution round. Required.
	Registry *tool.Registry

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// MaxToolRounds defaults to DefaultMaxToolRounds.
	MaxToolRounds int

	// Temperature is passed through to the model. Zero selects the provider
	// default.
	Temperature float64
}

// Runner executes agent turns. Safe for concurrent use.
type Runner struct {
	manager   *workspace.Manager
	model     llm.Provider
	registry  *tool.Registry
	extractor *Extractor
	metrics   *observe.Metrics
	log       *slog.Logger

	maxToolRounds int
	temperature   float64
}

// New validates cfg and returns a Runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("agent: workspace manager is required")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("agent: model provider is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("agent: tool registry is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	extractor, err := NewExtractor(cfg.Model, cfg.Logger)
	if err != nil {
		return nil, err
	}
	return &Runner{
		manager:       cfg.Manager,
		model:         cfg.Model,
		registry:      cfg.Registry,
		extractor:     extractor,
		metrics:       observe.DefaultMetrics(),
		log:           cfg.Logger,
		maxToolRounds: cfg.MaxToolRounds,
		temperature:   cfg.Temperature,
	}, nil
}

// Reply is the outcome of one turn.
type Reply struct {
	// Content is the assistant's final text.
	Content string

	// Messages are the messages produced during the turn, in order:
	// intermediate assistant tool-call messages, tool results, and the final
	// assistant message. Callers append these to their history.
	Messages []llm.Message

	// Entities and Relations count the knowledge-graph writes extracted from
	// this exchange.
	Entities  int
	Relations int

	// Emotions is the persona's state after reflection.
	Emotions workspace.EmotionState
}

// Turn runs one full workflow pass for the workspace. history is the prior
// conversation (user and assistant roles); its last user message drives
// retrieval. Extraction and reflection failures degrade to no-ops — a memory
// hiccup never loses the response.
func (r *Runner) Turn(ctx context.Context, workspaceID string, history []llm.Message) (*Reply, error) {
	turnStatus := "error"
	defer func() { r.metrics.RecordTurn(ctx, workspaceID, turnStatus) }()

	ws, err := r.manager.Open(workspaceID)
	if err != nil {
		return nil, fmt.Errorf("agent: turn: %w", err)
	}
	settings, err := ws.Settings()
	if err != nil {
		return nil, fmt.Errorf("agent: turn: %w", err)
	}

	userText := lastUserText(history)
	if userText == "" {
		return nil, fmt.Errorf("agent: turn: history has no user message")
	}

	memoryContext := r.retrieveContext(ctx, ws, settings, userText)
	specs := toolSpecs(r.registry.Snapshot(ctx), settings)
	systemPrompt := buildSystemPrompt(ws, settings, memoryContext)

	msgs := truncateHistory(history, settings.ChatMessageLimit)
	var produced []llm.Message

	var resp *llm.CompletionResponse
	for round := 0; ; round++ {
		callStart := time.Now()
		resp, err = r.model.Complete(ctx, llm.CompletionRequest{
			Messages:     msgs,
			Tools:        specs,
			SystemPrompt: systemPrompt,
			Temperature:  r.temperature,
		})
		r.metrics.ModelDuration.Record(ctx, time.Since(callStart).Seconds())
		if err != nil {
			return nil, fmt.Errorf("agent: turn: %w", err)
		}
		if len(resp.ToolCalls) == 0 || round >= r.maxToolRounds {
			break
		}

		assistant := llm.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls}
		msgs = append(msgs, assistant)
		produced = append(produced, assistant)

		// Tool availability is resolved at execution time: the roster is
		// re-snapshotted and the allowlist re-read every round, so tools
		// registered or toggled mid-turn take effect immediately and a
		// call naming a disabled tool is rejected even when the model saw
		// an older roster.
		roster := r.registry.Snapshot(ctx)
		if st, err := ws.Settings(); err == nil {
			settings = st
		}
		allowed := enabledFilter(settings)

		for _, call := range resp.ToolCalls {
			execStart := time.Now()
			var out string
			execErr := fmt.Errorf("tool %q is not enabled in this workspace", call.Name)
			if allowed(call.Name) {
				out, execErr = roster.Execute(ctx, ws.ID, call.Name, call.Arguments)
			}
			r.metrics.ToolExecutionDuration.Record(ctx, time.Since(execStart).Seconds())
			if execErr != nil {
				r.log.Warn("tool execution failed",
					"workspace", ws.ID, "tool", call.Name, "error", execErr)
				r.metrics.RecordToolCall(ctx, call.Name, "error")
				out = "Error: " + execErr.Error()
			} else {
				r.metrics.RecordToolCall(ctx, call.Name, "ok")
			}
			result := llm.Message{Role: "tool", Content: out, ToolCallID: call.ID}
			msgs = append(msgs, result)
			produced = append(produced, result)
		}
	}

	final := llm.Message{Role: "assistant", Content: resp.Content}
	produced = append(produced, final)
	reply := &Reply{Content: resp.Content, Messages: produced}

	if ents, rels, err := r.extractor.ExtractInteraction(ctx, ws.Store(), userText, resp.Content); err != nil {
		r.log.Warn("knowledge extraction failed", "workspace", ws.ID, "error", err)
	} else {
		reply.Entities, reply.Relations = ents, rels
		r.metrics.RecordExtraction(ctx, ws.ID, ents, rels)
	}

	if state, err := r.reflect(ctx, ws, userText, resp.Content); err != nil {
		r.log.Warn("emotion reflection failed", "workspace", ws.ID, "error", err)
		reply.Emotions, _ = ws.Emotions()
	} else {
		reply.Emotions = state
	}

	turnStatus = "ok"
	return reply, nil
}

// Extractor exposes the runner's extractor for document ingestion wiring.
func (r *Runner) Extractor() *Extractor { return r.extractor }

// retrieveContext combines explicit @[...] mention resolution with the
// automatic graph retrieval for the user's message. The two lookups are
// independent and run in parallel. Retrieval failure degrades to
// mention-only context.
func (r *Runner) retrieveContext(ctx context.Context, ws *workspace.Workspace, settings workspace.Settings, text string) string {
	var (
		explicit []string
		res      retrieval.Result
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		explicit = resolveMentions(ws, text)
		return nil
	})
	eg.Go(func() error {
		start := time.Now()
		var err error
		res, err = retrieval.New(ws.Store(), r.log).Retrieve(egCtx, text, retrieval.Options{
			K:                   settings.GraphK,
			Depth:               settings.GraphDepth,
			IncludeDescriptions: settings.GraphIncludeDescriptions,
		})
		r.metrics.RetrievalDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			r.log.Warn("memory retrieval failed", "workspace", ws.ID, "error", err)
		}
		return nil
	})
	_ = eg.Wait()

	var parts []string
	if len(explicit) > 0 {
		parts = append(parts,
			"### EXPLICITLY REFERENCED CONTEXT (@Mentions):",
			strings.Join(explicit, "\n\n"),
			"### RELEVANT MEMORY (Automatic):",
		)
	}
	parts = append(parts, res.Context)
	return strings.Join(parts, "\n")
}

// enabledFilter returns the workspace's tool admission predicate: the
// allowlist when one is set; otherwise everything, minus the web-facing
// tools when search is disabled.
func enabledFilter(settings workspace.Settings) func(name string) bool {
	return func(name string) bool {
		if !settings.ToolEnabled(name) {
			return false
		}
		if settings.EnabledTools == nil && !settings.AllowSearch {
			switch name {
			case "search_web", "search_images":
				return false
			}
		}
		return true
	}
}

// toolSpecs converts the roster to model tool specs, honoring the
// workspace's tool admission rules.
func toolSpecs(roster *tool.Roster, settings workspace.Settings) []llm.ToolSpec {
	defs := roster.Definitions(enabledFilter(settings))

	specs := make([]llm.ToolSpec, len(defs))
	for i, d := range defs {
		specs[i] = llm.ToolSpec{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}
	return specs
}

// truncateHistory keeps the most recent limit messages. Zero or negative
// limit keeps everything.
func truncateHistory(history []llm.Message, limit int) []llm.Message {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	msgs := make([]llm.Message, len(history))
	copy(msgs, history)
	return msgs
}

// lastUserText returns the content of the most recent user message.
func lastUserText(history []llm.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			return history[i].Content
		}
	}
	return ""
}
