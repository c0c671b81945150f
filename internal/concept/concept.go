// Package concept derives high-level concepts from a workspace's knowledge
// graph: community clusters are summarised by the model into titled
// concepts, persisted to concepts.json, and upserted into the concept
// vector collection for semantic lookup.
package concept

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sporelab/mycelium/internal/workspace"
	"github.com/sporelab/mycelium/pkg/memory"
	"github.com/sporelab/mycelium/pkg/memory/graph"
	"github.com/sporelab/mycelium/pkg/provider/llm"
)

// Defaults for [Options] fields left zero.
const (
	DefaultResolution     = 1.0
	DefaultMaxClusters    = 5
	DefaultMinClusterSize = 5
	DefaultTimeout        = 30 * time.Second

	// maxContextNodes caps how many cluster members are rendered into the
	// summarisation prompt.
	maxContextNodes = 50
)

// Options bounds one concept generation run.
type Options struct {
	// Resolution is the community detection resolution knob; higher values
	// produce more, smaller clusters.
	Resolution float64

	// MaxClusters caps how many clusters are summarised, largest first.
	MaxClusters int

	// MinClusterSize drops clusters below this member count.
	MinClusterSize int

	// Timeout bounds each per-cluster model call.
	Timeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.Resolution <= 0 {
		o.Resolution = DefaultResolution
	}
	if o.MaxClusters <= 0 {
		o.MaxClusters = DefaultMaxClusters
	}
	if o.MinClusterSize <= 0 {
		o.MinClusterSize = DefaultMinClusterSize
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
}

// Generator runs concept derivation. Safe for concurrent use.
type Generator struct {
	model llm.Provider
	log   *slog.Logger
}

// NewGenerator returns a Generator using model for summarisation. A nil
// logger defaults to slog.Default().
func NewGenerator(model llm.Provider, log *slog.Logger) (*Generator, error) {
	if model == nil {
		return nil, fmt.Errorf("concept: model provider is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Generator{model: model, log: log}, nil
}

// clusterSummary is the JSON shape the model is asked to produce.
type clusterSummary struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Generate clusters the workspace graph, summarises the top clusters, and
// persists the result (concepts.json plus the concept vector collection,
// replacing the previous generation). A cluster whose model call or JSON
// parse fails is logged and skipped.
func (g *Generator) Generate(ctx context.Context, ws *workspace.Workspace, opts Options) ([]memory.Concept, error) {
	opts.applyDefaults()

	kg := ws.Store().Graph()
	clusters := kg.Communities(opts.Resolution)

	valid := clusters[:0]
	for _, c := range clusters {
		if len(c) >= opts.MinClusterSize {
			valid = append(valid, c)
		}
	}
	// Communities are returned largest first; after size filtering the order
	// holds, so the cap keeps the biggest clusters.
	if len(valid) > opts.MaxClusters {
		valid = valid[:opts.MaxClusters]
	}

	var concepts []memory.Concept
	for i, members := range valid {
		summary, err := g.summarise(ctx, graphContext(kg, members), opts.Timeout)
		if err != nil {
			g.log.Warn("cluster summarisation failed",
				"workspace", ws.ID, "cluster", i, "size", len(members), "error", err)
			continue
		}
		concepts = append(concepts, memory.Concept{
			ID:       conceptID(i),
			Title:    summary.Title,
			Summary:  summary.Summary,
			Entities: members,
		})
	}

	if len(concepts) == 0 {
		return nil, nil
	}
	if err := g.persist(ctx, ws, concepts); err != nil {
		return concepts, err
	}
	return concepts, nil
}

// graphContext renders the cluster's subgraph for the prompt, capped at
// maxContextNodes members.
func graphContext(g *graph.Graph, members []string) string {
	shown := members
	if len(shown) > maxContextNodes {
		shown = shown[:maxContextNodes]
	}
	ctx := g.DescribeSubgraph(shown)
	if len(members) > maxContextNodes {
		ctx += fmt.Sprintf("\n... (+%d more entities)", len(members)-maxContextNodes)
	}
	return ctx
}

func (g *Generator) summarise(ctx context.Context, subgraph string, timeout time.Duration) (clusterSummary, error) {
	prompt := fmt.Sprintf(`Analyze the following subgraph data and synthesize it into a single "Concept".

Subgraph Data:
%s

Task:
1. Provide a short, catchy 'Title' (max 5 words) that represents this group of entities.
2. Provide a 'Summary' (2-3 sentences) explaining how these entities are related and what this concept represents.

Output strictly as JSON:
{
    "title": "...",
    "summary": "..."
}`, subgraph)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := g.model.Complete(callCtx, llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return clusterSummary{}, fmt.Errorf("concept: summarise: %w", err)
	}

	block, ok := llm.FirstJSONObject(resp.Content)
	if !ok {
		return clusterSummary{}, fmt.Errorf("concept: summarise: no JSON object in response")
	}
	var s clusterSummary
	if err := json.Unmarshal([]byte(block), &s); err != nil {
		return clusterSummary{}, fmt.Errorf("concept: summarise: %w", err)
	}
	if s.Title == "" {
		s.Title = "Untitled Concept"
	}
	if s.Summary == "" {
		s.Summary = "No summary generated."
	}
	return s, nil
}

// conceptRecord is the on-disk layout of one entry in concepts.json.
type conceptRecord struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Nodes   []string `json:"nodes"`
}

// persist writes concepts.json and replaces the concept vector collection.
func (g *Generator) persist(ctx context.Context, ws *workspace.Workspace, concepts []memory.Concept) error {
	records := make([]conceptRecord, len(concepts))
	for i, c := range concepts {
		records[i] = conceptRecord{ID: c.ID, Title: c.Title, Summary: c.Summary, Nodes: c.Entities}
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("concept: persist: %w", err)
	}
	if err := os.WriteFile(conceptsPath(ws), raw, 0o644); err != nil {
		return fmt.Errorf("concept: persist: %w", err)
	}

	if err := ws.Store().ClearConcepts(ctx); err != nil {
		return fmt.Errorf("concept: persist: %w", err)
	}
	if err := ws.Store().UpsertConcepts(ctx, concepts); err != nil {
		return fmt.Errorf("concept: persist: %w", err)
	}
	return nil
}

// Load returns the workspace's cached concepts from concepts.json. A missing
// file yields an empty slice.
func Load(ws *workspace.Workspace) ([]memory.Concept, error) {
	raw, err := os.ReadFile(conceptsPath(ws))
	if err != nil {
		if os.IsNotExist(err) {
			return []memory.Concept{}, nil
		}
		return nil, fmt.Errorf("concept: load: %w", err)
	}
	var records []conceptRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("concept: load: %w", err)
	}
	out := make([]memory.Concept, len(records))
	for i, r := range records {
		out[i] = memory.Concept{ID: r.ID, Title: r.Title, Summary: r.Summary, Entities: r.Nodes}
	}
	return out, nil
}

func conceptsPath(ws *workspace.Workspace) string {
	return filepath.Join(ws.Dir(), "concepts.json")
}

// conceptID builds a unique concept identifier.
func conceptID(i int) string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("c_%d_%s", i, hex.EncodeToString(buf))
}
