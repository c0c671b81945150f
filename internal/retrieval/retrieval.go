// Package retrieval implements the hybrid retriever: vector similarity picks
// the entry points into the knowledge graph, then a breadth-first traversal
// expands them into a bounded context document for the model.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sporelab/mycelium/pkg/memory"
	"github.com/sporelab/mycelium/pkg/memory/graph"
)

// DefaultK is the seed count applied when Options.K is zero.
const DefaultK = 3

// DefaultDepth is the hop bound callers use when they have no configured
// depth of their own. Retrieve does not apply it: a zero depth is a valid
// request for the seeds alone.
const DefaultDepth = 1

// Options bounds a retrieval.
type Options struct {
	// K is the number of vector matches used as traversal seeds.
	K int

	// Depth is the maximum hop distance from a seed. Nodes at the maximum
	// depth are reported but not expanded; zero returns the seeds alone,
	// with no edges.
	Depth int

	// IncludeDescriptions renders entity descriptions at every hop instead of
	// only at the seeds.
	IncludeDescriptions bool

	// FocusedNode, when set and present in the graph, replaces the vector
	// search as the single traversal seed.
	FocusedNode string
}

// Result is the outcome of one retrieval: the rendered context plus the
// visited nodes and traversed edges, in traversal order, for callers that
// highlight them (graph visualization, tests).
type Result struct {
	Context string
	Nodes   []string
	Edges   []graph.Edge
}

// Retriever runs hybrid retrievals against one workspace's memory store.
// Safe for concurrent use.
type Retriever struct {
	store *memory.Store
	log   *slog.Logger
}

// New returns a Retriever over store. A nil logger defaults to slog.Default().
func New(store *memory.Store, log *slog.Logger) *Retriever {
	if log == nil {
		log = slog.Default()
	}
	return &Retriever{store: store, log: log}
}

// Retrieve seeds a breadth-first traversal from the top-K entity matches for
// query (or from opts.FocusedNode) and renders the visited subgraph.
//
// Finding nothing is not an error: when no seed lands in the graph the result
// is empty and err is nil.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) (Result, error) {
	if opts.K <= 0 {
		opts.K = DefaultK
	}
	if opts.Depth < 0 {
		opts.Depth = 0
	}

	g := r.store.Graph()

	var seeds []string
	if opts.FocusedNode != "" && g.HasNode(opts.FocusedNode) {
		seeds = []string{opts.FocusedNode}
	} else {
		matches, err := r.store.RelatedNodes(ctx, query, opts.K)
		if err != nil {
			return Result{}, fmt.Errorf("retrieval: seed search: %w", err)
		}
		for _, m := range matches {
			// The index may lag behind the graph; only surviving nodes seed.
			if g.HasNode(m.ID) {
				seeds = append(seeds, m.ID)
			}
		}
	}

	if len(seeds) == 0 {
		r.log.Debug("retrieval found no seeds", "query", query)
		return Result{Nodes: []string{}, Edges: []graph.Edge{}}, nil
	}

	return traverse(g, seeds, opts), nil
}

type queueItem struct {
	name  string
	depth int
}

// traverse is the breadth-first expansion. Every dequeued node contributes an
// entity line; every neighbor of a node below the depth limit contributes an
// edge — including edges back to already visited nodes, so the rendered
// subgraph stays connected.
func traverse(g *graph.Graph, seeds []string, opts Options) Result {
	visited := make(map[string]bool, len(seeds))
	queue := make([]queueItem, 0, len(seeds))
	for _, s := range seeds {
		queue = append(queue, queueItem{name: s})
		visited[s] = true
	}

	res := Result{Nodes: []string{}, Edges: []graph.Edge{}}
	var lines []string

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		res.Nodes = append(res.Nodes, item.name)

		node, ok := g.Node(item.name)
		if !ok {
			continue
		}
		desc := ""
		if item.depth == 0 || opts.IncludeDescriptions {
			desc = " - " + node.Description
		}
		lines = append(lines, fmt.Sprintf("Entity (Depth %d): %s (%s)%s", item.depth, node.Name, node.Type, desc))

		if item.depth >= opts.Depth {
			continue
		}

		for _, nb := range g.Neighbors(item.name) {
			res.Edges = append(res.Edges, graph.Edge{
				Source:   item.name,
				Target:   nb.Name,
				Relation: nb.Relation,
			})
			lines = append(lines, fmt.Sprintf("  - Related to %s via '%s'", nb.Name, nb.Relation))

			if !visited[nb.Name] {
				visited[nb.Name] = true
				queue = append(queue, queueItem{name: nb.Name, depth: item.depth + 1})
			}
		}
	}

	res.Context = strings.Join(lines, "\n")
	return res
}
