package retrieval_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sporelab/mycelium/internal/retrieval"
	"github.com/sporelab/mycelium/pkg/memory"
	embmock "github.com/sporelab/mycelium/pkg/provider/embeddings/mock"
)

// newStore builds a store whose entity index deterministically matches the
// keyword list: a query containing keyword i is nearest to the entity whose
// card contains keyword i.
func newStore(t *testing.T, keywords ...string) *memory.Store {
	t.Helper()
	emb := &embmock.Provider{
		DimensionsValue: len(keywords) + 1,
		ModelIDValue:    "test-embed",
		EmbedFunc: func(text string) []float32 {
			vec := make([]float32, len(keywords)+1)
			for i, kw := range keywords {
				if strings.Contains(strings.ToLower(text), strings.ToLower(kw)) {
					vec[i] = 1
					return vec
				}
			}
			vec[len(keywords)] = 1
			return vec
		},
	}
	s, err := memory.Open(memory.Config{
		SnapshotPath: filepath.Join(t.TempDir(), "graph.json"),
		Embeddings:   emb,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestRetrieve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("seed plus one hop", func(t *testing.T) {
		t.Parallel()
		s := newStore(t, "alice")
		mustAdd(t, s, "Alice", "Person", "Software engineer")
		mustAdd(t, s, "MyCelium", "Project", "Memory engine")
		mustRelate(t, s, "Alice", "MyCelium", "created")

		r := retrieval.New(s, nil)
		got, err := r.Retrieve(ctx, "what does Alice work on?", retrieval.Options{K: 1, Depth: 1})
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}

		if !strings.Contains(got.Context, "Entity (Depth 0): Alice (Person) - Software engineer") {
			t.Fatalf("Retrieve: missing seed line with description:\n%s", got.Context)
		}
		if !strings.Contains(got.Context, "  - Related to MyCelium via 'created'") {
			t.Fatalf("Retrieve: missing edge line:\n%s", got.Context)
		}
		// One hop out: MyCelium reported without description.
		if !strings.Contains(got.Context, "Entity (Depth 1): MyCelium (Project)") {
			t.Fatalf("Retrieve: missing hop-1 entity:\n%s", got.Context)
		}
		if strings.Contains(got.Context, "MyCelium (Project) - Memory engine") {
			t.Fatalf("Retrieve: hop-1 description must be omitted by default:\n%s", got.Context)
		}

		if len(got.Nodes) != 2 || got.Nodes[0] != "Alice" || got.Nodes[1] != "MyCelium" {
			t.Fatalf("Retrieve: nodes got %v", got.Nodes)
		}
		if len(got.Edges) != 1 || got.Edges[0].Source != "Alice" || got.Edges[0].Target != "MyCelium" {
			t.Fatalf("Retrieve: edges got %v", got.Edges)
		}
	})

	t.Run("include descriptions at every hop", func(t *testing.T) {
		t.Parallel()
		s := newStore(t, "alice")
		mustAdd(t, s, "Alice", "Person", "engineer")
		mustAdd(t, s, "Berlin", "Place", "City in Germany")
		mustRelate(t, s, "Alice", "Berlin", "lives in")

		r := retrieval.New(s, nil)
		got, err := r.Retrieve(ctx, "Alice", retrieval.Options{K: 1, Depth: 1, IncludeDescriptions: true})
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if !strings.Contains(got.Context, "Entity (Depth 1): Berlin (Place) - City in Germany") {
			t.Fatalf("Retrieve: hop-1 description missing:\n%s", got.Context)
		}
	})

	t.Run("depth limit reported not expanded", func(t *testing.T) {
		t.Parallel()
		s := newStore(t, "a")
		// Chain A - B - C: with depth 1, B is reported, C never appears.
		mustAdd(t, s, "A", "Person", "start")
		mustRelate(t, s, "A", "B", "next")
		mustRelate(t, s, "B", "C", "next")

		r := retrieval.New(s, nil)
		got, err := r.Retrieve(ctx, "a", retrieval.Options{FocusedNode: "A", Depth: 1})
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if !strings.Contains(got.Context, "Entity (Depth 1): B") {
			t.Fatalf("Retrieve: B missing:\n%s", got.Context)
		}
		if strings.Contains(got.Context, "C") {
			t.Fatalf("Retrieve: C leaked past depth limit:\n%s", got.Context)
		}
		// B is at max depth: no edge lines from B.
		if len(got.Edges) != 1 {
			t.Fatalf("Retrieve: expected 1 edge, got %v", got.Edges)
		}
	})

	t.Run("depth zero returns only the seeds", func(t *testing.T) {
		t.Parallel()
		s := newStore(t, "a")
		mustAdd(t, s, "A", "Person", "start")
		mustRelate(t, s, "A", "B", "next")

		r := retrieval.New(s, nil)
		got, err := r.Retrieve(ctx, "a", retrieval.Options{FocusedNode: "A", Depth: 0})
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if len(got.Nodes) != 1 || got.Nodes[0] != "A" {
			t.Fatalf("Retrieve: expected only seed A, got %v", got.Nodes)
		}
		if len(got.Edges) != 0 {
			t.Fatalf("Retrieve: depth 0 must traverse no edges, got %v", got.Edges)
		}
		if strings.Contains(got.Context, "Related to") {
			t.Fatalf("Retrieve: depth 0 rendered an edge line:\n%s", got.Context)
		}
	})

	t.Run("focused node overrides vector search", func(t *testing.T) {
		t.Parallel()
		s := newStore(t, "alice")
		mustAdd(t, s, "Alice", "Person", "engineer")
		mustAdd(t, s, "Bob", "Person", "gardener")

		r := retrieval.New(s, nil)
		got, err := r.Retrieve(ctx, "alice", retrieval.Options{FocusedNode: "Bob"})
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if len(got.Nodes) != 1 || got.Nodes[0] != "Bob" {
			t.Fatalf("Retrieve: expected focused Bob, got %v", got.Nodes)
		}
	})

	t.Run("unknown focused node falls back to vector search", func(t *testing.T) {
		t.Parallel()
		s := newStore(t, "alice")
		mustAdd(t, s, "Alice", "Person", "engineer")

		r := retrieval.New(s, nil)
		got, err := r.Retrieve(ctx, "alice", retrieval.Options{FocusedNode: "Ghost", K: 1})
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if len(got.Nodes) != 1 || got.Nodes[0] != "Alice" {
			t.Fatalf("Retrieve: expected fallback to Alice, got %v", got.Nodes)
		}
	})

	t.Run("no seeds yields empty result nil error", func(t *testing.T) {
		t.Parallel()
		s := newStore(t, "alice")

		r := retrieval.New(s, nil)
		got, err := r.Retrieve(ctx, "anything", retrieval.Options{})
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if got.Context != "" || len(got.Nodes) != 0 || len(got.Edges) != 0 {
			t.Fatalf("Retrieve: expected empty result, got %+v", got)
		}
		if got.Nodes == nil || got.Edges == nil {
			t.Fatal("Retrieve: node/edge slices must be non-nil")
		}
	})

	t.Run("edges back to visited nodes still rendered", func(t *testing.T) {
		t.Parallel()
		s := newStore(t, "a", "b")
		// Triangle A-B-C with both A and B as seeds: the A-B edge appears
		// from A's side, and B's expansion renders its own edges too.
		mustRelate(t, s, "A", "B", "knows")
		mustRelate(t, s, "B", "C", "knows")
		mustRelate(t, s, "A", "C", "knows")

		r := retrieval.New(s, nil)
		got, err := r.Retrieve(ctx, "a b", retrieval.Options{K: 2, Depth: 1})
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		// Seeds A and B expand; C is reached at depth 1 and not expanded.
		// A contributes edges to B and C; B contributes edges to A and C.
		if len(got.Edges) != 4 {
			t.Fatalf("Retrieve: expected 4 traversed edges, got %d: %v", len(got.Edges), got.Edges)
		}
	})
}

func mustAdd(t *testing.T, s *memory.Store, name, typ, desc string) {
	t.Helper()
	if _, err := s.AddEntity(context.Background(), name, typ, desc); err != nil {
		t.Fatalf("AddEntity(%s): %v", name, err)
	}
}

func mustRelate(t *testing.T, s *memory.Store, source, target, relation string) {
	t.Helper()
	if _, err := s.AddRelation(context.Background(), source, target, relation); err != nil {
		t.Fatalf("AddRelation(%s, %s): %v", source, target, err)
	}
}
