package graph_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/sporelab/mycelium/pkg/memory/graph"
)

func TestAddNode(t *testing.T) {
	t.Parallel()

	t.Run("inserts new node", func(t *testing.T) {
		t.Parallel()
		g := graph.New()
		g.AddNode("Alice", "Person", "Software engineer")
		n, ok := g.Node("Alice")
		if !ok {
			t.Fatal("Node: expected Alice to exist")
		}
		if n.Type != "Person" || n.Description != "Software engineer" {
			t.Fatalf("Node: unexpected attributes %+v", n)
		}
	})

	t.Run("merge appends new description", func(t *testing.T) {
		t.Parallel()
		g := graph.New()
		g.AddNode("Alice", "Person", "Software engineer")
		g.AddNode("Alice", "Person", "Lives in Berlin")
		n, _ := g.Node("Alice")
		if n.Description != "Software engineer; Lives in Berlin" {
			t.Fatalf("merge: expected appended description, got %q", n.Description)
		}
	})

	t.Run("merge is idempotent for repeated description", func(t *testing.T) {
		t.Parallel()
		g := graph.New()
		g.AddNode("Alice", "Person", "Software engineer")
		g.AddNode("Alice", "Person", "Software engineer")
		g.AddNode("Alice", "Person", "engineer") // substring, also skipped
		n, _ := g.Node("Alice")
		if n.Description != "Software engineer" {
			t.Fatalf("merge: expected unchanged description, got %q", n.Description)
		}
	})

	t.Run("merge keeps original type", func(t *testing.T) {
		t.Parallel()
		g := graph.New()
		g.AddNode("Alice", "Person", "eng")
		g.AddNode("Alice", "Robot", "android")
		n, _ := g.Node("Alice")
		if n.Type != "Person" {
			t.Fatalf("merge: expected original type Person, got %q", n.Type)
		}
	})
}

func TestUpdateNode(t *testing.T) {
	t.Parallel()

	t.Run("overwrites non-empty fields", func(t *testing.T) {
		t.Parallel()
		g := graph.New()
		g.AddNode("Alice", "Person", "old description")
		if !g.UpdateNode("Alice", "", "new description") {
			t.Fatal("UpdateNode: expected true for existing node")
		}
		n, _ := g.Node("Alice")
		if n.Type != "Person" {
			t.Fatalf("UpdateNode: empty type should be unchanged, got %q", n.Type)
		}
		if n.Description != "new description" {
			t.Fatalf("UpdateNode: expected overwritten description, got %q", n.Description)
		}
	})

	t.Run("missing node reports false", func(t *testing.T) {
		t.Parallel()
		g := graph.New()
		if g.UpdateNode("Ghost", "Person", "boo") {
			t.Fatal("UpdateNode: expected false for missing node")
		}
	})
}

func TestRemoveNode(t *testing.T) {
	t.Parallel()

	t.Run("cascades incident edges", func(t *testing.T) {
		t.Parallel()
		g := graph.New()
		g.AddNode("Alice", "Person", "")
		g.AddNode("Bob", "Person", "")
		g.AddNode("Carol", "Person", "")
		g.AddEdge("Alice", "Bob", "knows")
		g.AddEdge("Alice", "Carol", "works with")
		g.AddEdge("Bob", "Carol", "knows")

		if !g.RemoveNode("Alice") {
			t.Fatal("RemoveNode: expected true")
		}
		if g.HasNode("Alice") {
			t.Fatal("RemoveNode: Alice still present")
		}
		if g.HasEdge("Alice", "Bob") || g.HasEdge("Carol", "Alice") {
			t.Fatal("RemoveNode: incident edges not cascaded")
		}
		if !g.HasEdge("Bob", "Carol") {
			t.Fatal("RemoveNode: unrelated edge removed")
		}
		if got := g.EdgeCount(); got != 1 {
			t.Fatalf("EdgeCount: expected 1, got %d", got)
		}
	})

	t.Run("missing node reports false", func(t *testing.T) {
		t.Parallel()
		g := graph.New()
		if g.RemoveNode("Ghost") {
			t.Fatal("RemoveNode: expected false for missing node")
		}
	})
}

func TestAddEdge(t *testing.T) {
	t.Parallel()

	t.Run("auto-creates placeholder endpoints", func(t *testing.T) {
		t.Parallel()
		g := graph.New()
		g.AddEdge("Alice", "MyCelium", "created")

		for _, name := range []string{"Alice", "MyCelium"} {
			n, ok := g.Node(name)
			if !ok {
				t.Fatalf("AddEdge: expected %s to be auto-created", name)
			}
			if n.Type != graph.PlaceholderType || n.Description != graph.PlaceholderDescription {
				t.Fatalf("AddEdge: expected placeholder attributes for %s, got %+v", name, n)
			}
		}
		if label, ok := g.EdgeLabel("MyCelium", "Alice"); !ok || label != "created" {
			t.Fatalf("EdgeLabel: expected (created, true), got (%q, %v)", label, ok)
		}
	})

	t.Run("edge is undirected", func(t *testing.T) {
		t.Parallel()
		g := graph.New()
		g.AddEdge("Alice", "Bob", "knows")
		if !g.HasEdge("Bob", "Alice") {
			t.Fatal("HasEdge: expected reverse direction to exist")
		}
	})

	t.Run("re-add overwrites label on same pair", func(t *testing.T) {
		t.Parallel()
		g := graph.New()
		g.AddEdge("Alice", "Bob", "knows")
		g.AddEdge("Bob", "Alice", "manages")
		if got := g.EdgeCount(); got != 1 {
			t.Fatalf("EdgeCount: expected 1, got %d", got)
		}
		if label, _ := g.EdgeLabel("Alice", "Bob"); label != "manages" {
			t.Fatalf("EdgeLabel: expected overwritten label, got %q", label)
		}
	})

	t.Run("does not clobber existing endpoint attributes", func(t *testing.T) {
		t.Parallel()
		g := graph.New()
		g.AddNode("Alice", "Person", "engineer")
		g.AddEdge("Alice", "Bob", "knows")
		n, _ := g.Node("Alice")
		if n.Type != "Person" || n.Description != "engineer" {
			t.Fatalf("AddEdge: endpoint attributes changed: %+v", n)
		}
	})
}

func TestUpdateEdge(t *testing.T) {
	t.Parallel()

	t.Run("replaces label of existing edge", func(t *testing.T) {
		t.Parallel()
		g := graph.New()
		g.AddEdge("Alice", "Bob", "knows")
		if !g.UpdateEdge("Bob", "Alice", "mentors") {
			t.Fatal("UpdateEdge: expected true")
		}
		if label, _ := g.EdgeLabel("Alice", "Bob"); label != "mentors" {
			t.Fatalf("UpdateEdge: expected mentors, got %q", label)
		}
	})

	t.Run("missing edge reports false and creates nothing", func(t *testing.T) {
		t.Parallel()
		g := graph.New()
		if g.UpdateEdge("Alice", "Bob", "knows") {
			t.Fatal("UpdateEdge: expected false for missing edge")
		}
		if g.HasNode("Alice") || g.HasNode("Bob") {
			t.Fatal("UpdateEdge: must not create nodes")
		}
	})
}

func TestRemoveEdge(t *testing.T) {
	t.Parallel()

	t.Run("keeps endpoints", func(t *testing.T) {
		t.Parallel()
		g := graph.New()
		g.AddEdge("Alice", "Bob", "knows")
		if !g.RemoveEdge("Alice", "Bob") {
			t.Fatal("RemoveEdge: expected true")
		}
		if g.HasEdge("Alice", "Bob") {
			t.Fatal("RemoveEdge: edge still present")
		}
		if !g.HasNode("Alice") || !g.HasNode("Bob") {
			t.Fatal("RemoveEdge: endpoints must remain")
		}
	})

	t.Run("missing edge reports false", func(t *testing.T) {
		t.Parallel()
		g := graph.New()
		g.AddNode("Alice", "Person", "")
		if g.RemoveEdge("Alice", "Bob") {
			t.Fatal("RemoveEdge: expected false for missing edge")
		}
	})
}

func TestNeighbors(t *testing.T) {
	t.Parallel()

	g := graph.New()
	g.AddEdge("Alice", "Carol", "works with")
	g.AddEdge("Alice", "Bob", "knows")

	t.Run("sorted by name with labels", func(t *testing.T) {
		t.Parallel()
		got := g.Neighbors("Alice")
		if len(got) != 2 {
			t.Fatalf("Neighbors: expected 2, got %d", len(got))
		}
		if got[0].Name != "Bob" || got[0].Relation != "knows" {
			t.Fatalf("Neighbors[0]: got %+v", got[0])
		}
		if got[1].Name != "Carol" || got[1].Relation != "works with" {
			t.Fatalf("Neighbors[1]: got %+v", got[1])
		}
	})

	t.Run("unknown node returns empty non-nil slice", func(t *testing.T) {
		t.Parallel()
		got := g.Neighbors("Ghost")
		if got == nil || len(got) != 0 {
			t.Fatalf("Neighbors: expected empty slice, got %v", got)
		}
	})
}

func TestEdges(t *testing.T) {
	t.Parallel()

	g := graph.New()
	g.AddEdge("Carol", "Bob", "knows")
	g.AddEdge("Alice", "Bob", "manages")

	edges := g.Edges()
	if len(edges) != 2 {
		t.Fatalf("Edges: expected 2, got %d", len(edges))
	}
	// Each edge once, lexicographic endpoint order, sorted.
	if edges[0].Source != "Alice" || edges[0].Target != "Bob" {
		t.Fatalf("Edges[0]: got %+v", edges[0])
	}
	if edges[1].Source != "Bob" || edges[1].Target != "Carol" {
		t.Fatalf("Edges[1]: got %+v", edges[1])
	}
}

func TestSelfLoop(t *testing.T) {
	t.Parallel()

	g := graph.New()
	g.AddEdge("User", "User", "talks_to_self")
	g.AddEdge("User", "Diary", "writes")

	if !g.HasEdge("User", "User") {
		t.Fatal("HasEdge: self-loop missing")
	}
	if got := g.EdgeCount(); got != 2 {
		t.Fatalf("EdgeCount: expected 2, got %d", got)
	}
	edges := g.Edges()
	if len(edges) != 2 {
		t.Fatalf("Edges: expected 2, got %+v", edges)
	}
	// Sorted (Source, Target): Diary-User before User-User.
	if edges[1].Source != "User" || edges[1].Target != "User" || edges[1].Relation != "talks_to_self" {
		t.Fatalf("Edges: self-loop got %+v", edges[1])
	}

	if !g.RemoveEdge("User", "User") {
		t.Fatal("RemoveEdge: self-loop not removed")
	}
	if g.EdgeCount() != 1 || g.HasEdge("User", "User") {
		t.Fatalf("RemoveEdge: self-loop still counted, %d edges", g.EdgeCount())
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	g := graph.New()
	g.AddEdge("Alice", "Bob", "knows")
	g.Clear()
	if g.NodeCount() != 0 || g.EdgeCount() != 0 {
		t.Fatalf("Clear: expected empty graph, got %d nodes %d edges", g.NodeCount(), g.EdgeCount())
	}
	g.AddNode("Alice", "Person", "back again")
	if !g.HasNode("Alice") {
		t.Fatal("Clear: graph unusable after clear")
	}
}

func TestDescribeSubgraph(t *testing.T) {
	t.Parallel()

	g := graph.New()
	g.AddNode("Alice", "Person", "Software engineer")
	g.AddNode("MyCelium", "Project", "Memory engine")
	g.AddNode("Bob", "Person", "Unrelated")
	g.AddEdge("Alice", "MyCelium", "created")
	g.AddEdge("Bob", "Alice", "knows")

	out := g.DescribeSubgraph([]string{"Alice", "MyCelium", "Ghost"})

	if !strings.Contains(out, "Entity: Alice (Person) - Software engineer") {
		t.Fatalf("DescribeSubgraph: missing Alice line:\n%s", out)
	}
	if !strings.Contains(out, "Entity: MyCelium (Project) - Memory engine") {
		t.Fatalf("DescribeSubgraph: missing MyCelium line:\n%s", out)
	}
	if !strings.Contains(out, "- Alice is related to MyCelium via 'created'") {
		t.Fatalf("DescribeSubgraph: missing relationship line:\n%s", out)
	}
	if strings.Contains(out, "Bob") {
		t.Fatalf("DescribeSubgraph: edge to non-member leaked:\n%s", out)
	}
	if strings.Contains(out, "Ghost") {
		t.Fatalf("DescribeSubgraph: unknown name not skipped:\n%s", out)
	}
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	const goroutines = 50
	g := graph.New()

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			g.AddNode("Alice", "Person", "engineer")
			g.AddEdge("Alice", "Bob", "knows")
			_ = g.Neighbors("Alice")
			_ = g.Nodes()
			_ = g.Edges()
			g.UpdateEdge("Alice", "Bob", "mentors")
			g.RemoveEdge("Alice", "Bob")
			g.RemoveNode("Bob")
		}()
	}
	wg.Wait()
}
