package graph_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sporelab/mycelium/pkg/memory/graph"
)

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	g := graph.New()
	g.AddNode("Alice", "Person", "Software engineer")
	g.AddNode("MyCelium", "Project", "Memory engine")
	g.AddEdge("Alice", "MyCelium", "created")
	g.AddEdge("Alice", "Berlin", "lives in") // Berlin auto-created

	path := filepath.Join(t.TempDir(), "graph.json")
	if err := g.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := graph.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.NodeCount() != g.NodeCount() || loaded.EdgeCount() != g.EdgeCount() {
		t.Fatalf("round trip: expected %d/%d nodes/edges, got %d/%d",
			g.NodeCount(), g.EdgeCount(), loaded.NodeCount(), loaded.EdgeCount())
	}
	n, ok := loaded.Node("Alice")
	if !ok || n.Type != "Person" || n.Description != "Software engineer" {
		t.Fatalf("round trip: Alice attributes lost: %+v", n)
	}
	b, ok := loaded.Node("Berlin")
	if !ok || b.Type != graph.PlaceholderType {
		t.Fatalf("round trip: placeholder node lost: %+v", b)
	}
	if label, ok := loaded.EdgeLabel("Alice", "MyCelium"); !ok || label != "created" {
		t.Fatalf("round trip: edge label lost, got (%q, %v)", label, ok)
	}
}

func TestSnapshotRoundTripSelfLoop(t *testing.T) {
	t.Parallel()

	g := graph.New()
	g.AddNode("User", "Person", "The user")
	g.AddEdge("User", "User", "talks_to_self")

	path := filepath.Join(t.TempDir(), "graph.json")
	if err := g.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := graph.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !loaded.HasEdge("User", "User") {
		t.Fatal("round trip: self-loop lost")
	}
	if loaded.EdgeCount() != 1 {
		t.Fatalf("round trip: expected 1 edge, got %d", loaded.EdgeCount())
	}
	if label, ok := loaded.EdgeLabel("User", "User"); !ok || label != "talks_to_self" {
		t.Fatalf("round trip: self-loop label got (%q, %v)", label, ok)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	g, err := graph.Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: expected nil error for missing file, got %v", err)
	}
	if g.NodeCount() != 0 {
		t.Fatalf("Load: expected empty graph, got %d nodes", g.NodeCount())
	}
}

func TestLoadCorruptFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "graph.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	g, err := graph.Load(path)
	if !errors.Is(err, graph.ErrSnapshotCorrupt) {
		t.Fatalf("Load: expected ErrSnapshotCorrupt, got %v", err)
	}
	if g == nil || g.NodeCount() != 0 {
		t.Fatal("Load: expected empty usable graph alongside the error")
	}
	// The graph must stay usable so the session can continue.
	g.AddNode("Alice", "Person", "")
	if !g.HasNode("Alice") {
		t.Fatal("Load: returned graph not usable")
	}

	if _, statErr := os.Stat(path + ".bak"); statErr != nil {
		t.Fatalf("Load: corrupt file not quarantined to .bak: %v", statErr)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatal("Load: corrupt file left in place")
	}
}

func TestLoadEdgesAlias(t *testing.T) {
	t.Parallel()

	// Snapshots from older exporters use "edges" instead of "links".
	path := filepath.Join(t.TempDir(), "graph.json")
	data := `{
		"nodes": [{"id": "Alice", "type": "Person"}, {"id": "Bob", "type": "Person"}],
		"edges": [{"source": "Alice", "target": "Bob", "relation": "knows"}]
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	g, err := graph.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if label, ok := g.EdgeLabel("Alice", "Bob"); !ok || label != "knows" {
		t.Fatalf("Load: edges alias not honored, got (%q, %v)", label, ok)
	}
}

func TestSaveCreatesParentDir(t *testing.T) {
	t.Parallel()

	g := graph.New()
	g.AddNode("Alice", "Person", "")

	path := filepath.Join(t.TempDir(), "deep", "nested", "graph.json")
	if err := g.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := graph.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.HasNode("Alice") {
		t.Fatal("Save: snapshot content missing")
	}
}

func TestSaveOverwritesAtomically(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "graph.json")

	g1 := graph.New()
	g1.AddNode("Old", "Person", "")
	if err := g1.Save(path); err != nil {
		t.Fatalf("Save first: %v", err)
	}

	g2 := graph.New()
	g2.AddNode("New", "Person", "")
	if err := g2.Save(path); err != nil {
		t.Fatalf("Save second: %v", err)
	}

	loaded, err := graph.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.HasNode("Old") || !loaded.HasNode("New") {
		t.Fatal("Save: overwrite did not replace previous snapshot")
	}
	if _, statErr := os.Stat(path + ".tmp"); !os.IsNotExist(statErr) {
		t.Fatal("Save: temp file left behind")
	}
}
