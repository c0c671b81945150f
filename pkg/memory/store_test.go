package memory_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sporelab/mycelium/pkg/memory"
	"github.com/sporelab/mycelium/pkg/memory/graph"
	embmock "github.com/sporelab/mycelium/pkg/provider/embeddings/mock"
)

// keywordEmbedder maps texts onto axis-aligned vectors so similarity ranking
// in tests is fully deterministic: a text containing the i-th keyword lands
// on axis i.
func keywordEmbedder(keywords ...string) *embmock.Provider {
	return &embmock.Provider{
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
}

func openStore(t *testing.T, emb *embmock.Provider) *memory.Store {
	t.Helper()
	s, err := memory.Open(memory.Config{
		SnapshotPath: filepath.Join(t.TempDir(), "graph.json"),
		Embeddings:   emb,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestOpenValidation(t *testing.T) {
	t.Parallel()

	if _, err := memory.Open(memory.Config{SnapshotPath: "x.json"}); err == nil {
		t.Fatal("Open: expected error without embeddings provider")
	}
	if _, err := memory.Open(memory.Config{Embeddings: keywordEmbedder()}); err == nil {
		t.Fatal("Open: expected error without snapshot path")
	}
}

func TestAddEntity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("persists graph and syncs index", func(t *testing.T) {
		t.Parallel()
		s := openStore(t, keywordEmbedder("alice"))

		res, err := s.AddEntity(ctx, "Alice", "Person", "Software engineer")
		if err != nil {
			t.Fatalf("AddEntity: %v", err)
		}
		if !res.FullySynced() {
			t.Fatalf("AddEntity: unexpected index error: %v", res.IndexErr)
		}
		if !s.Graph().HasNode("Alice") {
			t.Fatal("AddEntity: node missing from graph")
		}

		got, err := s.RelatedNodes(ctx, "tell me about Alice", 1)
		if err != nil {
			t.Fatalf("RelatedNodes: %v", err)
		}
		if len(got) != 1 || got[0].ID != "Alice" {
			t.Fatalf("RelatedNodes: expected Alice, got %v", got)
		}
	})

	t.Run("index failure surfaces but graph persists", func(t *testing.T) {
		t.Parallel()
		emb := keywordEmbedder("alice")
		s := openStore(t, emb)

		emb.EmbedErr = errors.New("embedding backend down")
		res, err := s.AddEntity(ctx, "Alice", "Person", "engineer")
		if err != nil {
			t.Fatalf("AddEntity: graph half must succeed, got %v", err)
		}
		if res.FullySynced() {
			t.Fatal("AddEntity: expected IndexErr when embedding fails")
		}
		if !s.Graph().HasNode("Alice") {
			t.Fatal("AddEntity: graph mutation lost on index failure")
		}
	})

	t.Run("empty name rejected", func(t *testing.T) {
		t.Parallel()
		s := openStore(t, keywordEmbedder())
		if _, err := s.AddEntity(ctx, "", "Person", ""); err == nil {
			t.Fatal("AddEntity: expected error for empty name")
		}
	})
}

func TestUpdateEntity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t, keywordEmbedder("alice"))

	if _, err := s.AddEntity(ctx, "Alice", "Person", "old"); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}

	ok, res, err := s.UpdateEntity(ctx, "Alice", "", "new description")
	if err != nil || !ok {
		t.Fatalf("UpdateEntity: ok=%v err=%v", ok, err)
	}
	if !res.FullySynced() {
		t.Fatalf("UpdateEntity: unexpected index error: %v", res.IndexErr)
	}
	n, _ := s.Graph().Node("Alice")
	if n.Description != "new description" {
		t.Fatalf("UpdateEntity: description got %q", n.Description)
	}

	ok, _, err = s.UpdateEntity(ctx, "Ghost", "Person", "boo")
	if err != nil {
		t.Fatalf("UpdateEntity missing: %v", err)
	}
	if ok {
		t.Fatal("UpdateEntity: expected false for missing entity")
	}
}

func TestDeleteEntity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t, keywordEmbedder("alice", "bob"))

	if _, err := s.AddEntity(ctx, "Alice", "Person", ""); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	if _, err := s.AddRelation(ctx, "Alice", "Bob", "knows"); err != nil {
		t.Fatalf("AddRelation: %v", err)
	}

	ok, res, err := s.DeleteEntity(ctx, "Alice")
	if err != nil || !ok {
		t.Fatalf("DeleteEntity: ok=%v err=%v", ok, err)
	}
	if !res.FullySynced() {
		t.Fatalf("DeleteEntity: unexpected index error: %v", res.IndexErr)
	}
	if s.Graph().HasNode("Alice") || s.Graph().HasEdge("Alice", "Bob") {
		t.Fatal("DeleteEntity: graph not cleaned up")
	}

	got, err := s.RelatedNodes(ctx, "Alice", 5)
	if err != nil {
		t.Fatalf("RelatedNodes: %v", err)
	}
	for _, r := range got {
		if r.ID == "Alice" {
			t.Fatal("DeleteEntity: Alice still in entity index")
		}
	}

	ok, _, _ = s.DeleteEntity(ctx, "Ghost")
	if ok {
		t.Fatal("DeleteEntity: expected false for missing entity")
	}
}

func TestAddRelation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t, keywordEmbedder("alice", "mycelium"))

	res, err := s.AddRelation(ctx, "Alice", "MyCelium", "created")
	if err != nil {
		t.Fatalf("AddRelation: %v", err)
	}
	if !res.FullySynced() {
		t.Fatalf("AddRelation: unexpected index error: %v", res.IndexErr)
	}

	// Placeholder endpoints are created and indexed.
	n, ok := s.Graph().Node("MyCelium")
	if !ok || n.Type != graph.PlaceholderType {
		t.Fatalf("AddRelation: placeholder endpoint missing: %+v", n)
	}
	got, err := s.RelatedNodes(ctx, "MyCelium", 1)
	if err != nil {
		t.Fatalf("RelatedNodes: %v", err)
	}
	if len(got) != 1 || got[0].ID != "MyCelium" {
		t.Fatalf("RelatedNodes: placeholder not indexed, got %v", got)
	}
}

func TestRelationUpdateDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t, keywordEmbedder())

	if _, err := s.AddRelation(ctx, "Alice", "Bob", "knows"); err != nil {
		t.Fatalf("AddRelation: %v", err)
	}

	ok, err := s.UpdateRelation(ctx, "Bob", "Alice", "mentors")
	if err != nil || !ok {
		t.Fatalf("UpdateRelation: ok=%v err=%v", ok, err)
	}
	if label, _ := s.Graph().EdgeLabel("Alice", "Bob"); label != "mentors" {
		t.Fatalf("UpdateRelation: label got %q", label)
	}

	ok, err = s.DeleteRelation(ctx, "Alice", "Bob")
	if err != nil || !ok {
		t.Fatalf("DeleteRelation: ok=%v err=%v", ok, err)
	}
	if s.Graph().HasEdge("Alice", "Bob") {
		t.Fatal("DeleteRelation: edge still present")
	}
	if !s.Graph().HasNode("Alice") || !s.Graph().HasNode("Bob") {
		t.Fatal("DeleteRelation: endpoints must remain")
	}

	if ok, _ := s.UpdateRelation(ctx, "Alice", "Bob", "x"); ok {
		t.Fatal("UpdateRelation: expected false after deletion")
	}
}

func TestSnapshotPersistence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.json")
	emb := keywordEmbedder("alice")

	s1, err := memory.Open(memory.Config{SnapshotPath: path, Embeddings: emb})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s1.AddEntity(ctx, "Alice", "Person", "engineer"); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	if _, err := s1.AddRelation(ctx, "Alice", "Bob", "knows"); err != nil {
		t.Fatalf("AddRelation: %v", err)
	}

	// Reopen from the snapshot written by the first store.
	s2, err := memory.Open(memory.Config{SnapshotPath: path, Embeddings: emb})
	if err != nil {
		t.Fatalf("Open second: %v", err)
	}
	if !s2.Graph().HasNode("Alice") || !s2.Graph().HasEdge("Alice", "Bob") {
		t.Fatal("Open: snapshot content not restored")
	}
}

func TestReindex(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	emb := keywordEmbedder("alice", "bob")
	s := openStore(t, emb)

	// Break the index on purpose: entities exist in the graph but the first
	// sync failed.
	emb.EmbedErr = errors.New("backend down")
	if _, err := s.AddEntity(ctx, "Alice", "Person", ""); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	if _, err := s.AddEntity(ctx, "Bob", "Person", ""); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	emb.EmbedErr = nil

	n, err := s.Reindex(ctx)
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if n != 2 {
		t.Fatalf("Reindex: expected 2 entities, got %d", n)
	}
	got, err := s.RelatedNodes(ctx, "Alice", 1)
	if err != nil {
		t.Fatalf("RelatedNodes: %v", err)
	}
	if len(got) != 1 || got[0].ID != "Alice" {
		t.Fatalf("Reindex: index not rebuilt, got %v", got)
	}
}

func TestNotes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t, keywordEmbedder("gardening", "cooking"))

	notes := []memory.Note{
		{ID: "n1", Title: "Gardening tips", Content: "Water the tomatoes in the morning."},
		{ID: "n2", Title: "Cooking basics", Content: "Salt the pasta water."},
	}
	for _, n := range notes {
		if err := s.IndexNote(ctx, n); err != nil {
			t.Fatalf("IndexNote: %v", err)
		}
	}

	got, err := s.SearchNotes(ctx, "anything about gardening?", 1)
	if err != nil {
		t.Fatalf("SearchNotes: %v", err)
	}
	if len(got) != 1 || got[0].ID != "n1" {
		t.Fatalf("SearchNotes: expected n1, got %v", got)
	}
	if got[0].Metadata["title"] != "Gardening tips" {
		t.Fatalf("SearchNotes: title metadata lost: %v", got[0].Metadata)
	}

	if err := s.DeleteNote(ctx, "n1"); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Notes != 1 {
		t.Fatalf("Stats: expected 1 note after delete, got %d", st.Notes)
	}
}

func TestSkills(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t, keywordEmbedder("regex"))

	sk := memory.Skill{
		ID:          "s1",
		Title:       "Writing regex",
		Summary:     "How to build a regex incrementally",
		Explanation: "Start from a literal match, then generalize one token at a time.",
	}
	if err := s.IndexSkill(ctx, sk); err != nil {
		t.Fatalf("IndexSkill: %v", err)
	}

	got, err := s.SearchSkills(ctx, "help me with regex", 1)
	if err != nil {
		t.Fatalf("SearchSkills: %v", err)
	}
	if len(got) != 1 || got[0].ID != "s1" {
		t.Fatalf("SearchSkills: expected s1, got %v", got)
	}
	if got[0].Metadata["explanation"] == "" {
		t.Fatal("SearchSkills: explanation metadata missing")
	}
}

func TestConcepts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t, keywordEmbedder("work"))

	concepts := []memory.Concept{
		{ID: "c1", Title: "Work life", Summary: "Job, colleagues and projects", Entities: []string{"Alice", "MyCelium"}},
	}
	if err := s.UpsertConcepts(ctx, concepts); err != nil {
		t.Fatalf("UpsertConcepts: %v", err)
	}

	got, err := s.SearchConcepts(ctx, "about work", 1)
	if err != nil {
		t.Fatalf("SearchConcepts: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("SearchConcepts: expected c1, got %v", got)
	}

	if err := s.ClearConcepts(ctx); err != nil {
		t.Fatalf("ClearConcepts: %v", err)
	}
	st, _ := s.Stats(ctx)
	if st.Concepts != 0 {
		t.Fatalf("ClearConcepts: expected 0 concepts, got %d", st.Concepts)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t, keywordEmbedder())

	if _, err := s.AddRelation(ctx, "Alice", "Bob", "knows"); err != nil {
		t.Fatalf("AddRelation: %v", err)
	}
	if err := s.IndexNote(ctx, memory.Note{ID: "n1", Title: "t", Content: "c"}); err != nil {
		t.Fatalf("IndexNote: %v", err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Nodes != 2 || st.Edges != 1 || st.Entities != 2 || st.Notes != 1 {
		t.Fatalf("Stats: unexpected counts %+v", st)
	}
}
