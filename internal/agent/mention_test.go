package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/sporelab/mycelium/internal/workspace"
	embmock "github.com/sporelab/mycelium/pkg/provider/embeddings/mock"
)

func newTestManager(t *testing.T, keywords ...string) *workspace.Manager {
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
	m, err := workspace.NewManager(workspace.Config{BaseDir: t.TempDir(), Embeddings: emb})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestParseMention(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		name string
		kind string
	}{
		{"Alice", "Alice", "any"},
		{"Alice:node", "Alice", "node"},
		{"Shopping List:note", "Shopping List", "note"},
		{"Deep Ecology:concept", "Deep Ecology", "concept"},
		{"Alice : node", "Alice", "node"},
		// A colon that does not introduce a kind stays in the name.
		{"Meeting 10:30", "Meeting 10:30", "any"},
		{"a:b:note", "a:b", "note"},
	}
	for _, tc := range cases {
		got := parseMention(tc.raw)
		if got.Name != tc.name || got.Kind != tc.kind {
			t.Errorf("parseMention(%q) = %+v, want {%s %s}", tc.raw, got, tc.name, tc.kind)
		}
	}
}

func TestResolveMentions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := newTestManager(t)
	ws, err := m.Open("ws")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := ws.Store().AddEntity(ctx, "Alice", "Person", "Software engineer"); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	if _, err := ws.SaveNote(ctx, workspace.Note{Title: "Shopping List", Content: "Milk"}); err != nil {
		t.Fatalf("SaveNote: %v", err)
	}

	t.Run("entity and note", func(t *testing.T) {
		t.Parallel()
		blocks := resolveMentions(ws, "Tell me about @[Alice] and @[Shopping List:note].")
		if len(blocks) != 2 {
			t.Fatalf("resolveMentions: %v", blocks)
		}
		if blocks[0] != "ENTITY 'Alice' (Person): Software engineer" {
			t.Fatalf("resolveMentions: %q", blocks[0])
		}
		if blocks[1] != "NOTE 'Shopping List':\nMilk" {
			t.Fatalf("resolveMentions: %q", blocks[1])
		}
	})

	t.Run("fuzzy note title", func(t *testing.T) {
		t.Parallel()
		blocks := resolveMentions(ws, "Check @[shoping list:note] please.")
		if len(blocks) != 1 || !strings.Contains(blocks[0], "Shopping List") {
			t.Fatalf("resolveMentions: %v", blocks)
		}
	})

	t.Run("kind filters the lookup", func(t *testing.T) {
		t.Parallel()
		// Alice is a graph node, not a note.
		if blocks := resolveMentions(ws, "See @[Alice:note]."); blocks != nil {
			t.Fatalf("resolveMentions: %v", blocks)
		}
	})

	t.Run("unresolved mentions drop silently", func(t *testing.T) {
		t.Parallel()
		if blocks := resolveMentions(ws, "Who is @[Zorblax]?"); blocks != nil {
			t.Fatalf("resolveMentions: %v", blocks)
		}
	})

	t.Run("no mentions", func(t *testing.T) {
		t.Parallel()
		if blocks := resolveMentions(ws, "Plain message."); blocks != nil {
			t.Fatalf("resolveMentions: %v", blocks)
		}
	})
}

func TestLookupNoteDistanceBudget(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	ws, _ := m.Open("ws")
	if _, err := ws.SaveNote(context.Background(), workspace.Note{Title: "Recipes", Content: "Soup"}); err != nil {
		t.Fatalf("SaveNote: %v", err)
	}

	if _, ok := lookupNote(ws, "recipe"); !ok {
		t.Fatal("lookupNote: one edit away not matched")
	}
	if _, ok := lookupNote(ws, "rx"); ok {
		t.Fatal("lookupNote: far title matched")
	}
}
