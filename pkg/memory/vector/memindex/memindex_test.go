package memindex_test

import (
	"context"
	"sync"
	"testing"

	"github.com/sporelab/mycelium/pkg/memory/vector/memindex"
)

func TestQueryOrdering(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ix := memindex.New()

	// Unit vectors along and between axes: "x" matches the query exactly,
	// "diag" partially, "y" is orthogonal.
	fixtures := []struct {
		id        string
		embedding []float32
	}{
		{"x", []float32{1, 0}},
		{"y", []float32{0, 1}},
		{"diag", []float32{1, 1}},
	}
	for _, f := range fixtures {
		if err := ix.Upsert(ctx, f.id, f.embedding, "doc "+f.id, map[string]string{"kind": f.id}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	got, err := ix.Query(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Query: expected 3 results, got %d", len(got))
	}
	if got[0].ID != "x" || got[1].ID != "diag" || got[2].ID != "y" {
		t.Fatalf("Query: wrong order: %q %q %q", got[0].ID, got[1].ID, got[2].ID)
	}
	if got[0].Distance > 1e-9 {
		t.Fatalf("Query: exact match should have ~0 distance, got %v", got[0].Distance)
	}
	if got[0].Document != "doc x" || got[0].Metadata["kind"] != "x" {
		t.Fatalf("Query: payload lost: %+v", got[0])
	}
}

func TestQueryLimitsToK(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ix := memindex.New()
	for _, id := range []string{"a", "b", "c", "d"} {
		if err := ix.Upsert(ctx, id, []float32{1, 0}, "", nil); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	got, err := ix.Query(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Query: expected 2 results, got %d", len(got))
	}
}

func TestUpsertReplaces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ix := memindex.New()
	if err := ix.Upsert(ctx, "a", []float32{1, 0}, "old", map[string]string{"v": "1"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := ix.Upsert(ctx, "a", []float32{0, 1}, "new", map[string]string{"v": "2"}); err != nil {
		t.Fatalf("Upsert replace: %v", err)
	}

	n, _ := ix.Count(ctx)
	if n != 1 {
		t.Fatalf("Count: expected 1, got %d", n)
	}
	got, err := ix.Query(ctx, []float32{0, 1}, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got[0].Document != "new" || got[0].Metadata["v"] != "2" {
		t.Fatalf("Upsert: old payload survived: %+v", got[0])
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ix := memindex.New()
	if err := ix.Upsert(ctx, "a", []float32{1}, "", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if err := ix.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, _ := ix.Count(ctx); n != 0 {
		t.Fatalf("Count after Delete: expected 0, got %d", n)
	}

	// Missing id is a no-op.
	if err := ix.Delete(ctx, "ghost"); err != nil {
		t.Fatalf("Delete missing: unexpected error: %v", err)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ix := memindex.New()
	for _, id := range []string{"a", "b"} {
		if err := ix.Upsert(ctx, id, []float32{1}, "", nil); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	if err := ix.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n, _ := ix.Count(ctx); n != 0 {
		t.Fatalf("Count after Clear: expected 0, got %d", n)
	}
}

func TestQueryEmptyIndex(t *testing.T) {
	t.Parallel()

	got, err := memindex.New().Query(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Query: expected empty, got %d", len(got))
	}
}

func TestQueryDimensionMismatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ix := memindex.New()
	if err := ix.Upsert(ctx, "a", []float32{1, 0, 0}, "", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := ix.Query(ctx, []float32{1, 0}, 1); err == nil {
		t.Fatal("Query: expected dimension mismatch error")
	}
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	const goroutines = 50
	ctx := context.Background()
	ix := memindex.New()

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_ = ix.Upsert(ctx, "shared", []float32{1, 0}, "doc", nil)
			_, _ = ix.Query(ctx, []float32{0, 1}, 3)
			_, _ = ix.Count(ctx)
			_ = ix.Delete(ctx, "shared")
		}()
	}
	wg.Wait()
}
