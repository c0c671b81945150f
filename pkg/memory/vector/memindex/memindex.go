// Package memindex provides the embedded, in-process implementation of
// [vector.Index]. It is the default backend: no external services, exact
// brute-force cosine search, suitable for the collection sizes of a personal
// memory (thousands of documents, not millions).
package memindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/sporelab/mycelium/pkg/memory/vector"
)

var _ vector.Index = (*Index)(nil)

type entry struct {
	embedding []float32
	norm      float64
	document  string
	metadata  map[string]string
}

// Index is an in-memory vector collection. All methods are safe for
// concurrent use.
type Index struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New returns an empty, ready-to-use in-memory index.
func New() *Index {
	return &Index{entries: make(map[string]*entry)}
}

// Upsert implements [vector.Index].
func (ix *Index) Upsert(ctx context.Context, id string, embedding []float32, document string, metadata map[string]string) error {
	if len(embedding) == 0 {
		return fmt.Errorf("memindex: upsert %q: empty embedding", id)
	}

	// Copy caller-owned slices and maps so later mutation cannot corrupt the
	// stored entry.
	emb := make([]float32, len(embedding))
	copy(emb, embedding)
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries[id] = &entry{
		embedding: emb,
		norm:      vectorNorm(emb),
		document:  document,
		metadata:  meta,
	}
	return nil
}

// Delete implements [vector.Index].
func (ix *Index) Delete(ctx context.Context, id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.entries, id)
	return nil
}

// Query implements [vector.Index].
func (ix *Index) Query(ctx context.Context, embedding []float32, k int) ([]vector.Result, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("memindex: query: empty embedding")
	}
	if k <= 0 {
		return []vector.Result{}, nil
	}
	queryNorm := vectorNorm(embedding)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	results := make([]vector.Result, 0, len(ix.entries))
	for id, e := range ix.entries {
		if len(e.embedding) != len(embedding) {
			return nil, fmt.Errorf("memindex: query: dimension mismatch: index %d, query %d", len(e.embedding), len(embedding))
		}
		meta := make(map[string]string, len(e.metadata))
		for mk, mv := range e.metadata {
			meta[mk] = mv
		}
		results = append(results, vector.Result{
			ID:       id,
			Document: e.document,
			Metadata: meta,
			Distance: cosineDistance(embedding, queryNorm, e.embedding, e.norm),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Clear implements [vector.Index].
func (ix *Index) Clear(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = make(map[string]*entry)
	return nil
}

// Count implements [vector.Index].
func (ix *Index) Count(ctx context.Context) (int, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries), nil
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosineDistance returns 1 - cosine similarity. Zero vectors are treated as
// maximally distant rather than producing NaN.
func cosineDistance(a []float32, aNorm float64, b []float32, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return 1 - dot/(aNorm*bNorm)
}
