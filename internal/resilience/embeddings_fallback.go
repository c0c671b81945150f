package resilience

import (
	"context"

	"github.com/sporelab/mycelium/internal/observe"
	"github.com/sporelab/mycelium/pkg/provider/embeddings"
)

// EmbeddingsFallback implements [embeddings.Provider] with automatic failover
// across multiple embedding backends.
//
// All backends must produce vectors of the same dimensionality: indexes built
// from one backend's vectors are queried with another's during failover.
type EmbeddingsFallback struct {
	name    string
	group   *FallbackGroup[embeddings.Provider]
	metrics *observe.Metrics
}

// Compile-time interface assertion.
var _ embeddings.Provider = (*EmbeddingsFallback)(nil)

// NewEmbeddingsFallback creates an [EmbeddingsFallback] with primary as the
// preferred backend.
func NewEmbeddingsFallback(primary embeddings.Provider, primaryName string, cfg FallbackConfig) *EmbeddingsFallback {
	return &EmbeddingsFallback{
		name:    primaryName,
		group:   NewFallbackGroup(primary, primaryName, cfg),
		metrics: observe.DefaultMetrics(),
	}
}

// AddFallback registers an additional embeddings provider as a fallback.
func (f *EmbeddingsFallback) AddFallback(name string, provider embeddings.Provider) {
	f.group.AddFallback(name, provider)
}

// Embed computes the embedding via the first healthy provider.
func (f *EmbeddingsFallback) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := ExecuteWithResult(f.group, func(p embeddings.Provider) ([]float32, error) {
		return p.Embed(ctx, text)
	})
	if err != nil {
		f.metrics.RecordProviderError(ctx, f.name, "embeddings")
	}
	return vec, err
}

// EmbedBatch computes the embeddings via the first healthy provider.
func (f *EmbeddingsFallback) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := ExecuteWithResult(f.group, func(p embeddings.Provider) ([][]float32, error) {
		return p.EmbedBatch(ctx, texts)
	})
	if err != nil {
		f.metrics.RecordProviderError(ctx, f.name, "embeddings")
	}
	return vecs, err
}

// Dimensions returns the vector length of the primary backend.
func (f *EmbeddingsFallback) Dimensions() int {
	if p, ok := f.group.Primary(); ok {
		return p.Dimensions()
	}
	return 0
}

// ModelID returns the model identifier of the primary backend.
func (f *EmbeddingsFallback) ModelID() string {
	if p, ok := f.group.Primary(); ok {
		return p.ModelID()
	}
	return ""
}
