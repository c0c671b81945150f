// Package embeddings defines the Provider interface for text-embedding
// backends.
//
// The memory store embeds every indexed artifact — entity cards, notes,
// concepts, skills — and the retriever embeds incoming queries. All vectors in
// a workspace must come from the same Provider instance; mixing models mixes
// vector spaces and silently ruins similarity ranking.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// Every vector returned by a single Provider instance has length Dimensions().
// Text is passed through verbatim; any model-specific prompt formatting (such
// as a "query: " prefix) is the caller's responsibility.
type Provider interface {
	// Embed computes the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in one backend call. The returned slice matches
	// texts in length and order. Partial results are never returned — on error
	// the whole slice is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed vector length produced by this provider.
	Dimensions() int

	// ModelID returns the backend model identifier, for logging and for
	// detecting a model change that would invalidate stored vectors.
	ModelID() string
}
