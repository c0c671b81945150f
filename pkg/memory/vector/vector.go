// Package vector defines the semantic index abstraction used by the memory
// store: a keyed collection of embedded documents supporting nearest-neighbour
// lookup by cosine distance.
//
// The store keeps four collections per workspace (entities, notes, concepts,
// skills). Implementations live in the subpackages memindex (embedded,
// in-process) and pgindex (PostgreSQL + pgvector).
package vector

import "context"

// Collection names used by the memory store. An [Index] instance serves
// exactly one collection.
const (
	CollectionEntities = "entities"
	CollectionNotes    = "notes"
	CollectionConcepts = "concepts"
	CollectionSkills   = "skills"
)

// Result is a single nearest-neighbour match.
type Result struct {
	// ID is the caller-assigned document identifier.
	ID string

	// Document is the raw text that was embedded.
	Document string

	// Metadata is the caller-supplied metadata stored alongside the document.
	Metadata map[string]string

	// Distance is the cosine distance to the query embedding (0 identical,
	// 2 opposite). Results are ordered by ascending distance.
	Distance float64
}

// Index is a single vector collection. Upserting an existing ID replaces the
// stored embedding, document and metadata completely.
//
// Implementations must be safe for concurrent use.
type Index interface {
	// Upsert inserts or fully replaces the document under id.
	Upsert(ctx context.Context, id string, embedding []float32, document string, metadata map[string]string) error

	// Delete removes the document under id. Deleting a missing id is a no-op.
	Delete(ctx context.Context, id string) error

	// Query returns up to k documents nearest to embedding, ordered by
	// ascending cosine distance. An empty collection yields an empty slice.
	Query(ctx context.Context, embedding []float32, k int) ([]Result, error)

	// Clear removes every document from the collection.
	Clear(ctx context.Context) error

	// Count returns the number of documents in the collection.
	Count(ctx context.Context) (int, error)
}
