// Package pgindex provides a PostgreSQL + pgvector implementation of
// [vector.Index]. All collections of a workspace share one table and one
// [pgxpool.Pool]; each [Index] handle is scoped to a collection name.
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := pgindex.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
//
//	entities := store.Collection(vector.CollectionEntities)
//	_ = entities.Upsert(ctx, "Alice", emb, "Alice (Person): engineer", nil)
package pgindex

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/sporelab/mycelium/pkg/memory/vector"
)

var _ vector.Index = (*Index)(nil)

// ddl returns the schema with the embedding dimension substituted. The vector
// dimension is baked into the column type at schema creation time.
func ddl(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS vector_items (
    collection  TEXT         NOT NULL,
    id          TEXT         NOT NULL,
    document    TEXT         NOT NULL DEFAULT '',
    metadata    JSONB        NOT NULL DEFAULT '{}',
    embedding   vector(%d),
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_vector_items_embedding
    ON vector_items USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Store holds the shared connection pool behind every collection [Index].
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn,
// registers pgvector types on every connection, and runs [Migrate].
//
// embeddingDimensions must match the output dimension of the configured
// embedding model. Changing it after the first migration requires a manual
// schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgindex: parse dsn: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgindex: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgindex: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgindex: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate creates or ensures the vector_items table and the pgvector extension
// exist. It is idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddl(embeddingDimensions)); err != nil {
		return fmt.Errorf("pgindex migrate: %w", err)
	}
	return nil
}

// Collection returns an [Index] handle scoped to the named collection. Handles
// are cheap; a new one may be created per use.
func (s *Store) Collection(name string) *Index {
	return &Index{pool: s.pool, collection: name}
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Index is a collection-scoped view over the shared vector_items table.
// All methods are safe for concurrent use.
type Index struct {
	pool       *pgxpool.Pool
	collection string
}

// Upsert implements [vector.Index].
func (ix *Index) Upsert(ctx context.Context, id string, embedding []float32, document string, metadata map[string]string) error {
	const q = `
		INSERT INTO vector_items (collection, id, document, metadata, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (collection, id) DO UPDATE SET
		    document   = EXCLUDED.document,
		    metadata   = EXCLUDED.metadata,
		    embedding  = EXCLUDED.embedding,
		    updated_at = now()`

	if metadata == nil {
		metadata = map[string]string{}
	}
	_, err := ix.pool.Exec(ctx, q, ix.collection, id, document, metadata, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("pgindex: upsert %s/%s: %w", ix.collection, id, err)
	}
	return nil
}

// Delete implements [vector.Index].
func (ix *Index) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM vector_items WHERE collection = $1 AND id = $2`
	if _, err := ix.pool.Exec(ctx, q, ix.collection, id); err != nil {
		return fmt.Errorf("pgindex: delete %s/%s: %w", ix.collection, id, err)
	}
	return nil
}

// Query implements [vector.Index]. Results are ordered by ascending cosine
// distance (most similar first).
func (ix *Index) Query(ctx context.Context, embedding []float32, k int) ([]vector.Result, error) {
	if k <= 0 {
		return []vector.Result{}, nil
	}

	const q = `
		SELECT id, document, metadata, embedding <=> $2 AS distance
		FROM   vector_items
		WHERE  collection = $1
		ORDER  BY distance
		LIMIT  $3`

	rows, err := ix.pool.Query(ctx, q, ix.collection, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("pgindex: query %s: %w", ix.collection, err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vector.Result, error) {
		var r vector.Result
		if err := row.Scan(&r.ID, &r.Document, &r.Metadata, &r.Distance); err != nil {
			return vector.Result{}, err
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("pgindex: scan rows: %w", err)
	}
	if results == nil {
		results = []vector.Result{}
	}
	return results, nil
}

// Clear implements [vector.Index].
func (ix *Index) Clear(ctx context.Context) error {
	const q = `DELETE FROM vector_items WHERE collection = $1`
	if _, err := ix.pool.Exec(ctx, q, ix.collection); err != nil {
		return fmt.Errorf("pgindex: clear %s: %w", ix.collection, err)
	}
	return nil
}

// Count implements [vector.Index].
func (ix *Index) Count(ctx context.Context) (int, error) {
	const q = `SELECT count(*) FROM vector_items WHERE collection = $1`
	var n int
	if err := ix.pool.QueryRow(ctx, q, ix.collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgindex: count %s: %w", ix.collection, err)
	}
	return n, nil
}
