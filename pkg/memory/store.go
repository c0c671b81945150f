// Package memory implements the hybrid long-term memory of a workspace: an
// undirected knowledge graph of entities and relations, kept in lock-step
// with four vector collections (entities, notes, concepts, skills) for
// semantic lookup.
//
// The graph is the source of truth. Every mutating entity operation first
// applies the change to the graph and persists the snapshot synchronously;
// only then is the vector index updated. An index failure never rolls back
// the graph — it is reported through [SyncResult] so callers can log it and
// schedule a [Store.Reindex].
//
// Store is safe for concurrent use.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sporelab/mycelium/pkg/memory/graph"
	"github.com/sporelab/mycelium/pkg/memory/vector"
	"github.com/sporelab/mycelium/pkg/memory/vector/memindex"
	"github.com/sporelab/mycelium/pkg/provider/embeddings"
)

// SyncResult reports the outcome of the vector-index half of a mutating
// entity operation. The graph half has already been applied and persisted
// when a SyncResult is returned.
type SyncResult struct {
	// IndexErr is non-nil when the graph mutation persisted but the vector
	// index could not be brought in line with it. The affected entries are
	// repaired by the next [Store.Reindex].
	IndexErr error
}

// FullySynced reports whether both the graph and the vector index were
// updated.
func (r SyncResult) FullySynced() bool { return r.IndexErr == nil }

// Config configures [Open].
type Config struct {
	// SnapshotPath is the node-link JSON file the graph is loaded from and
	// persisted to.
	SnapshotPath string

	// Embeddings produces the vectors for all four collections. Required.
	Embeddings embeddings.Provider

	// Entities, Notes, Concepts and Skills are the four collection backends.
	// Nil fields default to in-process indexes (memindex).
	Entities vector.Index
	Notes    vector.Index
	Concepts vector.Index
	Skills   vector.Index

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Store is the combined graph + vector memory of one workspace.
type Store struct {
	graph *graph.Graph
	embed embeddings.Provider
	log   *slog.Logger

	entities vector.Index
	notes    vector.Index
	concepts vector.Index
	skills   vector.Index

	// saveMu serializes snapshot writes; the graph itself has its own lock.
	saveMu       sync.Mutex
	snapshotPath string
}

// Open loads the graph snapshot at cfg.SnapshotPath and assembles the store.
// A corrupt snapshot is quarantined and logged, and the store starts empty;
// only unreadable files and invalid configuration are fatal.
func Open(cfg Config) (*Store, error) {
	if cfg.Embeddings == nil {
		return nil, fmt.Errorf("memory: open: embeddings provider is required")
	}
	if cfg.SnapshotPath == "" {
		return nil, fmt.Errorf("memory: open: snapshot path is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	g, err := graph.Load(cfg.SnapshotPath)
	if err != nil {
		if !errors.Is(err, graph.ErrSnapshotCorrupt) {
			return nil, fmt.Errorf("memory: open: %w", err)
		}
		log.Warn("graph snapshot corrupt, starting empty", "path", cfg.SnapshotPath, "error", err)
	}

	s := &Store{
		graph:        g,
		embed:        cfg.Embeddings,
		log:          log,
		entities:     cfg.Entities,
		notes:        cfg.Notes,
		concepts:     cfg.Concepts,
		skills:       cfg.Skills,
		snapshotPath: cfg.SnapshotPath,
	}
	if s.entities == nil {
		s.entities = memindex.New()
	}
	if s.notes == nil {
		s.notes = memindex.New()
	}
	if s.concepts == nil {
		s.concepts = memindex.New()
	}
	if s.skills == nil {
		s.skills = memindex.New()
	}
	return s, nil
}

// Graph exposes the underlying knowledge graph for read-mostly consumers
// (retrieval traversal, analytics, community clustering). Mutations must go
// through the Store so persistence and index sync are not skipped.
func (s *Store) Graph() *graph.Graph { return s.graph }

// ─────────────────────────────────────────────────────────────────────────────
// Entity operations
// ─────────────────────────────────────────────────────────────────────────────

// AddEntity inserts or merges an entity node, persists the snapshot, and
// syncs the entity's vector entry.
func (s *Store) AddEntity(ctx context.Context, name, entityType, description string) (SyncResult, error) {
	if name == "" {
		return SyncResult{}, fmt.Errorf("memory: add entity: name must not be empty")
	}
	s.graph.AddNode(name, entityType, description)
	if err := s.persist(); err != nil {
		return SyncResult{}, fmt.Errorf("memory: add entity %q: %w", name, err)
	}
	return s.syncEntities(ctx, name), nil
}

// UpdateEntity overwrites the attributes of an existing entity. Empty fields
// are left unchanged. Reports false when the entity does not exist.
func (s *Store) UpdateEntity(ctx context.Context, name, entityType, description string) (bool, SyncResult, error) {
	if !s.graph.UpdateNode(name, entityType, description) {
		return false, SyncResult{}, nil
	}
	if err := s.persist(); err != nil {
		return true, SyncResult{}, fmt.Errorf("memory: update entity %q: %w", name, err)
	}
	return true, s.syncEntities(ctx, name), nil
}

// DeleteEntity removes the entity and all incident relations. Reports false
// when the entity does not exist.
func (s *Store) DeleteEntity(ctx context.Context, name string) (bool, SyncResult, error) {
	if !s.graph.RemoveNode(name) {
		return false, SyncResult{}, nil
	}
	if err := s.persist(); err != nil {
		return true, SyncResult{}, fmt.Errorf("memory: delete entity %q: %w", name, err)
	}
	var res SyncResult
	if err := s.entities.Delete(ctx, name); err != nil {
		res.IndexErr = fmt.Errorf("memory: delete entity %q from index: %w", name, err)
		s.log.Warn("entity index delete failed", "entity", name, "error", err)
	}
	return true, res, nil
}

// AddRelation upserts the labelled relation between two entities,
// auto-creating missing endpoints as placeholder nodes. Newly created
// endpoints are synced into the entity collection.
func (s *Store) AddRelation(ctx context.Context, source, target, relation string) (SyncResult, error) {
	if source == "" || target == "" {
		return SyncResult{}, fmt.Errorf("memory: add relation: endpoints must not be empty")
	}

	var created []string
	for _, name := range []string{source, target} {
		if !s.graph.HasNode(name) {
			created = append(created, name)
		}
	}

	s.graph.AddEdge(source, target, relation)
	if err := s.persist(); err != nil {
		return SyncResult{}, fmt.Errorf("memory: add relation %q-%q: %w", source, target, err)
	}
	return s.syncEntities(ctx, created...), nil
}

// UpdateRelation replaces the label of an existing relation. Reports false
// when the pair is not connected; it never creates nodes.
func (s *Store) UpdateRelation(ctx context.Context, source, target, relation string) (bool, error) {
	if !s.graph.UpdateEdge(source, target, relation) {
		return false, nil
	}
	if err := s.persist(); err != nil {
		return true, fmt.Errorf("memory: update relation %q-%q: %w", source, target, err)
	}
	return true, nil
}

// DeleteRelation removes the relation between two entities, leaving both
// endpoints in place. Reports false when the pair is not connected.
func (s *Store) DeleteRelation(ctx context.Context, source, target string) (bool, error) {
	if !s.graph.RemoveEdge(source, target) {
		return false, nil
	}
	if err := s.persist(); err != nil {
		return true, fmt.Errorf("memory: delete relation %q-%q: %w", source, target, err)
	}
	return true, nil
}

// RelatedNodes returns the k entities semantically closest to query.
func (s *Store) RelatedNodes(ctx context.Context, query string, k int) ([]vector.Result, error) {
	return s.search(ctx, s.entities, "entities", query, k)
}

// NodeNeighbors returns the entity and its direct neighbors. Reports false
// when the entity does not exist.
func (s *Store) NodeNeighbors(name string) (graph.Node, []graph.Neighbor, bool) {
	n, ok := s.graph.Node(name)
	if !ok {
		return graph.Node{}, nil, false
	}
	return n, s.graph.Neighbors(name), true
}

// Reindex rebuilds the entity collection from the graph: the collection is
// cleared and every node re-embedded in one batch. Returns the number of
// entities indexed.
func (s *Store) Reindex(ctx context.Context) (int, error) {
	nodes := s.graph.Nodes()

	if err := s.entities.Clear(ctx); err != nil {
		return 0, fmt.Errorf("memory: reindex: clear: %w", err)
	}
	if len(nodes) == 0 {
		return 0, nil
	}

	texts := make([]string, len(nodes))
	for i, n := range nodes {
		texts[i] = entityText(n)
	}
	vecs, err := s.embed.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("memory: reindex: embed batch: %w", err)
	}

	for i, n := range nodes {
		meta := map[string]string{"type": n.Type}
		if err := s.entities.Upsert(ctx, n.Name, vecs[i], texts[i], meta); err != nil {
			return i, fmt.Errorf("memory: reindex: upsert %q: %w", n.Name, err)
		}
	}
	return len(nodes), nil
}

// syncEntities embeds and upserts the named graph nodes into the entity
// collection, joining any failures into one IndexErr.
func (s *Store) syncEntities(ctx context.Context, names ...string) SyncResult {
	var errs []error
	for _, name := range names {
		n, ok := s.graph.Node(name)
		if !ok {
			continue
		}
		text := entityText(n)
		vec, err := s.embed.Embed(ctx, text)
		if err == nil {
			err = s.entities.Upsert(ctx, name, vec, text, map[string]string{"type": n.Type})
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("memory: sync entity %q: %w", name, err))
			s.log.Warn("entity index sync failed", "entity", name, "error", err)
		}
	}
	return SyncResult{IndexErr: errors.Join(errs...)}
}

func (s *Store) persist() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.graph.Save(s.snapshotPath)
}

// ─────────────────────────────────────────────────────────────────────────────
// Notes, skills, concepts
// ─────────────────────────────────────────────────────────────────────────────

// IndexNote embeds the note and upserts it into the note collection.
func (s *Store) IndexNote(ctx context.Context, n Note) error {
	if n.ID == "" {
		return fmt.Errorf("memory: index note: id must not be empty")
	}
	text := noteText(n)
	vec, err := s.embed.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("memory: index note %q: %w", n.ID, err)
	}
	meta := map[string]string{"title": n.Title}
	if err := s.notes.Upsert(ctx, n.ID, vec, text, meta); err != nil {
		return fmt.Errorf("memory: index note %q: %w", n.ID, err)
	}
	return nil
}

// DeleteNote removes the note from the note collection.
func (s *Store) DeleteNote(ctx context.Context, id string) error {
	if err := s.notes.Delete(ctx, id); err != nil {
		return fmt.Errorf("memory: delete note %q: %w", id, err)
	}
	return nil
}

// SearchNotes returns the k notes semantically closest to query.
func (s *Store) SearchNotes(ctx context.Context, query string, k int) ([]vector.Result, error) {
	return s.search(ctx, s.notes, "notes", query, k)
}

// IndexSkill embeds the skill summary and upserts it into the skill
// collection. The full explanation rides along in metadata so retrieval
// matches on the summary but returns the whole procedure.
func (s *Store) IndexSkill(ctx context.Context, sk Skill) error {
	if sk.ID == "" {
		return fmt.Errorf("memory: index skill: id must not be empty")
	}
	text := skillText(sk)
	vec, err := s.embed.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("memory: index skill %q: %w", sk.ID, err)
	}
	meta := map[string]string{"title": sk.Title, "explanation": sk.Explanation}
	if err := s.skills.Upsert(ctx, sk.ID, vec, text, meta); err != nil {
		return fmt.Errorf("memory: index skill %q: %w", sk.ID, err)
	}
	return nil
}

// DeleteSkill removes the skill from the skill collection.
func (s *Store) DeleteSkill(ctx context.Context, id string) error {
	if err := s.skills.Delete(ctx, id); err != nil {
		return fmt.Errorf("memory: delete skill %q: %w", id, err)
	}
	return nil
}

// SearchSkills returns the k skills semantically closest to query.
func (s *Store) SearchSkills(ctx context.Context, query string, k int) ([]vector.Result, error) {
	return s.search(ctx, s.skills, "skills", query, k)
}

// UpsertConcepts embeds the concepts in one batch and upserts them into the
// concept collection.
func (s *Store) UpsertConcepts(ctx context.Context, concepts []Concept) error {
	if len(concepts) == 0 {
		return nil
	}
	texts := make([]string, len(concepts))
	for i, c := range concepts {
		if c.ID == "" {
			return fmt.Errorf("memory: upsert concepts: concept %d has no id", i)
		}
		texts[i] = conceptText(c)
	}
	vecs, err := s.embed.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("memory: upsert concepts: embed batch: %w", err)
	}
	for i, c := range concepts {
		meta := map[string]string{"title": c.Title}
		if err := s.concepts.Upsert(ctx, c.ID, vecs[i], texts[i], meta); err != nil {
			return fmt.Errorf("memory: upsert concept %q: %w", c.ID, err)
		}
	}
	return nil
}

// ClearConcepts removes every concept, making room for a fresh derivation.
func (s *Store) ClearConcepts(ctx context.Context) error {
	if err := s.concepts.Clear(ctx); err != nil {
		return fmt.Errorf("memory: clear concepts: %w", err)
	}
	return nil
}

// SearchConcepts returns the k concepts semantically closest to query.
func (s *Store) SearchConcepts(ctx context.Context, query string, k int) ([]vector.Result, error) {
	return s.search(ctx, s.concepts, "concepts", query, k)
}

// Stats returns the current node, edge and collection counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		Nodes: s.graph.NodeCount(),
		Edges: s.graph.EdgeCount(),
	}
	var err error
	if st.Entities, err = s.entities.Count(ctx); err != nil {
		return st, fmt.Errorf("memory: stats: entities: %w", err)
	}
	if st.Notes, err = s.notes.Count(ctx); err != nil {
		return st, fmt.Errorf("memory: stats: notes: %w", err)
	}
	if st.Concepts, err = s.concepts.Count(ctx); err != nil {
		return st, fmt.Errorf("memory: stats: concepts: %w", err)
	}
	if st.Skills, err = s.skills.Count(ctx); err != nil {
		return st, fmt.Errorf("memory: stats: skills: %w", err)
	}
	return st, nil
}

func (s *Store) search(ctx context.Context, ix vector.Index, collection, query string, k int) ([]vector.Result, error) {
	if k <= 0 {
		return []vector.Result{}, nil
	}
	vec, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: search %s: embed query: %w", collection, err)
	}
	results, err := ix.Query(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("memory: search %s: %w", collection, err)
	}
	return results, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Embedding documents
// ─────────────────────────────────────────────────────────────────────────────

func entityText(n graph.Node) string {
	return fmt.Sprintf("%s (%s): %s", n.Name, n.Type, n.Description)
}

func noteText(n Note) string {
	return fmt.Sprintf("Title: %s\n\nContent:\n%s", n.Title, n.Content)
}

func skillText(sk Skill) string {
	return fmt.Sprintf("Skill: %s\nSummary: %s", sk.Title, sk.Summary)
}

func conceptText(c Concept) string {
	entities := c.Entities
	suffix := ""
	if len(entities) > 10 {
		suffix = fmt.Sprintf(" (+%d more)", len(entities)-10)
		entities = entities[:10]
	}
	return fmt.Sprintf("Concept: %s\nSummary: %s\nEntities: %s%s",
		c.Title, c.Summary, strings.Join(entities, ", "), suffix)
}
