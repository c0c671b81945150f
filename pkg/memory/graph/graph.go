// Package graph implements the property graph at the core of Mycelium's
// long-term memory: an undirected graph of named, typed entities connected by
// labelled relations.
//
// Nodes are keyed by their normalized entity name. Each unordered node pair
// carries at most one relation label — adding a relation between an already
// connected pair overwrites the label rather than creating a parallel edge.
// Endpoints referenced by a relation are auto-created with placeholder
// attributes so the graph never contains dangling edges.
//
// The graph is held entirely in memory and persisted as a node-link JSON
// snapshot (see [Graph.Save] and [Load]). All methods are safe for concurrent
// use.
package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// PlaceholderType is the entity type assigned to nodes auto-created as
// relation endpoints.
const PlaceholderType = "Unknown"

// PlaceholderDescription is the description assigned to nodes auto-created as
// relation endpoints.
const PlaceholderDescription = "Inferred entity"

// Node is a single entity in the graph.
type Node struct {
	// Name is the unique, normalized entity name acting as the node key.
	Name string

	// Type is a free-text category (e.g. "Person", "Project", "Technology").
	Type string

	// Description holds accumulated free-text facts about the entity.
	Description string
}

// Edge is a labelled relation between two entities. The underlying graph is
// undirected; Source and Target record the direction the edge was first
// observed from, which is also the direction it is rendered in.
type Edge struct {
	Source   string
	Target   string
	Relation string
}

// Neighbor pairs an adjacent node name with the label of the connecting edge.
type Neighbor struct {
	Name     string
	Relation string
}

// attrs holds the mutable attributes of a node.
type attrs struct {
	nodeType    string
	description string
}

// Graph is an undirected property graph of entities and labelled relations.
// The zero value is not usable; construct with [New] or [Load].
//
// Graph is safe for concurrent use. Note that this protects the structure
// itself only — two callers racing on the same logical update (for example
// both merging a description into the same entity) are serialised in an
// arbitrary order, which is the accepted semantics for a single-user store.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*attrs
	adj   map[string]map[string]string // node → neighbor → relation label
}

// New returns an empty, ready-to-use [Graph].
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*attrs),
		adj:   make(map[string]map[string]string),
	}
}

// AddNode inserts the entity or merges it into an existing node of the same
// name. On merge the type is left unchanged and description is appended
// (separated by "; ") only when it is not already a substring of the stored
// description, so repeated adds with identical text are idempotent.
func (g *Graph) AddNode(name, nodeType, description string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNodeLocked(name, nodeType, description)
}

func (g *Graph) addNodeLocked(name, nodeType, description string) {
	existing, ok := g.nodes[name]
	if !ok {
		g.nodes[name] = &attrs{nodeType: nodeType, description: description}
		g.adj[name] = make(map[string]string)
		return
	}
	if description != "" && !strings.Contains(existing.description, description) {
		existing.description = existing.description + "; " + description
	}
}

// UpdateNode overwrites the attributes of an existing node. Empty fields are
// left unchanged. Reports false when no node with the given name exists.
func (g *Graph) UpdateNode(name, nodeType, description string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, ok := g.nodes[name]
	if !ok {
		return false
	}
	if nodeType != "" {
		existing.nodeType = nodeType
	}
	if description != "" {
		existing.description = description
	}
	return true
}

// RemoveNode deletes the node and every edge incident to it. Reports false
// when the node does not exist.
func (g *Graph) RemoveNode(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[name]; !ok {
		return false
	}
	for neighbor := range g.adj[name] {
		delete(g.adj[neighbor], name)
	}
	delete(g.adj, name)
	delete(g.nodes, name)
	return true
}

// AddEdge upserts the relation between two entities, auto-creating missing
// endpoints with placeholder attributes. A second AddEdge on the same
// unordered pair overwrites the label.
func (g *Graph) AddEdge(source, target, relation string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[source]; !ok {
		g.addNodeLocked(source, PlaceholderType, PlaceholderDescription)
	}
	if _, ok := g.nodes[target]; !ok {
		g.addNodeLocked(target, PlaceholderType, PlaceholderDescription)
	}
	g.adj[source][target] = relation
	g.adj[target][source] = relation
}

// UpdateEdge replaces the label of an existing edge. Reports false when the
// pair is not connected; unlike [Graph.AddEdge] it never creates nodes.
func (g *Graph) UpdateEdge(source, target, relation string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.adj[source][target]; !ok {
		return false
	}
	g.adj[source][target] = relation
	g.adj[target][source] = relation
	return true
}

// RemoveEdge deletes the edge between two entities, leaving both endpoint
// nodes in place. Reports false when the pair is not connected.
func (g *Graph) RemoveEdge(source, target string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.adj[source][target]; !ok {
		return false
	}
	delete(g.adj[source], target)
	delete(g.adj[target], source)
	return true
}

// HasNode reports whether an entity with the given name exists.
func (g *Graph) HasNode(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[name]
	return ok
}

// HasEdge reports whether the two entities are connected.
func (g *Graph) HasEdge(a, b string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.adj[a][b]
	return ok
}

// Node returns the entity with the given name. The second return value
// reports whether it exists.
func (g *Graph) Node(name string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	a, ok := g.nodes[name]
	if !ok {
		return Node{}, false
	}
	return Node{Name: name, Type: a.nodeType, Description: a.description}, true
}

// EdgeLabel returns the relation label between two entities. The second
// return value reports whether the edge exists.
func (g *Graph) EdgeLabel(a, b string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	label, ok := g.adj[a][b]
	return label, ok
}

// Neighbors returns the nodes adjacent to name together with the labels of
// the connecting edges, sorted by neighbor name for deterministic iteration.
// Returns an empty (non-nil) slice for unknown or isolated nodes.
func (g *Graph) Neighbors(name string) []Neighbor {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.neighborsLocked(name)
}

func (g *Graph) neighborsLocked(name string) []Neighbor {
	result := make([]Neighbor, 0, len(g.adj[name]))
	for n, label := range g.adj[name] {
		result = append(result, Neighbor{Name: n, Relation: label})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Degree returns the number of edges incident to the named node.
func (g *Graph) Degree(name string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.adj[name])
}

// Nodes returns all entities sorted by name.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]Node, 0, len(g.nodes))
	for name, a := range g.nodes {
		result = append(result, Node{Name: name, Type: a.nodeType, Description: a.description})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Edges returns every edge exactly once, self-loops included. Source/Target
// order within each returned [Edge] is lexicographic; the slice is sorted by
// (Source, Target).
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var result []Edge
	for a, neighbors := range g.adj {
		for b, label := range neighbors {
			if a <= b {
				result = append(result, Edge{Source: a, Target: b, Relation: label})
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Source != result[j].Source {
			return result[i].Source < result[j].Source
		}
		return result[i].Target < result[j].Target
	})
	return result
}

// NodeCount returns the number of entities in the graph.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of distinct edges in the graph, self-loops
// included.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	total := 0
	for name, neighbors := range g.adj {
		total += len(neighbors)
		// A self-loop occupies a single adjacency entry; double it so the
		// halving below still counts it as one edge.
		if _, ok := neighbors[name]; ok {
			total++
		}
	}
	return total / 2
}

// Clear removes all nodes and edges.
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = make(map[string]*attrs)
	g.adj = make(map[string]map[string]string)
}

// DescribeSubgraph renders the induced subgraph over the given node names as
// plain text — one line per entity followed by a relationship section. Names
// not present in the graph are skipped. Used to prepare cluster context for
// concept summarization.
func (g *Graph) DescribeSubgraph(names []string) string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	member := make(map[string]bool, len(names))
	var present []string
	for _, n := range names {
		if _, ok := g.nodes[n]; ok && !member[n] {
			member[n] = true
			present = append(present, n)
		}
	}
	sort.Strings(present)

	var b strings.Builder
	for _, n := range present {
		a := g.nodes[n]
		fmt.Fprintf(&b, "Entity: %s (%s) - %s\n", n, a.nodeType, a.description)
	}
	b.WriteString("\nRelationships:\n")
	for _, n := range present {
		for _, nb := range g.neighborsLocked(n) {
			// Emit each internal edge once, from the lexicographically
			// smaller endpoint.
			if member[nb.Name] && n <= nb.Name {
				fmt.Fprintf(&b, "- %s is related to %s via '%s'\n", n, nb.Name, nb.Relation)
			}
		}
	}
	return b.String()
}
