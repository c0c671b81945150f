package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrSnapshotCorrupt is wrapped by [Load] when the snapshot file exists but
// cannot be parsed. The bad file has been moved aside to "<path>.bak" and the
// returned graph is empty and usable — callers should log the condition and
// continue rather than abort.
var ErrSnapshotCorrupt = errors.New("snapshot corrupt")

// snapshotNode is the JSON form of a node in the node-link snapshot.
type snapshotNode struct {
	ID          string `json:"id"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// snapshotLink is the JSON form of an edge in the node-link snapshot.
type snapshotLink struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Relation string `json:"relation,omitempty"`
}

// snapshot is the node-link serialization of a [Graph]. On load, "edges" is
// accepted as an alias for "links" for compatibility with snapshots written
// by older exporters.
type snapshot struct {
	Nodes []snapshotNode `json:"nodes"`
	Links []snapshotLink `json:"links"`
	Edges []snapshotLink `json:"edges,omitempty"`
}

// Save writes the graph to path as a node-link JSON snapshot. The snapshot is
// written to a temporary file in the same directory, fsynced, and atomically
// renamed over the target, so a crash mid-write never corrupts a previously
// saved snapshot.
func (g *Graph) Save(path string) error {
	snap := snapshot{Nodes: []snapshotNode{}, Links: []snapshotLink{}}
	for _, n := range g.Nodes() {
		snap.Nodes = append(snap.Nodes, snapshotNode{ID: n.Name, Type: n.Type, Description: n.Description})
	}
	for _, e := range g.Edges() {
		snap.Links = append(snap.Links, snapshotLink{Source: e.Source, Target: e.Target, Relation: e.Relation})
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("graph: marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("graph: create snapshot dir: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("graph: create temp snapshot: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("graph: write snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("graph: sync snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("graph: close snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("graph: replace snapshot: %w", err)
	}
	return nil
}

// Load reads a node-link JSON snapshot from path and reconstructs the graph.
//
// A missing file is not an error — an empty graph is returned. An unreadable
// or unparsable file is quarantined by renaming it to "<path>.bak" and an
// empty graph is returned together with an error wrapping
// [ErrSnapshotCorrupt]; the returned graph is always usable.
func Load(path string) (*Graph, error) {
	g := New()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return g, nil
		}
		return g, fmt.Errorf("graph: read snapshot %s: %w", path, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// Quarantine the bad file so the next Save starts clean. Best effort:
		// failing to rename must not mask the corruption error.
		_ = os.Rename(path, path+".bak")
		return g, fmt.Errorf("graph: parse snapshot %s: %w: %w", path, ErrSnapshotCorrupt, err)
	}

	links := snap.Links
	if links == nil {
		links = snap.Edges
	}

	for _, n := range snap.Nodes {
		g.AddNode(n.ID, n.Type, n.Description)
	}
	for _, l := range links {
		g.AddEdge(l.Source, l.Target, l.Relation)
	}
	return g, nil
}
