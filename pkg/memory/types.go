package memory

// Note is a free-form document owned by a workspace and indexed for semantic
// search. The record itself (JSON file) lives with the workspace; the store
// only maintains the vector index entry.
type Note struct {
	// ID is the stable record identifier.
	ID string

	// Title is the human-facing name, also used for explicit @[Title:note]
	// references.
	Title string

	// Content is the note body.
	Content string
}

// Skill is a learned procedure: a short summary for retrieval plus the full
// explanation the agent follows when applying it.
type Skill struct {
	ID      string
	Title   string
	Summary string

	// Explanation is the full procedure text. It is carried in index metadata
	// rather than embedded, so retrieval matches on the summary.
	Explanation string
}

// Concept is a derived summary of a graph community, produced by concept
// analysis and indexed for semantic search.
type Concept struct {
	ID      string
	Title   string
	Summary string

	// Entities lists the member node names of the community the concept was
	// derived from.
	Entities []string
}

// Stats is a point-in-time snapshot of the store's contents.
type Stats struct {
	Nodes    int
	Edges    int
	Entities int
	Notes    int
	Concepts int
	Skills   int
}
