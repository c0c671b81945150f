package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sporelab/mycelium/internal/ingest"
	"github.com/sporelab/mycelium/pkg/memory"
	"github.com/sporelab/mycelium/pkg/provider/llm"
)

// extraction is the JSON shape the extraction prompt asks for.
type extraction struct {
	Entities []struct {
		Name        string `json:"name"`
		Type        string `json:"type"`
		Description string `json:"description"`
	} `json:"entities"`
	Relations []struct {
		Source   string `json:"source"`
		Target   string `json:"target"`
		Relation string `json:"relation"`
	} `json:"relations"`
}

// Extractor turns text into knowledge-graph writes. It backs both the
// conversational extract state and document ingestion.
type Extractor struct {
	model llm.Provider
	log   *slog.Logger
}

// NewExtractor returns an Extractor using model. A nil logger defaults to
// slog.Default().
func NewExtractor(model llm.Provider, log *slog.Logger) (*Extractor, error) {
	if model == nil {
		return nil, fmt.Errorf("agent: extractor requires a model provider")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{model: model, log: log}, nil
}

const extractionFormat = `Return the output strictly as a JSON object with two keys: "entities" and "relations".

1. "entities": A list of objects { "name": "Exact Name", "type": "Category", "description": "Brief facts" }
2. "relations": A list of objects { "source": "Entity Name", "target": "Entity Name", "relation": "relationship label" }`

// ExtractInteraction mines one user/assistant exchange for long-term facts
// and writes them to store. Returns how many entities and relations landed.
func (e *Extractor) ExtractInteraction(ctx context.Context, store *memory.Store, userText, aiText string) (entities, relations int, err error) {
	prompt := fmt.Sprintf(`Analyze the following interaction and extract meaningful entities and relationships to build a knowledge graph.

User: %s
AI: %s

%s

Rules:
- Extract factual, long-term useful information (names, preferences, tech stacks, projects).
- CONNECT entities with relations whenever possible.
- Ignore greetings or trivial chit-chat.

Example Input:
User: I am working on a new project called MyCelium using Go.
AI: That sounds cool.

Example JSON:
{
  "entities": [
    { "name": "User", "type": "Person", "description": "The user of the system" },
    { "name": "MyCelium", "type": "Project", "description": "A new project" },
    { "name": "Go", "type": "Technology", "description": "Programming language" }
  ],
  "relations": [
    { "source": "User", "target": "MyCelium", "relation": "working_on" },
    { "source": "MyCelium", "target": "Go", "relation": "uses" }
  ]
}

JSON:
`, userText, aiText, extractionFormat)

	return e.run(ctx, store, prompt)
}

// ExtractText mines one document chunk. Same output contract as
// [Extractor.ExtractInteraction] without the conversational rules.
func (e *Extractor) ExtractText(ctx context.Context, store *memory.Store, text string) (entities, relations int, err error) {
	prompt := fmt.Sprintf(`Analyze the following text from a document and extract meaningful entities and relationships to build a knowledge graph.

Text: %s

%s

JSON:
`, text, extractionFormat)

	return e.run(ctx, store, prompt)
}

// PipelineFunc adapts the extractor to one workspace's store for document
// ingestion.
func (e *Extractor) PipelineFunc(store *memory.Store) ingest.ExtractFunc {
	return func(ctx context.Context, text string) (int, int, error) {
		return e.ExtractText(ctx, store, text)
	}
}

func (e *Extractor) run(ctx context.Context, store *memory.Store, prompt string) (int, int, error) {
	resp, err := e.model.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return 0, 0, fmt.Errorf("agent: extraction: %w", err)
	}

	block, ok := llm.FirstJSONObject(resp.Content)
	if !ok {
		return 0, 0, fmt.Errorf("agent: extraction: no JSON object in response")
	}
	var data extraction
	if err := json.Unmarshal([]byte(block), &data); err != nil {
		return 0, 0, fmt.Errorf("agent: extraction: %w", err)
	}

	var entities, relations int
	for _, ent := range data.Entities {
		if _, err := store.AddEntity(ctx, ent.Name, ent.Type, ent.Description); err != nil {
			e.log.Warn("entity write failed", "name", ent.Name, "error", err)
			continue
		}
		entities++
	}
	for _, rel := range data.Relations {
		if _, err := store.AddRelation(ctx, rel.Source, rel.Target, rel.Relation); err != nil {
			e.log.Warn("relation write failed", "source", rel.Source, "target", rel.Target, "error", err)
			continue
		}
		relations++
	}
	return entities, relations, nil
}
