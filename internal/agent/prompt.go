package agent

import (
	"fmt"
	"strings"

	"github.com/sporelab/mycelium/internal/workspace"
)

// buildSystemPrompt assembles the per-turn system prompt: workspace persona,
// retrieved memory, emotional state, note roster and tool guidance.
func buildSystemPrompt(ws *workspace.Workspace, settings workspace.Settings, memoryContext string) string {
	var b strings.Builder

	b.WriteString(settings.SystemPrompt)
	fmt.Fprintf(&b, "\nCURRENT WORKSPACE ID: %s\n", ws.ID)

	b.WriteString("\nCONTEXT FROM LONG-TERM MEMORY:\n")
	b.WriteString(memoryContext)
	b.WriteString("\n")

	b.WriteString("\n" + emotionBlock(ws) + "\n")

	if notes := noteBlock(ws); notes != "" {
		b.WriteString("\n" + notes + "\n")
	}

	b.WriteString(`
If the context is empty, it means you don't recall anything specific about this yet.
Answer the user's latest message naturally.

GUIDANCE ON CONCEPTS & GRAPH RAG:
- If the user asks to explore a "Concept" or "Topic", use 'search_concepts' to retrieve the high-level summary and extracted entities.
- The Concept summary is just a starting point. Detailed relationships are already in the "CONTEXT FROM LONG-TERM MEMORY" section above.
- MERGE information from the 'search_concepts' result and the CONTEXT to provide a comprehensive answer.
- You can use 'traverse_graph_node' to trace relationships for specific entities and uncover deeper connections.
`)

	return b.String()
}

// emotionBlock renders the persona's current scales, motive and the
// behavioural hints tied to them.
func emotionBlock(ws *workspace.Workspace) string {
	state, err := ws.Emotions()
	if err != nil || len(state.Scales) == 0 {
		return "No active emotions."
	}

	parts := make([]string, len(state.Scales))
	for i, s := range state.Scales {
		parts[i] = fmt.Sprintf("%s: %d%%", s.Name, s.Value)
	}

	return fmt.Sprintf(`CURRENT EMOTIONAL STATE: %s
CURRENT MOTIVE: "%s"

INSTRUCTIONS:
- If Happiness is low (<30), be gloomy or short.
- If Anger is high (>70), be defensive or rude.
- If Trust is high (>80), be more open and share internal thoughts.
- If Love is high (>80), be affectionate, caring, and perhaps a bit romantic.
- YOUR PRIMARY GOAL IS TO FULFILL YOUR CURRENT MOTIVE.
- Act according to these emotions naturally.`, strings.Join(parts, ", "), state.Motive)
}

// noteBlock lists note titles and ids so the model can address them by id.
// Empty when the workspace has no notes.
func noteBlock(ws *workspace.Workspace) string {
	notes, err := ws.Notes()
	if err != nil || len(notes) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("AVAILABLE NOTES:\n")
	for _, n := range notes {
		fmt.Fprintf(&b, "- %s (ID: %s)\n", n.Title, n.ID)
	}
	b.WriteString(`- You can use 'read_note(note_id)' to read the full content of any note.
- You can use 'list_notes' to see this list again.
- You can use 'search_notes(query)' to semantically search across all notes.
- You can use 'create_note', 'update_note', or 'delete_note' to manage them.`)
	return b.String()
}
