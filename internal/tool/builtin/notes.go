package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sporelab/mycelium/internal/tool"
	"github.com/sporelab/mycelium/internal/workspace"
)

// ─────────────────────────────────────────────────────────────────────────────
// create_note
// ─────────────────────────────────────────────────────────────────────────────

type createNoteArgs struct {
	WorkspaceID string `json:"workspace_id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
}

func makeCreateNoteHandler(m *workspace.Manager) tool.Handler {
	return func(ctx context.Context, args string) (string, error) {
		var a createNoteArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("builtin: create_note: failed to parse arguments: %w", err)
		}
		ws, err := m.Open(a.WorkspaceID)
		if err != nil {
			return "", fmt.Errorf("builtin: create_note: %w", err)
		}
		n, err := ws.SaveNote(ctx, workspace.Note{Title: a.Title, Content: a.Content})
		if err != nil {
			return "", fmt.Errorf("builtin: create_note: %w", err)
		}
		return fmt.Sprintf("Created note %q (ID: %s).", n.Title, n.ID), nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// read_note
// ─────────────────────────────────────────────────────────────────────────────

type readNoteArgs struct {
	WorkspaceID string `json:"workspace_id"`
	NoteID      string `json:"note_id"`
}

func makeReadNoteHandler(m *workspace.Manager) tool.Handler {
	return func(ctx context.Context, args string) (string, error) {
		var a readNoteArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("builtin: read_note: failed to parse arguments: %w", err)
		}
		ws, err := m.Open(a.WorkspaceID)
		if err != nil {
			return "", fmt.Errorf("builtin: read_note: %w", err)
		}
		n, err := ws.Note(a.NoteID)
		if err != nil {
			return "", fmt.Errorf("builtin: read_note %q: %w", a.NoteID, err)
		}
		return fmt.Sprintf("NOTE %q (ID: %s):\n%s", n.Title, n.ID, n.Content), nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// update_note
// ─────────────────────────────────────────────────────────────────────────────

// updateNoteArgs uses pointers so an omitted field keeps the current value
// while an explicit empty string clears it.
type updateNoteArgs struct {
	WorkspaceID string  `json:"workspace_id"`
	NoteID      string  `json:"note_id"`
	Title       *string `json:"title,omitempty"`
	Content     *string `json:"content,omitempty"`
}

func makeUpdateNoteHandler(m *workspace.Manager) tool.Handler {
	return func(ctx context.Context, args string) (string, error) {
		var a updateNoteArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("builtin: update_note: failed to parse arguments: %w", err)
		}
		ws, err := m.Open(a.WorkspaceID)
		if err != nil {
			return "", fmt.Errorf("builtin: update_note: %w", err)
		}
		n, err := ws.Note(a.NoteID)
		if err != nil {
			return "", fmt.Errorf("builtin: update_note %q: %w", a.NoteID, err)
		}
		if a.Title != nil {
			n.Title = *a.Title
		}
		if a.Content != nil {
			n.Content = *a.Content
		}
		if _, err := ws.SaveNote(ctx, n); err != nil {
			return "", fmt.Errorf("builtin: update_note %q: %w", a.NoteID, err)
		}
		return fmt.Sprintf("Updated note %q (ID: %s).", n.Title, n.ID), nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// delete_note
// ─────────────────────────────────────────────────────────────────────────────

func makeDeleteNoteHandler(m *workspace.Manager) tool.Handler {
	return func(ctx context.Context, args string) (string, error) {
		var a readNoteArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("builtin: delete_note: failed to parse arguments: %w", err)
		}
		ws, err := m.Open(a.WorkspaceID)
		if err != nil {
			return "", fmt.Errorf("builtin: delete_note: %w", err)
		}
		if err := ws.DeleteNote(ctx, a.NoteID); err != nil {
			return "", fmt.Errorf("builtin: delete_note %q: %w", a.NoteID, err)
		}
		return fmt.Sprintf("Deleted note %s.", a.NoteID), nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// list_notes
// ─────────────────────────────────────────────────────────────────────────────

type listNotesArgs struct {
	WorkspaceID string `json:"workspace_id"`
}

func makeListNotesHandler(m *workspace.Manager) tool.Handler {
	return func(ctx context.Context, args string) (string, error) {
		var a listNotesArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("builtin: list_notes: failed to parse arguments: %w", err)
		}
		ws, err := m.Open(a.WorkspaceID)
		if err != nil {
			return "", fmt.Errorf("builtin: list_notes: %w", err)
		}
		notes, err := ws.Notes()
		if err != nil {
			return "", fmt.Errorf("builtin: list_notes: %w", err)
		}
		if len(notes) == 0 {
			return "No notes in this workspace.", nil
		}
		type header struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		}
		headers := make([]header, len(notes))
		for i, n := range notes {
			headers[i] = header{ID: n.ID, Title: n.Title}
		}
		out, err := json.Marshal(headers)
		if err != nil {
			return "", fmt.Errorf("builtin: list_notes: failed to encode result: %w", err)
		}
		return string(out), nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// search_notes
// ─────────────────────────────────────────────────────────────────────────────

type searchNotesArgs struct {
	WorkspaceID string `json:"workspace_id"`
	Query       string `json:"query"`
	TopK        int    `json:"top_k,omitempty"`
}

func makeSearchNotesHandler(m *workspace.Manager) tool.Handler {
	return func(ctx context.Context, args string) (string, error) {
		var a searchNotesArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("builtin: search_notes: failed to parse arguments: %w", err)
		}
		if a.Query == "" {
			return "", fmt.Errorf("builtin: search_notes: query must not be empty")
		}
		ws, err := m.Open(a.WorkspaceID)
		if err != nil {
			return "", fmt.Errorf("builtin: search_notes: %w", err)
		}
		k := a.TopK
		if k <= 0 {
			k = defaultTopK
		}
		results, err := ws.Store().SearchNotes(ctx, a.Query, k)
		if err != nil {
			return "", fmt.Errorf("builtin: search_notes: %w", err)
		}
		if len(results) == 0 {
			return "No matching notes found.", nil
		}
		type match struct {
			ID       string  `json:"id"`
			Title    string  `json:"title"`
			Excerpt  string  `json:"excerpt"`
			Distance float64 `json:"distance"`
		}
		matches := make([]match, len(results))
		for i, r := range results {
			matches[i] = match{
				ID:       r.ID,
				Title:    r.Metadata["title"],
				Excerpt:  excerpt(r.Document, 300),
				Distance: r.Distance,
			}
		}
		out, err := json.Marshal(matches)
		if err != nil {
			return "", fmt.Errorf("builtin: search_notes: failed to encode result: %w", err)
		}
		return string(out), nil
	}
}

// noteTools returns the note management tool set.
func noteTools(m *workspace.Manager) []tool.Tool {
	return []tool.Tool{
		{
			Definition: tool.Definition{
				Name:            "create_note",
				Description:     "Save important information as a titled note in the workspace. Notes are semantically indexed and can be recalled later.",
				WorkspaceScoped: true,
				Parameters: objectSchema(map[string]any{
					"workspace_id": workspaceIDProp,
					"title":        stringProp("Short descriptive title for the note."),
					"content":      stringProp("The note body."),
				}, "title", "content"),
			},
			Handler: makeCreateNoteHandler(m),
		},
		{
			Definition: tool.Definition{
				Name:            "read_note",
				Description:     "Read the full content of a note by its ID.",
				WorkspaceScoped: true,
				Parameters: objectSchema(map[string]any{
					"workspace_id": workspaceIDProp,
					"note_id":      stringProp("The note's ID, as shown by list_notes."),
				}, "note_id"),
			},
			Handler: makeReadNoteHandler(m),
		},
		{
			Definition: tool.Definition{
				Name:            "update_note",
				Description:     "Update a note's title and/or content. Omitted fields keep their current value.",
				WorkspaceScoped: true,
				Parameters: objectSchema(map[string]any{
					"workspace_id": workspaceIDProp,
					"note_id":      stringProp("The note's ID."),
					"title":        stringProp("New title. Omit to keep the current title."),
					"content":      stringProp("New content. Omit to keep the current content."),
				}, "note_id"),
			},
			Handler: makeUpdateNoteHandler(m),
		},
		{
			Definition: tool.Definition{
				Name:            "delete_note",
				Description:     "Permanently delete a note by its ID.",
				WorkspaceScoped: true,
				Parameters: objectSchema(map[string]any{
					"workspace_id": workspaceIDProp,
					"note_id":      stringProp("The note's ID."),
				}, "note_id"),
			},
			Handler: makeDeleteNoteHandler(m),
		},
		{
			Definition: tool.Definition{
				Name:            "list_notes",
				Description:     "List the titles and IDs of all notes in the workspace, most recently updated first.",
				WorkspaceScoped: true,
				Parameters: objectSchema(map[string]any{
					"workspace_id": workspaceIDProp,
				}),
			},
			Handler: makeListNotesHandler(m),
		},
		{
			Definition: tool.Definition{
				Name:            "search_notes",
				Description:     "Semantically search across all notes in the workspace and return the closest matches with excerpts.",
				WorkspaceScoped: true,
				Parameters: objectSchema(map[string]any{
					"workspace_id": workspaceIDProp,
					"query":        stringProp("What to look for."),
					"top_k":        intProp("Maximum number of matches to return. Defaults to 3."),
				}, "query"),
			},
			Handler: makeSearchNotesHandler(m),
		},
	}
}
