package agent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/sporelab/mycelium/internal/workspace"
)

// mentionPattern matches @[Name] and @[Name:type] references in a user
// message. The bracket content is parsed by parseMention.
var mentionPattern = regexp.MustCompile(`@\[(.*?)\]`)

// maxTitleDistance is the Levenshtein budget for fuzzy note-title matching
// when an exact title lookup misses.
const maxTitleDistance = 2

// mention is one parsed @[...] reference.
type mention struct {
	Name string
	Kind string // "note", "node", "concept" or "any"
}

// parseMention splits the bracket content on its last colon. Anything after
// that colon is the kind; an unrecognised kind is treated as part of the name
// rather than rejected, matching how users actually type entity names with
// colons in them.
func parseMention(raw string) mention {
	if idx := strings.LastIndex(raw, ":"); idx >= 0 {
		kind := strings.ToLower(strings.TrimSpace(raw[idx+1:]))
		switch kind {
		case "note", "node", "concept", "any":
			return mention{Name: strings.TrimSpace(raw[:idx]), Kind: kind}
		}
	}
	return mention{Name: strings.TrimSpace(raw), Kind: "any"}
}

// resolveMentions renders every resolvable @[...] reference in text as a
// context block entry. Unresolvable mentions are silently dropped; the model
// sees only what the memory actually holds.
func resolveMentions(ws *workspace.Workspace, text string) []string {
	raws := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(raws) == 0 {
		return nil
	}

	var blocks []string
	for _, m := range raws {
		ref := parseMention(m[1])
		if ref.Name == "" {
			continue
		}

		if ref.Kind == "any" || ref.Kind == "node" || ref.Kind == "concept" {
			if node, ok := ws.Store().Graph().Node(ref.Name); ok {
				blocks = append(blocks, fmt.Sprintf("ENTITY '%s' (%s): %s", node.Name, node.Type, node.Description))
			}
		}
		if ref.Kind == "any" || ref.Kind == "note" {
			if note, ok := lookupNote(ws, ref.Name); ok {
				blocks = append(blocks, fmt.Sprintf("NOTE '%s':\n%s", note.Title, note.Content))
			}
		}
	}
	return blocks
}

// lookupNote finds a note by exact title, falling back to the nearest title
// within maxTitleDistance edits. Ties keep the earlier note in listing order.
func lookupNote(ws *workspace.Workspace, title string) (workspace.Note, bool) {
	if n, err := ws.NoteByTitle(title); err == nil {
		return n, true
	}

	notes, err := ws.Notes()
	if err != nil {
		return workspace.Note{}, false
	}

	best := workspace.Note{}
	bestDist := maxTitleDistance + 1
	for _, n := range notes {
		d := matchr.Levenshtein(strings.ToLower(title), strings.ToLower(n.Title))
		if d < bestDist {
			best, bestDist = n, d
		}
	}
	if bestDist > maxTitleDistance {
		return workspace.Note{}, false
	}
	return best, true
}
