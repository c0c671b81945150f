package ingest

import "strings"

// Default chunking bounds, in characters (runes).
const (
	DefaultChunkSize    = 4800
	DefaultChunkOverlap = 400
)

// Chunker splits documents into fixed-size overlapping character windows.
// Zero fields fall back to the package defaults; an overlap at or above the
// chunk size is clamped so splitting always advances.
type Chunker struct {
	Size    int
	Overlap int
}

// Split cuts text into chunks of at most Size runes, each starting
// Size-Overlap runes after the previous one. Whitespace-only input yields no
// chunks.
func (c Chunker) Split(text string) []string {
	size := c.Size
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap := c.Overlap
	if overlap <= 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size - 1
	}

	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)

	step := size - overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
