package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record id does not exist in the workspace.
var ErrNotFound = errors.New("workspace: record not found")

// Note is a free-form document record, stored as notes/<id>.json.
type Note struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
	Updated time.Time `json:"updated_at"`
}

// Skill is a learned procedure record, stored as skills/<id>.json.
type Skill struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Explanation string    `json:"explanation"`
	Updated     time.Time `json:"updated_at"`
}

// ScriptPart is one spoken section of a generated lesson script.
type ScriptPart struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Script is a generated lesson record, stored as scripts/<id>.json.
type Script struct {
	ID      string       `json:"id"`
	Created time.Time    `json:"created_at"`
	Topic   string       `json:"topic"`
	Title   string       `json:"title"`
	Parts   []ScriptPart `json:"parts"`
}

// newRecordID returns a short random record id. Eight hex characters is
// enough at per-workspace record counts and keeps filenames readable.
func newRecordID() string {
	return uuid.NewString()[:8]
}

// ─────────────────────────────────────────────────────────────────────────────
// JSON file helpers
// ─────────────────────────────────────────────────────────────────────────────

func readRecord[T any](path string) (T, error) {
	var v T
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return v, ErrNotFound
		}
		return v, fmt.Errorf("workspace: read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("workspace: decode %s: %w", filepath.Base(path), err)
	}
	return v, nil
}

func writeRecord(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("workspace: create %s: %w", filepath.Dir(path), err)
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("workspace: encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("workspace: write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func removeRecord(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("workspace: remove %s: %w", filepath.Base(path), err)
	}
	return nil
}

// listRecords decodes every .json file in dir. Unreadable or malformed files
// are skipped so one bad record does not hide the rest. A missing directory
// yields an empty list.
func listRecords[T any](dir string) ([]T, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("workspace: list %s: %w", dir, err)
	}

	out := make([]T, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		v, err := readRecord[T](filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
