package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sporelab/mycelium/pkg/memory"
)

// Workspace is the opened state of one workspace directory. Obtain instances
// through [Manager.Open]; the Manager guarantees at most one per id, so the
// memory store and record files have a single writer path. Safe for
// concurrent use.
type Workspace struct {
	// ID is the workspace identifier, also its directory name.
	ID string

	dir   string
	store *memory.Store
	log   *slog.Logger

	// fileMu serializes read-modify-write cycles on the settings and emotion
	// records.
	fileMu sync.Mutex
}

// Store returns the workspace's memory store.
func (w *Workspace) Store() *memory.Store { return w.store }

// Dir returns the workspace directory.
func (w *Workspace) Dir() string { return w.dir }

func (w *Workspace) settingsPath() string { return filepath.Join(w.dir, "config.json") }
func (w *Workspace) emotionPath() string  { return filepath.Join(w.dir, "emotion.json") }
func (w *Workspace) notesDir() string     { return filepath.Join(w.dir, "notes") }
func (w *Workspace) skillsDir() string    { return filepath.Join(w.dir, "skills") }
func (w *Workspace) scriptsDir() string   { return filepath.Join(w.dir, "scripts") }

// ─────────────────────────────────────────────────────────────────────────────
// Settings and emotions
// ─────────────────────────────────────────────────────────────────────────────

// Settings returns the workspace settings. A missing or unreadable record
// yields [DefaultSettings]; a broken config file degrades the workspace to
// defaults rather than blocking it.
func (w *Workspace) Settings() (Settings, error) {
	w.fileMu.Lock()
	defer w.fileMu.Unlock()

	st, err := readRecord[Settings](w.settingsPath())
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			w.log.Warn("settings record unreadable, using defaults", "error", err)
		}
		return DefaultSettings(), nil
	}
	return st, nil
}

// SaveSettings replaces the settings record.
func (w *Workspace) SaveSettings(st Settings) error {
	w.fileMu.Lock()
	defer w.fileMu.Unlock()
	return writeRecord(w.settingsPath(), st)
}

// Emotions returns the workspace's emotional state. A missing record yields
// [DefaultEmotions]; records in the flat pre-scales layout are migrated on
// load.
func (w *Workspace) Emotions() (EmotionState, error) {
	w.fileMu.Lock()
	defer w.fileMu.Unlock()

	raw, err := os.ReadFile(w.emotionPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultEmotions(), nil
		}
		return EmotionState{}, fmt.Errorf("workspace: read emotion.json: %w", err)
	}

	var st EmotionState
	if err := json.Unmarshal(raw, &st); err == nil && len(st.Scales) > 0 {
		if st.Motive == "" {
			st.Motive = DefaultMotive
		}
		return st, nil
	}

	var legacy legacyEmotions
	if err := json.Unmarshal(raw, &legacy); err != nil {
		w.log.Warn("emotion record unreadable, using defaults", "error", err)
		return DefaultEmotions(), nil
	}
	return legacy.migrate(), nil
}

// SaveEmotions replaces the emotion record, writing the current scales
// layout.
func (w *Workspace) SaveEmotions(st EmotionState) error {
	w.fileMu.Lock()
	defer w.fileMu.Unlock()
	return writeRecord(w.emotionPath(), st)
}

// ─────────────────────────────────────────────────────────────────────────────
// Notes
// ─────────────────────────────────────────────────────────────────────────────

// Notes lists all note records, most recently updated first.
func (w *Workspace) Notes() ([]Note, error) {
	notes, err := listRecords[Note](w.notesDir())
	if err != nil {
		return nil, err
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].Updated.After(notes[j].Updated) })
	return notes, nil
}

// Note returns the note with the given id, or [ErrNotFound].
func (w *Workspace) Note(id string) (Note, error) {
	return readRecord[Note](filepath.Join(w.notesDir(), id+".json"))
}

// NoteByTitle returns the first note whose title matches exactly, or
// [ErrNotFound].
func (w *Workspace) NoteByTitle(title string) (Note, error) {
	notes, err := w.Notes()
	if err != nil {
		return Note{}, err
	}
	for _, n := range notes {
		if n.Title == title {
			return n, nil
		}
	}
	return Note{}, ErrNotFound
}

// SaveNote creates or replaces a note record and refreshes its vector index
// entry. A missing ID is assigned; the update timestamp is always set.
// An index sync failure is logged, not returned: the record on disk is the
// source of truth and Reindex repairs the collection.
func (w *Workspace) SaveNote(ctx context.Context, n Note) (Note, error) {
	if n.ID == "" {
		n.ID = newRecordID()
	}
	if n.Title == "" {
		n.Title = "Untitled Note"
	}
	n.Updated = time.Now()

	if err := writeRecord(filepath.Join(w.notesDir(), n.ID+".json"), n); err != nil {
		return Note{}, err
	}
	if err := w.store.IndexNote(ctx, memory.Note{ID: n.ID, Title: n.Title, Content: n.Content}); err != nil {
		w.log.Warn("note index sync failed", "note", n.ID, "error", err)
	}
	return n, nil
}

// DeleteNote removes a note record and its index entry.
func (w *Workspace) DeleteNote(ctx context.Context, id string) error {
	if err := removeRecord(filepath.Join(w.notesDir(), id+".json")); err != nil {
		return err
	}
	if err := w.store.DeleteNote(ctx, id); err != nil {
		w.log.Warn("note index sync failed", "note", id, "error", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Skills
// ─────────────────────────────────────────────────────────────────────────────

// Skills lists all skill records, most recently updated first.
func (w *Workspace) Skills() ([]Skill, error) {
	skills, err := listRecords[Skill](w.skillsDir())
	if err != nil {
		return nil, err
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].Updated.After(skills[j].Updated) })
	return skills, nil
}

// Skill returns the skill with the given id, or [ErrNotFound].
func (w *Workspace) Skill(id string) (Skill, error) {
	return readRecord[Skill](filepath.Join(w.skillsDir(), id+".json"))
}

// SaveSkill creates or replaces a skill record and refreshes its vector
// index entry.
func (w *Workspace) SaveSkill(ctx context.Context, sk Skill) (Skill, error) {
	if sk.ID == "" {
		sk.ID = newRecordID()
	}
	if sk.Title == "" {
		sk.Title = "Untitled Skill"
	}
	sk.Updated = time.Now()

	if err := writeRecord(filepath.Join(w.skillsDir(), sk.ID+".json"), sk); err != nil {
		return Skill{}, err
	}
	err := w.store.IndexSkill(ctx, memory.Skill{
		ID:          sk.ID,
		Title:       sk.Title,
		Summary:     sk.Summary,
		Explanation: sk.Explanation,
	})
	if err != nil {
		w.log.Warn("skill index sync failed", "skill", sk.ID, "error", err)
	}
	return sk, nil
}

// DeleteSkill removes a skill record and its index entry.
func (w *Workspace) DeleteSkill(ctx context.Context, id string) error {
	if err := removeRecord(filepath.Join(w.skillsDir(), id+".json")); err != nil {
		return err
	}
	if err := w.store.DeleteSkill(ctx, id); err != nil {
		w.log.Warn("skill index sync failed", "skill", id, "error", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scripts
// ─────────────────────────────────────────────────────────────────────────────

// Scripts lists all generated lesson scripts, newest first.
func (w *Workspace) Scripts() ([]Script, error) {
	scripts, err := listRecords[Script](w.scriptsDir())
	if err != nil {
		return nil, err
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Created.After(scripts[j].Created) })
	return scripts, nil
}

// Script returns the script with the given id, or [ErrNotFound].
func (w *Workspace) Script(id string) (Script, error) {
	return readRecord[Script](filepath.Join(w.scriptsDir(), id+".json"))
}

// SaveScript persists a generated script. A missing ID is assigned and a
// zero creation time is set to now. Scripts are not embedded; there is no
// index entry to sync.
func (w *Workspace) SaveScript(s Script) (Script, error) {
	if s.ID == "" {
		s.ID = newRecordID()
	}
	if s.Created.IsZero() {
		s.Created = time.Now()
	}
	if err := writeRecord(filepath.Join(w.scriptsDir(), s.ID+".json"), s); err != nil {
		return Script{}, err
	}
	return s, nil
}

// DeleteScript removes a script record.
func (w *Workspace) DeleteScript(id string) error {
	return removeRecord(filepath.Join(w.scriptsDir(), id+".json"))
}
