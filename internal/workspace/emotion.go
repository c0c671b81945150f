package workspace

import "strings"

// Scale is one named emotional axis, bounded to [0, 100]. A frozen scale is
// rendered into the prompt but never moved by reflection.
type Scale struct {
	Name   string `json:"name"`
	Value  int    `json:"value"`
	Frozen bool   `json:"frozen,omitempty"`
}

// EmotionState is the per-workspace emotion record, stored as emotion.json in
// the workspace directory.
type EmotionState struct {
	// Motive is the agent's current driving goal, replaced wholesale by
	// reflection.
	Motive string `json:"motive"`

	Scales []Scale `json:"scales"`
}

// DefaultMotive seeds new workspaces and backstops records with an empty
// motive field.
const DefaultMotive = "Help the user"

// DefaultEmotions returns the state seeded into a workspace that has no
// emotion record yet.
func DefaultEmotions() EmotionState {
	return EmotionState{
		Motive: DefaultMotive,
		Scales: []Scale{
			{Name: "Happiness", Value: 50},
			{Name: "Trust", Value: 50},
			{Name: "Anger", Value: 0},
			{Name: "Love", Value: 0},
		},
	}
}

// Scale returns the scale with the given name, matched case-insensitively.
func (e EmotionState) Scale(name string) (Scale, bool) {
	for _, s := range e.Scales {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Scale{}, false
}

// Apply shifts each named scale by its delta, clamped to [0, 100]. Frozen
// scales and unknown names are ignored. A non-empty motive replaces the
// current one. Delta keys are matched case-insensitively, so reflection
// output ("happiness") reaches the canonical scale ("Happiness").
func (e *EmotionState) Apply(deltas map[string]int, motive string) {
	for i, s := range e.Scales {
		if s.Frozen {
			continue
		}
		for name, d := range deltas {
			if strings.EqualFold(s.Name, name) {
				e.Scales[i].Value = clampScale(s.Value + d)
				break
			}
		}
	}
	if motive != "" {
		e.Motive = motive
	}
}

func clampScale(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// legacyEmotions is the flat pre-scales record layout. It is still accepted on
// load and rewritten in the current format on the next save.
type legacyEmotions struct {
	Happiness *int   `json:"happiness"`
	Trust     *int   `json:"trust"`
	Anger     *int   `json:"anger"`
	Love      *int   `json:"love"`
	Motive    string `json:"motive"`
}

// migrate converts the flat layout. Happiness and Trust arrive frozen;
// reflection does not move migrated personas until the user thaws them.
func (l legacyEmotions) migrate() EmotionState {
	val := func(p *int, def int) int {
		if p == nil {
			return def
		}
		return clampScale(*p)
	}
	st := EmotionState{
		Motive: l.Motive,
		Scales: []Scale{
			{Name: "Happiness", Value: val(l.Happiness, 50), Frozen: true},
			{Name: "Trust", Value: val(l.Trust, 50), Frozen: true},
			{Name: "Anger", Value: val(l.Anger, 0)},
			{Name: "Love", Value: val(l.Love, 0)},
		},
	}
	if st.Motive == "" {
		st.Motive = DefaultMotive
	}
	return st
}
