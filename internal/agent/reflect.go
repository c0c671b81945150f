package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sporelab/mycelium/internal/workspace"
	"github.com/sporelab/mycelium/pkg/provider/llm"
)

// reflect asks the model how the exchange moved the persona's emotional
// scales and motive, applies the deltas (frozen scales stay put) and persists
// the result. The updated state is returned so callers can surface it.
func (r *Runner) reflect(ctx context.Context, ws *workspace.Workspace, userText, aiText string) (workspace.EmotionState, error) {
	state, err := ws.Emotions()
	if err != nil {
		return workspace.EmotionState{}, fmt.Errorf("agent: reflect: %w", err)
	}

	var current strings.Builder
	for _, s := range state.Scales {
		fmt.Fprintf(&current, "- %s: %d (0-100)\n", s.Name, s.Value)
	}

	var fields strings.Builder
	for _, s := range state.Scales {
		fmt.Fprintf(&fields, "    %q: int,\n", deltaKey(s.Name))
	}

	prompt := fmt.Sprintf(`Analyze the user's message and the AI's response to update the AI's emotional state and MOTIVE.

Current State:
%s- Current Motive: "%s"

User: %s
AI: %s

Tasks:
1. Determine DELTA change for each emotion (+/- int).
2. CONSTRUCT A NEW MOTIVE (string) based on the interaction.
   - If user is friendly -> Motive: "Build a deeper connection" or "Assist enthusiastically".
   - If user is hostile -> Motive: "Defend oneself" or "De-escalate".
   - If user is asking for code -> Motive: "Provide efficient, bug-free solution".
   - Keep it short (max 10 words).

Return JSON:
{
%s    "new_motive": "string"
}
JSON:`, current.String(), state.Motive, userText, aiText, fields.String())

	resp, err := r.model.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return workspace.EmotionState{}, fmt.Errorf("agent: reflect: %w", err)
	}

	block, ok := llm.FirstJSONObject(resp.Content)
	if !ok {
		return workspace.EmotionState{}, fmt.Errorf("agent: reflect: no JSON object in response")
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return workspace.EmotionState{}, fmt.Errorf("agent: reflect: %w", err)
	}

	deltas := make(map[string]int, len(state.Scales))
	for _, s := range state.Scales {
		if v, ok := raw[deltaKey(s.Name)].(float64); ok {
			deltas[s.Name] = int(v)
		}
	}
	motive, _ := raw["new_motive"].(string)

	state.Apply(deltas, motive)
	if err := ws.SaveEmotions(state); err != nil {
		return workspace.EmotionState{}, fmt.Errorf("agent: reflect: %w", err)
	}
	return state, nil
}

// deltaKey is the JSON field carrying one scale's delta, e.g.
// "happiness_delta".
func deltaKey(scale string) string {
	return strings.ReplaceAll(strings.ToLower(scale), " ", "_") + "_delta"
}
