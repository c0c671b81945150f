package llm

import "strings"

// FirstJSONObject extracts the widest {...} span from a model response,
// tolerating markdown fences and prose around it. It reports false when the
// text contains no braces; callers still need to unmarshal (and may fail) —
// this only locates the candidate block.
func FirstJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}
