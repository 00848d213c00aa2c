package orchestrator

import "strings"

// Small vision models often prefix their answer with a label even when the
// prompt asks for bare text. Only the first matching label is removed; a
// label appearing later is part of the answer.
var labelPrefixes = []string{
	"output:",
	"answer:",
	"caption:",
	"description:",
	"result:",
}

// StripLabelPrefix removes at most one leading label of a fixed set,
// case-insensitively, and trims surrounding whitespace.
func StripLabelPrefix(text string) string {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	for _, p := range labelPrefixes {
		if strings.HasPrefix(lower, p) {
			return strings.TrimSpace(trimmed[len(p):])
		}
	}
	return trimmed
}
