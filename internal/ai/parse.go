package ai

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// extractJSON pulls a JSON object out of a model response. Tolerates
// ```json fenced blocks and leading/trailing prose around a bare object.
func extractJSON(text string) ([]byte, error) {
	s := strings.TrimSpace(text)

	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	} else if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	return []byte(s[start : end+1]), nil
}

// TruncateMessage enforces a character cap on generated text. Overruns are
// cut at the last word boundary inside the final sixth of the cap, then
// terminated with an ellipsis, so messages never end mid-word. The cap
// counts characters, not bytes, so accented text never splits mid-rune.
func TruncateMessage(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	cut := []rune(s)[:max-3]
	// Keep at least five sixths of the cap; for the 300-char connection
	// note this is the "last space past char 250" rule.
	floor := max * 5 / 6
	for i := len(cut) - 1; i > floor; i-- {
		if cut[i] == ' ' {
			cut = cut[:i]
			break
		}
	}
	return string(cut) + "..."
}
