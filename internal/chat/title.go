package chat

import (
	"strings"
)

const (
	maxTitleLength      = 50
	truncatedTitleRunes = 47
	minTitleBreak       = 20
)

// DeriveTitle builds a short session title from the first message of a
// session. Short messages are used as is, longer ones are cut at the first
// sentence end past minTitleBreak characters, or on a word boundary with an
// ellipsis.
func DeriveTitle(text string) string {
	clean := []rune(strings.TrimSpace(text))
	if len(clean) <= maxTitleLength {
		return string(clean)
	}

	for i, r := range clean {
		if i >= minTitleBreak && (r == '.' || r == '!' || r == '?') {
			return string(clean[:i+1])
		}
	}

	truncated := clean[:truncatedTitleRunes]
	if lastSpace := lastIndexRune(truncated, ' '); lastSpace > minTitleBreak {
		return string(truncated[:lastSpace]) + "..."
	}
	return string(truncated) + "..."
}

func lastIndexRune(runes []rune, target rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == target {
			return i
		}
	}
	return -1
}
