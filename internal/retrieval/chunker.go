package retrieval

import (
	"regexp"
	"strings"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200

	// How far back from the end of a window a sentence break is looked for.
	sentenceLookback = 200
)

var whitespace = regexp.MustCompile(`\s+`)

// ChunkText splits text into windows of at most size bytes, preferring to end
// a window right after a '.'. Each window starts overlap bytes before the end
// of the previous one, so no text is skipped.
func ChunkText(text string, size, overlap int) []string {
	text = whitespace.ReplaceAllString(strings.TrimSpace(text), " ")
	if text == "" || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	start := 0
	for {
		end := start + size
		if end < len(text) {
			lo := max(start+size-sentenceLookback, start)
			if i := strings.LastIndexByte(text[lo:end], '.'); i >= 0 && lo+i > start {
				end = lo + i + 1
			}
		} else {
			end = len(text)
		}
		if aligned := alignRuneBack(text, end); aligned > start {
			end = aligned
		} else {
			end = alignRune(text, end)
		}

		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(text) {
			break
		}

		next := alignRune(text, end-overlap)
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// Moves i forward to the next rune boundary.
func alignRune(text string, i int) int {
	for i < len(text) && !isRuneStart(text[i]) {
		i++
	}
	return min(i, len(text))
}

// Moves i back to the start of the rune it falls in.
func alignRuneBack(text string, i int) int {
	for i > 0 && i < len(text) && !isRuneStart(text[i]) {
		i--
	}
	return i
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
