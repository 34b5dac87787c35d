package ingestion

import (
	"fmt"
	"strings"
)

// separators tried when closing a chunk, in priority order: paragraph break,
// sentence end, line break, word break. A hard character cut is the last
// resort.
var separators = []string{"\n\n", ". ", "\n", " "}

// Split cuts text into chunks of at most size characters. Sizes and overlap
// count runes, so multibyte text gets the same budget as ASCII. Chunk ends
// snap to the best natural boundary inside the budget, and every chunk after
// the first repeats the previous chunk's tail of overlap characters.
// Splitting is deterministic and every input character lands in at least one
// chunk.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be non-negative and smaller than chunk size %d", overlap, size)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	runes := []rune(text)
	var chunks []string
	start := 0
	for {
		if len(runes)-start <= size {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		cut := findCut(runes, start, start+size, start+overlap)
		chunks = append(chunks, string(runes[start:cut]))

		next := cut - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks, nil
}

// findCut returns the end offset for a chunk starting at start. Boundaries
// at or before floor are rejected so the next chunk always advances past the
// overlap region; with no acceptable boundary the chunk is cut hard at limit.
func findCut(runes []rune, start, limit, floor int) int {
	window := runes[start:limit]
	for _, sep := range separators {
		sepRunes := []rune(sep)
		if idx := lastIndexRunes(window, sepRunes); idx >= 0 {
			cut := start + idx + len(sepRunes)
			if cut > floor {
				return cut
			}
		}
	}
	return limit
}

// lastIndexRunes is strings.LastIndex over rune slices.
func lastIndexRunes(window, sep []rune) int {
	for i := len(window) - len(sep); i >= 0; i-- {
		match := true
		for j := range sep {
			if window[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
