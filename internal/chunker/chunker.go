// Package chunker splits raw document text into overlapping bounded-size
// segments for embedding and indexing. Splitting prefers natural boundaries
// (paragraph, newline, sentence end, word) before falling back to a hard
// character cut, and is fully deterministic: identical input always yields
// identical chunks in identical order.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Defaults used by the ingestion pipeline.
const (
	// DefaultMaxSize is the maximum number of characters per chunk.
	DefaultMaxSize = 200

	// DefaultOverlap is the number of characters consecutive chunks share.
	DefaultOverlap = 50
)

// Split divides text into ordered chunks of at most maxSize bytes where
// each chunk after the first repeats the last overlap bytes of its
// predecessor. Chunks never split a multi-byte rune: when a cut or overlap
// position lands inside one it is moved back to the rune start, which can
// widen the shared region past overlap for non-ASCII text. For ASCII input
// dropping the first overlap bytes of every chunk after the first
// reconstructs the trimmed input exactly.
//
// Empty or whitespace-only input yields a nil slice. Invalid parameters
// (maxSize <= 0, overlap < 0, or overlap >= maxSize) are caller bugs and
// return an error.
func Split(text string, maxSize, overlap int) ([]string, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("chunker: max size must be positive, got %d", maxSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunker: overlap must not be negative, got %d", overlap)
	}
	if overlap >= maxSize {
		return nil, fmt.Errorf("chunker: overlap %d must be smaller than max size %d", overlap, maxSize)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	var chunks []string
	start := 0
	for {
		if len(text)-start <= maxSize {
			chunks = append(chunks, text[start:])
			return chunks, nil
		}

		cut := cutPoint(text, start, start+maxSize, overlap)
		chunks = append(chunks, text[start:cut])
		next := runeStart(text, cut-overlap)
		if next <= start {
			// The rewound overlap start fell inside the rune the previous
			// chunk began with. Give up the overlap for this join rather
			// than stall.
			next = cut
		}
		start = next
	}
}

// cutPoint picks where the chunk starting at start should end. It scans the
// window (start+overlap, max] for the latest natural boundary, trying
// paragraph breaks first, then line breaks, then sentence ends, then word
// gaps, and falls back to the hard limit when the window has no boundary at
// all. The lower bound guarantees forward progress after the overlap is
// rewound.
func cutPoint(text string, start, max, overlap int) int {
	min := start + overlap + 1

	if p := lastBoundary(text, min, max, "\n\n"); p > 0 {
		return p
	}
	if p := lastBoundary(text, min, max, "\n"); p > 0 {
		return p
	}
	if p := lastSentenceEnd(text, min, max); p > 0 {
		return p
	}
	if p := lastBoundary(text, min, max, " "); p > 0 {
		return p
	}
	if p := runeStart(text, max); p >= min {
		return p
	}
	// The whole window sits inside one multi-byte rune. Cut after it even
	// though that overshoots max.
	p := max
	for p < len(text) && !utf8.RuneStart(text[p]) {
		p++
	}
	return p
}

// runeStart backs i off to the start of the rune containing text[i].
func runeStart(text string, i int) int {
	for i > 0 && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

// lastBoundary returns the cut position just past the last occurrence of sep
// whose end lies within (min, max], or 0 if none exists.
func lastBoundary(text string, min, max int, sep string) int {
	window := text[:max]
	i := strings.LastIndex(window, sep)
	for i >= 0 {
		end := i + len(sep)
		if end >= min {
			return end
		}
		i = strings.LastIndex(window[:i], sep)
	}
	return 0
}

// lastSentenceEnd returns the cut position just past the last sentence
// terminator (". ", "! ", "? ") ending within (min, max], or 0 if none.
func lastSentenceEnd(text string, min, max int) int {
	best := 0
	for _, sep := range []string{". ", "! ", "? "} {
		if p := lastBoundary(text, min, max, sep); p > best {
			best = p
		}
	}
	return best
}
