// Package chunker splits page text into ordered, contiguous, bounded-size
// chunks for per-chunk model calls. It also extracts a sliding-window context
// snippet (last N words) that lets the model keep continuity across chunk
// boundaries.
package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxSize is the chunk length, in runes, used when the caller
	// passes a non-positive size.
	DefaultMaxSize = 3000

	// DefaultContextWords is the default number of words extracted by
	// ExtractContext.
	DefaultContextWords = 25
)

// Part is one slice of the source text.
//
// For every Part c produced from text, text[c.Start:c.End] == c.Text.
type Part struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Split cuts text into chunks of exactly maxSize runes; the last chunk holds
// the remainder. Chunks never overlap and never drop characters, so joining
// their texts in order reproduces text byte for byte. Empty text yields no
// chunks. If maxSize ≤ 0, DefaultMaxSize is used.
func Split(text string, maxSize int) []Part {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if text == "" {
		return nil
	}

	total := utf8.RuneCountInString(text)
	chunks := make([]Part, 0, (total+maxSize-1)/maxSize)

	start, runes := 0, 0
	for i := range text {
		if runes == maxSize {
			chunks = append(chunks, Part{Index: len(chunks), Text: text[start:i], Start: start, End: i})
			start, runes = i, 0
		}
		runes++
	}
	chunks = append(chunks, Part{Index: len(chunks), Text: text[start:], Start: start, End: len(text)})

	return chunks
}

// Chunk is the string-only form of Split.
func Chunk(text string, maxSize int) []string {
	parts := Split(text, maxSize)
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.Text
	}
	return out
}

// ExtractContext returns the last wordCount words of text, joined by a single
// space. If text has fewer words than wordCount, the entire trimmed text is
// returned. If wordCount ≤ 0, DefaultContextWords is used.
func ExtractContext(text string, wordCount int) string {
	if wordCount <= 0 {
		wordCount = DefaultContextWords
	}
	words := strings.Fields(text)
	if len(words) <= wordCount {
		return strings.Join(words, " ")
	}
	return strings.Join(words[len(words)-wordCount:], " ")
}
