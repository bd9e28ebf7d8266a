// Package placeholder shields markup that a model must not rewrite (fenced
// code, inline code, HTML tags, bare URLs) behind numbered [PHn] markers
// while a chunk is translated or proofread, and puts it back afterwards.
package placeholder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Hint is appended to prompts whose chunk carries markers.
const Hint = "Keep every [PHn] marker exactly as written. Do not translate, move, or remove them."

var (
	// Longest constructs first so a fence is never split into inline spans.
	patterns = []*regexp.Regexp{
		regexp.MustCompile("(?s)```.*?```"),
		regexp.MustCompile("`[^`\n]+`"),
		regexp.MustCompile(`<[^<>\n]+>`),
		regexp.MustCompile(`https?://[^\s)\]>"']+`),
	}

	markerRe = regexp.MustCompile(`\[PH(\d+)\]`)
)

// Masked is a chunk with its protected spans swapped out.
type Masked struct {
	Text  string
	Spans []string
}

// Mask replaces protected spans with markers numbered in replacement order.
func Mask(text string) Masked {
	var spans []string
	for _, re := range patterns {
		text = re.ReplaceAllStringFunc(text, func(span string) string {
			spans = append(spans, span)
			return marker(len(spans) - 1)
		})
	}
	return Masked{Text: text, Spans: spans}
}

// Protected reports whether any span was masked.
func (m Masked) Protected() bool {
	return len(m.Spans) > 0
}

// Unmask restores the original spans in a model's output. Markers the model
// invented are left as they are.
func (m Masked) Unmask(output string) string {
	if !m.Protected() {
		return output
	}
	return markerRe.ReplaceAllStringFunc(output, func(match string) string {
		idx, err := strconv.Atoi(markerRe.FindStringSubmatch(match)[1])
		if err != nil || idx >= len(m.Spans) {
			return match
		}
		return m.Spans[idx]
	})
}

// Missing lists the markers absent from output, i.e. spans the model dropped.
func (m Masked) Missing(output string) []int {
	var missing []int
	for i := range m.Spans {
		if !strings.Contains(output, marker(i)) {
			missing = append(missing, i)
		}
	}
	return missing
}

func marker(i int) string {
	return fmt.Sprintf("[PH%d]", i)
}
