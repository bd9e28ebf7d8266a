// Package dedupe removes repeated content from model output: repeated
// sections and near-identical lines within one chunk's output, and sentences
// already present in earlier chunks' results.
//
// It is a syntactic safety net, not semantic deduplication. Paraphrases below
// the similarity threshold survive, and a long sentence that legitimately
// repeats across chunks is removed.
package dedupe

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// SimilarityThreshold is the word-overlap ratio above which a line is a
	// near-duplicate of an earlier one.
	SimilarityThreshold = 0.8

	// MinSentenceLength is the rune length a sentence must exceed before it
	// is removed as an inter-chunk duplicate.
	MinSentenceLength = 20

	sectionLines = 3
	sectionRunes = 100
)

// Dedupe applies Within and then Across. prior is not modified.
func Dedupe(text string, prior []string) string {
	return Across(Within(text), prior)
}

// Within collapses sections that start like an earlier section, then drops
// lines whose fingerprint equals, or is more than SimilarityThreshold similar
// to, a line already kept. Blank lines separate sections and are never
// compared; fenced code blocks are kept verbatim.
func Within(text string) string {
	seenSections := make(map[string]struct{})
	var kept []string
	var out []string

	for _, b := range splitBlocks(text) {
		if b.code {
			out = append(out, strings.Join(b.lines, "\n"))
			continue
		}
		if fp := sectionFingerprint(b.lines); fp != "" {
			if _, dup := seenSections[fp]; dup {
				continue
			}
			seenSections[fp] = struct{}{}
		}

		var lines []string
		for _, line := range b.lines {
			fp := Fingerprint(line)
			if fp == "" {
				lines = append(lines, line)
				continue
			}
			if duplicateOf(fp, kept) {
				continue
			}
			kept = append(kept, fp)
			lines = append(lines, line)
		}
		if len(lines) > 0 {
			out = append(out, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(out, "\n\n")
}

// Across drops every sentence of text that is longer than
// MinSentenceLength and appears verbatim in a prior result. Sentences are
// compared without their list marker. Lines left with no sentence are
// removed and runs of blank lines are collapsed.
func Across(text string, prior []string) string {
	if len(prior) == 0 {
		return tidy(text)
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			out = append(out, line)
			continue
		}

		marker := listMarkerRe.FindString(strings.TrimLeft(line, " \t"))
		body := strings.TrimLeft(line, " \t")[len(marker):]
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]

		var kept strings.Builder
		start := 0
		for _, loc := range append(sentenceEndRe.FindAllStringIndex(body, -1), []int{len(body), len(body)}) {
			seg := body[start:loc[1]]
			start = loc[1]
			if seg == "" {
				continue
			}
			if !seenIn(strings.TrimSpace(seg), prior) {
				kept.WriteString(seg)
			}
		}
		if strings.TrimSpace(kept.String()) == "" {
			continue
		}
		out = append(out, indent+marker+kept.String())
	}
	return tidy(strings.Join(out, "\n"))
}

func seenIn(sentence string, prior []string) bool {
	bare := strings.TrimRight(sentence, ".!?")
	if utf8.RuneCountInString(bare) <= MinSentenceLength {
		return false
	}
	for _, p := range prior {
		if strings.Contains(p, bare) {
			return true
		}
	}
	return false
}

var (
	sentenceEndRe = regexp.MustCompile(`[.!?]+\s+|\n+`)
	listMarkerRe  = regexp.MustCompile(`^(?:[-*+•]|\d+[.)]|#{1,6}|>)\s+`)
	emptyLineRe   = regexp.MustCompile(`^\s*(?:[-*+•]|\d+[.)]|#{1,6}|>)?\s*$`)
	blankRunRe    = regexp.MustCompile(`\n{3,}`)
)

// Sentences splits text after ., ! or ? followed by whitespace, and at line
// breaks. Terminators stay attached; empty pieces are dropped.
func Sentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start:loc[1]]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// Fingerprint lowercases line, strips punctuation and symbols, and collapses
// whitespace.
func Fingerprint(line string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(line) {
		switch {
		case unicode.IsPunct(r), unicode.IsSymbol(r):
		case unicode.IsSpace(r):
			sb.WriteByte(' ')
		default:
			sb.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// Similarity is the number of distinct words two fingerprints share divided
// by the word count of the longer one.
func Similarity(a, b string) float64 {
	wa, wb := strings.Fields(a), strings.Fields(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inA := make(map[string]struct{}, len(wa))
	for _, w := range wa {
		inA[w] = struct{}{}
	}
	shared := 0
	counted := make(map[string]struct{}, len(wb))
	for _, w := range wb {
		if _, ok := inA[w]; !ok {
			continue
		}
		if _, ok := counted[w]; ok {
			continue
		}
		counted[w] = struct{}{}
		shared++
	}
	return float64(shared) / float64(max(len(wa), len(wb)))
}

func duplicateOf(fp string, kept []string) bool {
	for _, k := range kept {
		if fp == k || Similarity(fp, k) > SimilarityThreshold {
			return true
		}
	}
	return false
}

func sectionFingerprint(lines []string) string {
	parts := make([]string, 0, sectionLines)
	for _, line := range lines {
		if fp := Fingerprint(line); fp != "" {
			parts = append(parts, fp)
		}
		if len(parts) == sectionLines {
			break
		}
	}
	fp := strings.Join(parts, " ")
	if utf8.RuneCountInString(fp) > sectionRunes {
		fp = string([]rune(fp)[:sectionRunes])
	}
	return fp
}

type block struct {
	lines []string
	code  bool
}

func splitBlocks(text string) []block {
	var (
		out     []block
		cur     *block
		inFence bool
	)
	flush := func() {
		if cur != nil && len(cur.lines) > 0 {
			out = append(out, *cur)
		}
		cur = nil
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		fence := strings.HasPrefix(trimmed, "```")
		switch {
		case inFence:
			cur.lines = append(cur.lines, line)
			if fence {
				inFence = false
				flush()
			}
		case fence:
			flush()
			cur = &block{code: true, lines: []string{line}}
			inFence = true
		case trimmed == "":
			flush()
		default:
			if cur == nil {
				cur = &block{}
			}
			cur.lines = append(cur.lines, strings.TrimRight(line, " \t"))
		}
	}
	flush()
	return out
}

func tidy(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if emptyLineRe.MatchString(line) {
			lines[i] = ""
			continue
		}
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(blankRunRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
