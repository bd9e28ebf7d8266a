package dedupe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	tests := map[string]string{
		"Hello, World!":            "hello world",
		"  - Go   is\tFAST.  ":     "go is fast",
		"**Q:** What's a channel?": "q whats a channel",
		"---":                      "",
		"Привіт, Світе!":           "привіт світе",
	}
	for in, want := range tests {
		assert.Equal(t, want, Fingerprint(in), in)
	}
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("a b c", "c b a"), 1e-9)
	assert.InDelta(t, 0.8, Similarity("alpha beta gamma delta", "alpha beta gamma delta epsilon"), 1e-9)
	assert.InDelta(t, 0.5, Similarity("point one", "point two"), 1e-9)
	assert.Zero(t, Similarity("", "a"))
	// repeated words count once in the numerator, fully in the length
	assert.InDelta(t, 0.25, Similarity("the the the the", "the cat"), 1e-9)
}

func TestWithin_DropsExactFingerprintDuplicates(t *testing.T) {
	got := Within("Go is fast.\nGo is fast!\n  go IS fast  \nRust is safe.")
	assert.Equal(t, "Go is fast.\nRust is safe.", got)
}

func TestWithin_DropsNearDuplicates(t *testing.T) {
	in := "goroutines make concurrent programs simple and fast enough\n" +
		"goroutines make concurrent programs simple and fast enough indeed\n" +
		"channels pass values between goroutines"
	assert.Equal(t,
		"goroutines make concurrent programs simple and fast enough\nchannels pass values between goroutines",
		Within(in))
}

func TestWithin_ThresholdIsStrict(t *testing.T) {
	in := "alpha beta gamma delta\nalpha beta gamma delta epsilon"
	assert.Equal(t, in, Within(in))
}

func TestWithin_CollapsesRepeatedSections(t *testing.T) {
	in := "## Intro\nline a\nline b\n\nOther section\n\n## Intro\nline a\nline b\nline c is unique"
	assert.Equal(t, "## Intro\nline a\nline b\n\nOther section", Within(in))
}

func TestWithin_PreservesParagraphBreaks(t *testing.T) {
	in := "First paragraph here.\n\n\n\nSecond paragraph here.\n\nFirst paragraph here."
	assert.Equal(t, "First paragraph here.\n\nSecond paragraph here.", Within(in))
}

func TestWithin_KeepsCodeFences(t *testing.T) {
	in := "Template:\n\n```html\n<div>\n\n<div>\n</div>\n</div>\n```\n\nTemplate:"
	assert.Equal(t, "Template:\n\n```html\n<div>\n\n<div>\n</div>\n</div>\n```", Within(in))
}

func TestWithin_KeepsLinesWithoutWords(t *testing.T) {
	assert.Equal(t, "a line\n---\n---", Within("a line\n---\n---"))
}

func TestWithin_NoTwoKeptLinesAreDuplicates(t *testing.T) {
	in := strings.Join([]string{
		"# Summary",
		"- The model is trained on a large corpus of text",
		"- The model is trained on a large corpus of text data",
		"- Evaluation uses held-out benchmarks",
		"- Evaluation uses held-out benchmarks.",
		"# summary",
		"- Results improve with scale",
	}, "\n")

	lines := strings.Split(Within(in), "\n")
	for i := range lines {
		for j := i + 1; j < len(lines); j++ {
			a, b := Fingerprint(lines[i]), Fingerprint(lines[j])
			if a == "" || b == "" {
				continue
			}
			assert.NotEqual(t, a, b)
			assert.LessOrEqual(t, Similarity(a, b), SimilarityThreshold, "%q vs %q", lines[i], lines[j])
		}
	}
	assert.Len(t, lines, 4)
}

func TestSentences(t *testing.T) {
	got := Sentences("First one. Second one!  Third?\n- bullet line\nTail")
	assert.Equal(t, []string{"First one.", "Second one!", "Third?", "- bullet line", "Tail"}, got)
	assert.Empty(t, Sentences("   "))
}

func TestAcross_RemovesSentencesSeenBefore(t *testing.T) {
	prior := []string{"Go is a statically typed compiled language. It was designed at Google."}
	got := Across("Go is a statically typed compiled language. Its concurrency model is great.", prior)
	assert.Equal(t, "Its concurrency model is great.", got)
}

func TestAcross_KeepsShortSentences(t *testing.T) {
	prior := []string{"Yes. It is. Exactly twenty chars!!"}
	text := "Yes. It is. Exactly twenty chars!! More text follows."
	assert.Equal(t, text, Across(text, prior))
}

func TestAcross_DropsEmptiedListItems(t *testing.T) {
	prior := []string{"- Goroutines are lightweight threads managed by the runtime"}
	text := "- Goroutines are lightweight threads managed by the runtime\n- Channels connect goroutines together"
	assert.Equal(t, "- Channels connect goroutines together", Across(text, prior))
}

func TestAcross_CollapsesBlankLines(t *testing.T) {
	prior := []string{"This whole paragraph was already shown earlier."}
	text := "Intro line\n\nThis whole paragraph was already shown earlier.\n\n\nOutro line"
	assert.Equal(t, "Intro line\n\nOutro line", Across(text, prior))
}

func TestAcross_KeepsSentenceExtendingPriorFragment(t *testing.T) {
	text := "The mitochondria is the powerhouse of the cell, producing ATP for the body."
	prior := []string{"- The mitochondria is the powerhouse"}
	assert.Equal(t, text, Across(text, prior))
}

func TestAcross_DropsSentenceContainedInLongerPrior(t *testing.T) {
	text := "Photosynthesis basics.\nphotosynthesis converts light into chemical energy for plants.\nRoots absorb water."
	prior := []string{"In short, photosynthesis converts light into chemical energy for plants."}
	assert.Equal(t, "Photosynthesis basics.\nRoots absorb water.", Across(text, prior))
}

func TestAcross_KeepsListMarkerOfSurvivingSentence(t *testing.T) {
	prior := []string{"Enzymes speed up chemical reactions in cells."}
	text := "Cell notes:\n  - Enzymes speed up chemical reactions in cells. They are proteins."
	assert.Equal(t, "Cell notes:\n  - They are proteins.", Across(text, prior))
}

func TestAcross_NoPrior(t *testing.T) {
	assert.Equal(t, "unchanged text", Across("  unchanged text \n", nil))
}

func TestDedupe_DoesNotMutatePrior(t *testing.T) {
	prior := []string{"An earlier result sentence that is long enough.", "Another earlier result."}
	snapshot := append([]string(nil), prior...)

	got := Dedupe("An earlier result sentence that is long enough.\nFresh content here.\nFresh content here.", prior)
	assert.Equal(t, snapshot, prior)
	assert.Equal(t, "Fresh content here.", got)
}
