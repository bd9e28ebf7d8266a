package chunker_test

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/studyspark/internal/chunker"
)

// --- Chunk tests ---

func TestChunk_ShortText(t *testing.T) {
	text := "Hello, world!"
	chunks := chunker.Chunk(text, 100)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestChunk_DefaultSize(t *testing.T) {
	text := strings.Repeat("a", chunker.DefaultMaxSize+1)
	chunks := chunker.Chunk(text, 0)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], chunker.DefaultMaxSize)
	assert.Equal(t, "a", chunks[1])
}

func TestChunk_EmptyText(t *testing.T) {
	assert.Empty(t, chunker.Chunk("", 100))
}

func TestChunk_ExactMultiple(t *testing.T) {
	chunks := chunker.Chunk("abcdef", 3)
	assert.Equal(t, []string{"abc", "def"}, chunks)
}

func TestChunk_ReconstructsFullText(t *testing.T) {
	texts := []string{
		"The quick brown fox jumps over the lazy dog. Pack my box with five dozen liquor jugs.",
		"  leading and trailing whitespace is preserved  \n\n",
		"Привіт, світе! Як справи? 日本語のテキストも大丈夫です。",
		"x",
	}
	for _, text := range texts {
		for n := 1; n <= 12; n++ {
			chunks := chunker.Chunk(text, n)
			assert.Equal(t, text, strings.Join(chunks, ""), "n=%d", n)
		}
	}
}

func TestChunk_SizeBound(t *testing.T) {
	text := "Привіт, світе! Як справи? 日本語のテキストも大丈夫です。 mixed ascii too"
	for n := 1; n <= 20; n++ {
		chunks := chunker.Chunk(text, n)
		for i, c := range chunks {
			runes := utf8.RuneCountInString(c)
			if i < len(chunks)-1 {
				assert.Equal(t, n, runes, "chunk %d of size %d", i, n)
			} else {
				assert.LessOrEqual(t, runes, n)
				assert.Positive(t, runes)
			}
		}
	}
}

func TestChunk_SevenThousandCharacters(t *testing.T) {
	var sb strings.Builder
	for i := 0; sb.Len() < 7000; i++ {
		fmt.Fprintf(&sb, "Sentence number %d is unique. ", i)
	}
	text := sb.String()[:7000]

	chunks := chunker.Chunk(text, 3000)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 3000)
	assert.Len(t, chunks[1], 3000)
	assert.Len(t, chunks[2], 1000)
}

func TestSplit_Offsets(t *testing.T) {
	text := "héllo wörld, ça va?"
	for _, c := range chunker.Split(text, 4) {
		assert.Equal(t, c.Text, text[c.Start:c.End])
	}
	parts := chunker.Split(text, 4)
	for i, c := range parts {
		assert.Equal(t, i, c.Index)
	}
	assert.Equal(t, len(text), parts[len(parts)-1].End)
}

// --- ExtractContext tests ---

func TestExtractContext_FewerWordsThanLimit(t *testing.T) {
	assert.Equal(t, "short text", chunker.ExtractContext("short text", 25))
}

func TestExtractContext_MoreWordsThanLimit(t *testing.T) {
	words := make([]string, 50)
	for i := range words {
		words[i] = "word"
	}
	ctx := chunker.ExtractContext(strings.Join(words, " "), 25)
	assert.Len(t, strings.Fields(ctx), 25)
}

func TestExtractContext_DefaultWordCount(t *testing.T) {
	words := make([]string, 50)
	for i := range words {
		words[i] = "w"
	}
	ctx := chunker.ExtractContext(strings.Join(words, " "), 0)
	assert.Len(t, strings.Fields(ctx), chunker.DefaultContextWords)
}

func TestExtractContext_LastWordsCorrect(t *testing.T) {
	assert.Equal(t, "gamma delta epsilon", chunker.ExtractContext("alpha beta gamma delta epsilon", 3))
}
