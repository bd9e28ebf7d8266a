package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/studyspark/internal/action"
	"github.com/valpere/studyspark/internal/placeholder"
)

func TestDefault_CoversEveryAction(t *testing.T) {
	b := Default()
	for _, a := range action.All {
		_, err := b.BuildChunk(ChunkInput{Action: a, Text: "x", Total: 1})
		assert.NoError(t, err, a)
		_, err = b.BuildMerge(a, action.Params{}, []string{"a", "b"})
		assert.NoError(t, err, a)
	}
}

func TestBuildChunk_PositionNoteOnlyForMultipleChunks(t *testing.T) {
	b := Default()

	single, err := b.BuildChunk(ChunkInput{Action: action.Summarize, Text: "body", Index: 0, Total: 1})
	require.NoError(t, err)
	assert.NotContains(t, single, "part 1 of")

	multi, err := b.BuildChunk(ChunkInput{Action: action.Summarize, Text: "body", Index: 1, Total: 3})
	require.NoError(t, err)
	assert.Contains(t, multi, "part 2 of 3")
}

func TestBuildChunk_Structure(t *testing.T) {
	p, err := Default().BuildChunk(ChunkInput{
		Action:   action.Summarize,
		Params:   action.Params{Title: "Go Memory Model", URL: "https://go.dev/ref/mem"},
		Text:     "CHUNK BODY",
		Index:    0,
		Total:    2,
		Previous: "tail of the previous part",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(p, "Page: Go Memory Model\nURL: https://go.dev/ref/mem\n"))
	assert.Contains(t, p, "professional summarizer")
	assert.Contains(t, p, noDuplicatesRule)
	assert.Contains(t, p, "...tail of the previous part")
	assert.True(t, strings.HasSuffix(p, "TEXT:\nCHUNK BODY"))
	assert.NotContains(t, p, "Target language")
}

func TestBuildChunk_TranslateLanguage(t *testing.T) {
	b := Default()

	p, err := b.BuildChunk(ChunkInput{Action: action.Translate, Text: "hola", Total: 1})
	require.NoError(t, err)
	assert.Contains(t, p, "Translate the following text to English.")
	assert.Contains(t, p, "Target language: English")

	p, err = b.BuildChunk(ChunkInput{Action: action.Translate, Params: action.Params{TargetLanguage: "german"}, Text: "hi", Total: 1})
	require.NoError(t, err)
	assert.Contains(t, p, "Target language: German")
	assert.NotContains(t, p, "English")
}

func TestBuildChunk_PlaceholderHint(t *testing.T) {
	p, err := Default().BuildChunk(ChunkInput{Action: action.Proofread, Text: "[PH0] text", Total: 1, Protected: true})
	require.NoError(t, err)
	assert.Contains(t, p, placeholder.Hint)
}

func TestBuildChunk_TemplateVariants(t *testing.T) {
	b := Default()

	withURL, err := b.BuildChunk(ChunkInput{Action: action.Template, Params: action.Params{URL: "https://example.com"}, Text: "x", Total: 1})
	require.NoError(t, err)
	assert.Contains(t, withURL, "Analyze this webpage content")

	described, err := b.BuildChunk(ChunkInput{Action: action.Template, Text: "a landing page", Total: 1})
	require.NoError(t, err)
	assert.Contains(t, described, "based on the following description")
	assert.NotContains(t, described, "Analyze this webpage")
}

func TestBuildChunk_UnknownAction(t *testing.T) {
	_, err := Default().BuildChunk(ChunkInput{Action: "SING", Text: "x", Total: 1})
	assert.ErrorIs(t, err, action.ErrUnknownAction)
}

func TestBuildMerge(t *testing.T) {
	p, err := Default().BuildMerge(action.Summarize, action.Params{}, []string{"first result", "second result"})
	require.NoError(t, err)

	assert.Contains(t, p, "Remove all duplicate points")
	assert.Contains(t, p, "Keep only the best")
	assert.True(t, strings.HasSuffix(p, "first result"+MergeSeparator+"second result"))
}

func TestBuildRefine(t *testing.T) {
	b := Default()

	p, err := b.BuildRefine(action.Summarize, action.Params{}, "- a\n- a")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, "Clean this MARKDOWN"))
	assert.True(t, strings.HasSuffix(p, "\n\n- a\n- a"))
	assert.NotContains(t, p, "Keep the text in")

	p, err = b.BuildRefine(action.Translate, action.Params{TargetLanguage: "French"}, "Bonjour")
	require.NoError(t, err)
	assert.Contains(t, p, "Keep the text in French.")
}

func TestLoad_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	overlay := "chunk:\n  summarize: \"Summarize {{ .Title | default \\\"the page\\\" | upper }} in one line.\"\nrefine: \"Tidy up.\"\n"
	require.NoError(t, os.WriteFile(path, []byte(overlay), 0o644))

	b, err := Load(path)
	require.NoError(t, err)

	p, err := b.BuildChunk(ChunkInput{Action: action.Summarize, Text: "x", Total: 1})
	require.NoError(t, err)
	assert.Contains(t, p, "Summarize THE PAGE in one line.")

	p, err = b.BuildChunk(ChunkInput{Action: action.Simplify, Text: "x", Total: 1})
	require.NoError(t, err)
	assert.Contains(t, p, "Explain this simply", "untouched entries keep the defaults")

	p, err = b.BuildRefine(action.Summarize, action.Params{}, "t")
	require.NoError(t, err)
	assert.Equal(t, "Tidy up.\n\nt", p)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunk:\n  dance: \"x\"\n"), 0o644))
	_, err = Load(path)
	assert.ErrorIs(t, err, action.ErrUnknownAction)

	require.NoError(t, os.WriteFile(path, []byte("refine: \"{{ .Broken \"\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoad_EmptyPath(t *testing.T) {
	b, err := Load("")
	require.NoError(t, err)
	assert.NotNil(t, b)
}
