package processor_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/studyspark/internal/action"
	"github.com/valpere/studyspark/internal/completion"
	"github.com/valpere/studyspark/internal/completion/completiontest"
	"github.com/valpere/studyspark/internal/placeholder"
	"github.com/valpere/studyspark/internal/processor"
)

func newProcessor(opts ...processor.Option) *processor.Processor {
	client := completion.NewClient(completion.WithBackoff(time.Millisecond))
	return processor.New(client, nil, opts...)
}

func TestProcess_CleansOutput(t *testing.T) {
	session := completiontest.NewSession(completiontest.Replies(map[string]any{
		"content": "<think>plan</think>Here is the summary:\n# Notes\n- point",
	}))

	out, err := newProcessor().Process(context.Background(), session, processor.Request{
		Action: action.Summarize,
		Chunk:  "Some long article text.",
		Index:  0,
		Total:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, "# Notes\n- point", out)

	prompts := session.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Some long article text.")
	assert.NotContains(t, prompts[0], "part 1 of 1")
}

func TestProcess_PositionAndLanguage(t *testing.T) {
	session := completiontest.NewSession(completiontest.Replies("Hallo Welt"))

	_, err := newProcessor().Process(context.Background(), session, processor.Request{
		Action: action.Translate,
		Params: action.Params{TargetLanguage: "German"},
		Chunk:  "Hello world",
		Index:  2,
		Total:  4,
	})
	require.NoError(t, err)

	p := session.Prompts()[0]
	assert.Contains(t, p, "part 3 of 4")
	assert.Contains(t, p, "Target language: German")
	assert.Contains(t, p, "Do not repeat")
}

func TestProcess_TranslateDefaultsToEnglish(t *testing.T) {
	session := completiontest.NewSession(completiontest.Replies("Hello"))

	_, err := newProcessor().Process(context.Background(), session, processor.Request{
		Action: action.Translate,
		Chunk:  "Hola",
		Total:  1,
	})
	require.NoError(t, err)
	assert.Contains(t, session.Prompts()[0], "Target language: English")
}

func TestProcess_ProtectsMarkup(t *testing.T) {
	session := completiontest.NewSession(func(_ context.Context, prompt string, _ int) (any, error) {
		assert.NotContains(t, prompt, "<b>")
		assert.Contains(t, prompt, placeholder.Hint)
		return "Hola [PH0]mundo[PH1]", nil
	})

	out, err := newProcessor().Process(context.Background(), session, processor.Request{
		Action: action.Translate,
		Params: action.Params{TargetLanguage: "Spanish"},
		Chunk:  "Hello <b>world</b>",
		Total:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hola <b>mundo</b>", out)
}

func TestProcess_PreviousContext(t *testing.T) {
	session := completiontest.NewSession(completiontest.Replies("ok"))
	req := processor.Request{
		Action:   action.Simplify,
		Chunk:    "second part",
		Index:    1,
		Total:    2,
		Previous: "one two three four five six",
	}

	_, err := newProcessor(processor.WithContextWords(3)).Process(context.Background(), session, req)
	require.NoError(t, err)
	assert.Contains(t, session.Prompts()[0], "...four five six")

	session = completiontest.NewSession(completiontest.Replies("ok"))
	_, err = newProcessor().Process(context.Background(), session, req)
	require.NoError(t, err)
	assert.NotContains(t, session.Prompts()[0], "CONTEXT")
}

func TestProcess_FailureReturnsPlaceholder(t *testing.T) {
	session := completiontest.NewSession(completiontest.Replies(errors.New("model overloaded")))

	out, err := newProcessor().Process(context.Background(), session, processor.Request{
		Action: action.Summarize,
		Chunk:  "text",
		Index:  1,
		Total:  3,
	})
	require.Error(t, err)

	var cerr *completion.CompletionError
	assert.ErrorAs(t, err, &cerr)
	assert.Equal(t, "⚠️ Error in part 2: completion failed after 2 attempts: model overloaded", out)
	assert.True(t, processor.IsPlaceholder(out))
	assert.Equal(t, 2, session.Calls())
}

func TestProcess_EmptyOutput(t *testing.T) {
	session := completiontest.NewSession(completiontest.Replies("  <think>only thoughts</think> "))

	out, err := newProcessor().Process(context.Background(), session, processor.Request{Action: action.Summarize, Chunk: "x", Total: 1})
	assert.ErrorIs(t, err, processor.ErrEmptyOutput)
	assert.True(t, processor.IsPlaceholder(out))
}

func TestProcess_TypedNilResponseIsEmpty(t *testing.T) {
	session := completiontest.NewSession(completiontest.Replies(map[string]any(nil)))

	out, err := newProcessor().Process(context.Background(), session, processor.Request{Action: action.Summarize, Chunk: "x", Total: 1})
	assert.ErrorIs(t, err, processor.ErrEmptyOutput)
	assert.True(t, processor.IsPlaceholder(out))
}

func TestProcess_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	session := completiontest.NewSession(completiontest.Blocking())

	out, err := newProcessor().Process(ctx, session, processor.Request{Action: action.Summarize, Chunk: "x", Total: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out)
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "⚠️ Error in part 1: boom", processor.Placeholder(0, errors.New("boom")))
	assert.Equal(t, "⚠️ Error in part 3: unknown error", processor.Placeholder(2, nil))
	assert.False(t, processor.IsPlaceholder("Error in part 1 was fixed"))
	assert.True(t, strings.HasPrefix(processor.Placeholder(4, nil), "⚠️"))
}
