package completion_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/studyspark/internal/completion"
	"github.com/valpere/studyspark/internal/completion/completiontest"
)

type countingRecorder struct {
	mu       sync.Mutex
	attempts int
	failures int
	retries  int
}

func (r *countingRecorder) CompletionAttempt(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if err != nil {
		r.failures++
	}
}

func (r *countingRecorder) CompletionRetry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
}

func newTestClient(rec completion.Recorder) *completion.Client {
	return completion.NewClient(completion.WithBackoff(5*time.Millisecond), completion.WithRecorder(rec))
}

func TestClient_Complete_FirstAttempt(t *testing.T) {
	rec := &countingRecorder{}
	session := completiontest.NewSession(completiontest.Replies("done"))

	text, err := newTestClient(rec).Complete(context.Background(), session, "prompt")
	require.NoError(t, err)
	assert.Equal(t, "done", text)
	assert.Equal(t, 1, session.Calls())
	assert.Equal(t, 1, rec.attempts)
	assert.Zero(t, rec.retries)
}

func TestClient_Complete_RetriesOnce(t *testing.T) {
	rec := &countingRecorder{}
	session := completiontest.NewSession(completiontest.Replies(errors.New("flaky"), map[string]any{"text": "recovered"}))

	text, err := newTestClient(rec).Complete(context.Background(), session, "prompt")
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, 2, session.Calls())
	assert.Equal(t, []string{"prompt", "prompt"}, session.Prompts())
	assert.Equal(t, 1, rec.retries)
	assert.Equal(t, 1, rec.failures)
}

func TestClient_Complete_WaitsBackoff(t *testing.T) {
	session := completiontest.NewSession(completiontest.Replies(errors.New("flaky"), "ok"))
	client := completion.NewClient(completion.WithBackoff(50 * time.Millisecond))

	start := time.Now()
	_, err := client.Complete(context.Background(), session, "prompt")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestClient_Complete_FailsAfterRetry(t *testing.T) {
	rec := &countingRecorder{}
	cause := errors.New("model crashed")
	session := completiontest.NewSession(completiontest.Replies(errors.New("first"), cause))

	text, err := newTestClient(rec).Complete(context.Background(), session, "prompt")
	require.Error(t, err)
	assert.Empty(t, text)

	var cerr *completion.CompletionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, completion.MaxAttempts, cerr.Attempts)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 2, session.Calls(), "exactly one retry")
	assert.Equal(t, 2, rec.failures)
}

func TestClient_Complete_CancelledIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	session := completiontest.NewSession(func(ctx context.Context, _ string, _ int) (any, error) {
		cancel()
		return nil, ctx.Err()
	})

	_, err := newTestClient(nil).Complete(ctx, session, "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var cerr *completion.CompletionError
	assert.False(t, errors.As(err, &cerr))
	assert.Equal(t, 1, session.Calls())
}

func TestClient_Complete_CancelledAfterFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	session := completiontest.NewSession(func(context.Context, string, int) (any, error) {
		cancel()
		return nil, errors.New("failed just before cancel")
	})
	client := completion.NewClient(completion.WithBackoff(time.Second))

	start := time.Now()
	_, err := client.Complete(ctx, session, "prompt")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, session.Calls())
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewClient_IgnoresNonPositiveBackoff(t *testing.T) {
	session := completiontest.NewSession(completiontest.Replies("ok"))
	client := completion.NewClient(completion.WithBackoff(0))

	text, err := client.Complete(context.Background(), session, "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}
