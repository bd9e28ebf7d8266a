package completion

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/valpere/studyspark/internal/logger"
)

const (
	// DefaultBackoff is the pause before the single retry.
	DefaultBackoff = 500 * time.Millisecond

	// MaxAttempts counts the original call plus its one retry.
	MaxAttempts = 2
)

// Recorder observes completion traffic. A nil Recorder is allowed.
type Recorder interface {
	CompletionAttempt(err error)
	CompletionRetry()
}

// Client performs one logical request per Complete call.
type Client struct {
	backoff  time.Duration
	recorder Recorder
}

type Option func(*Client)

// WithBackoff overrides the pause before the retry. Non-positive values keep
// DefaultBackoff.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoff = d
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

func NewClient(opts ...Option) *Client {
	c := &Client{backoff: DefaultBackoff}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends prompt through session and returns the extracted text.
// A failed call is retried once after the backoff; if the retry fails too,
// the returned error is a *CompletionError wrapping the last cause.
// Cancellation of ctx is never retried and is returned unchanged.
func (c *Client) Complete(ctx context.Context, session Session, prompt string) (string, error) {
	log := logger.FromContext(ctx)

	var (
		raw      any
		attempts int
	)
	backoff := retry.WithMaxRetries(MaxAttempts-1, retry.NewConstant(c.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			c.retried()
		}

		out, err := session.Prompt(ctx, prompt)
		c.attempted(err)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("Completion call failed", "attempt", attempts, "error", err)
			return retry.RetryableError(err)
		}
		raw = out
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &CompletionError{Attempts: attempts, Err: err}
	}

	return ExtractText(raw), nil
}

func (c *Client) attempted(err error) {
	if c.recorder != nil {
		c.recorder.CompletionAttempt(err)
	}
}

func (c *Client) retried() {
	if c.recorder != nil {
		c.recorder.CompletionRetry()
	}
}
