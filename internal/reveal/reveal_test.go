package reveal

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReveal_WritesEverything(t *testing.T) {
	var buf bytes.Buffer
	text := "# Summary\n\nПривіт, світе! 👋"

	n, err := New(time.Millisecond, 4).Reveal(context.Background(), &buf, text)
	require.NoError(t, err)
	assert.Equal(t, len(text), n)
	assert.Equal(t, text, buf.String())
}

func TestReveal_Empty(t *testing.T) {
	var buf bytes.Buffer
	n, err := New(0, 0).Reveal(context.Background(), &buf, "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReveal_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &cancellingWriter{after: 2, cancel: cancel}

	text := "abcdefghijklmnopqrstuvwxyz"
	n, err := New(time.Millisecond, 2).Reveal(ctx, w, text)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "abcd", w.buf.String())
	assert.Equal(t, 4, n)
}

func TestReveal_AlreadyCancelled(t *testing.T) {
	stop := errors.New("user stopped")
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(stop)

	var buf bytes.Buffer
	n, err := New(time.Millisecond, 2).Reveal(ctx, &buf, "some text")
	assert.ErrorIs(t, err, stop)
	assert.Zero(t, n)
	assert.Empty(t, buf.String())
}

func TestAdvance_RuneBoundaries(t *testing.T) {
	text := "aé😀b"
	assert.Equal(t, 1, advance(text, 0, 1))
	assert.Equal(t, 3, advance(text, 0, 2))
	assert.Equal(t, 7, advance(text, 3, 1))
	assert.Equal(t, len(text), advance(text, 0, 10))
}

// cancellingWriter cancels the context after a number of writes.
type cancellingWriter struct {
	buf    bytes.Buffer
	writes int
	after  int
	cancel context.CancelFunc
}

func (w *cancellingWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes == w.after {
		w.cancel()
	}
	return w.buf.Write(p)
}
