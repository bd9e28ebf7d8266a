// Package reveal renders text with a typing effect.
package reveal

import (
	"context"
	"io"
	"time"
	"unicode/utf8"
)

const (
	DefaultInterval = 15 * time.Millisecond
	DefaultStep     = 3
)

// Typewriter writes text a few runes per tick.
type Typewriter struct {
	interval time.Duration
	step     int
}

// New returns a Typewriter. Non-positive arguments fall back to the
// defaults.
func New(interval time.Duration, step int) *Typewriter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if step <= 0 {
		step = DefaultStep
	}
	return &Typewriter{interval: interval, step: step}
}

// Reveal writes text to w, step runes per tick, and returns the number of
// bytes written. The context is checked on every tick; once it is done no
// further text is written and the cancellation cause is returned.
func (tw *Typewriter) Reveal(ctx context.Context, w io.Writer, text string) (int, error) {
	ticker := time.NewTicker(tw.interval)
	defer ticker.Stop()

	written := 0
	for written < len(text) {
		if written > 0 {
			select {
			case <-ctx.Done():
			case <-ticker.C:
			}
		}
		if err := context.Cause(ctx); err != nil {
			return written, err
		}

		n, err := io.WriteString(w, text[written:advance(text, written, tw.step)])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// advance returns the byte offset step runes past from.
func advance(text string, from, step int) int {
	i := from
	for n := 0; n < step && i < len(text); n++ {
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return i
}
