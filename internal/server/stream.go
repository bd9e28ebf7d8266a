package server

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/valpere/studyspark/internal/markdown"
	"github.com/valpere/studyspark/internal/orchestrator"
)

// EventPayload is the data of an SSE event. Rendered holds the final text
// in the requested format when it is not markdown.
type EventPayload struct {
	orchestrator.Event
	Rendered string `json:"rendered,omitempty"`
}

// stream runs fn and writes every event it emits as an SSE event named after
// the event kind. If fn fails without emitting a terminal event, a run-level
// error event is written instead. Events are dropped once the client has
// gone; fn sees the cancelled request context and winds down.
func (s *Server) stream(c *gin.Context, format markdown.Format, fn func(orchestrator.Handler) error) {
	events := make(chan orchestrator.Event, 16)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(events)
		terminal := false
		send := func(ev orchestrator.Event) {
			terminal = terminal || ev.Terminal()
			select {
			case events <- ev:
			case <-done:
			}
		}
		if err := fn(send); err != nil && !terminal {
			send(orchestrator.Event{Kind: orchestrator.EventError, Index: orchestrator.RunLevel, Message: err.Error()})
		}
	}()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		payload := EventPayload{Event: ev}
		if ev.Kind == orchestrator.EventFinal && format != markdown.Markdown {
			payload.Rendered = markdown.Render(ev.Text, format)
		}
		c.SSEvent(string(ev.Kind), payload)
		return true
	})
}
