package orchestrator

import (
	"errors"
	"fmt"

	"github.com/valpere/studyspark/internal/action"
)

// State is the lifecycle position of a run.
type State int

const (
	Idle State = iota
	Chunking
	Processing
	Merging
	Done
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Chunking:
		return "chunking"
	case Processing:
		return "processing"
	case Merging:
		return "merging"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Done || s == Cancelled || s == Failed
}

type EventKind string

const (
	// EventPartial carries a chunk's unrefined output when refinement is on,
	// or, with Index RunLevel, a notice shown before processing starts.
	EventPartial   EventKind = "partial"
	EventChunk     EventKind = "chunk"
	EventFinal     EventKind = "final"
	EventError     EventKind = "error"
	EventCancelled EventKind = "cancelled"
)

// RunLevel is the Index of events that do not belong to a chunk.
const RunLevel = -1

// Event is delivered to the caller as a run progresses. Index is the 0-based
// chunk index, or RunLevel.
type Event struct {
	Kind    EventKind     `json:"kind"`
	RunID   string        `json:"run_id"`
	Action  action.Action `json:"action"`
	Index   int           `json:"index"`
	Total   int           `json:"total,omitempty"`
	Text    string        `json:"text,omitempty"`
	Message string        `json:"message,omitempty"`
	Err     error         `json:"-"`
}

// Terminal reports whether the event ends the run's event stream.
func (e Event) Terminal() bool {
	return e.Kind == EventFinal || e.Kind == EventCancelled || (e.Kind == EventError && e.Index == RunLevel)
}

// Handler receives events synchronously, in order.
type Handler func(Event)

var (
	// ErrNoContent is wrapped by ValidationError for input that is empty or
	// shorter than the minimum length.
	ErrNoContent = errors.New("no content to process")

	// ErrCancelled is wrapped by the error Execute returns for a cancelled run,
	// together with the cancellation cause.
	ErrCancelled = errors.New("run cancelled")

	// ErrTimeout is the cancellation cause when the run timeout elapses.
	ErrTimeout = errors.New("run timed out")
)

// ValidationError rejects a request before any completion call.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
