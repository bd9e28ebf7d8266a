// Package conversation keeps the ordered turns of a chat-style session on top
// of the orchestrator, with regenerate and edit-and-resend. At most one run
// per conversation is active at a time.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/valpere/studyspark/internal/orchestrator"
)

var (
	ErrNotFound  = errors.New("conversation not found")
	ErrNoTurns   = errors.New("conversation has no turns")
	ErrTurnRange = errors.New("turn index out of range")
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Turn is one request and what its run produced. Chunks holds the chunk
// results in index order, placeholders included.
type Turn struct {
	Index   int                  `json:"index"`
	Request orchestrator.Request `json:"-"`
	Input   string               `json:"input"`
	Action  string               `json:"action"`
	RunID   string               `json:"run_id,omitempty"`
	Status  Status               `json:"status"`
	Chunks  []string             `json:"chunks,omitempty"`
	Result  string               `json:"result,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// Runner executes one pipeline run.
type Runner interface {
	Execute(ctx context.Context, req orchestrator.Request, handler orchestrator.Handler) (*orchestrator.FinalResult, error)
}

type active struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Conversation struct {
	ID     string
	runner Runner

	mu     sync.Mutex
	turns  []*Turn
	active *active
}

func New(id string, runner Runner) *Conversation {
	if id == "" {
		id = uuid.NewString()
	}
	return &Conversation{ID: id, runner: runner}
}

// Send appends a new turn and runs it, blocking until the run ends. A run
// already active in the conversation is cancelled and awaited first.
func (c *Conversation) Send(ctx context.Context, req orchestrator.Request, handler orchestrator.Handler) (Turn, error) {
	return c.start(ctx, handler, func() (*Turn, error) {
		return c.appendTurn(req), nil
	})
}

// Regenerate discards the last turn and runs its request again.
func (c *Conversation) Regenerate(ctx context.Context, handler orchestrator.Handler) (Turn, error) {
	return c.start(ctx, handler, func() (*Turn, error) {
		if len(c.turns) == 0 {
			return nil, ErrNoTurns
		}
		last := c.turns[len(c.turns)-1]
		c.turns = c.turns[:len(c.turns)-1]
		return c.appendTurn(last.Request), nil
	})
}

// Edit discards turn index and every later turn, then runs text with the
// edited turn's action and parameters.
func (c *Conversation) Edit(ctx context.Context, index int, text string, handler orchestrator.Handler) (Turn, error) {
	return c.start(ctx, handler, func() (*Turn, error) {
		if index < 0 || index >= len(c.turns) {
			return nil, fmt.Errorf("%w: %d of %d", ErrTurnRange, index, len(c.turns))
		}
		req := c.turns[index].Request
		req.Text = text
		c.turns = c.turns[:index]
		return c.appendTurn(req), nil
	})
}

// Cancel stops the active run and reports whether there was one. It does
// not wait for the run to wind down.
func (c *Conversation) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return false
	}
	c.active.cancel()
	return true
}

// Turns returns a snapshot of the conversation's turns.
func (c *Conversation) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	for i, t := range c.turns {
		out[i] = t.snapshot()
	}
	return out
}

// Active reports whether a run is in progress.
func (c *Conversation) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// appendTurn must be called with c.mu held.
func (c *Conversation) appendTurn(req orchestrator.Request) *Turn {
	t := &Turn{
		Index:   len(c.turns),
		Request: req,
		Input:   req.Text,
		Action:  req.Action.String(),
		Status:  StatusRunning,
	}
	c.turns = append(c.turns, t)
	return t
}

// start waits out any active run, applies mutate under the lock, and runs
// the turn it returns.
func (c *Conversation) start(ctx context.Context, handler orchestrator.Handler, mutate func() (*Turn, error)) (Turn, error) {
	c.mu.Lock()
	for c.active != nil {
		prev := c.active
		prev.cancel()
		c.mu.Unlock()
		select {
		case <-prev.done:
		case <-ctx.Done():
			return Turn{}, ctx.Err()
		}
		c.mu.Lock()
	}

	turn, err := mutate()
	if err != nil {
		c.mu.Unlock()
		return Turn{}, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	run := &active{cancel: cancel, done: make(chan struct{})}
	c.active = run
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		if c.active == run {
			c.active = nil
		}
		c.mu.Unlock()
		close(run.done)
	}()

	_, err = c.runner.Execute(runCtx, turn.Request, func(ev orchestrator.Event) {
		c.record(turn, ev)
		if handler != nil {
			handler(ev)
		}
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if turn.Status == StatusRunning {
		// A run can only end without a terminal event if the runner broke
		// its contract; keep the turn consistent anyway.
		turn.Status = StatusFailed
		if err != nil {
			turn.Error = err.Error()
		}
	}
	return turn.snapshot(), err
}

func (c *Conversation) record(t *Turn, ev orchestrator.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t.RunID = ev.RunID
	switch ev.Kind {
	case orchestrator.EventChunk:
		t.setChunk(ev.Index, ev.Text)
	case orchestrator.EventError:
		if ev.Index == orchestrator.RunLevel {
			t.Status = StatusFailed
			t.Error = ev.Message
			return
		}
		t.setChunk(ev.Index, ev.Text)
	case orchestrator.EventFinal:
		t.Status = StatusDone
		t.Result = ev.Text
	case orchestrator.EventCancelled:
		t.Status = StatusCancelled
		t.Error = ev.Message
	}
}

func (t *Turn) setChunk(index int, text string) {
	for len(t.Chunks) <= index {
		t.Chunks = append(t.Chunks, "")
	}
	t.Chunks[index] = text
}

func (t *Turn) snapshot() Turn {
	out := *t
	out.Chunks = append([]string(nil), t.Chunks...)
	return out
}

// Manager holds the conversations of a server process.
type Manager struct {
	runner Runner

	mu    sync.RWMutex
	convs map[string]*Conversation
}

func NewManager(runner Runner) *Manager {
	return &Manager{runner: runner, convs: make(map[string]*Conversation)}
}

func (m *Manager) Create() *Conversation {
	c := New("", m.runner)
	m.mu.Lock()
	m.convs[c.ID] = c
	m.mu.Unlock()
	return c
}

func (m *Manager) Get(id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.convs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, nil
}

// Delete cancels any active run and forgets the conversation.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	c, ok := m.convs[id]
	delete(m.convs, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c.Cancel()
	return nil
}
