// Package completiontest provides scripted completion services and sessions
// for tests.
package completiontest

import (
	"context"
	"sync"

	"github.com/valpere/studyspark/internal/completion"
)

// RespondFunc answers the call-th prompt (0-based) of a session.
type RespondFunc func(ctx context.Context, prompt string, call int) (any, error)

// Session records every prompt and answers with its RespondFunc.
type Session struct {
	respond RespondFunc

	mu      sync.Mutex
	prompts []string
	closed  bool
}

func NewSession(respond RespondFunc) *Session {
	return &Session{respond: respond}
}

func (s *Session) Prompt(ctx context.Context, prompt string) (any, error) {
	s.mu.Lock()
	call := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	return s.respond(ctx, prompt, call)
}

func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Prompts returns a copy of the prompts received so far.
func (s *Session) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

func (s *Session) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Replies answers calls in order. An error value fails the call. The last
// reply repeats once the list is exhausted.
func Replies(replies ...any) RespondFunc {
	return func(_ context.Context, _ string, call int) (any, error) {
		if len(replies) == 0 {
			return "", nil
		}
		if call >= len(replies) {
			call = len(replies) - 1
		}
		if err, ok := replies[call].(error); ok {
			return nil, err
		}
		return replies[call], nil
	}
}

// Blocking never answers; the call ends when ctx is done.
func Blocking() RespondFunc {
	return func(ctx context.Context, _ string, _ int) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// Service hands out a single session after a scripted handshake.
type Service struct {
	Status      completion.Availability
	StatusErr   error
	DownloadErr error
	SessionErr  error
	Session     completion.Session

	mu        sync.Mutex
	downloads int
	sessions  int
}

func NewService(session completion.Session) *Service {
	return &Service{Status: completion.Available, Session: session}
}

func (s *Service) Name() string { return "scripted" }

func (s *Service) Availability(context.Context) (completion.Availability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status, s.StatusErr
}

func (s *Service) Download(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloads++
	if s.DownloadErr != nil {
		return s.DownloadErr
	}
	s.Status = completion.Available
	return nil
}

func (s *Service) NewSession(context.Context, completion.SessionOptions) (completion.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SessionErr != nil {
		return nil, s.SessionErr
	}
	s.sessions++
	return s.Session, nil
}

func (s *Service) Downloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloads
}

func (s *Service) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}
