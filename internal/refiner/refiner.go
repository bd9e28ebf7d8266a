// Package refiner implements the optional cleanup pass applied to each chunk's
// output before deduplication. It asks the model to remove duplication and
// fix grammar in the draft it just produced.
package refiner

import (
	"context"

	"github.com/valpere/studyspark/internal/action"
	"github.com/valpere/studyspark/internal/completion"
	"github.com/valpere/studyspark/internal/postprocess"
	"github.com/valpere/studyspark/internal/prompt"
)

// Refiner reviews and improves a chunk draft.
type Refiner interface {
	Refine(ctx context.Context, session completion.Session, a action.Action, p action.Params, draft string) (string, error)
}

// SessionRefiner refines drafts over the run's own completion session.
type SessionRefiner struct {
	client  *completion.Client
	prompts *prompt.Builder
}

func New(client *completion.Client, prompts *prompt.Builder) *SessionRefiner {
	if prompts == nil {
		prompts = prompt.Default()
	}
	return &SessionRefiner{client: client, prompts: prompts}
}

// Refine returns the polished draft. An empty answer keeps the draft; errors
// are returned so the caller can decide to keep the draft as well.
func (r *SessionRefiner) Refine(ctx context.Context, session completion.Session, a action.Action, p action.Params, draft string) (string, error) {
	text, err := r.prompts.BuildRefine(a, p, draft)
	if err != nil {
		return draft, err
	}

	raw, err := r.client.Complete(ctx, session, text)
	if err != nil {
		return draft, err
	}

	refined := postprocess.Clean(raw)
	if refined == "" {
		return draft, nil
	}
	return refined, nil
}
