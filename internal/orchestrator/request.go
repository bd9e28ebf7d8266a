package orchestrator

import (
	"context"
	"strings"

	"github.com/valpere/studyspark/internal/action"
)

// Resolver replaces URL input with the text of the page it points to.
type Resolver interface {
	Resolve(ctx context.Context, a action.Action, input string, p action.Params) (string, action.Params, error)
}

// Prepare builds a Request from raw user input. For TRANSLATE without an
// explicit target language, a leading "translate to <language>" command sets
// the language and is removed from the text. URL input is resolved with r
// when r is not nil.
func Prepare(ctx context.Context, r Resolver, a action.Action, input string, p action.Params) (Request, error) {
	input = strings.TrimSpace(input)

	if a == action.Translate && strings.TrimSpace(p.TargetLanguage) == "" {
		if lang, cleaned, found := action.DetectTargetLanguage(input); found {
			p.TargetLanguage = lang
			input = cleaned
		}
	}
	p.TargetLanguage = action.NormalizeLanguage(p.TargetLanguage)

	if r != nil {
		text, params, err := r.Resolve(ctx, a, input, p)
		if err != nil {
			return Request{}, err
		}
		input, p = text, params
	}

	return Request{Action: a, Text: input, Params: p}, nil
}
