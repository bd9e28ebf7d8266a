// Package merger combines the accepted chunk results of a run into the final
// document.
package merger

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/valpere/studyspark/internal/action"
	"github.com/valpere/studyspark/internal/completion"
	"github.com/valpere/studyspark/internal/logger"
	"github.com/valpere/studyspark/internal/postprocess"
	"github.com/valpere/studyspark/internal/prompt"
)

var (
	ErrNoResults  = errors.New("no chunk results to merge")
	ErrEmptyMerge = errors.New("merge returned no text")
)

// Result is the merged document. FallbackErr is set when the merge call
// failed and Text is the formatted first chunk result instead.
type Result struct {
	Text        string
	Merged      bool
	FallbackErr error
}

type Merger struct {
	client  *completion.Client
	prompts *prompt.Builder
}

func New(client *completion.Client, prompts *prompt.Builder) *Merger {
	if prompts == nil {
		prompts = prompt.Default()
	}
	return &Merger{client: client, prompts: prompts}
}

// Merge returns a single formatted document. A single usable result is
// formatted without calling the model. Several results are merged with one
// completion call; if that call fails or comes back empty, the first result
// is used. Only cancellation of ctx is returned as an error, besides
// ErrNoResults.
func (m *Merger) Merge(ctx context.Context, session completion.Session, a action.Action, p action.Params, results []string) (*Result, error) {
	usable := make([]string, 0, len(results))
	for _, r := range results {
		if r = strings.TrimSpace(r); r != "" {
			usable = append(usable, r)
		}
	}

	switch len(usable) {
	case 0:
		return nil, ErrNoResults
	case 1:
		return &Result{Text: Format(a, usable[0])}, nil
	}

	merged, err := m.mergeCall(ctx, session, a, p, usable)
	if err == nil {
		return &Result{Text: Format(a, merged), Merged: true}, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	logger.FromContext(ctx).Warn("Merge failed, using first chunk result", "error", err)
	return &Result{Text: Format(a, usable[0]), FallbackErr: err}, nil
}

func (m *Merger) mergeCall(ctx context.Context, session completion.Session, a action.Action, p action.Params, results []string) (string, error) {
	text, err := m.prompts.BuildMerge(a, p, results)
	if err != nil {
		return "", err
	}
	raw, err := m.client.Complete(ctx, session, text)
	if err != nil {
		return "", err
	}
	merged := postprocess.Clean(raw)
	if merged == "" {
		return "", ErrEmptyMerge
	}
	return merged, nil
}

var headingLineRe = regexp.MustCompile(`(?m)^ {0,3}#{1,6}[ \t]+(.+?)[ \t#]*$`)

// Format prefixes text with the action's heading unless text already has a
// heading line starting with one of the action's recognized titles.
func Format(a action.Action, text string) string {
	text = strings.TrimSpace(text)
	if HasHeading(a, text) {
		return text
	}
	return a.Heading() + "\n\n" + text
}

// HasHeading reports whether text contains a markdown heading recognized for a.
func HasHeading(a action.Action, text string) bool {
	for _, m := range headingLineRe.FindAllStringSubmatch(text, -1) {
		title := strings.ToLower(strings.Trim(m[1], "*_ "))
		for _, h := range a.RecognizedHeadings() {
			h = strings.ToLower(h)
			if !strings.HasPrefix(title, h) {
				continue
			}
			next, _ := utf8.DecodeRuneInString(title[len(h):])
			if len(title) == len(h) || !unicode.IsLetter(next) {
				return true
			}
		}
	}
	return false
}
