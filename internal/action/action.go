// Package action defines the operations a pipeline run can perform on page
// text and the per-run parameters that go with them.
package action

import (
	"errors"
	"fmt"
	"strings"
)

// Action identifies the operation applied to every chunk of a run.
type Action string

const (
	Summarize  Action = "SUMMARIZE"
	Simplify   Action = "SIMPLIFY"
	Translate  Action = "TRANSLATE"
	Proofread  Action = "PROOFREAD"
	Flashcards Action = "FLASHCARDS"
	Template   Action = "TEMPLATE"
)

// DefaultChunkSize is the chunk size used by actions without an override.
const DefaultChunkSize = 3000

// ErrUnknownAction is returned by Parse for names outside All.
var ErrUnknownAction = errors.New("unknown action")

// All lists the supported actions in display order.
var All = []Action{Summarize, Simplify, Translate, Proofread, Flashcards, Template}

// Parse resolves a case-insensitive action name.
func Parse(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return a, nil
}

func (a Action) Valid() bool {
	for _, known := range All {
		if a == known {
			return true
		}
	}
	return false
}

func (a Action) String() string {
	return string(a)
}

// ChunkSize returns the default maximum chunk length for the action.
// Templates need more surrounding page content per call, flashcards fewer.
func (a Action) ChunkSize() int {
	switch a {
	case Template:
		return 4000
	case Flashcards:
		return 2000
	default:
		return DefaultChunkSize
	}
}

// Heading returns the markdown heading that prefixes a final result.
func (a Action) Heading() string {
	return "# " + a.title()
}

// RecognizedHeadings returns the heading titles that count as the action's
// heading when the model already produced one.
func (a Action) RecognizedHeadings() []string {
	switch a {
	case Summarize:
		return []string{"Summary", "Key Points", "Overview"}
	case Simplify:
		return []string{"Simplified", "Simple Explanation", "In Simple Terms"}
	case Translate:
		return []string{"Translation"}
	case Proofread:
		return []string{"Proofread", "Proofread Text", "Corrected Text"}
	case Flashcards:
		return []string{"Flashcards"}
	case Template:
		return []string{"Template", "HTML Template"}
	default:
		return nil
	}
}

func (a Action) title() string {
	switch a {
	case Summarize:
		return "Summary"
	case Simplify:
		return "Simplified"
	case Translate:
		return "Translation"
	case Proofread:
		return "Proofread"
	case Flashcards:
		return "Flashcards"
	case Template:
		return "Template"
	default:
		return "Result"
	}
}
