// Package processor turns one chunk into model output: it builds the chunk
// prompt, calls the completion client, and cleans the response.
package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/valpere/studyspark/internal/action"
	"github.com/valpere/studyspark/internal/chunker"
	"github.com/valpere/studyspark/internal/completion"
	"github.com/valpere/studyspark/internal/logger"
	"github.com/valpere/studyspark/internal/placeholder"
	"github.com/valpere/studyspark/internal/postprocess"
	"github.com/valpere/studyspark/internal/prompt"
	"github.com/valpere/studyspark/internal/validator"
)

const placeholderPrefix = "⚠️ Error in part "

// ErrEmptyOutput is returned when the model answered with no usable text.
var ErrEmptyOutput = errors.New("model returned no text")

// Request describes one chunk call. Index is 0-based; Previous is the source
// text of the preceding chunk, if any.
type Request struct {
	Action   action.Action
	Params   action.Params
	Chunk    string
	Index    int
	Total    int
	Previous string
}

type Processor struct {
	client       *completion.Client
	prompts      *prompt.Builder
	validator    *validator.Validator
	contextWords int
}

type Option func(*Processor)

// WithValidator enables the output language check for TRANSLATE.
func WithValidator(v *validator.Validator) Option {
	return func(p *Processor) { p.validator = v }
}

// WithContextWords includes the last n words of the previous chunk in each
// prompt. Zero disables the context.
func WithContextWords(n int) Option {
	return func(p *Processor) {
		if n >= 0 {
			p.contextWords = n
		}
	}
}

func New(client *completion.Client, prompts *prompt.Builder, opts ...Option) *Processor {
	if prompts == nil {
		prompts = prompt.Default()
	}
	p := &Processor{client: client, prompts: prompts}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process returns the cleaned output for one chunk. On failure it returns the
// chunk's error placeholder together with the error, so the caller can keep
// going with the remaining chunks. Cancellation returns an empty string.
func (p *Processor) Process(ctx context.Context, session completion.Session, req Request) (string, error) {
	log := logger.FromContext(ctx).With("chunk", req.Index+1, "total", req.Total)

	masked := placeholder.Masked{Text: req.Chunk}
	if req.Action == action.Translate || req.Action == action.Proofread {
		masked = placeholder.Mask(req.Chunk)
	}

	var previous string
	if p.contextWords > 0 && req.Previous != "" {
		previous = chunker.ExtractContext(req.Previous, p.contextWords)
	}

	text, err := p.prompts.BuildChunk(prompt.ChunkInput{
		Action:    req.Action,
		Params:    req.Params,
		Text:      masked.Text,
		Index:     req.Index,
		Total:     req.Total,
		Previous:  previous,
		Protected: masked.Protected(),
	})
	if err != nil {
		return Placeholder(req.Index, err), err
	}

	raw, err := p.client.Complete(ctx, session, text)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		log.Warn("Chunk failed", "error", err)
		return Placeholder(req.Index, err), err
	}

	if missing := masked.Missing(raw); len(missing) > 0 {
		log.Warn("Model dropped protected markup", "markers", missing)
	}
	out := masked.Unmask(postprocess.Clean(raw))
	if out == "" {
		return Placeholder(req.Index, ErrEmptyOutput), ErrEmptyOutput
	}

	if req.Action == action.Translate && p.validator != nil {
		if err := p.validator.Check(out, req.Params.ResolvedTargetLanguage()); err != nil {
			log.Warn("Translation validation", "error", err)
		}
	}

	log.Debug("Chunk processed", "chars", len(out))
	return out, nil
}

// Placeholder is the text recorded in place of a failed chunk.
func Placeholder(index int, err error) string {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return fmt.Sprintf("%s%d: %s", placeholderPrefix, index+1, msg)
}

// IsPlaceholder reports whether text was produced by Placeholder.
func IsPlaceholder(text string) bool {
	return strings.HasPrefix(text, placeholderPrefix)
}
