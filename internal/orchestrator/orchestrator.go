// Package orchestrator drives a run through its states: it splits the source
// text, processes chunks strictly in order, deduplicates each result against
// the earlier ones, merges them, and reports progress as events.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/valpere/studyspark/internal/action"
	"github.com/valpere/studyspark/internal/chunker"
	"github.com/valpere/studyspark/internal/completion"
	"github.com/valpere/studyspark/internal/dedupe"
	"github.com/valpere/studyspark/internal/logger"
	"github.com/valpere/studyspark/internal/merger"
	"github.com/valpere/studyspark/internal/processor"
	"github.com/valpere/studyspark/internal/refiner"
	"github.com/valpere/studyspark/internal/store"
)

const (
	DefaultMinLength = 10
	DefaultTimeout   = 30 * time.Second
)

type Config struct {
	// MinLength is the minimum trimmed input length in characters, inclusive.
	MinLength int `mapstructure:"min_length"`
	// ChunkSize overrides the action's chunk size when positive.
	ChunkSize int `mapstructure:"chunk_size"`
	// Timeout bounds the whole run. Zero or negative disables it.
	Timeout      time.Duration             `mapstructure:"timeout"`
	AutoDownload bool                      `mapstructure:"auto_download"`
	Session      completion.SessionOptions `mapstructure:"session"`
}

func DefaultConfig() Config {
	return Config{MinLength: DefaultMinLength, Timeout: DefaultTimeout}
}

// Request is one invocation of the pipeline.
type Request struct {
	Action action.Action
	Text   string
	Params action.Params
}

// FinalResult summarises a completed run.
type FinalResult struct {
	RunID    string
	Action   action.Action
	Text     string
	Chunks   int
	Failed   int
	Merged   bool
	Cached   bool
	Duration time.Duration
}

// Recorder observes run outcomes. Implementations must be safe for
// concurrent use.
type Recorder interface {
	RunStarted(a action.Action)
	ChunkProcessed(a action.Action, err error)
	MergeFallback(a action.Action)
	RunFinished(a action.Action, state State, d time.Duration)
}

// History persists runs. Write failures are logged and never fail a run.
type History interface {
	SaveRun(ctx context.Context, run *store.Run) error
	SaveChunkResult(ctx context.Context, cr *store.ChunkResult) error
	FinishRun(ctx context.Context, run *store.Run) error
}

// Cache short-circuits runs whose input was already processed.
type Cache interface {
	Lookup(ctx context.Context, text, action, targetLanguage string) (string, bool, error)
	Save(ctx context.Context, text, action, targetLanguage, result string) error
}

type Orchestrator struct {
	service   completion.Service
	processor *processor.Processor
	merger    *merger.Merger
	config    Config

	refiner  refiner.Refiner
	recorder Recorder
	history  History
	cache    Cache
}

type Option func(*Orchestrator)

// WithRefiner enables the refinement pass. Each chunk then emits a partial
// event with its draft before the chunk event.
func WithRefiner(r refiner.Refiner) Option {
	return func(o *Orchestrator) { o.refiner = r }
}

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func WithHistory(h History) Option {
	return func(o *Orchestrator) { o.history = h }
}

func WithCache(c Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

func New(service completion.Service, proc *processor.Processor, m *merger.Merger, config Config, opts ...Option) *Orchestrator {
	if config.MinLength <= 0 {
		config.MinLength = DefaultMinLength
	}
	o := &Orchestrator{
		service:   service,
		processor: proc,
		merger:    m,
		config:    config,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run is the mutable state of one invocation, owned by Execute.
type run struct {
	id      string
	req     Request
	state   State
	total   int
	failed  int
	started time.Time
	handler Handler
	record  *store.Run
}

func (r *run) emit(ev Event) {
	ev.RunID = r.id
	ev.Action = r.req.Action
	if ev.Total == 0 {
		ev.Total = r.total
	}
	if r.handler != nil {
		r.handler(ev)
	}
}

// Run starts Execute in a goroutine and streams its events. The channel is
// closed after the terminal event; callers must drain it.
func (o *Orchestrator) Run(ctx context.Context, req Request) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		_, _ = o.Execute(ctx, req, func(ev Event) { events <- ev })
	}()
	return events
}

// Execute runs the pipeline synchronously, delivering events to handler
// (which may be nil). Exactly one terminal event is emitted: final,
// cancelled, or a run-level error. A cancelled run returns an error matching
// both ErrCancelled and the cancellation cause (ErrTimeout on timeout).
func (o *Orchestrator) Execute(ctx context.Context, req Request, handler Handler) (*FinalResult, error) {
	r := &run{id: uuid.NewString(), req: req, state: Idle, started: time.Now(), handler: handler}

	log := logger.FromContext(ctx).With("run", r.id, "action", req.Action)
	ctx = logger.ContextWithLogger(ctx, log)

	if err := o.validate(req); err != nil {
		log.Warn("Rejected run", "error", err)
		r.state = Failed
		r.emit(Event{Kind: EventError, Index: RunLevel, Message: err.Error(), Err: err})
		return nil, err
	}

	if o.recorder != nil {
		o.recorder.RunStarted(req.Action)
	}

	if o.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, o.config.Timeout, ErrTimeout)
		defer cancel()
	}

	if text, ok := o.lookup(ctx, req); ok {
		log.Info("Served from cache")
		r.state = Done
		r.emit(Event{Kind: EventFinal, Index: RunLevel, Text: text})
		o.finish(ctx, r)
		return &FinalResult{RunID: r.id, Action: req.Action, Text: text, Cached: true, Duration: time.Since(r.started)}, nil
	}

	o.begin(ctx, r)
	if text := notice(req); text != "" {
		r.emit(Event{Kind: EventPartial, Index: RunLevel, Text: text})
	}

	session, err := completion.Connect(ctx, o.service, o.config.Session, o.config.AutoDownload)
	if err != nil {
		if ctx.Err() != nil {
			return o.cancelled(ctx, r)
		}
		return o.fail(ctx, r, err)
	}
	defer session.Close()

	r.state = Chunking
	parts := chunker.Split(req.Text, o.chunkSize(req.Action))
	r.total = len(parts)
	log.Info("Processing", "chunks", r.total, "chars", utf8.RuneCountInString(req.Text))

	r.state = Processing
	var (
		accepted     []string
		placeholders []string
		firstDraft   string
	)
	for i, part := range parts {
		if ctx.Err() != nil {
			return o.cancelled(ctx, r)
		}

		preq := processor.Request{
			Action: req.Action,
			Params: req.Params,
			Chunk:  part.Text,
			Index:  i,
			Total:  r.total,
		}
		if i > 0 {
			preq.Previous = parts[i-1].Text
		}

		out, err := await(ctx, func(ctx context.Context) (string, error) {
			return o.processor.Process(ctx, session, preq)
		})
		if ctx.Err() != nil {
			return o.cancelled(ctx, r)
		}
		if o.recorder != nil {
			o.recorder.ChunkProcessed(req.Action, err)
		}
		if err != nil {
			r.failed++
			placeholders = append(placeholders, out)
			o.saveChunk(ctx, r, i, out, err)
			r.emit(Event{Kind: EventError, Index: i, Text: out, Message: err.Error(), Err: err})
			continue
		}

		if o.refiner != nil {
			r.emit(Event{Kind: EventPartial, Index: i, Text: out})
			draft := out
			refined, err := await(ctx, func(ctx context.Context) (string, error) {
				return o.refiner.Refine(ctx, session, req.Action, req.Params, draft)
			})
			if ctx.Err() != nil {
				return o.cancelled(ctx, r)
			}
			if err != nil {
				log.Warn("Refinement failed, keeping draft", "chunk", i+1, "error", err)
			} else {
				out = refined
			}
		}

		if firstDraft == "" {
			firstDraft = out
		}
		result := dedupe.Dedupe(out, accepted)
		accepted = append(accepted, result)
		o.saveChunk(ctx, r, i, result, nil)
		r.emit(Event{Kind: EventChunk, Index: i, Text: result})
	}

	if ctx.Err() != nil {
		return o.cancelled(ctx, r)
	}

	r.state = Merging
	final, merged := strings.Join(placeholders, "\n\n"), false
	if len(accepted) > 0 {
		res, err := await(ctx, func(ctx context.Context) (*merger.Result, error) {
			return o.merger.Merge(ctx, session, req.Action, req.Params, accepted)
		})
		if ctx.Err() != nil {
			return o.cancelled(ctx, r)
		}
		if err != nil {
			// Every accepted result was deduplicated away.
			log.Warn("Nothing left to merge, using first draft", "error", err)
			final = merger.Format(req.Action, firstDraft)
		} else {
			final, merged = res.Text, res.Merged
			if res.FallbackErr != nil && o.recorder != nil {
				o.recorder.MergeFallback(req.Action)
			}
		}
	}

	if ctx.Err() != nil {
		return o.cancelled(ctx, r)
	}

	r.state = Done
	r.emit(Event{Kind: EventFinal, Index: RunLevel, Text: final})
	if r.record != nil {
		r.record.FinalText = final
	}
	o.finish(ctx, r)
	if r.failed == 0 {
		o.store(ctx, req, final)
	}

	log.Info("Run complete", "chunks", r.total, "failed", r.failed, "merged", merged, "duration", time.Since(r.started))
	return &FinalResult{
		RunID:    r.id,
		Action:   req.Action,
		Text:     final,
		Chunks:   r.total,
		Failed:   r.failed,
		Merged:   merged,
		Duration: time.Since(r.started),
	}, nil
}

func (o *Orchestrator) validate(req Request) error {
	if !req.Action.Valid() {
		return &ValidationError{Field: "action", Err: fmt.Errorf("%w: %q", action.ErrUnknownAction, req.Action)}
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(req.Text)); n < o.config.MinLength {
		return &ValidationError{
			Field: "text",
			Err:   fmt.Errorf("%w: %d characters, need at least %d", ErrNoContent, n, o.config.MinLength),
		}
	}
	return nil
}

func (o *Orchestrator) chunkSize(a action.Action) int {
	if o.config.ChunkSize > 0 {
		return o.config.ChunkSize
	}
	return a.ChunkSize()
}

func (o *Orchestrator) cancelled(ctx context.Context, r *run) (*FinalResult, error) {
	cause := context.Cause(ctx)
	logger.FromContext(ctx).Info("Run cancelled", "cause", cause)

	r.state = Cancelled
	r.emit(Event{Kind: EventCancelled, Index: RunLevel, Message: cause.Error(), Err: cause})
	if r.record != nil {
		r.record.Error = cause.Error()
	}
	o.finish(ctx, r)
	return nil, fmt.Errorf("%w: %w", ErrCancelled, cause)
}

func (o *Orchestrator) fail(ctx context.Context, r *run, err error) (*FinalResult, error) {
	logger.FromContext(ctx).Error("Run failed", "error", err)

	r.state = Failed
	r.emit(Event{Kind: EventError, Index: RunLevel, Message: err.Error(), Err: err})
	if r.record != nil {
		r.record.Error = err.Error()
	}
	o.finish(ctx, r)
	return nil, err
}

// finish records the terminal state. History writes survive cancellation.
func (o *Orchestrator) finish(ctx context.Context, r *run) {
	if o.recorder != nil {
		o.recorder.RunFinished(r.req.Action, r.state, time.Since(r.started))
	}
	if o.history == nil || r.record == nil {
		return
	}
	r.record.Status = statusOf(r.state)
	r.record.Chunks = r.total
	r.record.FailedChunks = r.failed
	if err := o.history.FinishRun(context.WithoutCancel(ctx), r.record); err != nil {
		logger.FromContext(ctx).Warn("Failed to record run", "error", err)
	}
}

func (o *Orchestrator) begin(ctx context.Context, r *run) {
	if o.history == nil {
		return
	}
	record := &store.Run{
		ID:             r.id,
		Action:         r.req.Action.String(),
		SourceText:     r.req.Text,
		TargetLanguage: cacheLanguage(r.req),
		Title:          r.req.Params.Title,
		URL:            r.req.Params.URL,
		StartedAt:      r.started,
	}
	if err := o.history.SaveRun(context.WithoutCancel(ctx), record); err != nil {
		logger.FromContext(ctx).Warn("Failed to record run", "error", err)
		return
	}
	r.record = record
}

func (o *Orchestrator) saveChunk(ctx context.Context, r *run, index int, text string, chunkErr error) {
	if o.history == nil || r.record == nil {
		return
	}
	cr := &store.ChunkResult{RunID: r.id, Index: index, Text: text}
	if chunkErr != nil {
		cr.Failed = true
		cr.Error = chunkErr.Error()
	}
	if err := o.history.SaveChunkResult(context.WithoutCancel(ctx), cr); err != nil {
		logger.FromContext(ctx).Warn("Failed to record chunk", "chunk", index+1, "error", err)
	}
}

func (o *Orchestrator) lookup(ctx context.Context, req Request) (string, bool) {
	if o.cache == nil {
		return "", false
	}
	text, ok, err := o.cache.Lookup(ctx, req.Text, req.Action.String(), cacheLanguage(req))
	if err != nil {
		logger.FromContext(ctx).Warn("Cache lookup failed", "error", err)
		return "", false
	}
	return text, ok
}

func (o *Orchestrator) store(ctx context.Context, req Request, final string) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Save(context.WithoutCancel(ctx), req.Text, req.Action.String(), cacheLanguage(req), final); err != nil {
		logger.FromContext(ctx).Warn("Failed to cache result", "error", err)
	}
}

// cacheLanguage is the target language for TRANSLATE and empty otherwise.
// notice is the informational text shown before a run starts, if any.
func notice(req Request) string {
	switch req.Action {
	case action.Translate:
		if strings.TrimSpace(req.Params.TargetLanguage) != "" {
			return ""
		}
		return "🌍 **Translation Tips**\n\n" +
			"To translate to a specific language, include it in your text:\n\n" +
			"• **\"Translate this to Spanish: [your text]\"**\n" +
			"• **\"Convert this in French: [your text]\"**\n\n" +
			"Supported languages: " + strings.Join(action.SupportedLanguages(), ", ") + "\n\n" +
			"*Translating to " + action.DefaultTargetLanguage + ".*"
	case action.Template:
		return "🛠️ **Template Generation in Progress**\n\n" +
			"Writing responsive HTML and CSS takes a little longer than other actions."
	}
	return ""
}

func cacheLanguage(req Request) string {
	if req.Action != action.Translate {
		return ""
	}
	return req.Params.ResolvedTargetLanguage()
}

func statusOf(s State) string {
	switch s {
	case Done:
		return store.StatusDone
	case Cancelled:
		return store.StatusCancelled
	case Failed:
		return store.StatusFailed
	default:
		return store.StatusRunning
	}
}

// await runs fn in its own goroutine and returns as soon as either fn
// finishes or ctx is done. A result arriving after ctx is done is dropped.
func await[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, context.Cause(ctx)
	case res := <-done:
		return res.v, res.err
	}
}
