// Package codegen turns a natural-language prompt into source code by walking
// an ordered list of candidate models until one answers, then extracting the
// fenced code from the answer.
package codegen

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/flemzord/codeproxy/internal/provider"
)

// Request is one generation request.
type Request struct {
	// Prompt is the caller's natural-language request.
	Prompt string
	// Candidates is the ordered model list. It is copied before use.
	Candidates []string
	// WrapPrompt renders Prompt through the prompt template before sending.
	WrapPrompt bool
}

// Observer receives every attempt as it completes.
type Observer interface {
	ObserveAttempt(ctx context.Context, a Attempt)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, a Attempt)

// ObserveAttempt implements Observer.
func (f ObserverFunc) ObserveAttempt(ctx context.Context, a Attempt) { f(ctx, a) }

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClassifier replaces the default failure classifier.
func WithClassifier(c *provider.Classifier) Option {
	return func(o *Orchestrator) { o.classifier = c }
}

// WithExtractor replaces the default lua extractor.
func WithExtractor(e *Extractor) Option {
	return func(o *Orchestrator) { o.extractor = e }
}

// WithPromptTemplate sets the template used when Request.WrapPrompt is set.
func WithPromptTemplate(t *PromptTemplate) Option {
	return func(o *Orchestrator) { o.template = t }
}

// WithDefaultModels sets the candidate list used when a caller supplies none.
func WithDefaultModels(models ...string) Option {
	return func(o *Orchestrator) { o.defaults = slices.Clone(models) }
}

// WithLogger injects a structured logger. When nil or omitted, all log
// output is discarded.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithObserver adds an attempt observer. Observers run synchronously in
// registration order.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// Orchestrator walks candidate models in order. A transient failure advances
// to the next candidate; a fatal failure or a success ends the walk. It holds
// no mutable state after construction and is safe for concurrent use.
type Orchestrator struct {
	provider   provider.Provider
	classifier *provider.Classifier
	extractor  *Extractor
	template   *PromptTemplate
	defaults   []string
	logger     *slog.Logger
	observers  []Observer
}

// New creates an Orchestrator over p.
func New(p provider.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{provider: p}
	for _, opt := range opts {
		opt(o)
	}
	if o.classifier == nil {
		o.classifier = provider.NewClassifier()
	}
	if o.extractor == nil {
		o.extractor = defaultExtractor
	}
	if o.template == nil {
		o.template = MustParsePromptTemplate(DefaultPromptTemplate)
	}
	if o.logger == nil {
		o.logger = provider.NopLogger()
	}
	return o
}

// Classifier returns the failure classifier the orchestrator branches on.
func (o *Orchestrator) Classifier() *provider.Classifier { return o.classifier }

// DefaultModels returns a copy of the default candidate list.
func (o *Orchestrator) DefaultModels() []string {
	return slices.Clone(o.defaults)
}

// Candidates returns override when non-empty, else the default list.
func (o *Orchestrator) Candidates(override []string) []string {
	if len(override) > 0 {
		return slices.Clone(override)
	}
	return o.DefaultModels()
}

// Orchestrate runs req to a terminal Outcome. It makes at most
// len(req.Candidates) provider calls, strictly one after another.
func (o *Orchestrator) Orchestrate(ctx context.Context, req Request) Outcome {
	candidates := slices.Clone(req.Candidates)
	if len(candidates) == 0 {
		o.logger.Error("no model candidates", "reason", "empty candidate list")
		// Exhausted without an attempt; Class carries no attempt result.
		return Outcome{
			Kind: OutcomeExhausted,
			Cause: ErrorInfo{
				Message: "no model candidates available",
				Class:   provider.ClassFatal,
				Err:     provider.ErrNoProvider,
			},
		}
	}

	prompt := req.Prompt
	if req.WrapPrompt {
		wrapped, err := o.template.Render(req.Prompt)
		if err != nil {
			return Outcome{
				Kind:  OutcomeFatal,
				Cause: ErrorInfo{Message: err.Error(), Class: provider.ClassFatal, Err: err},
			}
		}
		prompt = wrapped
	}

	var lastCause ErrorInfo
	for cursor := 0; cursor < len(candidates); cursor++ {
		model := candidates[cursor]

		if err := ctx.Err(); err != nil {
			o.logger.Error("orchestration canceled", "model", model, "attempt", cursor+1, "error", err)
			return Outcome{
				Kind:     OutcomeFatal,
				Model:    model,
				Cause:    ErrorInfo{Message: err.Error(), Class: provider.ClassFatal, Model: model, Err: err},
				Attempts: cursor,
			}
		}

		o.logger.Info("generation attempt",
			"model", model, "attempt", cursor+1, "of", len(candidates))

		start := time.Now()
		resp, err := o.provider.Generate(ctx, provider.GenerateRequest{Model: model, Prompt: prompt})
		attempt := Attempt{Index: cursor, Model: model, Latency: time.Since(start)}

		if err == nil {
			attempt.Text = resp.Text
			o.observe(ctx, attempt)
			return Outcome{
				Kind:     OutcomeSuccess,
				Model:    model,
				Code:     o.extractor.Extract(resp.Text),
				Attempts: cursor + 1,
			}
		}

		class := o.classifier.Classify(err)
		attempt.Err = err
		attempt.Class = class
		o.observe(ctx, attempt)

		cause := ErrorInfo{Message: err.Error(), Class: class, Model: model, Err: err}
		if class != provider.ClassTransient {
			o.logger.Error("generation failed",
				"model", model, "attempt", cursor+1, "error", err)
			return Outcome{Kind: OutcomeFatal, Model: model, Cause: cause, Attempts: cursor + 1}
		}

		o.logger.Warn("model unavailable, switching",
			"model", model, "attempt", cursor+1, "error", err)
		lastCause = cause
	}

	o.logger.Error("all model candidates exhausted",
		"attempts", len(candidates), "last_error", lastCause.Message)
	return Outcome{
		Kind:     OutcomeExhausted,
		Model:    candidates[len(candidates)-1],
		Cause:    lastCause,
		Attempts: len(candidates),
	}
}

func (o *Orchestrator) observe(ctx context.Context, a Attempt) {
	for _, obs := range o.observers {
		obs.ObserveAttempt(ctx, a)
	}
}
