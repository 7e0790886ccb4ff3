package codegen

import (
	"context"
	"sync/atomic"

	"github.com/flemzord/codeproxy/internal/provider"
)

// ServiceName is the AppContext service key of the shared Holder.
const ServiceName = "codegen.holder"

// Holder publishes the current Orchestrator so configuration reloads can
// swap it without blocking requests. A request keeps the Orchestrator it
// loaded for its whole lifetime. The zero Holder publishes nothing until
// the first Swap.
type Holder struct {
	current atomic.Pointer[Orchestrator]
}

// NewHolder returns a Holder publishing o.
func NewHolder(o *Orchestrator) *Holder {
	h := &Holder{}
	h.current.Store(o)
	return h
}

// Load returns the current Orchestrator.
func (h *Holder) Load() *Orchestrator {
	return h.current.Load()
}

// Swap publishes o and returns the previous Orchestrator.
func (h *Holder) Swap(o *Orchestrator) *Orchestrator {
	return h.current.Swap(o)
}

// Generate resolves candidates against the current defaults and orchestrates.
func (h *Holder) Generate(ctx context.Context, prompt string, models []string, wrap bool) Outcome {
	o := h.Load()
	return o.Orchestrate(ctx, Request{
		Prompt:     prompt,
		Candidates: o.Candidates(models),
		WrapPrompt: wrap,
	})
}

// DefaultModels returns the current Orchestrator's default candidates.
func (h *Holder) DefaultModels() []string {
	return h.Load().DefaultModels()
}

// Classify classifies err with the current Orchestrator's classifier, so
// callers outside the orchestrator agree with it across reloads.
func (h *Holder) Classify(err error) provider.Class {
	if o := h.Load(); o != nil {
		return o.Classifier().Classify(err)
	}
	return provider.Classify(err)
}
