// Package provider defines the Provider interface for text-generation
// backends, the transient/fatal failure classifier, model routing across
// backends, and per-model health observation.
package provider

import "context"

// Provider is the interface for communicating with a text-generation backend.
// Concrete implementations live in separate packages (e.g., provider.gemini)
// and typically also implement core.Module for lifecycle management.
//
// Implementations report failures as *StatusError (or wrap one of the
// sentinel errors) so the Classifier can tell overload from hard failure.
type Provider interface {
	// Name returns a short identifier for logs and traces.
	Name() string

	// Generate performs one generation call against req.Model.
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
}

// ModelMatcher is implemented by backends that declare which model IDs they
// serve, as doublestar glob patterns.
type ModelMatcher interface {
	ModelPatterns() []string
}
