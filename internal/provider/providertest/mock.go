// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/flemzord/codeproxy/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Set GenerateFunc to control behavior; an unset GenerateFunc panics on call.
// All methods are safe for concurrent use.
type MockProvider struct {
	NameFunc     func() string
	GenerateFunc func(ctx context.Context, req provider.GenerateRequest) (provider.GenerateResponse, error)

	mu       sync.Mutex
	requests []provider.GenerateRequest
}

// Name delegates to NameFunc, defaulting to "mock".
func (m *MockProvider) Name() string {
	if m.NameFunc == nil {
		return "mock"
	}
	return m.NameFunc()
}

// Generate records the request and delegates to GenerateFunc.
func (m *MockProvider) Generate(ctx context.Context, req provider.GenerateRequest) (provider.GenerateResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.GenerateFunc(ctx, req)
}

// Calls returns the number of Generate calls so far.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Models returns the model of every Generate call, in call order.
func (m *MockProvider) Models() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.requests))
	for i, r := range m.requests {
		out[i] = r.Model
	}
	return out
}

// Requests returns a copy of every recorded request.
func (m *MockProvider) Requests() []provider.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]provider.GenerateRequest(nil), m.requests...)
}

// Step is one scripted Generate result.
type Step struct {
	Text string
	Err  error
}

// Reply is a successful step.
func Reply(text string) Step { return Step{Text: text} }

// Fail is a failing step.
func Fail(err error) Step { return Step{Err: err} }

// Script returns a MockProvider that plays steps in order, one per call.
// Calls past the end of the script fail.
func Script(steps ...Step) *MockProvider {
	m := &MockProvider{}
	var (
		mu sync.Mutex
		i  int
	)
	m.GenerateFunc = func(_ context.Context, req provider.GenerateRequest) (provider.GenerateResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(steps) {
			return provider.GenerateResponse{}, fmt.Errorf("providertest: unscripted call %d for %s", i, req.Model)
		}
		s := steps[i]
		i++
		if s.Err != nil {
			return provider.GenerateResponse{}, s.Err
		}
		return provider.GenerateResponse{Text: s.Text, Model: req.Model, FinishReason: provider.FinishReasonStop}, nil
	}
	return m
}

// Transient returns a 503 overload error as a backend would report it.
func Transient(model string) error {
	return &provider.StatusError{Provider: "mock", Status: 503, Code: "UNAVAILABLE", Message: model + " is overloaded"}
}

// Quota returns a 429 quota error as a backend would report it.
func Quota(model string) error {
	return &provider.StatusError{Provider: "mock", Status: 429, Code: "RESOURCE_EXHAUSTED", Message: "quota exceeded for " + model}
}

// Fatal returns a non-retryable 400 error.
func Fatal(msg string) error {
	return &provider.StatusError{Provider: "mock", Status: 400, Code: "INVALID_ARGUMENT", Message: msg}
}

var _ provider.Provider = (*MockProvider)(nil)
