package provider

import (
	"context"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// Route binds a backend to the model IDs it serves. An empty Patterns list
// matches every model.
type Route struct {
	Name     string
	Patterns []string
	Provider Provider
}

func (r Route) matches(model string) bool {
	if len(r.Patterns) == 0 {
		return true
	}
	for _, p := range r.Patterns {
		if ok, _ := doublestar.Match(p, model); ok {
			return true
		}
	}
	return false
}

// Mux is a Provider that forwards each request to the first route whose
// patterns match the requested model.
type Mux struct {
	routes []Route
}

// NewMux validates the routes and returns a Mux over them, in order.
func NewMux(routes ...Route) (*Mux, error) {
	if len(routes) == 0 {
		return nil, ErrNoProvider
	}
	for _, r := range routes {
		if r.Provider == nil {
			return nil, fmt.Errorf("%w: route %q has nil provider", ErrNoProvider, r.Name)
		}
		for _, p := range r.Patterns {
			if !doublestar.ValidatePattern(p) {
				return nil, fmt.Errorf("route %q: invalid model pattern %q", r.Name, p)
			}
		}
	}
	return &Mux{routes: routes}, nil
}

// Name implements Provider.
func (m *Mux) Name() string { return "mux" }

// Resolve returns the backend serving model.
func (m *Mux) Resolve(model string) (Provider, bool) {
	for _, r := range m.routes {
		if r.matches(model) {
			return r.Provider, true
		}
	}
	return nil, false
}

// Generate implements Provider. An unrouted model fails with ErrUnknownModel.
func (m *Mux) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	p, ok := m.Resolve(req.Model)
	if !ok {
		return GenerateResponse{}, fmt.Errorf("%w: %s", ErrUnknownModel, req.Model)
	}
	return p.Generate(ctx, req)
}

// Routes returns the route names in priority order.
func (m *Mux) Routes() []string {
	names := make([]string, len(m.routes))
	for i, r := range m.routes {
		names[i] = r.Name
	}
	return names
}
