package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		accessLog(g.logger),
		traceRequests(g.spanTracer()),
		corsHeaders(g.config.CORS),
	)

	// Public, no auth.
	r.Get("/health", g.handleHealth())
	for _, ep := range g.config.Endpoints {
		r.HandleFunc(ep.Path, g.handleGenerate(ep))
	}

	// Operator endpoints, protected when auth is configured.
	r.Group(func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.audit))
		}
		r.Get("/status", g.handleStatus())
		r.Method(http.MethodGet, "/metrics", g.metrics.Handler())
	})

	// Admin endpoints are only mounted when auth is configured.
	if g.config.Auth.IsConfigured() {
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth, g.audit))
			r.Get("/modules", g.handleGetAllModules())
			r.Get("/config", g.handleGetConfig())
			r.Post("/reload", g.handleReloadConfig())
		})
	}

	return r
}
