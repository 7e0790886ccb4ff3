package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/codeproxy/internal/provider"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Metrics       MetricsSnapshot        `json:"metrics"`
	DefaultModels []string               `json:"default_models,omitempty"`
	Endpoints     []EndpointConfig       `json:"endpoints"`
	Models        []provider.ModelHealth `json:"models"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			UptimeSeconds: int64(time.Since(g.startedAt) / time.Second),
			Metrics:       g.metrics.Snapshot(),
			Endpoints:     g.config.Endpoints,
			Models:        []provider.ModelHealth{},
		}

		if lister, ok := g.generator.(ModelLister); ok {
			resp.DefaultModels = lister.DefaultModels()
		}
		if g.health != nil {
			resp.Models = g.health.Snapshot()
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
