package gateway

import (
	"net/http"

	"github.com/flemzord/codeproxy/internal/provider"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string                 `json:"status"` // "ok" or "degraded"
	Models []provider.ModelHealth `json:"models,omitempty"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 503 once every observed model is cooling down or dead.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok"}
		code := http.StatusOK

		if g.health != nil {
			resp.Models = g.health.Snapshot()
			if g.health.Degraded() {
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		writeJSON(w, code, resp)
	}
}
