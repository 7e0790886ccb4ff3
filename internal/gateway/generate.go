package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/flemzord/codeproxy/internal/codegen"
	"github.com/flemzord/codeproxy/internal/security"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// handleGenerate returns the handler of one generation endpoint. Every
// method is routed here so non-POST requests get the endpoint's own 405
// body.
func (g *Gateway) handleGenerate(ep EndpointConfig) http.HandlerFunc {
	resp := newResponder(ep.Format)

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			g.metrics.RecordRejected(ep.Path)
			w.Header().Set("Allow", "GET, OPTIONS, POST")
			resp.clientError(w, http.StatusMethodNotAllowed, msgOnlyPost)
			return
		}

		in, err := decodeInput(r, g.config.MaxBodyBytes)
		if err != nil {
			g.metrics.RecordRejected(ep.Path)
			switch {
			case errors.Is(err, security.ErrBodyTooLarge):
				resp.clientError(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
			case errors.Is(err, errNoPrompt):
				resp.clientError(w, http.StatusBadRequest, msgNoPrompt)
			default:
				resp.clientError(w, http.StatusBadRequest, msgInvalidBody)
			}
			return
		}
		if !ep.AllowModelOverride {
			in.Models = nil
		}

		start := time.Now()
		out := g.generator.Generate(r.Context(), in.Prompt, in.Models, ep.WrapPrompt)
		latency := time.Since(start)

		g.metrics.RecordOutcome(ep.Path, out.Kind, latency)
		g.recordOutcome(r, ep, in, out)

		if out.OK() {
			resp.success(w, out)
			return
		}

		g.logger.Error("generation failed",
			"endpoint", ep.Path,
			"outcome", out.Kind.String(),
			"model", out.Model,
			"attempts", out.Attempts,
			"error", out.Cause.Message,
		)
		resp.serverError(w, out)
	}
}

// recordOutcome annotates the request span and writes the audit event.
func (g *Gateway) recordOutcome(r *http.Request, ep EndpointConfig, in generateInput, out codegen.Outcome) {
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("codeproxy.endpoint", ep.Path),
		attribute.String("codeproxy.outcome", out.Kind.String()),
		attribute.String("llm.model", out.Model),
		attribute.Int("codeproxy.attempts", out.Attempts),
	)

	g.audit.Log(security.AuditEvent{
		Type:         security.EventGeneration,
		Endpoint:     ep.Path,
		Remote:       r.RemoteAddr,
		Model:        out.Model,
		Outcome:      out.Kind.String(),
		Attempts:     out.Attempts,
		PromptLength: len(in.Prompt),
		Detail:       out.Cause.Message,
	})
}
