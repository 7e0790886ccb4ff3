package tracing

import (
	"context"

	"github.com/flemzord/codeproxy/internal/provider"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrModel        = attribute.Key("llm.model")
	AttrProvider     = attribute.Key("llm.provider")
	AttrFinishReason = attribute.Key("llm.response.finish_reason")
	AttrInputTokens  = attribute.Key("llm.usage.input_tokens")
	AttrOutputTokens = attribute.Key("llm.usage.output_tokens")
	AttrTextLength   = attribute.Key("llm.response.content_length")
	AttrClass        = attribute.Key("codeproxy.attempt.class")
)

// Classifier decides the failure class recorded on a failed span.
// *provider.Classifier and *codegen.Holder both satisfy it.
type Classifier interface {
	Classify(err error) provider.Class
}

// TracedProvider wraps a provider so every Generate call runs in a client span.
type TracedProvider struct {
	provider   provider.Provider
	tracer     trace.Tracer
	classifier Classifier
}

// WrapProvider instruments p. Failed spans carry the failure class as
// decided by classifier at call time (the default table when nil).
func WrapProvider(p provider.Provider, tracer trace.Tracer, classifier Classifier) *TracedProvider {
	if classifier == nil {
		classifier = provider.NewClassifier()
	}
	return &TracedProvider{provider: p, tracer: tracer, classifier: classifier}
}

// Name returns the underlying provider's name.
func (t *TracedProvider) Name() string {
	return t.provider.Name()
}

// Generate implements provider.Provider.
func (t *TracedProvider) Generate(ctx context.Context, req provider.GenerateRequest) (provider.GenerateResponse, error) {
	ctx, span := t.tracer.Start(ctx, "codegen.generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrModel.String(req.Model),
			AttrProvider.String(t.provider.Name()),
		),
	)
	defer span.End()

	resp, err := t.provider.Generate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(AttrClass.String(t.classifier.Classify(err).String()))
		return resp, err
	}

	span.SetAttributes(
		AttrFinishReason.String(string(resp.FinishReason)),
		AttrInputTokens.Int(resp.Usage.PromptTokens),
		AttrOutputTokens.Int(resp.Usage.CompletionTokens),
		AttrTextLength.Int(len(resp.Text)),
	)
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

var _ provider.Provider = (*TracedProvider)(nil)
