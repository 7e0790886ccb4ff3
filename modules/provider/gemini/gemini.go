// Package gemini provides the Google Gemini code generation backend,
// built on the google.golang.org/genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/flemzord/codeproxy/internal/core"
	"github.com/flemzord/codeproxy/internal/provider"
	"github.com/flemzord/codeproxy/internal/security"
	"google.golang.org/genai"
	"gopkg.in/yaml.v3"
)

const providerName = "gemini"

func init() {
	core.RegisterModule(&Provider{})
}

// Provider generates code with the Gemini API. It holds one genai client
// per API key and moves to the next key when the active one reports a
// quota failure.
type Provider struct {
	config  Config
	auth    *provider.AuthProfile
	clients map[string]*genai.Client
	logger  *slog.Logger

	// httpClient overrides the SDK default, for tests.
	httpClient *http.Client
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.gemini",
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return fmt.Errorf("provider.gemini: decoding config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner. It builds one SDK client per key
// and registers every key in the shared credential store.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.config.defaults()
	p.logger = ctx.Logger

	keys := p.config.keys()
	if len(keys) == 0 {
		// Reported by Validate.
		return nil
	}

	auth, err := provider.NewAuthProfile(keys...)
	if err != nil {
		return fmt.Errorf("provider.gemini: %w", err)
	}
	p.auth = auth

	var store *security.CredentialStore
	if svc, ok := ctx.Service(security.ServiceName); ok {
		store, _ = svc.(*security.CredentialStore)
	}

	p.clients = make(map[string]*genai.Client, len(keys))
	for i, key := range keys {
		if _, ok := p.clients[key]; ok {
			continue
		}
		client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey:     key,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: p.httpClient,
			HTTPOptions: genai.HTTPOptions{
				BaseURL:    p.config.BaseURL,
				APIVersion: p.config.APIVersion,
			},
		})
		if err != nil {
			return fmt.Errorf("provider.gemini: creating client %d: %w", i, err)
		}
		p.clients[key] = client
		if store != nil {
			store.Set(fmt.Sprintf("provider.gemini.api_keys.%d", i), key)
		}
	}

	ctx.RegisterService("provider.gemini", p)
	return nil
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	return p.config.validate()
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return providerName }

// ModelPatterns implements provider.ModelMatcher.
func (p *Provider) ModelPatterns() []string { return p.config.Models }

// Generate implements provider.Provider. Each call is bounded by the
// configured timeout.
func (p *Provider) Generate(ctx context.Context, req provider.GenerateRequest) (provider.GenerateResponse, error) {
	if p.auth == nil {
		return provider.GenerateResponse{}, &provider.StatusError{
			Provider: providerName,
			Message:  "no API key configured",
			Err:      provider.ErrNoKeys,
		}
	}

	key := p.auth.CurrentKey()
	client := p.clients[key]

	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	resp, err := client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), p.generateConfig(req))
	if err != nil {
		mapped := mapError(err)
		var se *provider.StatusError
		if errors.As(mapped, &se) && isQuota(se) && p.auth.Len() > 1 {
			if p.auth.RotateFrom(key) {
				p.logger.Warn("api key quota exhausted, rotating",
					"key_index", p.auth.CurrentIndex(),
					"model", req.Model,
				)
			}
		}
		return provider.GenerateResponse{}, mapped
	}

	return parseResponse(req.Model, resp)
}

// generateConfig merges request overrides with the configured defaults.
func (p *Provider) generateConfig(req provider.GenerateRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxOutputTokens
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}
	temperature := req.Temperature
	if temperature == nil {
		temperature = p.config.Temperature
	}
	if temperature != nil {
		t := float32(*temperature)
		cfg.Temperature = &t
	}
	return cfg
}

// parseResponse concatenates the text parts of the first candidate.
// A prompt blocked by safety filters yields a BLOCKED StatusError.
func parseResponse(model string, resp *genai.GenerateContentResponse) (provider.GenerateResponse, error) {
	if resp == nil {
		return provider.GenerateResponse{}, &provider.StatusError{Provider: providerName, Message: "empty response"}
	}
	if len(resp.Candidates) == 0 {
		msg := "response contained no candidates"
		if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
			msg = "prompt blocked: " + string(fb.BlockReason)
			if fb.BlockReasonMessage != "" {
				msg += ": " + fb.BlockReasonMessage
			}
		}
		return provider.GenerateResponse{}, &provider.StatusError{Provider: providerName, Code: "BLOCKED", Message: msg}
	}

	cand := resp.Candidates[0]
	var sb strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			sb.WriteString(part.Text)
		}
	}

	out := provider.GenerateResponse{
		Text:         sb.String(),
		Model:        resp.ModelVersion,
		FinishReason: mapFinishReason(cand.FinishReason),
	}
	if out.Model == "" {
		out.Model = model
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = provider.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	if out.Text == "" && out.FinishReason == provider.FinishReasonFiltering {
		return provider.GenerateResponse{}, &provider.StatusError{
			Provider: providerName,
			Code:     "BLOCKED",
			Message:  "candidate blocked: " + string(cand.FinishReason),
		}
	}
	return out, nil
}

func mapFinishReason(reason genai.FinishReason) provider.FinishReason {
	switch reason {
	case genai.FinishReasonStop:
		return provider.FinishReasonStop
	case genai.FinishReasonMaxTokens:
		return provider.FinishReasonLength
	case genai.FinishReasonSafety, genai.FinishReasonRecitation,
		genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent, genai.FinishReasonSPII:
		return provider.FinishReasonFiltering
	default:
		return provider.FinishReasonOther
	}
}

// mapError converts SDK errors to *provider.StatusError. Context errors
// pass through unchanged.
func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	default:
		return &provider.StatusError{Provider: providerName, Message: err.Error(), Err: err}
	}

	se := &provider.StatusError{
		Provider: providerName,
		Status:   apiErr.Code,
		Code:     apiErr.Status,
		Message:  apiErr.Message,
		Err:      err,
	}
	switch {
	case apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
		se.Err = errors.Join(provider.ErrRateLimit, err)
	case apiErr.Code == http.StatusServiceUnavailable || apiErr.Status == "UNAVAILABLE":
		se.Err = errors.Join(provider.ErrOverloaded, err)
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		se.Err = errors.Join(provider.ErrAuthentication, err)
	}
	if se.Message == "" {
		se.Message = http.StatusText(apiErr.Code)
	}
	return se
}

func isQuota(se *provider.StatusError) bool {
	return se.Status == http.StatusTooManyRequests || se.Code == "RESOURCE_EXHAUSTED"
}

// Compile-time interface assertions.
var (
	_ core.Module           = (*Provider)(nil)
	_ core.Configurable     = (*Provider)(nil)
	_ core.Provisioner      = (*Provider)(nil)
	_ core.Validator        = (*Provider)(nil)
	_ provider.Provider     = (*Provider)(nil)
	_ provider.ModelMatcher = (*Provider)(nil)
)
