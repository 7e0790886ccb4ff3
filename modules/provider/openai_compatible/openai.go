// Package openaicompat provides a code generation backend for any API that
// implements the OpenAI chat completions interface (OpenRouter, Groq,
// Mistral, vLLM, LiteLLM, etc.) via a configurable base_url.
package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/flemzord/codeproxy/internal/core"
	"github.com/flemzord/codeproxy/internal/provider"
	"github.com/flemzord/codeproxy/internal/security"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Provider{})
}

// Provider is an OpenAI-compatible code generation backend.
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.openai_compatible",
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return fmt.Errorf("provider.openai_compatible: decoding config: %w", err)
	}
	p.config.defaults()
	return nil
}

// Provision implements core.Provisioner. The API key is registered in the
// shared credential store so the log redactor masks it.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.logger = ctx.Logger
	p.client = &http.Client{Timeout: p.config.Timeout}

	if p.config.APIKey != "" {
		if svc, ok := ctx.Service(security.ServiceName); ok {
			if store, ok := svc.(*security.CredentialStore); ok {
				store.Set("provider.openai_compatible.api_key", p.config.APIKey)
			}
		}
	}

	ctx.RegisterService("provider.openai_compatible", p)
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

// Generate implements provider.Provider.
func (p *Provider) Generate(ctx context.Context, req provider.GenerateRequest) (provider.GenerateResponse, error) {
	resp, err := p.doRequest(ctx, buildRequest(p.config, req))
	if err != nil {
		return provider.GenerateResponse{}, err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode != http.StatusOK {
		return provider.GenerateResponse{}, handleErrorResponse(resp)
	}

	var oaiResp oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return provider.GenerateResponse{}, &provider.StatusError{
			Provider: providerName,
			Message:  "decode response: " + err.Error(),
			Err:      err,
		}
	}
	if len(oaiResp.Choices) == 0 {
		return provider.GenerateResponse{}, &provider.StatusError{
			Provider: providerName,
			Message:  errEmptyResponse.Error(),
			Err:      errEmptyResponse,
		}
	}

	out := parseResponse(req.Model, oaiResp)
	p.logger.Debug("generation completed",
		"model", out.Model,
		"finish_reason", out.FinishReason,
		"total_tokens", out.Usage.TotalTokens,
	)
	return out, nil
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
