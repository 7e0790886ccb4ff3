package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/flemzord/codeproxy/internal/provider"
)

// providerName labels errors produced by this backend.
const providerName = "openai_compatible"

// OpenAI wire types for JSON serialization.

type oaiRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiResponse struct {
	Model   string      `json:"model"`
	Choices []oaiChoice `json:"choices"`
	Usage   oaiUsage    `json:"usage"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// oaiErrorBody is the error envelope most OpenAI-compatible servers return.
type oaiErrorBody struct {
	Error struct {
		Message string          `json:"message"`
		Type    string          `json:"type"`
		Code    json.RawMessage `json:"code"`
	} `json:"error"`
}

// buildRequest converts a provider.GenerateRequest into an oaiRequest.
// Config values are used when the request leaves them unset.
func buildRequest(cfg Config, req provider.GenerateRequest) oaiRequest {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = cfg.MaxTokens
	}
	temperature := req.Temperature
	if temperature == nil {
		temperature = cfg.Temperature
	}
	return oaiRequest{
		Model:       req.Model,
		Messages:    []oaiMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// parseResponse converts an oaiResponse into a provider.GenerateResponse.
func parseResponse(model string, resp oaiResponse) provider.GenerateResponse {
	gr := provider.GenerateResponse{
		Model: resp.Model,
		Usage: provider.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if gr.Model == "" {
		gr.Model = model
	}
	if len(resp.Choices) == 0 {
		return gr
	}
	choice := resp.Choices[0]
	gr.Text = choice.Message.Content
	gr.FinishReason = mapFinishReason(choice.FinishReason)
	return gr
}

// mapFinishReason converts an OpenAI finish_reason string to a provider.FinishReason.
func mapFinishReason(reason string) provider.FinishReason {
	switch reason {
	case "stop":
		return provider.FinishReasonStop
	case "length":
		return provider.FinishReasonLength
	case "content_filter":
		return provider.FinishReasonFiltering
	case "":
		return provider.FinishReasonOther
	default:
		return provider.FinishReason(reason)
	}
}

// doRequest executes an HTTP POST to the chat completions endpoint.
func (p *Provider) doRequest(ctx context.Context, body oaiRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := p.config.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}
	for k, v := range p.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// Caller cancellation surfaces as the bare context error.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &provider.StatusError{Provider: providerName, Message: err.Error(), Err: err}
	}
	return resp, nil
}

// maxErrorBodySize caps how much of an error response body is read.
const maxErrorBodySize = 4096

// handleErrorResponse maps an HTTP error response to a *provider.StatusError.
// Only 429 and 503 carry transient sentinels; everything else is left to
// the classifier's signature table.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	se := &provider.StatusError{
		Provider: providerName,
		Status:   resp.StatusCode,
		Message:  strings.TrimSpace(string(body)),
	}

	var envelope oaiErrorBody
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		se.Message = envelope.Error.Message
		se.Code = errorCode(envelope.Error.Code, envelope.Error.Type)
	}
	if se.Message == "" {
		se.Message = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		se.Err = provider.ErrRateLimit
	case http.StatusServiceUnavailable:
		se.Err = provider.ErrOverloaded
	case http.StatusUnauthorized, http.StatusForbidden:
		se.Err = provider.ErrAuthentication
	}
	return se
}

// errorCode picks a symbolic code from the error envelope. The code field
// is a string on most servers and a number on a few.
func errorCode(raw json.RawMessage, typ string) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return strings.ToUpper(s)
	}
	if typ != "" {
		return strings.ToUpper(typ)
	}
	return ""
}

// errEmptyResponse reports a 200 response without any choice.
var errEmptyResponse = errors.New("response contained no choices")
