package provider

// FinishReason describes why the model stopped generating.
type FinishReason string

// FinishReason constants for model completion termination.
const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonFiltering FinishReason = "filtering"
	FinishReasonOther     FinishReason = "other"
)

// GenerateRequest is the input to a Provider.Generate call.
type GenerateRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// GenerateResponse is the output of a Provider.Generate call.
type GenerateResponse struct {
	Text         string       `json:"text"`
	Model        string       `json:"model"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Usage        TokenUsage   `json:"usage"`
}

// TokenUsage tracks token consumption for a generation.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
