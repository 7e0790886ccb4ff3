package gateway

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/flemzord/codeproxy/internal/security"
)

func TestDecodeInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        string
		wantPrompt  string
		wantModels  []string
		wantErr     error
	}{
		{
			name:        "json object",
			contentType: "application/json",
			body:        `{"prompt":"make a door","models":["a","b"]}`,
			wantPrompt:  "make a door",
			wantModels:  []string{"a", "b"},
		},
		{
			name:        "json with charset",
			contentType: "application/json; charset=utf-8",
			body:        `{"prompt":"x"}`,
			wantPrompt:  "x",
		},
		{
			name:        "json string holding an object",
			contentType: "application/json",
			body:        `"{\"prompt\":\"wrapped\",\"models\":[\"m\"]}"`,
			wantPrompt:  "wrapped",
			wantModels:  []string{"m"},
		},
		{
			name:        "models of the wrong type are ignored",
			contentType: "application/json",
			body:        `{"prompt":"x","models":"gemini-pro"}`,
			wantPrompt:  "x",
		},
		{
			name:        "empty models array",
			contentType: "application/json",
			body:        `{"prompt":"x","models":[]}`,
			wantPrompt:  "x",
		},
		{
			name:        "prompt of the wrong type",
			contentType: "application/json",
			body:        `{"prompt":42}`,
			wantErr:     errNoPrompt,
		},
		{
			name:        "json array",
			contentType: "application/json",
			body:        `["prompt"]`,
			wantErr:     errNoPrompt,
		},
		{
			name:        "truncated json",
			contentType: "application/json",
			body:        `{"prompt":`,
			wantErr:     errInvalidBody,
		},
		{
			name:        "too deep",
			contentType: "application/json",
			body:        `{"prompt":"x","a":` + strings.Repeat("[", 20) + strings.Repeat("]", 20) + `}`,
			wantErr:     errInvalidBody,
		},
		{
			name:        "form",
			contentType: "application/x-www-form-urlencoded",
			body:        "prompt=spawn+a+prop&models=a,b&models=c",
			wantPrompt:  "spawn a prop",
			wantModels:  []string{"a", "b", "c"},
		},
		{
			name:       "form without content type",
			body:       "prompt=hello",
			wantPrompt: "hello",
		},
		{
			name:       "json without content type",
			body:       `{"prompt":"hello"}`,
			wantPrompt: "hello",
		},
		{
			name:        "plain text is not a prompt",
			contentType: "text/plain",
			body:        "hello",
			wantErr:     errNoPrompt,
		},
		{
			name:        "empty body",
			contentType: "application/json",
			wantErr:     errNoPrompt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			in, err := decodeInput(req, security.DefaultMaxBodySize)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if in.Prompt != tt.wantPrompt {
				t.Errorf("prompt = %q, want %q", in.Prompt, tt.wantPrompt)
			}
			if !slices.Equal(in.Models, tt.wantModels) {
				t.Errorf("models = %v, want %v", in.Models, tt.wantModels)
			}
		})
	}
}

func TestDecodeInput_BodyLimit(t *testing.T) {
	t.Parallel()

	body := `{"prompt":"` + strings.Repeat("x", 64) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	if _, err := decodeInput(req, 32); !errors.Is(err, security.ErrBodyTooLarge) {
		t.Errorf("err = %v, want ErrBodyTooLarge", err)
	}
}

func TestCleanModels(t *testing.T) {
	t.Parallel()

	if got := cleanModels([]string{" ", ""}); got != nil {
		t.Errorf("cleanModels(blanks) = %v, want nil", got)
	}
	if got := cleanModels([]string{" a ", "", "b"}); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("cleanModels = %v", got)
	}
}
