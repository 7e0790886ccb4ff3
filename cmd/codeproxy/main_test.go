package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/flemzord/codeproxy/internal/config"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := rootCmd()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

// newBackend serves OpenAI-style chat completions. Models prefixed "busy-"
// answer 503.
func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if strings.HasPrefix(req.Model, "busy-") {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		content := "```lua\n-- " + req.Model + ": " + req.Messages[0].Content + "\n```"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": req.Model,
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeBackendConfig(t *testing.T, baseURL string) string {
	t.Helper()
	content := `version: "1"
generation:
  models: [busy-one, small-two]
  prompt_template: "LUA ONLY: {{.Prompt}}"
modules:
  provider.openai_compatible:
    base_url: ` + baseURL + `
    api_key: sk-test-secret-000111222333
    models: ["**"]
`
	path := filepath.Join(t.TempDir(), "codeproxy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "", "version")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"codeproxy dev", "Compiled provider modules:", "provider.gemini", "provider.openai_compatible", "Compiled gateway modules:", "gateway.http"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestGenerateCmd(t *testing.T) {
	t.Parallel()

	path := writeBackendConfig(t, newBackend(t).URL)

	tests := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{
			name: "args with failover",
			args: []string{"generate", "-c", path, "spawn", "a", "prop"},
			want: "-- small-two: spawn a prop\n",
		},
		{
			name:  "stdin",
			stdin: "  from stdin \n",
			args:  []string{"generate", "-c", path},
			want:  "-- small-two: from stdin\n",
		},
		{
			name: "model override and wrap",
			args: []string{"generate", "-c", path, "-m", "big-three", "--wrap", "hi"},
			want: "-- big-three: LUA ONLY: hi\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := execute(t, tt.stdin, tt.args...)
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			if out != tt.want {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestGenerateCmd_Failures(t *testing.T) {
	t.Parallel()

	path := writeBackendConfig(t, newBackend(t).URL)

	if _, err := execute(t, "", "generate", "-c", path); err == nil || !strings.Contains(err.Error(), "no prompt") {
		t.Errorf("empty prompt error = %v", err)
	}

	_, err := execute(t, "", "generate", "-c", path, "-m", "busy-a,busy-b", "x")
	if err == nil || !strings.Contains(err.Error(), "all models overloaded or unavailable") {
		t.Errorf("exhausted error = %v", err)
	}
}

func TestConfigCheckCmd(t *testing.T) {
	t.Parallel()

	path := writeBackendConfig(t, "http://127.0.0.1:1")
	out, err := execute(t, "", "config", "check", path)
	if err != nil {
		t.Fatalf("config check: %v", err)
	}
	for _, want := range []string{"Configuration OK (1 modules)", "provider.openai_compatible", "busy-one, small-two"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("modules:\n  nope.x: {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "", "config", "check", bad); err == nil {
		t.Error("expected validation error")
	}
}

func TestConfigShowCmd_Redacts(t *testing.T) {
	t.Parallel()

	path := writeBackendConfig(t, "http://127.0.0.1:1")
	out, err := execute(t, "", "config", "show", path)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "sk-test-secret") {
		t.Errorf("api key leaked:\n%s", out)
	}
	if !strings.Contains(out, "***REDACTED***") || !strings.Contains(out, "small-two") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestReadPrompt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		stdin   string
		args    []string
		want    string
		wantErr bool
	}{
		{name: "args joined", args: []string{"a", "b"}, want: "a b"},
		{name: "args win over stdin", stdin: "ignored", args: []string{"x"}, want: "x"},
		{name: "stdin trimmed", stdin: "\n code \n", want: "code"},
		{name: "blank", stdin: "   ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := readPrompt(strings.NewReader(tt.stdin), tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderConfig(t *testing.T) {
	t.Setenv("TEST_CP_KEY", "k-123")
	t.Setenv("TEST_CP_TOKEN", "tok-456")

	tests := []struct {
		name    string
		answers initAnswers
		module  string
	}{
		{
			name: "gemini",
			answers: initAnswers{
				Provider: "gemini", KeyEnv: "TEST_CP_KEY", Models: "gemini-2.5-flash, gemini-2.5-pro",
				Bind: "127.0.0.1:3000", EnableAPI: true, TokenEnv: "TEST_CP_TOKEN",
			},
			module: "provider.gemini",
		},
		{
			name: "openai compatible without API",
			answers: initAnswers{
				Provider: "openai_compatible", KeyEnv: "TEST_CP_KEY", BaseURL: "https://example.invalid/v1",
				Models: "gemini-2.5-flash,,gemini-2.5-pro",
			},
			module: "provider.openai_compatible",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := renderConfig(tt.answers)
			if err != nil {
				t.Fatalf("renderConfig: %v", err)
			}
			if strings.Contains(string(data), "k-123") {
				t.Error("rendered config must reference the key variable, not its value")
			}

			cfg, err := config.Parse(data)
			if err != nil {
				t.Fatalf("parse rendered config: %v\n%s", err, data)
			}
			if err := config.Validate(cfg); err != nil {
				t.Fatalf("validate rendered config: %v\n%s", err, data)
			}
			if want := []string{"gemini-2.5-flash", "gemini-2.5-pro"}; !slices.Equal(cfg.Generation.Models, want) {
				t.Errorf("models = %v, want %v", cfg.Generation.Models, want)
			}
			if _, ok := cfg.Modules[tt.module]; !ok {
				t.Errorf("module %s missing", tt.module)
			}
			if _, ok := cfg.Modules["gateway.http"]; ok != tt.answers.EnableAPI {
				t.Errorf("gateway.http present = %v, want %v", ok, tt.answers.EnableAPI)
			}
		})
	}
}

func TestRenderConfig_Errors(t *testing.T) {
	t.Parallel()

	base := defaultInitAnswers()
	tests := []struct {
		name   string
		mutate func(*initAnswers)
	}{
		{name: "no models", mutate: func(a *initAnswers) { a.Models = " , " }},
		{name: "no key variable", mutate: func(a *initAnswers) { a.KeyEnv = "" }},
		{name: "unknown backend", mutate: func(a *initAnswers) { a.Provider = "bedrock" }},
		{name: "missing base url", mutate: func(a *initAnswers) { a.Provider = "openai_compatible" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := base
			tt.mutate(&a)
			if _, err := renderConfig(a); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestServiceConfig(t *testing.T) {
	t.Parallel()

	cfg, err := serviceConfig("codeproxy.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != serviceName {
		t.Errorf("name = %q", cfg.Name)
	}
	if len(cfg.Arguments) != 4 || cfg.Arguments[2] != "--config" || !filepath.IsAbs(cfg.Arguments[3]) {
		t.Errorf("arguments = %v, want service run --config <abs>", cfg.Arguments)
	}

	cfg, err = serviceConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(cfg.Arguments, []string{"service", "run"}) {
		t.Errorf("arguments = %v", cfg.Arguments)
	}
}
