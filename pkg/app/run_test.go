package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/codeproxy/internal/codegen"
	"github.com/flemzord/codeproxy/internal/config"
	"github.com/flemzord/codeproxy/internal/core"
	"github.com/flemzord/codeproxy/internal/gateway"
	"github.com/flemzord/codeproxy/internal/provider"
	"github.com/flemzord/codeproxy/internal/reload"
	"github.com/flemzord/codeproxy/internal/security"
	"gopkg.in/yaml.v3"
)

const stubKey = "stub-secret-key-0123456789"

// stubProvider answers every model with a fenced Lua block, except models
// prefixed "busy-" which fail with a 503.
type stubProvider struct {
	config struct {
		Models []string `yaml:"models"`
	}
}

func (p *stubProvider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.stub",
		New: func() core.Module { return &stubProvider{} },
	}
}

func (p *stubProvider) Configure(node *yaml.Node) error {
	return node.Decode(&p.config)
}

func (p *stubProvider) Provision(ctx *core.AppContext) error {
	if svc, ok := ctx.Service(security.ServiceName); ok {
		svc.(*security.CredentialStore).Set("stub.api_key", stubKey)
	}
	return nil
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) ModelPatterns() []string { return p.config.Models }

func (p *stubProvider) Generate(_ context.Context, req provider.GenerateRequest) (provider.GenerateResponse, error) {
	if strings.HasPrefix(req.Model, "busy-") {
		return provider.GenerateResponse{}, &provider.StatusError{
			Provider: "stub", Status: http.StatusServiceUnavailable, Message: "overloaded",
			Err: provider.ErrOverloaded,
		}
	}
	return provider.GenerateResponse{
		Model: req.Model,
		Text:  "```lua\nprint(" + `"` + req.Model + `"` + ")\n```",
	}, nil
}

func init() {
	core.RegisterModule(&stubProvider{})
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "codeproxy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func freeAddr(t *testing.T) string {
	t.Helper()
	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

const stubConfig = `version: "1"
generation:
  models: [busy-a, stub-b]
modules:
  provider.stub:
    models: ["busy-*", "stub-*"]
`

func TestBuild_WiresOrchestrator(t *testing.T) {
	t.Parallel()

	rt, err := Build(t.Context(), writeConfig(t, stubConfig), Options{LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	for _, name := range []string{
		codegen.ServiceName,
		reload.ServiceName,
		provider.HealthServiceName,
		security.ServiceName,
		security.AuditServiceName,
	} {
		if _, ok := rt.AppCtx.Service(name); !ok {
			t.Errorf("service %q not registered", name)
		}
	}

	out := rt.Holder.Generate(t.Context(), "hello", nil, false)
	if !out.OK() {
		t.Fatalf("Generate: %v", out.Err())
	}
	if out.Model != "stub-b" || out.Code != `print("stub-b")` {
		t.Errorf("outcome = %+v", out)
	}
	if out.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", out.Attempts)
	}

	snap := rt.Health.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("health snapshot = %+v, want two models", snap)
	}
	if snap[0].Model != "busy-a" || snap[0].Available {
		t.Errorf("busy-a health = %+v, want unavailable", snap[0])
	}
}

func TestBuild_MetricsFollowHealth(t *testing.T) {
	t.Parallel()

	cfg := stubConfig + "  gateway.http:\n    bind: " + freeAddr(t) + "\n"
	rt, err := Build(t.Context(), writeConfig(t, cfg), Options{LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	svc, ok := rt.AppCtx.Service(gateway.MetricsServiceName)
	if !ok {
		t.Fatal("gateway metrics not registered")
	}
	metrics := svc.(*gateway.Metrics)

	rt.Holder.Generate(t.Context(), "hello", nil, false)

	snap := metrics.Snapshot()
	if snap.Attempts != 2 || snap.Failovers != 1 {
		t.Errorf("metrics = %+v, want 2 attempts and 1 failover", snap)
	}
}

func TestBuild_RedactsProviderKeys(t *testing.T) {
	t.Parallel()

	var logs syncBuffer
	rt, err := Build(t.Context(), writeConfig(t, stubConfig), Options{LogOutput: &logs})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	rt.Logger.Info("calling backend", "key", stubKey)
	if strings.Contains(logs.String(), stubKey) {
		t.Errorf("log leaked the provider key: %s", logs.String())
	}
	if !strings.Contains(logs.String(), security.RedactPlaceholder) {
		t.Errorf("log missing redaction placeholder: %s", logs.String())
	}
}

func TestBuild_AuditFile(t *testing.T) {
	t.Parallel()

	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")
	cfg := strings.Replace(stubConfig, "modules:", "audit:\n  path: "+auditPath+"\nmodules:", 1)
	rt, err := Build(t.Context(), writeConfig(t, cfg), Options{LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if err := rt.Reload.ReloadNow(t.Context()); err != nil {
		t.Fatalf("ReloadNow: %v", err)
	}
	if err := rt.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if !strings.Contains(string(data), `"type":"config_reload"`) {
		t.Errorf("audit log = %s, want a config_reload event", data)
	}
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{name: "invalid yaml", content: "not: valid: yaml: ["},
		{name: "missing version", content: "modules:\n  provider.stub: {}\n"},
		{name: "unknown module", content: "version: \"1\"\nmodules:\n  provider.nope: {}\n"},
		{
			name:    "no provider",
			content: "version: \"1\"\nmodules:\n  gateway.http:\n    bind: 127.0.0.1:0\n",
			wantErr: ErrNoProviders,
		},
		{
			name:    "unwritable audit log",
			content: "version: \"1\"\naudit:\n  path: /nonexistent/dir/audit.jsonl\nmodules:\n  provider.stub: {}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rt, err := Build(t.Context(), writeConfig(t, tt.content), Options{LogOutput: io.Discard})
			if err == nil {
				t.Fatal("expected an error")
			}
			if rt != nil {
				t.Error("runtime should be nil on error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuild_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Build(t.Context(), "/nonexistent/codeproxy.yaml", Options{}); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestNewBuilder(t *testing.T) {
	t.Parallel()

	backend := &stubProvider{}
	build := NewBuilder(backend, provider.NopLogger())

	cfg, err := config.Parse([]byte("version: \"1\"\ngeneration:\n  models: [stub-x]\n"))
	if err != nil {
		t.Fatal(err)
	}
	orch, err := build(cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := orch.DefaultModels(); len(got) != 1 || got[0] != "stub-x" {
		t.Errorf("default models = %v", got)
	}

	cfg.Generation.PromptTemplate = "{{.Prompt"
	if _, err := build(cfg); err == nil {
		t.Error("expected an error for a malformed prompt template")
	}
}

func TestRun_InvalidConfigPath(t *testing.T) {
	t.Parallel()

	if err := Run(t.Context(), RunParams{ConfigPath: "/nonexistent/config.yaml"}); err == nil {
		t.Error("expected error for invalid config path")
	}
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	addr := freeAddr(t)
	cfg := stubConfig + "  gateway.http:\n    bind: " + addr + "\n"
	path := writeConfig(t, cfg)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, RunParams{ConfigPath: path, Version: "test", NoWatch: true})
	}()

	url := "http://" + addr + "/api/generate"
	var body string
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Post(url, "application/json", strings.NewReader(`{"prompt":"hi"}`))
		if err != nil {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		data, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		body = string(data)
		break
	}
	if body != `print("stub-b")` {
		t.Errorf("body = %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
