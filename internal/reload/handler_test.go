package reload

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/flemzord/codeproxy/internal/codegen"
	"github.com/flemzord/codeproxy/internal/config"
	"github.com/flemzord/codeproxy/internal/core"
	"github.com/flemzord/codeproxy/internal/provider/providertest"
	"github.com/flemzord/codeproxy/internal/security"
)

type stubModule struct{}

func (stubModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "test.reload", New: func() core.Module { return stubModule{} }}
}

func init() {
	core.RegisterModule(stubModule{})
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
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

func buildFromConfig(cfg *config.Config) (*codegen.Orchestrator, error) {
	return codegen.New(&providertest.MockProvider{}, codegen.WithDefaultModels(cfg.Generation.Models...)), nil
}

type handlerFixture struct {
	path    string
	holder  *codegen.Holder
	handler *Handler
	logs    *syncBuffer
	events  []security.AuditEvent
}

func newFixture(t *testing.T, build Builder, initial string) *handlerFixture {
	t.Helper()

	f := &handlerFixture{
		path:   filepath.Join(t.TempDir(), "codeproxy.yaml"),
		holder: codegen.NewHolder(codegen.New(&providertest.MockProvider{}, codegen.WithDefaultModels("old-model"))),
		logs:   &syncBuffer{},
	}
	f.write(t, initial)

	current, err := config.Load(f.path)
	if err != nil {
		t.Fatalf("initial config: %v", err)
	}

	f.handler = NewHandler(HandlerConfig{
		ConfigPath: f.path,
		Holder:     f.holder,
		Build:      build,
		Current:    current,
		Audit: security.NewAuditLogger(security.AuditLoggerConfig{
			OnEvent: func(e security.AuditEvent) { f.events = append(f.events, e) },
		}),
		Logger: slog.New(slog.NewTextHandler(f.logs, nil)),
	})
	return f
}

func (f *handlerFixture) write(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(f.path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
}

const baseConfig = `version: "1"
generation:
  models: [model-a, model-b]
modules:
  test.reload:
    setting: one
`

func TestHandler_ReloadNowSwapsOrchestrator(t *testing.T) {
	t.Parallel()

	f := newFixture(t, buildFromConfig, baseConfig)
	f.write(t, strings.Replace(baseConfig, "[model-a, model-b]", "[model-c]", 1))

	if err := f.handler.ReloadNow(context.Background()); err != nil {
		t.Fatalf("ReloadNow: %v", err)
	}

	if got := f.holder.DefaultModels(); !slices.Equal(got, []string{"model-c"}) {
		t.Errorf("default models = %v, want [model-c]", got)
	}
	if strings.Contains(f.logs.String(), "restart required") {
		t.Error("unchanged modules should not ask for a restart")
	}
	if len(f.events) != 1 || f.events[0].Type != security.EventConfigReload || f.events[0].Outcome != "success" {
		t.Errorf("audit events = %+v", f.events)
	}
}

func TestHandler_ModuleChangeNeedsRestart(t *testing.T) {
	t.Parallel()

	f := newFixture(t, buildFromConfig, baseConfig)
	f.write(t, strings.Replace(baseConfig, "setting: one", "setting: two", 1))

	if err := f.handler.ReloadNow(context.Background()); err != nil {
		t.Fatalf("ReloadNow: %v", err)
	}

	logs := f.logs.String()
	if !strings.Contains(logs, "restart required") || !strings.Contains(logs, "test.reload") {
		t.Errorf("expected restart warning naming test.reload, got:\n%s", logs)
	}

	// The new section is now the baseline.
	f.logs = &syncBuffer{}
	f.handler.logger = slog.New(slog.NewTextHandler(f.logs, nil))
	if err := f.handler.ReloadNow(context.Background()); err != nil {
		t.Fatalf("second ReloadNow: %v", err)
	}
	if strings.Contains(f.logs.String(), "restart required") {
		t.Error("second reload of the same file should not warn again")
	}
}

func TestHandler_ReloadNowFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		remove  bool
		build   Builder
		wantErr string
	}{
		{name: "file missing", remove: true, build: buildFromConfig, wantErr: "loading config"},
		{name: "invalid yaml", content: "version: [", build: buildFromConfig, wantErr: "loading config"},
		{name: "missing version", content: "modules:\n  test.reload: {}\n", build: buildFromConfig, wantErr: "validating config"},
		{name: "unknown module", content: "version: \"1\"\nmodules:\n  fake.mod: {}\n", build: buildFromConfig, wantErr: "unknown module"},
		{
			name:    "builder fails",
			content: baseConfig,
			build: func(*config.Config) (*codegen.Orchestrator, error) {
				return nil, errors.New("bad template")
			},
			wantErr: "building orchestrator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, tt.build, baseConfig)
			if tt.remove {
				if err := os.Remove(f.path); err != nil {
					t.Fatal(err)
				}
			} else {
				f.write(t, tt.content)
			}

			err := f.handler.ReloadNow(context.Background())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
			if got := f.holder.DefaultModels(); !slices.Equal(got, []string{"old-model"}) {
				t.Errorf("orchestrator replaced after failure: %v", got)
			}
			if len(f.events) != 1 || f.events[0].Outcome != "failure" {
				t.Errorf("audit events = %+v", f.events)
			}
		})
	}
}

func TestHandler_HandleReloadFromConfig_CancelledContext(t *testing.T) {
	t.Parallel()

	f := newFixture(t, buildFromConfig, baseConfig)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.handler.HandleReloadFromConfig(ctx, &config.Config{Version: "1"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestHandler_NoHolder(t *testing.T) {
	t.Parallel()

	h := NewHandler(HandlerConfig{ConfigPath: "x.yaml"})
	if h.ConfigPath() != "x.yaml" {
		t.Errorf("ConfigPath() = %q", h.ConfigPath())
	}
	if err := h.HandleReloadFromConfig(context.Background(), &config.Config{}); err == nil {
		t.Error("expected an error without an orchestrator")
	}
}

func TestChangedModules(t *testing.T) {
	t.Parallel()

	old := map[string]string{"a": "1", "b": "2", "c": "3"}
	current := map[string]string{"a": "1", "b": "changed", "d": "4"}

	got := changedModules(old, current)
	if want := []string{"b", "c", "d"}; !slices.Equal(got, want) {
		t.Errorf("changedModules = %v, want %v", got, want)
	}
	if got := changedModules(old, old); len(got) != 0 {
		t.Errorf("changedModules(same) = %v, want none", got)
	}
}
