package config

import (
	"strings"
	"testing"

	"github.com/flemzord/codeproxy/internal/core"
	"github.com/flemzord/codeproxy/internal/provider"
	"gopkg.in/yaml.v3"
)

// stubModule is a basic module for testing.
type stubModule struct {
	id string
}

func (m *stubModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  core.ModuleID(m.id),
		New: func() core.Module { return &stubModule{id: m.id} },
	}
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	id := t.Name() + ".mod"
	core.RegisterModule(&stubModule{id: id})
	cfg := &Config{
		Version: "1",
		Modules: map[string]yaml.Node{id: {}},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	if err := Validate(validConfig(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing version", func(c *Config) { c.Version = "" }, "version field is required"},
		{"unsupported version", func(c *Config) { c.Version = "99" }, "unsupported version"},
		{"no modules", func(c *Config) { c.Modules = nil }, "at least one module"},
		{"unknown module", func(c *Config) { c.Modules["provider.nope"] = yaml.Node{} }, `"provider.nope"`},
		{"empty models", func(c *Config) { c.Generation.Models = nil }, "generation.models must not be empty"},
		{"blank model", func(c *Config) { c.Generation.Models = []string{"gemini-2.5-pro", ""} }, "generation.models[1]"},
		{"bad template syntax", func(c *Config) { c.Generation.PromptTemplate = "{{.Prompt" }, "prompt_template"},
		{"bad template field", func(c *Config) { c.Generation.PromptTemplate = "{{.Request}}" }, "prompt_template"},
		{"empty signature", func(c *Config) {
			c.Generation.TransientSignatures = []provider.Signature{{Name: "nothing"}}
		}, "transient_signatures[0]"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"sample rate", func(c *Config) { c.Telemetry.Tracing.SampleRate = 2 }, "sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{Modules: map[string]yaml.Node{"bad.one": {}, "bad.two": {}}}
	ApplyDefaults(cfg)

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"version", "bad.one", "bad.two"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q: %v", want, err)
		}
	}
}
