// Package config handles YAML configuration loading, environment variable
// expansion, defaults and structural validation for codeproxy.
package config

import (
	"log/slog"
	"strings"

	"github.com/flemzord/codeproxy/internal/codegen"
	"github.com/flemzord/codeproxy/internal/provider"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Logging    LoggingConfig    `yaml:"logging"`
	Generation GenerationConfig `yaml:"generation"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Audit      AuditConfig      `yaml:"audit"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "provider.gemini").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// LoggingConfig selects the root slog handler.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Default: info.
	Level string `yaml:"level"`
	// Format is text or json. Default: text.
	Format string `yaml:"format"`
}

// SlogLevel parses Level, falling back to info.
func (c LoggingConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// GenerationConfig holds the orchestrator settings. All of it is
// hot-reloadable.
type GenerationConfig struct {
	// Models is the default ordered candidate list.
	Models []string `yaml:"models"`

	// Language is the preferred code fence tag. Default: lua.
	Language string `yaml:"language"`

	// PromptTemplate wraps caller prompts on endpoints with wrapping enabled.
	// The caller prompt is available as {{.Prompt}}.
	PromptTemplate string `yaml:"prompt_template"`

	// TransientSignatures extend the built-in overload/quota vocabulary.
	TransientSignatures []provider.Signature `yaml:"transient_signatures"`
}

// TelemetryConfig groups observability exporters.
type TelemetryConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig configures OTLP/HTTP trace export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate"`
	ServiceName string  `yaml:"service_name"`
}

// AuditConfig enables the JSONL audit log of generations and auth failures.
type AuditConfig struct {
	// Path is the file events are appended to. Empty disables the audit
	// log; "-" writes to stderr.
	Path string `yaml:"path"`
}

// DefaultModels is the candidate list used when the config names none.
var DefaultModels = []string{
	"gemini-2.0-flash-lite-preview-02-05",
	"gemini-2.5-flash",
	"gemini-2.5-pro",
}

// ApplyDefaults fills unset fields in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if len(cfg.Generation.Models) == 0 {
		cfg.Generation.Models = append([]string(nil), DefaultModels...)
	}
	if cfg.Generation.Language == "" {
		cfg.Generation.Language = codegen.DefaultLanguage
	}
	if cfg.Generation.PromptTemplate == "" {
		cfg.Generation.PromptTemplate = codegen.DefaultPromptTemplate
	}
	tr := &cfg.Telemetry.Tracing
	if tr.Endpoint == "" {
		tr.Endpoint = "localhost:4318"
	}
	if tr.ServiceName == "" {
		tr.ServiceName = "codeproxy"
	}
	// A zero rate means unset; disable tracing with enabled: false.
	if tr.SampleRate == 0 {
		tr.SampleRate = 1
	}
}
