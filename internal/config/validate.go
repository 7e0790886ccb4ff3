package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/flemzord/codeproxy/internal/codegen"
	"github.com/flemzord/codeproxy/internal/core"
)

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures modules are present and
// registered, and checks the generation, logging and telemetry sections.
// Module sections are validated by the modules themselves on load.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	errs = append(errs, validateGeneration(cfg.Generation)...)
	errs = append(errs, validateLogging(cfg.Logging)...)

	if rate := cfg.Telemetry.Tracing.SampleRate; rate < 0 || rate > 1 {
		errs = append(errs, fmt.Errorf("config: telemetry.tracing.sample_rate %v out of range [0,1]", rate))
	}

	return errors.Join(errs...)
}

func validateGeneration(gen GenerationConfig) []error {
	var errs []error

	if len(gen.Models) == 0 {
		errs = append(errs, errors.New("config: generation.models must not be empty"))
	}
	for i, m := range gen.Models {
		if m == "" {
			errs = append(errs, fmt.Errorf("config: generation.models[%d] is empty", i))
		}
	}

	if tmpl, err := codegen.ParsePromptTemplate(gen.PromptTemplate); err != nil {
		errs = append(errs, fmt.Errorf("config: generation.prompt_template: %w", err))
	} else if _, err := tmpl.Render("probe"); err != nil {
		errs = append(errs, fmt.Errorf("config: generation.prompt_template: %w", err))
	}

	for i, sig := range gen.TransientSignatures {
		if err := sig.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: generation.transient_signatures[%d]: %w", i, err))
		}
	}
	return errs
}

func validateLogging(l LoggingConfig) []error {
	var errs []error
	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: logging.format %q must be text or json", l.Format))
	}
	var probe slog.Level
	if err := probe.UnmarshalText([]byte(l.Level)); err != nil {
		errs = append(errs, fmt.Errorf("config: logging.level: %w", err))
	}
	return errs
}
