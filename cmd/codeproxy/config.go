package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/flemzord/codeproxy/internal/config"
	"github.com/flemzord/codeproxy/internal/security"
	"github.com/flemzord/codeproxy/pkg/app"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(configCheckCmd(), configShowCmd(), configInitCmd())
	return cmd
}

// configPath prefers the positional argument over --config.
func configPath(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	explicit, _ := cmd.Flags().GetString("config")
	return config.ResolvePath(explicit)
}

func configCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and provision every module",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(cmd, args)
			if err != nil {
				return err
			}
			rt, err := app.Build(cmd.Context(), path, app.Options{
				Version:   version,
				LogOutput: io.Discard,
			})
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.WithoutCancel(cmd.Context())) }()

			out := cmd.OutOrStdout()
			ids := rt.App.Modules()
			fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			fmt.Fprintf(out, "Default models: %s\n", strings.Join(rt.Holder.DefaultModels(), ", "))
			return nil
		},
	}
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [path]",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(cmd, args)
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			generic, err := config.ToMap(cfg)
			if err != nil {
				return err
			}
			security.NewRedactor().RedactMap(generic)

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(generic); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func configInitCmd() *cobra.Command {
	var (
		output string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively write a starter configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				if _, err := os.Stat(output); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", output)
				}
			}

			answers := defaultInitAnswers()
			if err := runInitForm(&answers); err != nil {
				return err
			}
			data, err := renderConfig(answers)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s. Export %s, then run: codeproxy start -c %s\n",
				output, strings.Join(answers.envVars(), " and "), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "codeproxy.yaml", "File to write")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

// initAnswers collects the choices of the init form.
type initAnswers struct {
	Provider  string
	KeyEnv    string
	BaseURL   string
	Models    string
	Bind      string
	EnableAPI bool
	TokenEnv  string
}

func defaultInitAnswers() initAnswers {
	return initAnswers{
		Provider:  "gemini",
		KeyEnv:    "GEMINI_API_KEY",
		Models:    strings.Join(config.DefaultModels, ", "),
		Bind:      "127.0.0.1:3000",
		EnableAPI: true,
		TokenEnv:  "CODEPROXY_TOKEN",
	}
}

func (a initAnswers) envVars() []string {
	vars := []string{"$" + a.KeyEnv}
	if a.EnableAPI && a.TokenEnv != "" {
		vars = append(vars, "$"+a.TokenEnv)
	}
	return vars
}

func (a initAnswers) models() []string {
	var out []string
	for _, m := range strings.Split(a.Models, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

func runInitForm(a *initAnswers) error {
	notEmpty := func(field string) func(string) error {
		return func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s is required", field)
			}
			return nil
		}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Backend").
				Options(
					huh.NewOption("Google Gemini", "gemini"),
					huh.NewOption("OpenAI-compatible API", "openai_compatible"),
				).
				Value(&a.Provider),
			huh.NewInput().
				Title("Environment variable holding the API key").
				Description("The key itself is never written to the file.").
				Value(&a.KeyEnv).
				Validate(notEmpty("variable name")),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Base URL").
				Placeholder("https://openrouter.ai/api/v1").
				Value(&a.BaseURL).
				Validate(notEmpty("base URL")),
		).WithHideFunc(func() bool { return a.Provider != "openai_compatible" }),
		huh.NewGroup(
			huh.NewInput().
				Title("Models, in failover order").
				Description("Comma separated.").
				Value(&a.Models).
				Validate(notEmpty("at least one model")),
			huh.NewConfirm().
				Title("Serve the HTTP API?").
				Value(&a.EnableAPI),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Value(&a.Bind).
				Validate(notEmpty("listen address")),
			huh.NewInput().
				Title("Environment variable holding the bearer token").
				Description("Leave empty to disable authentication.").
				Value(&a.TokenEnv),
		).WithHideFunc(func() bool { return !a.EnableAPI }),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return errors.New("aborted")
		}
		return err
	}
	return nil
}

type initFile struct {
	Version    string `yaml:"version"`
	Generation struct {
		Models []string `yaml:"models"`
	} `yaml:"generation"`
	Modules map[string]map[string]any `yaml:"modules"`
}

// renderConfig turns the answers into YAML. Secrets are written as ${VAR}
// references, expanded at load time.
func renderConfig(a initAnswers) ([]byte, error) {
	models := a.models()
	if len(models) == 0 {
		return nil, errors.New("at least one model is required")
	}
	if strings.TrimSpace(a.KeyEnv) == "" {
		return nil, errors.New("an API key variable is required")
	}

	f := initFile{Version: "1", Modules: map[string]map[string]any{}}
	f.Generation.Models = models

	keyRef := "${" + a.KeyEnv + "}"
	switch a.Provider {
	case "gemini":
		f.Modules["provider.gemini"] = map[string]any{
			"api_keys": []string{keyRef},
			"models":   []string{"gemini-*"},
		}
	case "openai_compatible":
		if a.BaseURL == "" {
			return nil, errors.New("base URL is required for an OpenAI-compatible backend")
		}
		f.Modules["provider.openai_compatible"] = map[string]any{
			"base_url":    a.BaseURL,
			"api_key_env": a.KeyEnv,
			"models":      []string{"**"},
		}
	default:
		return nil, fmt.Errorf("unknown backend %q", a.Provider)
	}

	if a.EnableAPI {
		gw := map[string]any{"bind": a.Bind}
		if a.TokenEnv != "" {
			gw["auth"] = map[string]any{"bearer_token": "${" + a.TokenEnv + "}"}
		}
		f.Modules["gateway.http"] = gw
	}

	return yaml.Marshal(f)
}
