// Package main is the entry point for the codeproxy CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/flemzord/codeproxy/internal/config"
	"github.com/flemzord/codeproxy/internal/core"
	"github.com/flemzord/codeproxy/internal/mcpserver"
	"github.com/flemzord/codeproxy/pkg/app"
	"github.com/spf13/cobra"

	// Compiled-in modules.
	_ "github.com/flemzord/codeproxy/internal/gateway"
	_ "github.com/flemzord/codeproxy/modules/provider/gemini"
	_ "github.com/flemzord/codeproxy/modules/provider/openai_compatible"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "codeproxy",
		Short:         "Code generation gateway with model failover",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file (default: $"+config.EnvPath+" or codeproxy.yaml)")
	root.AddCommand(
		versionCmd(),
		startCmd(),
		generateCmd(),
		mcpCmd(),
		configCmd(),
		serviceCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "codeproxy %s (commit: %s, built: %s)\n", version, commit, date)
			if len(core.GetModules()) == 0 {
				fmt.Fprintln(out, "\nNo compiled modules.")
				return
			}
			for _, ns := range []string{core.NamespaceProvider, core.NamespaceGateway} {
				mods := core.GetModulesByNamespace(ns)
				if len(mods) == 0 {
					continue
				}
				fmt.Fprintf(out, "\nCompiled %s modules:\n", ns)
				for _, mod := range mods {
					fmt.Fprintf(out, "  %s\n", mod.ID)
				}
			}
		},
	}
}

func startCmd() *cobra.Command {
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start codeproxy with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), runParams(cmd, noWatch))
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload when the config file changes")
	return cmd
}

func runParams(cmd *cobra.Command, noWatch bool) app.RunParams {
	cfgPath, _ := cmd.Flags().GetString("config")
	return app.RunParams{
		ConfigPath: cfgPath,
		Version:    version,
		Commit:     commit,
		Date:       date,
		NoWatch:    noWatch,
	}
}

// buildRuntime wires the configured modules without starting them. Provider
// modules are usable once provisioned.
func buildRuntime(cmd *cobra.Command) (*app.Runtime, error) {
	explicit, _ := cmd.Flags().GetString("config")
	cfgPath, err := config.ResolvePath(explicit)
	if err != nil {
		return nil, err
	}
	return app.Build(cmd.Context(), cfgPath, app.Options{
		Version:   version,
		LogOutput: cmd.ErrOrStderr(),
	})
}

func generateCmd() *cobra.Command {
	var (
		models []string
		wrap   bool
	)
	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate code once and print it",
		Long: "Generate code for the prompt given as arguments, or read from stdin\n" +
			"when no arguments are given. Models are tried in order until one answers.",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.WithoutCancel(cmd.Context())) }()

			out := rt.Holder.Generate(cmd.Context(), prompt, models, wrap)
			if !out.OK() {
				return out.Err()
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Code)
			fmt.Fprintf(cmd.ErrOrStderr(), "model: %s (attempts: %d)\n", out.Model, out.Attempts)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&models, "model", "m", nil, "Candidate model, in order (repeatable; default: generation.models)")
	cmd.Flags().BoolVarP(&wrap, "wrap", "w", false, "Wrap the prompt in generation.prompt_template")
	return cmd
}

// readPrompt joins args, or reads stdin when there are none.
func readPrompt(stdin io.Reader, args []string) (string, error) {
	prompt := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading prompt: %w", err)
		}
		prompt = string(data)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("no prompt provided")
	}
	return prompt, nil
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the generate_code tool over MCP stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.WithoutCancel(cmd.Context())) }()

			srv, err := mcpserver.New(mcpserver.Config{
				Version:   version,
				Generator: rt.Holder,
				Logger:    rt.Logger,
			})
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
