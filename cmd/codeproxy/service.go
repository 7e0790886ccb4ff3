package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/flemzord/codeproxy/pkg/app"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

const serviceName = "codeproxy"

// program adapts app.Run to the service manager's start/stop callbacks.
type program struct {
	params app.RunParams

	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(_ service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		p.done <- app.Run(ctx, p.params)
	}()
	return nil
}

func (p *program) Stop(_ service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

// serviceConfig describes the system service. The config path is made
// absolute because service managers start in a different directory.
func serviceConfig(cfgPath string) (*service.Config, error) {
	svcCfg := &service.Config{
		Name:        serviceName,
		DisplayName: "codeproxy",
		Description: "Code generation gateway with model failover",
		Arguments:   []string{"service", "run"},
	}
	if cfgPath != "" {
		abs, err := filepath.Abs(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("resolving config path: %w", err)
		}
		svcCfg.Arguments = append(svcCfg.Arguments, "--config", abs)
	}
	return svcCfg, nil
}

func newService(cmd *cobra.Command) (service.Service, *program, error) {
	params := runParams(cmd, false)
	svcCfg, err := serviceConfig(params.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	prg := &program{params: params}
	svc, err := service.New(prg, svcCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating service: %w", err)
	}
	return svc, prg, nil
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage codeproxy as a system service",
	}

	for _, action := range service.ControlAction {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the system service", action),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, _, err := newService(cmd)
				if err != nil {
					return err
				}
				if err := service.Control(svc, action); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: %s done\n", serviceName, action)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the system service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := newService(cmd)
			if err != nil {
				return err
			}
			status, err := svc.Status()
			if err != nil && !errors.Is(err, service.ErrNotInstalled) {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "service %s: %s\n", serviceName, statusString(status))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := newService(cmd)
			if err != nil {
				return err
			}
			return svc.Run()
		},
	})
	return cmd
}

func statusString(s service.Status) string {
	switch s {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "not installed"
	}
}
