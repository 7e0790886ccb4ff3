// Package app provides the shared entry point for the codeproxy commands.
package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/flemzord/codeproxy/internal/config"
	"github.com/flemzord/codeproxy/internal/reload"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.ResolvePath is consulted.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// NoWatch disables the config file watcher. SIGHUP still reloads.
	NoWatch bool
}

// Run loads configuration, starts all modules, and blocks until ctx is done
// or a shutdown signal is received. SIGHUP and file-change events reload the
// generation settings.
func Run(ctx context.Context, params RunParams) error {
	cfgPath, err := config.ResolvePath(params.ConfigPath)
	if err != nil {
		return err
	}

	rt, err := Build(ctx, cfgPath, Options{Version: params.Version})
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(context.WithoutCancel(ctx)); err != nil {
			rt.Logger.Warn("closing runtime", "error", err)
		}
	}()

	logger := rt.Logger
	if err := rt.App.Start(); err != nil {
		return err
	}
	logger.Info("codeproxy started",
		"version", params.Version,
		"config", cfgPath,
		"modules", len(rt.App.Modules()),
		"models", rt.Holder.DefaultModels(),
	)

	// --- signal handling ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	// --- file watcher ---
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	var events <-chan reload.Event
	if !params.NoWatch {
		watcher := reload.NewWatcher(reload.WatcherConfig{
			ConfigPath: cfgPath,
			Logger:     logger,
		})
		if err := watcher.Start(watchCtx); err != nil {
			logger.Warn("config watcher unavailable, reload with SIGHUP", "error", err)
		} else {
			defer watcher.Stop()
			events = watcher.Events()
		}
	}

	// --- main event loop ---
	for {
		select {
		case <-ctx.Done():
			logger.Info("context done, shutting down")
			rt.App.Stop()
			logger.Info("shutdown complete")
			return nil
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("SIGHUP received, reloading configuration")
				reloadConfig(watchCtx, logger, rt.Reload)
				continue
			}
			logger.Info("shutdown signal received", "signal", sig.String())
			rt.App.Stop()
			logger.Info("shutdown complete")
			return nil
		case evt := <-events:
			logger.Info("config file changed, reloading", "path", evt.ConfigPath)
			reloadConfig(watchCtx, logger, rt.Reload)
		}
	}
}

// reloadConfig applies the file on disk. A failed reload keeps the
// previous settings.
func reloadConfig(ctx context.Context, logger *slog.Logger, h *reload.Handler) {
	if err := h.ReloadNow(ctx); err != nil {
		logger.Error("reload failed, keeping previous configuration", "error", err)
	}
}
