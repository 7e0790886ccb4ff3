package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/flemzord/codeproxy/internal/codegen"
	"github.com/flemzord/codeproxy/internal/config"
	"github.com/flemzord/codeproxy/internal/security"
	"gopkg.in/yaml.v3"
)

// ServiceName is the AppContext service key of the Handler.
const ServiceName = "reload.handler"

// Builder builds an orchestrator from a validated configuration.
type Builder func(cfg *config.Config) (*codegen.Orchestrator, error)

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	ConfigPath string
	Holder     *codegen.Holder
	Build      Builder

	// Current is the configuration the running modules were loaded from.
	// Module sections that differ from it on reload need a restart.
	Current *config.Config

	Audit  *security.AuditLogger
	Logger *slog.Logger
}

// Handler reloads the generation settings. Module sections (providers,
// gateway) are only compared: changing them requires a restart.
type Handler struct {
	path   string
	holder *codegen.Holder
	build  Builder
	audit  *security.AuditLogger
	logger *slog.Logger

	mu      sync.Mutex
	modules map[string]string
}

// NewHandler creates a reload handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		path:   cfg.ConfigPath,
		holder: cfg.Holder,
		build:  cfg.Build,
		audit:  cfg.Audit,
		logger: logger,
	}
	if cfg.Current != nil {
		h.modules = moduleDigests(cfg.Current)
	}
	return h
}

// ConfigPath returns the watched configuration file.
func (h *Handler) ConfigPath() string {
	return h.path
}

// ReloadNow loads the config file from disk, validates it and applies it.
func (h *Handler) ReloadNow(ctx context.Context) error {
	cfg, err := config.Load(h.path)
	if err != nil {
		err = fmt.Errorf("loading config: %w", err)
		h.record(err)
		return err
	}
	if err := config.Validate(cfg); err != nil {
		err = fmt.Errorf("validating config: %w", err)
		h.record(err)
		return err
	}
	return h.HandleReloadFromConfig(ctx, cfg)
}

// HandleReloadFromConfig applies a pre-loaded, already-validated config.
// The caller is responsible for calling config.Validate first.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error {
	err := h.apply(ctx, cfg)
	h.record(err)
	return err
}

func (h *Handler) apply(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}
	if h.holder == nil || h.build == nil {
		return errors.New("reload: no orchestrator to rebuild")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	orch, err := h.build(cfg)
	if err != nil {
		return fmt.Errorf("building orchestrator: %w", err)
	}
	h.holder.Swap(orch)

	digests := moduleDigests(cfg)
	if changed := changedModules(h.modules, digests); h.modules != nil && len(changed) > 0 {
		h.logger.Warn("module configuration changed, restart required to apply it",
			"modules", strings.Join(changed, ","))
	}
	h.modules = digests

	h.logger.Info("configuration reloaded", "models", strings.Join(orch.DefaultModels(), ","))
	return nil
}

func (h *Handler) record(err error) {
	event := security.AuditEvent{
		Type:    security.EventConfigReload,
		Outcome: "success",
		Detail:  h.path,
	}
	if err != nil {
		event.Outcome = "failure"
		event.Detail = err.Error()
	}
	h.audit.Log(event)
}

// moduleDigests renders each module section so sections can be compared.
func moduleDigests(cfg *config.Config) map[string]string {
	out := make(map[string]string, len(cfg.Modules))
	for id, node := range cfg.Modules {
		raw, err := yaml.Marshal(&node)
		if err != nil {
			raw = []byte(err.Error())
		}
		out[id] = string(raw)
	}
	return out
}

// changedModules returns the sorted IDs added, removed or modified between
// two digest sets.
func changedModules(old, current map[string]string) []string {
	var changed []string
	for id, d := range current {
		if prev, ok := old[id]; !ok || prev != d {
			changed = append(changed, id)
		}
	}
	for id := range old {
		if _, ok := current[id]; !ok {
			changed = append(changed, id)
		}
	}
	slices.Sort(changed)
	return changed
}
