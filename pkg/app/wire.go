package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/flemzord/codeproxy/internal/codegen"
	"github.com/flemzord/codeproxy/internal/config"
	"github.com/flemzord/codeproxy/internal/core"
	"github.com/flemzord/codeproxy/internal/gateway"
	"github.com/flemzord/codeproxy/internal/provider"
	"github.com/flemzord/codeproxy/internal/reload"
	"github.com/flemzord/codeproxy/internal/security"
	"github.com/flemzord/codeproxy/internal/tracing"
	"go.opentelemetry.io/otel/trace"
)

// ErrNoProviders is returned when the configuration loads no module that
// implements provider.Provider.
var ErrNoProviders = errors.New("at least one provider module is required")

// Options tunes Build.
type Options struct {
	// Version is reported by the tracing resource and the MCP server.
	Version string

	// LogOutput receives the root logger output. Default: os.Stderr.
	LogOutput io.Writer
}

// Runtime is a fully wired but not yet started codeproxy process.
type Runtime struct {
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger

	App     *core.App
	AppCtx  *core.AppContext
	Holder  *codegen.Holder
	Health  *provider.HealthRegistry
	Reload  *reload.Handler
	Tracing *tracing.Provider

	closers []func(context.Context) error
}

// Build loads and validates the configuration at cfgPath, provisions every
// configured module and wires the orchestrator behind them. Modules are not
// started; call Runtime.App.Start or use Run.
func Build(ctx context.Context, cfgPath string, opts Options) (rt *Runtime, err error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	rt = &Runtime{Config: cfg, ConfigPath: cfgPath}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
			rt = nil
		}
	}()

	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	credStore := security.NewCredentialStore()
	redactor := security.NewRedactor()
	rt.Logger = newLogger(cfg.Logging, out, redactor)

	auditWriter, closeAudit, err := openAudit(cfg.Audit.Path)
	if err != nil {
		return rt, err
	}
	rt.closers = append(rt.closers, closeAudit)
	audit := security.NewAuditLogger(security.AuditLoggerConfig{
		Writer:   auditWriter,
		Redactor: redactor,
	})

	tr := cfg.Telemetry.Tracing
	rt.Tracing, err = tracing.Setup(ctx, tracing.Config{
		Enabled:        tr.Enabled,
		Endpoint:       tr.Endpoint,
		Insecure:       tr.Insecure,
		SampleRate:     tr.SampleRate,
		ServiceName:    tr.ServiceName,
		ServiceVersion: opts.Version,
	})
	if err != nil {
		return rt, err
	}
	rt.closers = append(rt.closers, rt.Tracing.Shutdown)

	rt.Health = provider.NewHealthRegistry(provider.HealthConfig{})

	rt.AppCtx = core.NewAppContext(rt.Logger).WithModuleConfigs(cfg.Modules)
	rt.AppCtx.RegisterService(security.ServiceName, credStore)
	rt.AppCtx.RegisterService(security.AuditServiceName, audit)
	rt.AppCtx.RegisterService(tracing.ProviderServiceName, rt.Tracing)
	rt.AppCtx.RegisterService(provider.HealthServiceName, rt.Health)

	rt.App = core.NewApp(rt.AppCtx)
	ids := config.Resolve(cfg)
	if err := rt.App.LoadModules(ids); err != nil {
		return rt, err
	}

	// Providers register their keys during Provision.
	redactor.SyncCredentials(credStore)

	// Spans classify failures through the Holder so they follow reloads.
	rt.Holder = &codegen.Holder{}
	backend, err := buildBackend(rt.App, ids, rt.Tracing.Tracer(), rt.Holder, rt.Logger)
	if err != nil {
		return rt, err
	}

	observers := []codegen.Observer{healthObserver(rt.Health)}
	if svc, ok := rt.AppCtx.Service(gateway.MetricsServiceName); ok {
		if m, ok := svc.(*gateway.Metrics); ok {
			observers = append(observers, m)
			rt.Health.OnStateChange = func(model, _, to string) {
				m.SetModelAvailable(model, to == "healthy")
			}
		}
	}

	build := NewBuilder(backend, rt.Logger, observers...)
	orch, err := build(cfg)
	if err != nil {
		return rt, err
	}
	rt.Holder.Swap(orch)
	rt.AppCtx.RegisterService(codegen.ServiceName, rt.Holder)

	rt.Reload = reload.NewHandler(reload.HandlerConfig{
		ConfigPath: cfgPath,
		Holder:     rt.Holder,
		Build:      build,
		Current:    cfg,
		Audit:      audit,
		Logger:     rt.Logger,
	})
	rt.AppCtx.RegisterService(reload.ServiceName, rt.Reload)

	return rt, nil
}

// Close releases the tracing exporter and the audit file. Modules are
// stopped separately through App.Stop.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// NewBuilder returns the reload.Builder that turns the generation section of
// a configuration into an orchestrator over backend.
func NewBuilder(backend provider.Provider, logger *slog.Logger, observers ...codegen.Observer) reload.Builder {
	return func(cfg *config.Config) (*codegen.Orchestrator, error) {
		gen := cfg.Generation
		tmpl, err := codegen.ParsePromptTemplate(gen.PromptTemplate)
		if err != nil {
			return nil, fmt.Errorf("generation.prompt_template: %w", err)
		}
		opts := []codegen.Option{
			codegen.WithClassifier(provider.NewClassifier(gen.TransientSignatures...)),
			codegen.WithExtractor(codegen.NewExtractor(gen.Language)),
			codegen.WithPromptTemplate(tmpl),
			codegen.WithDefaultModels(gen.Models...),
			codegen.WithLogger(logger),
		}
		for _, obs := range observers {
			opts = append(opts, codegen.WithObserver(obs))
		}
		return codegen.New(backend, opts...), nil
	}
}

// buildBackend routes models across every loaded provider module, in load
// order. Each backend is wrapped in a tracing span.
func buildBackend(
	app *core.App,
	ids []string,
	tracer trace.Tracer,
	classifier tracing.Classifier,
	logger *slog.Logger,
) (*provider.Mux, error) {
	var routes []provider.Route
	for _, id := range ids {
		mod, ok := app.Module(id)
		if !ok {
			continue
		}
		p, ok := mod.(provider.Provider)
		if !ok {
			continue
		}
		route := provider.Route{
			Name:     id,
			Provider: tracing.WrapProvider(p, tracer, classifier),
		}
		if m, ok := mod.(provider.ModelMatcher); ok {
			route.Patterns = m.ModelPatterns()
		}
		routes = append(routes, route)
		logger.Info("provider registered", "module", id, "models", route.Patterns)
	}
	if len(routes) == 0 {
		return nil, ErrNoProviders
	}
	return provider.NewMux(routes...)
}

func healthObserver(reg *provider.HealthRegistry) codegen.Observer {
	return codegen.ObserverFunc(func(_ context.Context, a codegen.Attempt) {
		reg.Observe(a.Model, a.Err, a.Class)
	})
}

// newLogger builds the root logger. Every record passes through the
// redactor, which learns provider keys after Provision.
func newLogger(cfg config.LoggingConfig, w io.Writer, redactor *security.Redactor) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var inner slog.Handler
	if cfg.Format == "json" {
		inner = slog.NewJSONHandler(w, hopts)
	} else {
		inner = slog.NewTextHandler(w, hopts)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor))
}

// openAudit resolves the audit destination. An empty path disables the
// file sink; "-" selects stderr.
func openAudit(path string) (io.Writer, func(context.Context) error, error) {
	nop := func(context.Context) error { return nil }
	switch path {
	case "":
		return nil, nop, nil
	case "-":
		return os.Stderr, nop, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening audit log: %w", err)
	}
	return f, func(context.Context) error { return f.Close() }, nil
}
