// Package gateway provides the HTTP surface of codeproxy: the generation
// endpoints, health and status probes, Prometheus metrics and operator
// endpoints. It follows the module system pattern and resolves its
// collaborators from the service registry at Start.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/codeproxy/internal/codegen"
	"github.com/flemzord/codeproxy/internal/core"
	"github.com/flemzord/codeproxy/internal/provider"
	"github.com/flemzord/codeproxy/internal/reload"
	"github.com/flemzord/codeproxy/internal/security"
	"github.com/flemzord/codeproxy/internal/tracing"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"gopkg.in/yaml.v3"
)

// MetricsServiceName is the AppContext service key of the gateway *Metrics.
const MetricsServiceName = "gateway.metrics"

func init() {
	core.RegisterModule(&Gateway{})
}

// Generator runs one orchestration. *codegen.Holder implements it.
type Generator interface {
	Generate(ctx context.Context, prompt string, models []string, wrap bool) codegen.Outcome
}

// ModelLister is optionally implemented by a Generator to report the
// candidate list used when a request names none.
type ModelLister interface {
	DefaultModels() []string
}

// ConfigReloader is resolved from the reload.ServiceName service and backs
// the operator config endpoints.
type ConfigReloader interface {
	ConfigPath() string
	ReloadNow(ctx context.Context) error
}

// Gateway is the HTTP gateway module.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	metrics   *Metrics
	startedAt time.Time

	// Resolved lazily at Start() via service registry.
	generator Generator
	health    *provider.HealthRegistry
	audit     *security.AuditLogger
	reloader  ConfigReloader
	tracer    trace.Tracer
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return fmt.Errorf("gateway: decoding config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner. The metrics are created here so
// the orchestrator can be wired to them before Start.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.metrics = NewMetrics()

	ctx.RegisterService(MetricsServiceName, g.metrics)
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	if err := g.config.validate(); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	g.resolveServices()
	if g.generator == nil {
		return fmt.Errorf("gateway: no %s service registered", codegen.ServiceName)
	}

	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:              g.config.Bind,
		Handler:           g.buildRouter(),
		ReadTimeout:       g.config.ReadTimeout,
		ReadHeaderTimeout: g.config.ReadTimeout,
		WriteTimeout:      g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String(), "endpoints", len(g.config.Endpoints))
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// resolveServices binds optional collaborators. Missing ones degrade
// gracefully, except the generator which Start requires.
func (g *Gateway) resolveServices() {
	if g.appCtx == nil {
		return
	}
	if svc, ok := g.appCtx.Service(codegen.ServiceName); ok {
		if gen, ok := svc.(Generator); ok {
			g.generator = gen
		}
	}
	if svc, ok := g.appCtx.Service(provider.HealthServiceName); ok {
		if reg, ok := svc.(*provider.HealthRegistry); ok {
			g.health = reg
		}
	}
	if svc, ok := g.appCtx.Service(security.AuditServiceName); ok {
		if audit, ok := svc.(*security.AuditLogger); ok {
			g.audit = audit
		}
	}
	if svc, ok := g.appCtx.Service(reload.ServiceName); ok {
		if r, ok := svc.(ConfigReloader); ok {
			g.reloader = r
		}
	}
	if svc, ok := g.appCtx.Service(tracing.ProviderServiceName); ok {
		if tp, ok := svc.(*tracing.Provider); ok {
			g.tracer = tp.Tracer()
		}
	}
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

// spanTracer returns the configured tracer or a no-op one.
func (g *Gateway) spanTracer() trace.Tracer {
	if g.tracer != nil {
		return g.tracer
	}
	return noop.NewTracerProvider().Tracer(tracing.InstrumentationName)
}

// Interface guards.
var (
	_ core.Module       = (*Gateway)(nil)
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
	_ Generator         = (*codegen.Holder)(nil)
	_ codegen.Observer  = (*Metrics)(nil)
	_ ConfigReloader    = (*reload.Handler)(nil)
)
