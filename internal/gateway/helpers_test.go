package gateway

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/codeproxy/internal/codegen"
	"github.com/flemzord/codeproxy/internal/provider"
)

// fakeGenerator returns a canned outcome and records its calls.
type fakeGenerator struct {
	mu      sync.Mutex
	outcome codegen.Outcome
	calls   []generateCall
	models  []string
}

type generateCall struct {
	Prompt string
	Models []string
	Wrap   bool
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, models []string, wrap bool) codegen.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, generateCall{Prompt: prompt, Models: models, Wrap: wrap})
	return f.outcome
}

func (f *fakeGenerator) DefaultModels() []string { return f.models }

func (f *fakeGenerator) lastCall(t *testing.T) generateCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("generator was not called")
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func successOutcome(model, code string) codegen.Outcome {
	return codegen.Outcome{Kind: codegen.OutcomeSuccess, Model: model, Code: code, Attempts: 1}
}

// newTestGateway builds a gateway ready for buildRouter, without a listener.
func newTestGateway(cfg Config, gen Generator) *Gateway {
	cfg.defaults()
	return &Gateway{
		config:    cfg,
		logger:    provider.NopLogger(),
		metrics:   NewMetrics(),
		generator: gen,
		startedAt: time.Now(),
	}
}

// freeAddr returns a localhost address with a currently unused port.
func freeAddr(t *testing.T) string {
	t.Helper()
	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}
