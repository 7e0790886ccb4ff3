package gateway

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/codeproxy/internal/codegen"
	"github.com/flemzord/codeproxy/internal/provider"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Outcomes(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.RecordOutcome("/api/generate", codegen.OutcomeSuccess, time.Second)
	m.RecordOutcome("/api/generate", codegen.OutcomeSuccess, 3*time.Second)
	m.RecordOutcome("/api/generator", codegen.OutcomeExhausted, time.Second)
	m.RecordOutcome("/api/generator", codegen.OutcomeFatal, time.Second)
	m.RecordRejected("/api/generator")

	if got := testutil.ToFloat64(m.requests.WithLabelValues("/api/generate", "success")); got != 2 {
		t.Errorf("success requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("/api/generator", "exhausted")); got != 1 {
		t.Errorf("exhausted requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("/api/generator", "rejected")); got != 1 {
		t.Errorf("rejected requests = %v, want 1", got)
	}

	snap := m.Snapshot()
	want := MetricsSnapshot{
		Requests:   5,
		Successes:  2,
		Exhausted:  1,
		Fatal:      1,
		Rejected:   1,
		AvgLatency: 2 * time.Second,
	}
	if snap != want {
		t.Errorf("snapshot = %+v, want %+v", snap, want)
	}
}

func TestMetrics_ObserveAttempt(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	ctx := t.Context()
	m.ObserveAttempt(ctx, codegen.Attempt{Model: "a", Err: provider.ErrRateLimit, Class: provider.ClassTransient})
	m.ObserveAttempt(ctx, codegen.Attempt{Model: "b", Err: errors.New("bad"), Class: provider.ClassFatal})
	m.ObserveAttempt(ctx, codegen.Attempt{Model: "b", Text: "ok"})

	if got := testutil.ToFloat64(m.attempts.WithLabelValues("a", provider.ClassTransient.String())); got != 1 {
		t.Errorf("transient attempts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.attempts.WithLabelValues("b", "success")); got != 1 {
		t.Errorf("success attempts = %v, want 1", got)
	}

	snap := m.Snapshot()
	if snap.Attempts != 3 || snap.Failovers != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestMetrics_ModelAvailable(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.SetModelAvailable("a", false)
	if got := testutil.ToFloat64(m.modelAvailable.WithLabelValues("a")); got != 0 {
		t.Errorf("gauge = %v, want 0", got)
	}
	m.SetModelAvailable("a", true)
	if got := testutil.ToFloat64(m.modelAvailable.WithLabelValues("a")); got != 1 {
		t.Errorf("gauge = %v, want 1", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.RecordOutcome("/api/generate", codegen.OutcomeSuccess, time.Second)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`codeproxy_requests_total{endpoint="/api/generate",outcome="success"} 1`,
		"codeproxy_request_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	t.Parallel()

	a, b := NewMetrics(), NewMetrics()
	a.RecordRejected("/x")

	if n := testutil.CollectAndCount(b.requests); n != 0 {
		t.Errorf("second registry has %d request series, want 0", n)
	}
	if a.Registry() == b.Registry() {
		t.Error("registries should be distinct")
	}
}
