package telemetry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jonesrussell/north-cloud/orchestrator/internal/telemetry"
)

func TestNewProvider_IsolatedRegistries(t *testing.T) {
	first := telemetry.NewProvider()
	second := telemetry.NewProvider()

	first.RecordRunRejected("in_flight")

	if got := testutil.ToFloat64(first.Metrics.RunsRejected.WithLabelValues("in_flight")); got != 1 {
		t.Errorf("first rejected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(second.Metrics.RunsRejected.WithLabelValues("in_flight")); got != 0 {
		t.Errorf("second rejected = %v, want 0", got)
	}
}

func TestRunLifecycleMetrics(t *testing.T) {
	p := telemetry.NewProvider()

	p.RecordRunStarted("heartbeat", "manual")
	if got := testutil.ToFloat64(p.Metrics.RunsInFlight); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}

	p.RecordRunCompleted("heartbeat", false, 20*time.Millisecond)
	if got := testutil.ToFloat64(p.Metrics.RunsInFlight); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(p.Metrics.RunsCompleted.WithLabelValues("heartbeat", "failure")); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}
}

func TestRecordPersisted_SkipsZero(t *testing.T) {
	p := telemetry.NewProvider()

	p.RecordPersisted("content", telemetry.OutcomeWritten, 0)
	p.RecordPersisted("content", telemetry.OutcomeFailed, 2)

	if got := testutil.CollectAndCount(p.Metrics.RecordsPersisted); got != 1 {
		t.Errorf("series = %d, want 1", got)
	}
}

func TestNilProvider_NoPanic(t *testing.T) {
	var p *telemetry.Provider

	p.RecordRunStarted("heartbeat", "cron")
	p.RecordRunCompleted("heartbeat", true, time.Second)
	p.RecordRunRejected("in_flight")
	p.SetArmedWorkflows(3)
	p.RecordPersisted("content", telemetry.OutcomeWritten, 1)

	_, span := p.StartSpan(context.Background(), "noop")
	span.End()
}

func TestHandler_ServesOrchestratorMetrics(t *testing.T) {
	p := telemetry.NewProvider()
	p.SetArmedWorkflows(2)

	req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/metrics", http.NoBody)
	w := httptest.NewRecorder()
	p.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "orchestrator_armed_workflows 2") {
		t.Error("expected orchestrator_armed_workflows in output")
	}
}
