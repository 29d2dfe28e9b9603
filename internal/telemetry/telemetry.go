// Package telemetry provides Prometheus metrics and tracing for the orchestrator.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "orchestrator"

// Persistence outcomes.
const (
	OutcomeWritten = "written"
	OutcomeFailed  = "failed"
)

// Metrics holds the orchestrator's Prometheus collectors.
type Metrics struct {
	// Run metrics
	RunsStarted   *prometheus.CounterVec
	RunsCompleted *prometheus.CounterVec
	RunsRejected  *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	RunsInFlight  prometheus.Gauge

	// Scheduling metrics
	ArmedWorkflows prometheus.Gauge

	// Persistence metrics
	RecordsPersisted *prometheus.CounterVec
}

// Provider wraps the tracer and a private metrics registry.
// All methods are no-ops on a nil Provider.
type Provider struct {
	Tracer   trace.Tracer
	Metrics  *Metrics
	registry *prometheus.Registry
}

// NewProvider registers the orchestrator metrics on a fresh registry.
func NewProvider() *Provider {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Provider{
		Tracer:   otel.Tracer(serviceName),
		Metrics:  initMetrics(promauto.With(registry)),
		registry: registry,
	}
}

// Handler serves the registry for the /metrics endpoint.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registerer exposes the private registry so other collectors can join /metrics.
func (p *Provider) Registerer() prometheus.Registerer {
	return p.registry
}

func initMetrics(factory promauto.Factory) *Metrics {
	return &Metrics{
		RunsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_runs_started_total",
			Help: "Workflow runs accepted, by type and trigger",
		}, []string{"workflow_type", "trigger"}),

		RunsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_runs_completed_total",
			Help: "Workflow runs finished, by type and status",
		}, []string{"workflow_type", "status"}),

		RunsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_runs_rejected_total",
			Help: "Execute calls refused before a run started",
		}, []string{"reason"}),

		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orchestrator_run_duration_seconds",
			Help:    "Wall time of a workflow instance execution",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"workflow_type"}),

		RunsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "orchestrator_runs_in_flight",
			Help: "Workflow runs currently executing",
		}),

		ArmedWorkflows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "orchestrator_armed_workflows",
			Help: "Workflows with a live cron registration",
		}),

		RecordsPersisted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_records_persisted_total",
			Help: "Run records written or skipped, by phase",
		}, []string{"phase", "outcome"}),
	}
}

// RecordRunStarted counts an accepted run and marks it in flight.
func (p *Provider) RecordRunStarted(workflowType, trigger string) {
	if p == nil {
		return
	}
	p.Metrics.RunsStarted.WithLabelValues(workflowType, trigger).Inc()
	p.Metrics.RunsInFlight.Inc()
}

// RecordRunCompleted counts a finished run.
func (p *Provider) RecordRunCompleted(workflowType string, success bool, duration time.Duration) {
	if p == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	p.Metrics.RunsCompleted.WithLabelValues(workflowType, status).Inc()
	p.Metrics.RunDuration.WithLabelValues(workflowType).Observe(duration.Seconds())
	p.Metrics.RunsInFlight.Dec()
}

// RecordRunRejected counts a refused Execute call.
func (p *Provider) RecordRunRejected(reason string) {
	if p == nil {
		return
	}
	p.Metrics.RunsRejected.WithLabelValues(reason).Inc()
}

// SetArmedWorkflows sets the number of live cron registrations.
func (p *Provider) SetArmedWorkflows(n int) {
	if p == nil {
		return
	}
	p.Metrics.ArmedWorkflows.Set(float64(n))
}

// RecordPersisted counts n records of a phase with the given outcome.
func (p *Provider) RecordPersisted(phase, outcome string, n int) {
	if p == nil || n == 0 {
		return
	}
	p.Metrics.RecordsPersisted.WithLabelValues(phase, outcome).Add(float64(n))
}

// StartSpan starts a new trace span. A nil Provider uses the global tracer.
// The caller is responsible for ending the span with span.End().
//
//nolint:spancheck // Caller is responsible for ending the span
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(serviceName)
	if p != nil && p.Tracer != nil {
		tracer = p.Tracer
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
