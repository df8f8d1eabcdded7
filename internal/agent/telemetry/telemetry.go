// Package telemetry exposes Prometheus metrics for the exploration and
// delivery pipelines. Metrics are served on the API's /metrics endpoint.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Telemetry bundles the service's metric instruments.
type Telemetry struct {
	SessionsStarted  prometheus.Counter
	SessionsFinished *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	StepsExecuted    *prometheus.CounterVec
	StepDuration     prometheus.Histogram
	GateDecisions    *prometheus.CounterVec
	TestRuns         *prometheus.CounterVec
	RefineIterations prometheus.Counter
}

// NewTelemetry registers the instruments on the given registerer. Passing nil
// uses the default registry; tests pass their own to avoid duplicate
// registration.
func NewTelemetry(reg prometheus.Registerer) *Telemetry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Telemetry{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "webscout_sessions_started_total",
			Help: "Number of exploration sessions started.",
		}),
		SessionsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webscout_sessions_finished_total",
			Help: "Number of exploration sessions finished, by terminal status.",
		}, []string{"status"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "webscout_sessions_active",
			Help: "Number of exploration loops currently running.",
		}),
		StepsExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webscout_steps_executed_total",
			Help: "Number of plan steps dispatched, by kind and role.",
		}, []string{"kind", "role"}),
		StepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "webscout_step_duration_seconds",
			Help:    "Wall-clock duration of dispatched steps.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		GateDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webscout_gate_decisions_total",
			Help: "Approval gate decisions, by gate kind and outcome.",
		}, []string{"kind", "status"}),
		TestRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webscout_scraper_test_runs_total",
			Help: "Scraper subprocess test runs, by outcome.",
		}, []string{"status"}),
		RefineIterations: factory.NewCounter(prometheus.CounterOpts{
			Name: "webscout_scraper_refinements_total",
			Help: "Number of scraper refinement iterations performed.",
		}),
	}
}

// ObserveStep records one dispatched step.
func (t *Telemetry) ObserveStep(kind, role string, d time.Duration) {
	if t == nil {
		return
	}
	t.StepsExecuted.WithLabelValues(kind, role).Inc()
	t.StepDuration.Observe(d.Seconds())
}

// SessionStarted marks a loop entering the running state.
func (t *Telemetry) SessionStarted() {
	if t == nil {
		return
	}
	t.SessionsStarted.Inc()
	t.ActiveSessions.Inc()
}

// SessionFinished marks a loop leaving the running state.
func (t *Telemetry) SessionFinished(status string) {
	if t == nil {
		return
	}
	t.ActiveSessions.Dec()
	t.SessionsFinished.WithLabelValues(status).Inc()
}

// GateDecided records one approval decision.
func (t *Telemetry) GateDecided(kind, status string) {
	if t == nil {
		return
	}
	t.GateDecisions.WithLabelValues(kind, status).Inc()
}

// TestRun records one scraper test outcome.
func (t *Telemetry) TestRun(status string) {
	if t == nil {
		return
	}
	t.TestRuns.WithLabelValues(status).Inc()
}

// Refined records one refinement iteration.
func (t *Telemetry) Refined() {
	if t == nil {
		return
	}
	t.RefineIterations.Inc()
}
