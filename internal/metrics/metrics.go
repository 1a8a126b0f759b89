// Package metrics records run counters for procprobe in Prometheus form.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/procprobe/internal/ir"
)

// Metrics holds the collectors for one run.
//
// Metrics:
//   - procprobe_calls_total{status,category} - statements by outcome
//   - procprobe_call_duration_seconds{category} - execution time per statement
//   - procprobe_call_attempts_total{category} - attempts including retries
//   - procprobe_suspect_failures_total{category} - failures with inferred arguments
//   - procprobe_inference_fallbacks_total{type} - parameters bound through a fallback
//   - procprobe_fixtures_created_total{role} - fixtures inserted by this run
//   - procprobe_last_run_timestamp_seconds - completion time of the last run
type Metrics struct {
	registry *prometheus.Registry

	CallsTotal      *prometheus.CounterVec
	CallDuration    *prometheus.HistogramVec
	AttemptsTotal   *prometheus.CounterVec
	SuspectTotal    *prometheus.CounterVec
	FallbacksTotal  *prometheus.CounterVec
	FixturesCreated *prometheus.CounterVec
	LastRun         prometheus.Gauge
}

// New creates metrics on a fresh registry so repeated runs in one process
// never collide on registration.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procprobe_calls_total",
				Help: "Total number of statements tested, by outcome",
			},
			[]string{"status", "category"},
		),

		CallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "procprobe_call_duration_seconds",
				Help:    "Duration of statement execution in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
			[]string{"category"},
		),

		AttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procprobe_call_attempts_total",
				Help: "Total number of execution attempts, including retries",
			},
			[]string{"category"},
		),

		SuspectTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procprobe_suspect_failures_total",
				Help: "Failed statements whose arguments came from a heuristic fallback",
			},
			[]string{"category"},
		),

		FallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procprobe_inference_fallbacks_total",
				Help: "Total number of parameters bound through an inference fallback",
			},
			[]string{"type"},
		),

		FixturesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procprobe_fixtures_created_total",
				Help: "Total number of fixtures inserted",
			},
			[]string{"role"},
		),

		LastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "procprobe_last_run_timestamp_seconds",
				Help: "Unix time the last run completed",
			},
		),
	}
}

// Registry exposes the underlying registry for scraping or tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCall records one finished statement.
func (m *Metrics) ObserveCall(r ir.CallResult) {
	category := r.Category
	m.CallsTotal.WithLabelValues(string(r.Status), category).Inc()
	if r.Attempts > 0 {
		m.AttemptsTotal.WithLabelValues(category).Add(float64(r.Attempts))
		m.CallDuration.WithLabelValues(category).Observe(r.Elapsed.Seconds())
	}
	if r.Suspect() {
		m.SuspectTotal.WithLabelValues(category).Inc()
	}
}

// ObserveFallback records one parameter bound through a fallback.
func (m *Metrics) ObserveFallback(p ir.ParameterSpec) {
	m.FallbacksTotal.WithLabelValues(string(p.Type)).Inc()
}

// ObserveFixture records a fixture inserted by this run.
func (m *Metrics) ObserveFixture(f ir.Fixture) {
	if f.Created {
		m.FixturesCreated.WithLabelValues(string(f.Role)).Inc()
	}
}

// MarkRun sets the last-run gauge.
func (m *Metrics) MarkRun(at time.Time) {
	m.LastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes all metrics in text exposition format for the
// node_exporter textfile collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
