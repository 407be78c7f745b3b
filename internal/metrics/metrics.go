// Package metrics exposes harness latencies and outcomes as Prometheus
// collectors.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/example/go-ort-harness/internal/inference"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the harness collectors. It implements inference.Observer.
type Metrics struct {
	// InferenceLatencySeconds covers the session call only.
	InferenceLatencySeconds prometheus.Histogram
	InferenceRequestsTotal  *prometheus.CounterVec
	WarmupLatencySeconds    prometheus.Histogram
	WarmupFailuresTotal     prometheus.Counter
	// HealthStatus is 1 when a session is loaded and serving, 0 otherwise.
	HealthStatus prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		InferenceLatencySeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "inference_latency_seconds",
			Help:    "Histogram of inference latency (seconds) measured around the session call.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		InferenceRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inference_requests_total",
			Help: "Count of inference calls by outcome.",
		}, []string{"outcome"}),
		WarmupLatencySeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "warmup_latency_seconds",
			Help:    "Histogram of warm-up (cold call) latency in seconds.",
			Buckets: []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		WarmupFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "warmup_failures_total",
			Help: "Count of warm-up runs that did not complete.",
		}),
		HealthStatus: factory.NewGauge(prometheus.GaugeOpts{
			Name: "health_status",
			Help: "Health status of the service (1 = healthy, 0 = unhealthy).",
		}),
	}
}

// ObserveInference records latency only for calls that reached the runtime.
func (m *Metrics) ObserveInference(elapsed time.Duration, err error) {
	if err != nil {
		m.InferenceRequestsTotal.WithLabelValues(OutcomeError).Inc()
		var execErr *inference.InferenceExecutionError
		if errors.As(err, &execErr) && execErr.Stage == inference.StageBind {
			return
		}
	} else {
		m.InferenceRequestsTotal.WithLabelValues(OutcomeOK).Inc()
	}
	m.InferenceLatencySeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveWarmup(elapsed time.Duration, err error) {
	if err != nil {
		m.WarmupFailuresTotal.Inc()
		return
	}
	m.WarmupLatencySeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) SetHealthy() {
	m.HealthStatus.Set(1)
}

func (m *Metrics) SetUnhealthy() {
	m.HealthStatus.Set(0)
}

var _ inference.Observer = (*Metrics)(nil)
