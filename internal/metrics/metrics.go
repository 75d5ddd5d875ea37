// Package metrics exposes PRRE's provider request/latency/breaker-state
// counters as Prometheus collectors, scraped by an operator's own
// Prometheus instance rather than hand-rolled text exposition.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/GhostKellz/zeke-sub004/internal/breaker"
	"github.com/GhostKellz/zeke-sub004/internal/provider"
)

// Recorder holds the Prometheus collectors PRRE updates as requests,
// retries, and breaker transitions occur.
type Recorder struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
	providerHealthy *prometheus.GaugeVec
}

// NewRecorder registers PRRE's collectors against the default registry.
func NewRecorder() *Recorder {
	return &Recorder{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prred_provider_requests_total",
				Help: "Total provider requests attempted, by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prred_provider_request_duration_seconds",
				Help:    "Provider request latency in seconds, by provider.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		retriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prred_provider_retries_total",
				Help: "Total retry attempts issued, by provider and error kind.",
			},
			[]string{"provider", "kind"},
		),
		breakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "prred_circuit_breaker_state",
				Help: "Current circuit breaker state per provider (0=closed, 1=open, 2=half_open).",
			},
			[]string{"provider"},
		),
		providerHealthy: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "prred_provider_healthy",
				Help: "Whether HealthTracker currently considers the provider healthy (1) or not (0).",
			},
			[]string{"provider"},
		),
	}
}

// RecordRequest records one completed attempt's outcome and latency.
func (r *Recorder) RecordRequest(p provider.Provider, success bool, seconds float64) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	r.requestsTotal.WithLabelValues(p.String(), outcome).Inc()
	r.requestDuration.WithLabelValues(p.String()).Observe(seconds)
}

// RecordRetry records one retry attempt for a given error kind.
func (r *Recorder) RecordRetry(p provider.Provider, kind provider.ErrorKind) {
	r.retriesTotal.WithLabelValues(p.String(), kind.String()).Inc()
}

// SetBreakerState publishes the breaker state as a small integer gauge,
// matching the State enum's own ordering.
func (r *Recorder) SetBreakerState(p provider.Provider, state breaker.State) {
	r.breakerState.WithLabelValues(p.String()).Set(float64(state))
}

// SetHealthy publishes HealthTracker's current healthy/unhealthy gauge.
func (r *Recorder) SetHealthy(p provider.Provider, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	r.providerHealthy.WithLabelValues(p.String()).Set(v)
}
