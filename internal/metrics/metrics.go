// Package metrics exposes rate limiter decisions to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
)

// LimiterMetrics holds the registry and collectors for the limiter.
type LimiterMetrics struct {
	reg       *prometheus.Registry
	handler   http.Handler
	decisions *prometheus.CounterVec
	fallbacks prometheus.Counter
	published *prometheus.CounterVec
}

// New returns a fresh registry with the standard Go and process collectors
// plus the limiter collectors.
func New() *LimiterMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &LimiterMetrics{
		reg: reg,
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Total admission decisions by outcome",
		}, []string{"outcome"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_fallbacks_total",
			Help: "Total checks decided locally because the remote backend failed",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_denied_events_total",
			Help: "Denied events handed to the publisher by result",
		}, []string{"result"}),
	}

	reg.MustRegister(m.decisions, m.fallbacks, m.published)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})

	return m
}

// ObserveDecision counts one admission decision.
func (m *LimiterMetrics) ObserveDecision(allowed bool) {
	outcome := OutcomeDenied
	if allowed {
		outcome = OutcomeAllowed
	}

	m.decisions.WithLabelValues(outcome).Inc()
}

// ObserveFallback counts one fail-open to the local limiter.
func (m *LimiterMetrics) ObserveFallback(_ error) {
	m.fallbacks.Inc()
}

// ObservePublish counts one denied event publish attempt.
func (m *LimiterMetrics) ObservePublish(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	m.published.WithLabelValues(result).Inc()
}

// TrackKeys registers a gauge reporting the number of keys held in memory.
func (m *LimiterMetrics) TrackKeys(count func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ratelimit_tracked_keys",
		Help: "Distinct keys currently held by the in-memory limiter",
	}, func() float64 {
		return float64(count())
	}))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *LimiterMetrics) Handler() http.Handler {
	return m.handler
}

// Registry returns the underlying registry.
func (m *LimiterMetrics) Registry() *prometheus.Registry {
	return m.reg
}
