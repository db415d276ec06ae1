// Package metrics exposes Prometheus instruments for provider routing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Attempt outcomes.
const (
	OutcomeSuccess    = "success"
	OutcomeError      = "error"
	OutcomeParseError = "parse_error"
	OutcomeTimeout    = "timeout"
	OutcomeCanceled   = "canceled"
)

// Collector records router activity. A nil *Collector is valid and records nothing.
type Collector struct {
	attempts      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	fallbacks     *prometheus.CounterVec
	exhausted     *prometheus.CounterVec
	requestCounts *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// NewCollector registers the router instruments on reg under namespace.
func NewCollector(namespace string, reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_attempts_total",
				Help:      "Provider attempts by outcome.",
			},
			[]string{"provider", "task", "outcome"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_attempt_duration_seconds",
				Help:      "Provider attempt latency in seconds.",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "task"},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Generations served by a provider other than the preferred one.",
			},
			[]string{"task", "provider"},
		),
		exhausted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chain_exhausted_total",
				Help:      "Generations where every candidate provider failed.",
			},
			[]string{"task"},
		),
		requestCounts: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_daily_requests",
				Help:      "Successful requests per provider in the current 24h window.",
			},
			[]string{"provider"},
		),
		gatherer: reg,
	}
}

// RecordAttempt records one provider attempt.
func (c *Collector) RecordAttempt(provider, task, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.attempts.WithLabelValues(provider, task, outcome).Inc()
	c.latency.WithLabelValues(provider, task).Observe(d.Seconds())
}

// RecordFallback records a success served by a non-preferred provider.
func (c *Collector) RecordFallback(task, provider string) {
	if c == nil {
		return
	}
	c.fallbacks.WithLabelValues(task, provider).Inc()
}

// RecordExhausted records a generation that failed on every candidate.
func (c *Collector) RecordExhausted(task string) {
	if c == nil {
		return
	}
	c.exhausted.WithLabelValues(task).Inc()
}

// SetDailyRequests publishes the current rate-tracker count for provider.
func (c *Collector) SetDailyRequests(provider string, n int64) {
	if c == nil {
		return
	}
	c.requestCounts.WithLabelValues(provider).Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
