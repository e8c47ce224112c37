// Package metrics exposes Prometheus collectors for session discovery and
// backend queries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Refresh outcomes.
const (
	OutcomeAuthenticated   = "authenticated"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeFailed          = "failed"
	OutcomeStale           = "stale"
	OutcomeCancelled       = "cancelled"
)

// Query outcomes.
const (
	OutcomeOK             = "ok"
	OutcomeNotConfigured  = "not_configured"
	OutcomeEndpointError  = "endpoint_error"
	OutcomeTransportError = "transport_error"
)

// Collectors groups every appbridge metric. A nil *Collectors is valid and
// records nothing.
type Collectors struct {
	refreshTotal    *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	queryTotal      *prometheus.CounterVec
	queryDuration   prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appbridge",
			Subsystem: "session",
			Name:      "refresh_total",
			Help:      "Session discovery calls by outcome.",
		}, []string{"outcome"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "appbridge",
			Subsystem: "session",
			Name:      "refresh_duration_seconds",
			Help:      "Latency of session discovery calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		queryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appbridge",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Query endpoint requests by outcome.",
		}, []string{"outcome"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "appbridge",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Latency of query endpoint requests that reached the network.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	for _, col := range []prometheus.Collector{c.refreshTotal, c.refreshDuration, c.queryTotal, c.queryDuration} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RefreshCompleted records one settled session discovery call.
func (c *Collectors) RefreshCompleted(outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.refreshTotal.WithLabelValues(outcome).Inc()
	if outcome != OutcomeStale && outcome != OutcomeCancelled {
		c.refreshDuration.Observe(elapsed.Seconds())
	}
}

// QueryCompleted records one query request. Requests rejected before any
// network activity do not contribute to the latency histogram.
func (c *Collectors) QueryCompleted(outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.queryTotal.WithLabelValues(outcome).Inc()
	if outcome != OutcomeNotConfigured {
		c.queryDuration.Observe(elapsed.Seconds())
	}
}
