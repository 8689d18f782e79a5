// Package metrics holds the Prometheus collectors for the API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the HTTP collectors so middleware gets one handle.
type Metrics struct {
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
	queryDuration    *prometheus.HistogramVec
}

// New creates and registers the collectors on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batchtrack_http_request_duration_seconds",
			Help:    "HTTP request latency by method, route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		requestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "batchtrack_http_requests_in_flight",
			Help: "Requests currently being served.",
		}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batchtrack_db_query_duration_seconds",
			Help:    "Database query latency by label.",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"query"}),
	}
	reg.MustRegister(m.requestDuration, m.requestsInFlight, m.queryDuration)
	return m
}

// RecordHTTPRequest records one finished request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.requestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// IncrementInFlight / DecrementInFlight track concurrent requests.
func (m *Metrics) IncrementInFlight() { m.requestsInFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.requestsInFlight.Dec() }

// TimeQuery measures a named database call. Use it around the slow ones,
// not every single Scan. Safe on a nil receiver so handlers don't need a
// registry wired up in tests.
func (m *Metrics) TimeQuery(name string, start time.Time) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}
