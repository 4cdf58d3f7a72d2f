// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "educhain"

// Mint outcomes.
const (
	MintMinted    = "minted"
	MintSubmitted = "submitted"
	MintFailed    = "failed"
	MintRejected  = "rejected"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	Logins              *prometheus.CounterVec
	Signups             prometheus.Counter
	CoursesCreated      prometheus.Counter
	Mints               *prometheus.CounterVec
	MintDuration        prometheus.Histogram
	Reconciled          *prometheus.CounterVec
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		Signups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signups_total",
			Help:      "Accounts created.",
		}),
		CoursesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "courses_created_total",
			Help:      "Courses created by issuers.",
		}),
		Mints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mints_total",
			Help:      "Certificate mint requests by outcome.",
		}, []string{"outcome"}),
		MintDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mint_duration_seconds",
			Help:      "Time from claim to recorded certificate.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		Reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_total",
			Help:      "Submitted certificates resolved by the reconciler, by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPRequestDuration,
		m.Logins,
		m.Signups,
		m.CoursesCreated,
		m.Mints,
		m.MintDuration,
		m.Reconciled,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
