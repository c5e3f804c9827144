// Package metricsvc exposes the prometheus metrics of the API.
package metricsvc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/bitacora/core/evidence"
)

type Metrics struct {
	registry *prometheus.Registry

	EligibilityChecks *prometheus.CounterVec
	Submissions       *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

var _ evidence.Observer = (*Metrics)(nil)

// New registers the metrics on their own registry, along with the go & process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		EligibilityChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bitacora_eligibility_checks_total",
				Help: "Evidence eligibility decisions",
			},
			[]string{"track", "eligible"},
		),
		Submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bitacora_evidence_submissions_total",
				Help: "Evidence submissions by category & outcome",
			},
			[]string{"category", "outcome"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bitacora_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
			},
			[]string{"method", "path", "status"},
		),
	}
}

func (m *Metrics) ObserveEligibility(track string, eligible bool) {
	m.EligibilityChecks.WithLabelValues(track, strconv.FormatBool(eligible)).Inc()
}

func (m *Metrics) ObserveSubmission(category string, outcome string) {
	m.Submissions.WithLabelValues(category, outcome).Inc()
}

func (m *Metrics) ObserveHTTPRequest(method, path string, status int, d time.Duration) {
	m.HTTPDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(d.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
