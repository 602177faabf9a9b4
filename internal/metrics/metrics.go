// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchBytesTotal            prometheus.Counter
	fetchRetriesTotal          prometheus.Counter
	problemsTotal              *prometheus.CounterVec
	batchesTotal               *prometheus.CounterVec
	subjectsTotal              *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	pacingDelaySeconds         prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; every Observe helper calls it.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fipibank_fetch_attempts_total",
				Help: "Total number of logical fetches, labeled by final outcome.",
			},
			[]string{"outcome"},
		)

		fetchBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fipibank_fetch_bytes_total",
				Help: "Total number of body bytes fetched from the bank.",
			},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fipibank_fetch_retries_total",
				Help: "Total number of retries caused by transient fetch failures.",
			},
		)

		problemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fipibank_problems_total",
				Help: "Problems handed to the store, labeled by gia type and outcome.",
			},
			[]string{"gia_type", "outcome"},
		)

		batchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fipibank_batches_total",
				Help: "Subject batches persisted, labeled by status.",
			},
			[]string{"status"},
		)

		subjectsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fipibank_subjects_total",
				Help: "Subjects processed, labeled by gia type and status.",
			},
			[]string{"gia_type", "status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fipibank_active_workers",
				Help: "Number of subject workers currently running.",
			},
		)

		pacingDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fipibank_pacing_delay_seconds",
				Help:    "Histogram of pauses inserted between bank requests.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFetch records the outcome of one logical fetch.
func ObserveFetch(outcome string, bytesFetched int) {
	Init()
	fetchAttemptsTotal.WithLabelValues(outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.Add(float64(bytesFetched))
	}
}

// ObserveFetchRetry counts one retry.
func ObserveFetchRetry() {
	Init()
	fetchRetriesTotal.Inc()
}

// ObserveProblems records how many problems a batch inserted and skipped.
func ObserveProblems(giaType string, inserted, skipped int) {
	Init()
	if inserted > 0 {
		problemsTotal.WithLabelValues(giaType, "inserted").Add(float64(inserted))
	}
	if skipped > 0 {
		problemsTotal.WithLabelValues(giaType, "skipped").Add(float64(skipped))
	}
}

// ObserveBatch increments the batch counter for the given status.
func ObserveBatch(status string) {
	Init()
	batchesTotal.WithLabelValues(status).Inc()
}

// ObserveSubject increments the subject counter.
func ObserveSubject(giaType, status string) {
	Init()
	subjectsTotal.WithLabelValues(giaType, status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObservePacingDelay records a pause between requests.
func ObservePacingDelay(duration time.Duration) {
	Init()
	pacingDelaySeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
