// Package metrics exposes Prometheus collectors for the screenshot crawler.
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
	runsTotal                  *prometheus.CounterVec
	capturesTotal              *prometheus.CounterVec
	linkFailuresTotal          *prometheus.CounterVec
	navigationDurationSeconds  *prometheus.HistogramVec
	activeRuns                 prometheus.Gauge
	jobsTotal                  *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	mirrorUploadsTotal         *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; every observer calls it.
func Init() {
	once.Do(func() {
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screencrawler_runs_total",
				Help: "Total number of crawl runs, labeled by device and final status.",
			},
			[]string{"device", "status"},
		)

		capturesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screencrawler_captures_total",
				Help: "Total number of screenshot attempts, labeled by device and outcome.",
			},
			[]string{"device", "outcome"},
		)

		linkFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screencrawler_page_failures_total",
				Help: "Total number of pages that failed, labeled by device and stage.",
			},
			[]string{"device", "stage"},
		)

		navigationDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "screencrawler_navigation_duration_seconds",
				Help:    "Histogram of page navigation latencies including the settle wait.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"device", "outcome"},
		)

		activeRuns = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "screencrawler_active_runs",
				Help: "Number of crawl runs currently in progress.",
			},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screencrawler_jobs_total",
				Help: "Total number of API jobs processed, labeled by status.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "screencrawler_active_workers",
				Help: "Number of workers consuming the job queue.",
			},
		)

		mirrorUploadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screencrawler_mirror_uploads_total",
				Help: "Total number of screenshot mirror uploads, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "screencrawler_rate_limit_delay_seconds",
				Help:    "Time spent waiting for a per-host navigation token.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"host"},
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

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// ObserveRun counts a finished run.
func ObserveRun(device, status string) {
	Init()
	runsTotal.WithLabelValues(device, status).Inc()
}

// ObserveCapture counts a screenshot attempt.
func ObserveCapture(device string, ok bool) {
	Init()
	capturesTotal.WithLabelValues(device, outcome(ok)).Inc()
}

// ObserveNavigation records how long a navigation took.
func ObserveNavigation(device string, ok bool, duration time.Duration) {
	Init()
	navigationDurationSeconds.WithLabelValues(device, outcome(ok)).Observe(duration.Seconds())
}

// ObserveLinkFailure counts a page that failed at stage.
func ObserveLinkFailure(device, stage string) {
	Init()
	linkFailuresTotal.WithLabelValues(device, stage).Inc()
}

// IncActiveRuns increments the active runs gauge.
func IncActiveRuns() {
	Init()
	activeRuns.Inc()
}

// DecActiveRuns decrements the active runs gauge.
func DecActiveRuns() {
	Init()
	activeRuns.Dec()
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	Init()
	jobsTotal.WithLabelValues(status).Inc()
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

// ObserveMirrorUpload counts an upload to the remote mirror.
func ObserveMirrorUpload(ok bool) {
	Init()
	mirrorUploadsTotal.WithLabelValues(outcome(ok)).Inc()
}

// ObserveRateLimitDelay records a wait imposed by the host limiter.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
