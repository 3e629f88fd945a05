// Package metrics exposes Prometheus collectors for the image server.
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
	resolutionsTotal           *prometheus.CounterVec
	resolutionDurationSeconds  prometheus.Histogram
	pageFetchesTotal           *prometheus.CounterVec
	pageBytesTotal             prometheus.Counter
	pageFetchDurationSeconds   prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		resolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "image_resolutions_total",
				Help: "Total number of image lookups, labeled by outcome (strategy or error kind).",
			},
			[]string{"outcome"},
		)

		resolutionDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "image_resolution_duration_seconds",
				Help:    "Histogram of end-to-end image lookup latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		pageFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "page_fetches_total",
				Help: "Total number of successful product page fetches, labeled by status code.",
			},
			[]string{"code"},
		)

		pageBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "page_bytes_total",
				Help: "Total number of product page bytes fetched.",
			},
		)

		pageFetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "page_fetch_duration_seconds",
				Help:    "Histogram of product page fetch latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
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

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rate_limit_delay_seconds",
				Help:    "Time outbound fetches spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveResolution records one image lookup.
func ObserveResolution(outcome string, duration time.Duration) {
	Init()
	if outcome == "" {
		outcome = "unknown"
	}
	resolutionsTotal.WithLabelValues(outcome).Inc()
	resolutionDurationSeconds.Observe(duration.Seconds())
}

// ObservePageFetch records a completed product page fetch.
func ObservePageFetch(code int, bytesFetched int, duration time.Duration) {
	Init()
	pageFetchesTotal.WithLabelValues(strconv.Itoa(code)).Inc()
	if bytesFetched > 0 {
		pageBytesTotal.Add(float64(bytesFetched))
	}
	pageFetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records time spent waiting for a rate limit token.
func ObserveRateLimitDelay(host string, delay time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(delay.Seconds())
}
