// Package metrics exposes Prometheus collectors for the aggregator service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status label values shared by the counters below.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusEmpty   = "empty"
	StatusSkipped = "skipped"
)

var (
	pagesTotal                 *prometheus.CounterVec
	recordsTotal               *prometheus.CounterVec
	providerRunsTotal          *prometheus.CounterVec
	apiKeyRefreshTotal         *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repack_pages_total",
				Help: "Total number of provider pages processed, labeled by provider and status.",
			},
			[]string{"provider", "status"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repack_records_total",
				Help: "Total number of records persisted, labeled by provider and status.",
			},
			[]string{"provider", "status"},
		)

		providerRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repack_provider_runs_total",
				Help: "Total number of provider runs, labeled by provider and outcome.",
			},
			[]string{"provider", "status"},
		)

		apiKeyRefreshTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repack_apikey_refresh_total",
				Help: "Total number of shared API key refreshes, labeled by outcome.",
			},
			[]string{"status"},
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
				Name:    "repack_rate_limit_delay_seconds",
				Help:    "Histogram of politeness wait durations before outbound requests.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts one processed page task.
func ObservePage(provider, status string) {
	Init()
	pagesTotal.WithLabelValues(provider, status).Inc()
}

// ObserveRecord counts one persistence attempt.
func ObserveRecord(provider, status string) {
	Init()
	recordsTotal.WithLabelValues(provider, status).Inc()
}

// ObserveProviderRun counts one finished provider run.
func ObserveProviderRun(provider, status string) {
	Init()
	providerRunsTotal.WithLabelValues(provider, status).Inc()
}

// ObserveAPIKeyRefresh counts one shared key refresh attempt.
func ObserveAPIKeyRefresh(status string) {
	Init()
	apiKeyRefreshTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}
