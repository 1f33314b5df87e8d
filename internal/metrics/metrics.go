// Package metrics exposes Prometheus collectors for the catalog crawler.
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

var (
	crawlerProductsTotal          *prometheus.CounterVec
	crawlerPagesTotal             *prometheus.CounterVec
	crawlerDiscoveryAttemptsTotal *prometheus.CounterVec
	crawlerLinksDroppedTotal      prometheus.Counter
	crawlerFetchesTotal           *prometheus.CounterVec
	crawlerChunkDurationSeconds   prometheus.Histogram
	crawlerRunsTotal              *prometheus.CounterVec
	crawlerActivePages            prometheus.Gauge
	crawlerRateLimitDelaySeconds  *prometheus.HistogramVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerProductsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_products_total",
				Help: "Products processed, labeled by outcome (stored, skipped, failed).",
			},
			[]string{"status"},
		)

		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_listing_pages_total",
				Help: "Listing pages processed, labeled by outcome (processed, abandoned).",
			},
			[]string{"status"},
		)

		crawlerDiscoveryAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_discovery_attempts_total",
				Help: "Link discovery attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerLinksDroppedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_links_dropped_total",
				Help: "Discovered product links dropped because the validation probe failed.",
			},
		)

		crawlerFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetches_total",
				Help: "HTTP page fetches, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		crawlerChunkDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_chunk_duration_seconds",
				Help:    "Wall time to process one chunk of listing pages.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		crawlerRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_runs_total",
				Help: "Crawl runs, labeled by terminal status.",
			},
			[]string{"status"},
		)

		crawlerActivePages = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_pages",
				Help: "Listing pages currently in flight.",
			},
		)

		crawlerRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"site"},
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

// ObserveProduct counts one product outcome.
func ObserveProduct(status string) {
	Init()
	crawlerProductsTotal.WithLabelValues(status).Inc()
}

// ObservePage counts one listing page outcome.
func ObservePage(status string) {
	Init()
	crawlerPagesTotal.WithLabelValues(status).Inc()
}

// ObserveDiscoveryAttempt counts a discovery attempt outcome.
func ObserveDiscoveryAttempt(outcome string) {
	Init()
	crawlerDiscoveryAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveLinkDropped counts a link that failed validation.
func ObserveLinkDropped() {
	Init()
	crawlerLinksDroppedTotal.Inc()
}

// ObserveFetch counts an HTTP fetch for the given URL.
func ObserveFetch(rawURL string, status string) {
	Init()
	crawlerFetchesTotal.WithLabelValues(SanitizeSite(rawURL), status).Inc()
}

// ObserveChunk records how long a chunk took.
func ObserveChunk(duration time.Duration) {
	Init()
	crawlerChunkDurationSeconds.Observe(duration.Seconds())
}

// ObserveRun counts a finished crawl run.
func ObserveRun(status string) {
	Init()
	crawlerRunsTotal.WithLabelValues(status).Inc()
}

// IncActivePages increments the in-flight page gauge.
func IncActivePages() {
	Init()
	crawlerActivePages.Inc()
}

// DecActivePages decrements the in-flight page gauge.
func DecActivePages() {
	Init()
	crawlerActivePages.Dec()
}

// ObserveRateLimitDelay records time blocked on the rate limiter for a host.
func ObserveRateLimitDelay(site string, d time.Duration) {
	Init()
	crawlerRateLimitDelaySeconds.WithLabelValues(site).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
