// Package metrics exposes Prometheus collectors for the indexer service.
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

// Page kinds recorded by ObservePage.
const (
	KindPage     = "page"
	KindResource = "resource"
)

var (
	crawlerPagesTotal          *prometheus.CounterVec
	crawlerBytesTotal          *prometheus.CounterVec
	crawlerFetchFailuresTotal  *prometheus.CounterVec
	crawlerArchiveFailures     *prometheus.CounterVec
	crawlerFetchDuration       *prometheus.HistogramVec
	indexerSitesTotal          *prometheus.CounterVec
	indexerJobsTotal           *prometheus.CounterVec
	indexerIndexingActive      prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of page records written, labeled by site and kind.",
			},
			[]string{"site", "kind"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of content bytes stored, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerFetchFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetch_failures_total",
				Help: "Total number of skipped URLs, labeled by site and reason.",
			},
			[]string{"site", "reason"},
		)

		crawlerArchiveFailures = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_archive_failures_total",
				Help: "Total number of page bodies that could not be archived, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerFetchDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by HTTP method.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"method"},
		)

		indexerSitesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_sites_total",
				Help: "Total number of site status transitions, labeled by status.",
			},
			[]string{"status"},
		)

		indexerJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_jobs_total",
				Help: "Total number of indexing jobs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		indexerIndexingActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexer_indexing_active",
				Help: "1 while an indexing job is running.",
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
	Init()
	return promhttp.Handler()
}

// ObservePage counts a stored page record.
func ObservePage(site, kind string, contentBytes int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitizedSite, kind).Inc()
	if contentBytes > 0 {
		crawlerBytesTotal.WithLabelValues(sanitizedSite).Add(float64(contentBytes))
	}
}

// ObserveFetchFailure counts a URL skipped during a crawl.
func ObserveFetchFailure(site, reason string) {
	Init()
	crawlerFetchFailuresTotal.WithLabelValues(SanitizeSite(site), reason).Inc()
}

// ObserveArchiveFailure counts a page body the archive rejected.
func ObserveArchiveFailure(site string) {
	Init()
	crawlerArchiveFailures.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveFetch records the latency of one fetch.
func ObserveFetch(method string, duration time.Duration) {
	Init()
	crawlerFetchDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveSiteStatus counts a site status transition.
func ObserveSiteStatus(status string) {
	Init()
	indexerSitesTotal.WithLabelValues(status).Inc()
}

// ObserveJob counts a finished indexing job.
func ObserveJob(outcome string) {
	Init()
	indexerJobsTotal.WithLabelValues(outcome).Inc()
}

// SetIndexing flips the indexing gauge.
func SetIndexing(active bool) {
	Init()
	if active {
		indexerIndexingActive.Set(1)
		return
	}
	indexerIndexingActive.Set(0)
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
