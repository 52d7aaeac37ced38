// Package metrics exposes Prometheus collectors for the crawler service.
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
	crawlsTotal                   *prometheus.CounterVec
	crawlDurationSeconds          prometheus.Histogram
	recordsFoundTotal             prometheus.Counter
	recordsSavedTotal             prometheus.Counter
	sourceFetchTotal              *prometheus.CounterVec
	sourceFetchDurationSeconds    *prometheus.HistogramVec
	sourceRecordsTotal            *prometheus.CounterVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	crawlerActiveWorkers          prometheus.Gauge
	poolSlotsInUse                prometheus.Gauge
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "litcrawler_crawls_total",
				Help: "Total number of crawls, labeled by outcome.",
			},
			[]string{"status"},
		)

		crawlDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "litcrawler_crawl_duration_seconds",
				Help:    "Histogram of end-to-end crawl durations.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
		)

		recordsFoundTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "litcrawler_records_found_total",
				Help: "Total number of records returned by sources before deduplication.",
			},
		)

		recordsSavedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "litcrawler_records_saved_total",
				Help: "Total number of records persisted.",
			},
		)

		sourceFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "litcrawler_source_fetch_total",
				Help: "Total number of adapter fetches, labeled by source and status.",
			},
			[]string{"source", "status"},
		)

		sourceFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "litcrawler_source_fetch_duration_seconds",
				Help:    "Histogram of adapter fetch latencies, labeled by source.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"source"},
		)

		sourceRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "litcrawler_source_records_total",
				Help: "Total number of records yielded, labeled by source.",
			},
			[]string{"source"},
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

		crawlerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "litcrawler_active_workers",
				Help: "Number of task workers currently running a crawl.",
			},
		)

		poolSlotsInUse = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "litcrawler_pool_slots_in_use",
				Help: "Adapter calls currently holding a fan-out pool slot.",
			},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "litcrawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
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

// ObserveCrawl records one finished crawl.
func ObserveCrawl(status string, found, saved int, duration time.Duration) {
	Init()
	crawlsTotal.WithLabelValues(status).Inc()
	crawlDurationSeconds.Observe(duration.Seconds())
	if found > 0 {
		recordsFoundTotal.Add(float64(found))
	}
	if saved > 0 {
		recordsSavedTotal.Add(float64(saved))
	}
}

// ObserveSourceFetch records one adapter call.
func ObserveSourceFetch(source, status string, records int, duration time.Duration) {
	Init()
	sourceFetchTotal.WithLabelValues(source, status).Inc()
	sourceFetchDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
	if records > 0 {
		sourceRecordsTotal.WithLabelValues(source).Add(float64(records))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	crawlerActiveWorkers.Dec()
}

// IncPoolInUse increments the fan-out pool gauge.
func IncPoolInUse() {
	Init()
	poolSlotsInUse.Inc()
}

// DecPoolInUse decrements the fan-out pool gauge.
func DecPoolInUse() {
	Init()
	poolSlotsInUse.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}
