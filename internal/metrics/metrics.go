// Package metrics exposes Prometheus collectors for the harvester service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/newsgrid/harvester/internal/pipeline"
)

var (
	articlesProcessedTotal     *prometheus.CounterVec
	articlesSkippedTotal       prometheus.Counter
	articleProcessingSeconds   *prometheus.HistogramVec
	queueDepth                 *prometheus.GaugeVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		articlesProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_articles_processed_total",
				Help: "Total number of articles processed, labeled by status and fetch method.",
			},
			[]string{"status", "method"},
		)

		articlesSkippedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_articles_skipped_total",
				Help: "Total number of work items skipped because a successful record already existed.",
			},
		)

		articleProcessingSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_article_processing_seconds",
				Help:    "Histogram of per-article processing time, labeled by fetch method.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method"},
		)

		queueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harvester_queue_depth",
				Help: "Number of work items waiting, labeled by priority lane.",
			},
			[]string{"lane"},
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
	return promhttp.Handler()
}

// ObserveArticle records one processed article.
func ObserveArticle(status pipeline.Status, method pipeline.Method, elapsed time.Duration) {
	articlesProcessedTotal.WithLabelValues(string(status), string(method)).Inc()
	articleProcessingSeconds.WithLabelValues(string(method)).Observe(elapsed.Seconds())
}

// ObserveSkip records a work item skipped by deduplication.
func ObserveSkip() {
	articlesSkippedTotal.Inc()
}

// SetQueueDepth records the current depth of a priority lane.
func SetQueueDepth(lane pipeline.Priority, depth int64) {
	queueDepth.WithLabelValues(string(lane)).Set(float64(depth))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
