// Package metrics defines the prometheus collectors for the service and the
// scrape endpoint handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var requestDurationBuckets = []float64{
	0.001, 0.002, 0.005,
	0.01, 0.025, 0.05,
	0.1, 0.25, 0.5,
	1, 2, 5, 10, 15, 20, 30,
}

var dbDurationBuckets = []float64{
	0.001, 0.002, 0.005,
	0.01, 0.025, 0.05,
	0.1, 0.25, 0.5,
	1, 2, 5, 10,
}

var contentSizeBuckets = []float64{
	1_000, 2_500, 5_000, 7_500,
	10_000, 25_000, 50_000, 75_000,
	100_000, 250_000, 500_000, 750_000,
	1_000_000, 2_500_000, 5_000_000, 7_500_000, 10_000_000,
}

// HTTP handler metrics.
var (
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bytebin_request_duration_seconds",
		Help:    "The duration to handle requests",
		Buckets: requestDurationBuckets,
	}, []string{"method"})

	RequestsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bytebin_requests_active",
		Help: "The amount of active in-flight requests",
	}, []string{"method"})

	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bytebin_requests_total",
		Help: "The amount of requests handled",
	}, []string{"method", "useragent"})

	RejectedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bytebin_rejected_requests_total",
		Help: "The amount of rejected requests",
	}, []string{"method", "reason", "useragent"})

	ContentSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bytebin_content_size_bytes",
		Help:    "The size of posted content",
		Buckets: contentSizeBuckets,
	}, []string{"useragent"})

	UncaughtErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bytebin_uncaught_errors_total",
		Help: "Counts the number of uncaught errors",
	}, []string{"type"})
)

// Content index metrics.
var (
	StoredContentCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bytebin_content",
		Help: "The number of stored content items",
	}, []string{"type", "backend"})

	StoredContentSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bytebin_content_size",
		Help: "The size (bytes) of stored content",
	}, []string{"type", "backend"})

	DBTransactionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bytebin_db_transaction_duration_seconds",
		Help:    "The duration to query the db",
		Buckets: dbDurationBuckets,
	}, []string{"operation"})

	DBErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bytebin_db_error_total",
		Help: "Counts the number of errors that have occurred when interacting with the index database",
	}, []string{"operation"})
)

// Storage backend metrics.
var (
	BackendReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bytebin_backend_read_total",
		Help: "Counts the number of cache-misses when loading content",
	}, []string{"backend"})

	BackendWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bytebin_backend_write_total",
		Help: "Counts the number of times content was written to the backend",
	}, []string{"backend"})

	BackendDeletes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bytebin_backend_delete_total",
		Help: "Counts the number of times content was deleted from the backend",
	}, []string{"backend"})

	BackendReadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bytebin_backend_read_duration_seconds",
		Help:    "The duration to read from the backend",
		Buckets: dbDurationBuckets,
	}, []string{"backend"})

	BackendWriteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bytebin_backend_write_duration_seconds",
		Help:    "The duration to write to the backend",
		Buckets: dbDurationBuckets,
	}, []string{"backend"})
)

// Label resolves the metrics label for a request: the Origin header if
// present, then the User-Agent, then "unknown".
func Label(req *http.Request) string {
	if origin := req.Header.Get("Origin"); origin != "" {
		return origin
	}
	if ua := req.Header.Get("User-Agent"); ua != "" {
		return ua
	}
	return "unknown"
}

// RecordRequest counts a handled request.
func RecordRequest(method string, req *http.Request) {
	Requests.WithLabelValues(method, Label(req)).Inc()
}

// RecordRejectedRequest counts a rejected request with a reason.
func RecordRejectedRequest(method, reason string, req *http.Request) {
	RejectedRequests.WithLabelValues(method, reason, Label(req)).Inc()
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
