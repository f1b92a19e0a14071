// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Explorer metrics
	PagesFetched      prometheus.Counter
	FetchErrors       *prometheus.CounterVec
	FetchLatency      prometheus.Histogram
	PriceQueryLatency prometheus.Histogram

	// Ingestion metrics
	RecordsIngested   prometheus.Counter
	DuplicatesSkipped prometheus.Counter
	WalkStops         *prometheus.CounterVec
	LedgerSize        prometheus.Gauge

	// Ranking metrics
	RankedWallets   prometheus.Gauge
	CategoryRecords *prometheus.GaugeVec
	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	RefreshRejected prometheus.Counter
	PublishFailures *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// HTTP transport metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	WSClients           prometheus.Gauge

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "netbuy_ranker"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		PagesFetched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "explorer",
			Name:      "pages_fetched_total",
			Help:      "Total number of transfer pages fetched",
		}),
		FetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "explorer",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed page fetches by kind",
		}, []string{"kind"}),
		FetchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "explorer",
			Name:      "fetch_latency_seconds",
			Help:      "Explorer page fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		PriceQueryLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "query_latency_seconds",
			Help:      "Price API query latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		RecordsIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "records_ingested_total",
			Help:      "Total number of new transfer records committed to the ledger",
		}),
		DuplicatesSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "duplicates_skipped_total",
			Help:      "Total number of records skipped because their id was already seen",
		}),
		WalkStops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "walk_stops_total",
			Help:      "Total number of completed walks by stop reason",
		}, []string{"reason"}),
		LedgerSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "ledger_size",
			Help:      "Number of records in the ledger after the last run",
		}),

		RankedWallets: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "ranked_wallets",
			Help:      "Number of wallets in the last ranking",
		}),
		CategoryRecords: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "category_records",
			Help:      "Number of ledger records per category in the last ranking pass",
		}, []string{"category"}),
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "runs_total",
			Help:      "Total number of ingestion and ranking runs by status",
		}, []string{"status"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "run_duration_seconds",
			Help:      "Ingestion and ranking run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		RefreshRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "refresh_rejected_total",
			Help:      "Total number of refresh requests rejected by the cooldown",
		}),
		PublishFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "publish_failures_total",
			Help:      "Total number of failed snapshot mirror or publish attempts",
		}, []string{"target"}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		WSClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "websocket_clients",
			Help:      "Number of connected websocket clients",
		}),

		LastSuccessfulRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful ingestion and ranking run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordPageFetch records one explorer page request.
// kind is empty on success, otherwise a short failure class ("status", "decode", "transport").
func RecordPageFetch(kind string, elapsed time.Duration) {
	DefaultMetrics.FetchLatency.Observe(elapsed.Seconds())
	if kind == "" {
		DefaultMetrics.PagesFetched.Inc()
		return
	}
	DefaultMetrics.FetchErrors.WithLabelValues(kind).Inc()
}

// RecordPriceQuery records price API latency.
func RecordPriceQuery(elapsed time.Duration) {
	DefaultMetrics.PriceQueryLatency.Observe(elapsed.Seconds())
}

// RecordWalk records the outcome of one committed walk.
func RecordWalk(reason string, ingested, duplicates int, ledgerSize int) {
	DefaultMetrics.WalkStops.WithLabelValues(reason).Inc()
	DefaultMetrics.RecordsIngested.Add(float64(ingested))
	DefaultMetrics.DuplicatesSkipped.Add(float64(duplicates))
	DefaultMetrics.LedgerSize.Set(float64(ledgerSize))
}

// RecordRanking updates ranking gauges after an aggregation pass.
func RecordRanking(wallets int, categoryCounts map[string]int) {
	DefaultMetrics.RankedWallets.Set(float64(wallets))
	for category, n := range categoryCounts {
		DefaultMetrics.CategoryRecords.WithLabelValues(category).Set(float64(n))
	}
}

// RecordRun records a finished run.
func RecordRun(status string, elapsed time.Duration) {
	DefaultMetrics.RunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.RunDuration.Observe(elapsed.Seconds())
	if status == "success" {
		DefaultMetrics.LastSuccessfulRun.SetToCurrentTime()
	}
}

// RecordRefreshRejected increments the cooldown rejection counter.
func RecordRefreshRejected() {
	DefaultMetrics.RefreshRejected.Inc()
}

// RecordPublishFailure records a failed mirror or publish attempt.
func RecordPublishFailure(target string) {
	DefaultMetrics.PublishFailures.WithLabelValues(target).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, start time.Time, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(route string, code int, elapsed time.Duration) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	DefaultMetrics.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// SetWSClients updates the connected websocket clients gauge.
func SetWSClients(n int) {
	DefaultMetrics.WSClients.Set(float64(n))
}
