package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce              sync.Once
	httpRequestsTotal         *prometheus.CounterVec
	httpLatencySeconds        *prometheus.HistogramVec
	httpErrorsTotal           *prometheus.CounterVec
	aggregationFailuresTotal  *prometheus.CounterVec
	ledgerWritesTotal         *prometheus.CounterVec
	leaderboardCacheLookups   *prometheus.CounterVec
	ledgerStreamClientsActive prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		aggregationFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_aggregation_failures_total",
			Help: "Balance calculations that degraded to zero after a query failure.",
		}, []string{"calculator"})

		ledgerWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_writes_total",
			Help: "Ledger entries appended or rolled back.",
		}, []string{"kind"})

		leaderboardCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leaderboard_cache_lookups_total",
			Help: "Leaderboard cache lookups by result.",
		}, []string{"result"})

		ledgerStreamClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_stream_clients_active",
			Help: "Open ledger event stream connections.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			aggregationFailuresTotal,
			ledgerWritesTotal,
			leaderboardCacheLookups,
			ledgerStreamClientsActive,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// AggregationFailures counts degraded balance calculations per calculator.
func AggregationFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return aggregationFailuresTotal
}

// LedgerWrites counts ledger appends and rollbacks.
func LedgerWrites() *prometheus.CounterVec {
	RegisterMetrics()
	return ledgerWritesTotal
}

// LeaderboardCacheLookups counts leaderboard cache hits and misses.
func LeaderboardCacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return leaderboardCacheLookups
}

// LedgerStreamClients tracks open websocket streams.
func LedgerStreamClients() prometheus.Gauge {
	RegisterMetrics()
	return ledgerStreamClientsActive
}

// MetricsHandler exposes the Prometheus scrape endpoint via Fiber.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}
