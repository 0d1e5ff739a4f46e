package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "corridor",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "corridor",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "corridor",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Analysis metrics
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "corridor",
		Subsystem: "analysis",
		Name:      "runs_total",
		Help:      "Total corridor analyses run",
	}, []string{"trigger", "status"})

	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "corridor",
		Subsystem: "analysis",
		Name:      "duration_seconds",
		Help:      "Corridor analysis latency in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"trigger"})

	AnalysisMatches = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "corridor",
		Subsystem: "analysis",
		Name:      "matches",
		Help:      "Matches returned per analysis",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	// Index metrics
	IndexEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "corridor",
		Subsystem: "index",
		Name:      "entries",
		Help:      "Current number of indexed entries",
	})

	EntriesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "corridor",
		Subsystem: "index",
		Name:      "entries_ingested_total",
		Help:      "Total entries written to the canonical store",
	}, []string{"source"})

	IndexSyncOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "corridor",
		Subsystem: "index",
		Name:      "sync_ops_total",
		Help:      "Index mutations applied by the event consumer",
	}, []string{"op"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "corridor",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "corridor",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "corridor",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "corridor",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "corridor",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "corridor",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// ObserveAnalysis records one analysis run.
func ObserveAnalysis(trigger string, duration time.Duration, matches int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	AnalysesTotal.WithLabelValues(trigger, status).Inc()
	if err == nil {
		AnalysisDuration.WithLabelValues(trigger).Observe(duration.Seconds())
		AnalysisMatches.Observe(float64(matches))
	}
}

// UpdateDBPoolMetrics updates database pool metrics from pgx pool stats.
func UpdateDBPoolMetrics(stat interface{}) {
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}
