// Package metrics exposes Prometheus counters for the asset service.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the service metrics. Each Collector owns its own
// registry so tests can construct collectors independently.
type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	uploadsTotal     *prometheus.CounterVec
	uploadBytesTotal prometheus.Counter
	dedupHitsTotal   *prometheus.CounterVec
	usageOpsTotal    *prometheus.CounterVec
	sessionsExpired  prometheus.Counter
	assetsStored     prometheus.Gauge
}

func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loft_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	c.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loft_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
	c.uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loft_uploads_total",
			Help: "Completed uploads by transfer tier and outcome",
		},
		[]string{"tier", "outcome"},
	)
	c.uploadBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loft_upload_bytes_total",
			Help: "Total payload bytes accepted into storage",
		},
	)
	c.dedupHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loft_dedup_hits_total",
			Help: "Duplicate lookups that found an existing asset, by match kind",
		},
		[]string{"kind"},
	)
	c.usageOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loft_usage_operations_total",
			Help: "Usage ledger attach and detach operations",
		},
		[]string{"op"},
	)
	c.sessionsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loft_upload_sessions_expired_total",
			Help: "Chunked upload sessions removed by the expiry sweeper",
		},
	)
	c.assetsStored = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loft_assets_stored",
			Help: "Number of assets currently in the catalog",
		},
	)

	c.registry.MustRegister(
		c.httpRequestsTotal,
		c.httpRequestDuration,
		c.uploadsTotal,
		c.uploadBytesTotal,
		c.dedupHitsTotal,
		c.usageOpsTotal,
		c.sessionsExpired,
		c.assetsStored,
	)
	return c
}

func (c *Collector) RecordUpload(tier, outcome string, bytes int64) {
	c.uploadsTotal.WithLabelValues(tier, outcome).Inc()
	if bytes > 0 {
		c.uploadBytesTotal.Add(float64(bytes))
	}
}

func (c *Collector) RecordDedupHit(kind string)  { c.dedupHitsTotal.WithLabelValues(kind).Inc() }
func (c *Collector) RecordUsageOp(op string)     { c.usageOpsTotal.WithLabelValues(op).Inc() }
func (c *Collector) RecordExpiredSessions(n int) { c.sessionsExpired.Add(float64(n)) }
func (c *Collector) SetAssetCount(n int)         { c.assetsStored.Set(float64(n)) }

// Middleware records request counts and latency per route.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(g *gin.Context) {
		start := time.Now()
		g.Next()

		endpoint := g.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		method := g.Request.Method
		status := strconv.Itoa(g.Writer.Status())

		c.httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
		c.httpRequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the text exposition format for this collector's registry.
func (c *Collector) Handler() gin.HandlerFunc {
	handler := promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
	return func(g *gin.Context) {
		handler.ServeHTTP(g.Writer, g.Request)
	}
}
