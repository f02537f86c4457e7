package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/civicsync/internal/fallback"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	civicRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civicsync_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	civicRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "civicsync_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	civicTierTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civicsync_tier_served_total",
		Help: "Operations by the storage tier that served them.",
	}, []string{"op", "tier"})

	civicBackendProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civicsync_backend_probes_total",
		Help: "Backend health probes by result.",
	}, []string{"result"})

	civicSyncedReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civicsync_synced_reports_total",
		Help: "Pending reports pushed to the backend by outcome.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		civicRequestsTotal.WithLabelValues(method, path, status).Inc()
		civicRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordTier counts an operation served by tier. It satisfies fallback.Recorder.
func RecordTier(op string, tier fallback.Tier) {
	civicTierTotal.WithLabelValues(op, string(tier)).Inc()
}

// RecordBackendProbe records a backend health probe result.
func RecordBackendProbe(success bool) {
	if success {
		civicBackendProbesTotal.WithLabelValues("success").Inc()
	} else {
		civicBackendProbesTotal.WithLabelValues("failure").Inc()
	}
}

// RegisterStateGauges exposes backend reachability and the pending report
// count, both evaluated at scrape time. Call it once per process.
func RegisterStateGauges(reg prometheus.Registerer, online func() bool, pending func() int) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "civicsync_backend_online",
			Help: "1 when the civic backend is reachable, 0 otherwise.",
		}, func() float64 {
			if online() {
				return 1
			}
			return 0
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "civicsync_pending_reports",
			Help: "Reports stored on this device that the backend has not acknowledged.",
		}, func() float64 { return float64(pending()) }),
	)
}

// RecordSync records the outcome of a pending-report push.
func RecordSync(pushed, failed int) {
	civicSyncedReportsTotal.WithLabelValues("pushed").Add(float64(pushed))
	civicSyncedReportsTotal.WithLabelValues("failed").Add(float64(failed))
}
