package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ActiveRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_progress",
			Help: "Number of HTTP requests currently being processed",
		},
		[]string{"method", "path"},
	)

	GatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Duration of backend gateway calls in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation", "outcome"},
	)

	ViewTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_view_transitions_total",
			Help: "Total number of resolved engagement view states",
		},
		[]string{"state"},
	)

	ShareOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "share_outcomes_total",
			Help: "Total number of share-and-verify outcomes",
		},
		[]string{"status", "already_shared"},
	)

	VoteSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vote_submissions_total",
			Help: "Total number of podium submissions by result",
		},
		[]string{"result"},
	)

	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Total number of cache operations",
		},
		[]string{"operation", "status"},
	)
)

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		method := c.Request.Method
		start := time.Now()

		ActiveRequests.WithLabelValues(method, path).Inc()
		defer ActiveRequests.WithLabelValues(method, path).Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		RequestDuration.WithLabelValues(method, path, status).Observe(duration)
		RequestTotal.WithLabelValues(method, path, status).Inc()
	}
}

func ObserveGateway(operation, outcome string, start time.Time) {
	GatewayDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}

func RecordView(state string) {
	ViewTransitions.WithLabelValues(state).Inc()
}

func RecordShareOutcome(status string, alreadyShared bool) {
	ShareOutcomes.WithLabelValues(status, strconv.FormatBool(alreadyShared)).Inc()
}

func RecordSubmission(result string) {
	VoteSubmissions.WithLabelValues(result).Inc()
}

func RecordCacheOperation(operation string, hit bool) {
	status := "miss"
	if hit {
		status = "hit"
	}
	CacheOperations.WithLabelValues(operation, status).Inc()
}
