package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moment_http_requests_total",
			Help: "Total number of HTTP requests processed by the moment service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moment_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moment_ws_active_connections",
			Help: "Number of active websocket sessions.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moment_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	momentDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moment_deliveries_total",
			Help: "Moment fan-out outcomes by channel.",
		},
		[]string{"channel", "outcome"},
	)
	deliveryQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moment_delivery_queue_depth",
			Help: "Number of pending delivery tasks.",
		},
	)
	deliveryTasksExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moment_delivery_tasks_expired_total",
			Help: "Delivery tasks purged by the expiry sweep.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moment_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		momentDeliveriesTotal,
		deliveryQueueDepth,
		deliveryTasksExpiredTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncDelivery(channel, outcome string) {
	momentDeliveriesTotal.WithLabelValues(channel, outcome).Inc()
}

func SetQueueDepth(depth int) {
	deliveryQueueDepth.Set(float64(depth))
}

func AddExpiredTasks(count int) {
	deliveryTasksExpiredTotal.Add(float64(count))
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
