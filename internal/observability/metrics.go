package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	wsFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibez_ws_frames_total",
			Help: "Total number of realtime frames, by direction and command.",
		},
		[]string{"direction", "command"},
	)
	wsReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vibez_ws_reconnects_total",
			Help: "Total number of realtime reconnect attempts.",
		},
	)
	wsHeartbeatTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vibez_ws_heartbeat_timeouts_total",
			Help: "Total number of missed-heartbeat disconnects.",
		},
	)
	wsSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vibez_ws_subscriptions",
			Help: "Number of destinations currently subscribed.",
		},
	)
	chatUnreadMessages = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vibez_chat_unread_messages",
			Help: "Unread chat messages across all rooms.",
		},
	)
	notificationsUnread = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vibez_notifications_unread",
			Help: "Unread in-app notifications.",
		},
	)
	gatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibez_gateway_requests_total",
			Help: "Total number of backend REST requests.",
		},
		[]string{"method", "route", "status"},
	)
	gatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vibez_gateway_request_duration_seconds",
			Help:    "Backend REST request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibez_http_requests_total",
			Help: "Total number of local control API requests.",
		},
		[]string{"method", "route", "status"},
	)
	sinkPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vibez_sink_publish_errors_total",
			Help: "Total number of event sink publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		wsFramesTotal,
		wsReconnectsTotal,
		wsHeartbeatTimeoutsTotal,
		wsSubscriptions,
		chatUnreadMessages,
		notificationsUnread,
		gatewayRequestsTotal,
		gatewayRequestDuration,
		httpRequestsTotal,
		sinkPublishErrorsTotal,
	)
}

func IncFrame(direction, command string) {
	wsFramesTotal.WithLabelValues(direction, command).Inc()
}

func IncReconnect() {
	wsReconnectsTotal.Inc()
}

func IncHeartbeatTimeout() {
	wsHeartbeatTimeoutsTotal.Inc()
}

func SetSubscriptions(n int) {
	wsSubscriptions.Set(float64(n))
}

func SetChatUnread(n int) {
	chatUnreadMessages.Set(float64(n))
}

func SetNotificationsUnread(n int64) {
	notificationsUnread.Set(float64(n))
}

func ObserveGatewayRequest(method, route string, status int, elapsed time.Duration) {
	gatewayRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	gatewayRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func IncSinkPublishError() {
	sinkPublishErrorsTotal.Inc()
}

// HTTPMetricsMiddleware records request counts for the local control API.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
