package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GatewayRequestsTotal counts backend requests by method, route and status class.
	GatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrguard_gateway_requests_total",
		Help: "Total number of backend requests sent through the gateway",
	}, []string{"method", "route", "status"})

	// GatewayRequestLatency records backend request latency by method and route.
	GatewayRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qrguard_gateway_request_latency_seconds",
		Help:    "Backend request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// GatewayUnauthenticatedTotal counts requests sent without a bearer token.
	GatewayUnauthenticatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qrguard_gateway_unauthenticated_requests_total",
		Help: "Total number of backend requests sent without a bearer token",
	})

	// SessionTransitionsTotal counts session state changes by event.
	SessionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrguard_session_transitions_total",
		Help: "Total number of session transitions by event",
	}, []string{"event"})

	// StorageErrorsTotal counts local storage failures by backend and operation.
	StorageErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrguard_storage_errors_total",
		Help: "Total number of local storage errors",
	}, []string{"backend", "operation"})

	// ChatMessagesTotal counts chat widget messages by direction.
	ChatMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrguard_chat_messages_total",
		Help: "Total number of chat widget messages",
	}, []string{"direction"})
)

// StatusClass buckets an HTTP status into "2xx", "4xx" and so on.
// Zero means the request never got a response.
func StatusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

// ObserveRequest records one finished gateway request.
func ObserveRequest(method, route string, status int, start time.Time) {
	GatewayRequestsTotal.WithLabelValues(method, route, StatusClass(status)).Inc()
	GatewayRequestLatency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
}

// MetricsHandler exposes the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
