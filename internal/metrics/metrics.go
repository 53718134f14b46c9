// Package metrics provides Prometheus instrumentation for the bot.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CommandsTotal counts command invocations by name and outcome.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stocker_commands_total",
		Help: "Total number of commands handled",
	}, []string{"command", "outcome"})

	// CommandLatency tracks time from receipt to final reply.
	CommandLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stocker_command_latency_seconds",
		Help:    "Command handling latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})

	// LotsInserted counts purchase lots recorded.
	LotsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stocker_lots_inserted_total",
		Help: "Purchase lots recorded",
	})

	// SellsExecuted counts committed FIFO sells.
	SellsExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stocker_sells_executed_total",
		Help: "FIFO sells committed",
	})

	// AlertsRegistered counts alerts created, by direction.
	AlertsRegistered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stocker_alerts_registered_total",
		Help: "Alerts registered",
	}, []string{"direction"})

	// AlertsFired counts alerts that crossed their threshold.
	AlertsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stocker_alerts_fired_total",
		Help: "Alerts fired",
	}, []string{"direction"})

	// AlertsLive tracks the number of alerts waiting to fire.
	AlertsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stocker_alerts_live",
		Help: "Alerts currently registered",
	})

	// ScanDuration tracks how long one alert scan tick takes.
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stocker_scan_duration_seconds",
		Help:    "Alert scan tick duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	// QuoteFailures counts provider lookups that came back unavailable.
	QuoteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stocker_quote_failures_total",
		Help: "Quote or company-info lookups that failed or timed out",
	}, []string{"kind"})

	// DeliveryFailures counts replies and notifications that could not be sent.
	DeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stocker_delivery_failures_total",
		Help: "Messages that could not be delivered",
	}, []string{"kind"})

	// GatewayClients tracks connected WebSocket clients.
	GatewayClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stocker_gateway_clients",
		Help: "Number of connected gateway clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stocker_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stocker_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Prefer the chi route pattern to keep label cardinality bounded.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if pattern := rc.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
