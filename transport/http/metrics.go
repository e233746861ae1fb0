package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/layer-3/remitgate/core"
)

// Metrics holds the gateway's Prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	requests          *prometheus.CounterVec
	duration          *prometheus.HistogramVec
	rateLimited       *prometheus.CounterVec
	idempotencyReplay prometheus.Counter
	idempotencyReject *prometheus.CounterVec
	logins            *prometheus.CounterVec
}

// NewMetrics registers the gateway collectors plus Go runtime metrics
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "remitgate_http_requests_total",
			Help: "Total number of HTTP requests, by method, route and status code.",
		}, []string{"method", "route", "code"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "remitgate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		rateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "remitgate_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by category.",
		}, []string{"category"}),
		idempotencyReplay: factory.NewCounter(prometheus.CounterOpts{
			Name: "remitgate_idempotency_replays_total",
			Help: "Responses served from the idempotency cache.",
		}),
		idempotencyReject: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "remitgate_idempotency_rejections_total",
			Help: "Idempotent requests rejected, by reason.",
		}, []string{"reason"}), // conflict, in_flight
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "remitgate_logins_total",
			Help: "Login attempts, by result.",
		}, []string{"result"}), // success, failure
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observeRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) rateLimitDenied(category core.Category) {
	m.rateLimited.WithLabelValues(string(category)).Inc()
}

func (m *Metrics) idempotencyReplayed() {
	m.idempotencyReplay.Inc()
}

func (m *Metrics) idempotencyRejected(reason string) {
	m.idempotencyReject.WithLabelValues(reason).Inc()
}

func (m *Metrics) login(result string) {
	m.logins.WithLabelValues(result).Inc()
}
