package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradepipeline/internal/domain/entity/pipeline"
)

// Metrics holds the request instruments shared by every router of a process.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_http_requests_total",
				Help: "Total number of HTTP requests handled by a stage",
			},
			[]string{"service", "route", "method", "code"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_http_request_duration_seconds",
				Help:    "Histogram of response latency (seconds) for stage requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "route", "method"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_stage_failures_total",
				Help: "Failures answered by a stage, by failing stage and kind",
			},
			[]string{"service", "stage", "kind"},
		),
	}
	m.registry.MustRegister(m.requests, m.latency, m.failures)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) middleware(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(service, route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(service, route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) observeFailure(service string, failure pipeline.Failure) {
	m.failures.WithLabelValues(service, failure.Stage.String(), failure.Kind.String()).Inc()
}
