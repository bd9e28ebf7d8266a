// Package metrics exposes pipeline and HTTP metrics in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/valpere/studyspark/internal/action"
	"github.com/valpere/studyspark/internal/orchestrator"
)

const namespace = "studyspark"

// Metrics implements orchestrator.Recorder and completion.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	runs           *prometheus.CounterVec
	activeRuns     *prometheus.GaugeVec
	runDuration    *prometheus.HistogramVec
	chunks         *prometheus.CounterVec
	mergeFallbacks *prometheus.CounterVec
	completions    *prometheus.CounterVec
	retries        prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New registers every collector on a private registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by action and terminal state.",
		}, []string{"action", "state"}),
		activeRuns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Runs currently in progress.",
		}, []string{"action"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of pipeline runs.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"action", "state"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Processed chunks by outcome.",
		}, []string{"action", "outcome"}),
		mergeFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_fallbacks_total",
			Help:      "Merges that fell back to the first chunk result.",
		}, []string{"action"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_calls_total",
			Help:      "Completion service calls by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_retries_total",
			Help:      "Completion calls retried after a failure.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, streaming included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runs, m.activeRuns, m.runDuration, m.chunks, m.mergeFallbacks,
		m.completions, m.retries, m.httpRequests, m.httpDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RunStarted(a action.Action) {
	m.activeRuns.WithLabelValues(a.String()).Inc()
}

func (m *Metrics) RunFinished(a action.Action, state orchestrator.State, d time.Duration) {
	m.activeRuns.WithLabelValues(a.String()).Dec()
	m.runs.WithLabelValues(a.String(), state.String()).Inc()
	m.runDuration.WithLabelValues(a.String(), state.String()).Observe(d.Seconds())
}

func (m *Metrics) ChunkProcessed(a action.Action, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.chunks.WithLabelValues(a.String(), outcome).Inc()
}

func (m *Metrics) MergeFallback(a action.Action) {
	m.mergeFallbacks.WithLabelValues(a.String()).Inc()
}

func (m *Metrics) CompletionAttempt(err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "cancelled"
	default:
		outcome = "error"
	}
	m.completions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CompletionRetry() {
	m.retries.Inc()
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// GinMiddleware counts requests by matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
