package utils

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector tracks performance metrics across the system. Each collector
// owns its registry so tests can build as many as they like.
type MetricsCollector struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	errors           *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	votes            *prometheus.CounterVec
	counterRepairs   prometheus.Counter
	reconcileRuns    prometheus.Counter

	systemStartTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &MetricsCollector{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kickhaven",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "status"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kickhaven",
			Name:      "errors_total",
			Help:      "Errors returned to clients by error code.",
		}, []string{"code"}),
		operationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kickhaven",
			Name:      "operation_duration_seconds",
			Help:      "Latency of service operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		votes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kickhaven",
			Name:      "vote_transitions_total",
			Help:      "Vote transitions applied, by action (insert, retract, switch).",
		}, []string{"action"}),
		counterRepairs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kickhaven",
			Name:      "counter_repairs_total",
			Help:      "Content records whose counters were corrected by the reconciler.",
		}),
		reconcileRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kickhaven",
			Name:      "reconcile_runs_total",
			Help:      "Targets recomputed by the reconciler.",
		}),
		systemStartTime: time.Now(),
	}
}

func (mc *MetricsCollector) IncrementRequests(route string, status int) {
	mc.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func (mc *MetricsCollector) IncrementErrors(code string) {
	mc.errors.WithLabelValues(code).Inc()
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.operationLatency.WithLabelValues(operationName).Observe(duration.Seconds())
}

func (mc *MetricsCollector) IncrementVotes(action string) {
	mc.votes.WithLabelValues(action).Inc()
}

func (mc *MetricsCollector) IncrementReconciles(repaired bool) {
	mc.reconcileRuns.Inc()
	if repaired {
		mc.counterRepairs.Inc()
	}
}

func (mc *MetricsCollector) Uptime() time.Duration {
	return time.Since(mc.systemStartTime)
}

// Registry exposes the underlying registry, mostly for tests.
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// Handler serves the Prometheus exposition format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}
