package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the API and planning flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDuration       *prometheus.HistogramVec
	planningAddedTotal        *prometheus.CounterVec
	planningConflictsTotal    *prometheus.CounterVec
	planningErrorsTotal       prometheus.Counter
	lifecycleTransitionsTotal *prometheus.CounterVec
	dispatchedTotal           prometheus.Counter
	prunedTotal               prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_planner",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "notify_planner",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		planningAddedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_planner",
				Name:      "planning_added_total",
				Help:      "Total number of notifications created by automatic planning.",
			},
			[]string{"type"},
		),
		planningConflictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_planner",
				Name:      "planning_conflicts_total",
				Help:      "Total number of planning candidates skipped because an active plan already existed.",
			},
			[]string{"type"},
		),
		planningErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "notify_planner",
				Name:      "planning_errors_total",
				Help:      "Total number of planning candidates that failed with a non-conflict error.",
			},
		),
		lifecycleTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_planner",
				Name:      "lifecycle_transitions_total",
				Help:      "Total number of lifecycle transitions grouped by resulting status.",
			},
			[]string{"to_status"},
		),
		dispatchedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "notify_planner",
				Name:      "dispatched_total",
				Help:      "Total number of due notifications handed to the gateway outbox.",
			},
		),
		prunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "notify_planner",
				Name:      "pruned_total",
				Help:      "Total number of terminal notifications removed by retention cleanup.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.planningAddedTotal,
		m.planningConflictsTotal,
		m.planningErrorsTotal,
		m.lifecycleTransitionsTotal,
		m.dispatchedTotal,
		m.prunedTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncPlanningAdded(notificationType string) {
	if m == nil {
		return
	}
	m.planningAddedTotal.WithLabelValues(normalizeLabel(notificationType)).Inc()
}

func (m *Metrics) IncPlanningConflict(notificationType string) {
	if m == nil {
		return
	}
	m.planningConflictsTotal.WithLabelValues(normalizeLabel(notificationType)).Inc()
}

func (m *Metrics) IncPlanningError() {
	if m == nil {
		return
	}
	m.planningErrorsTotal.Inc()
}

func (m *Metrics) IncLifecycleTransition(toStatus string) {
	if m == nil {
		return
	}
	m.lifecycleTransitionsTotal.WithLabelValues(normalizeLabel(toStatus)).Inc()
}

func (m *Metrics) IncDispatched() {
	if m == nil {
		return
	}
	m.dispatchedTotal.Inc()
}

func (m *Metrics) AddPruned(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.prunedTotal.Add(float64(count))
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
