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

// Metrics stores Prometheus collectors used by the API, the sweep and the relay.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	transitionsTotal     *prometheus.CounterVec
	staleRetriesTotal    prometheus.Counter
	reconcileTotal       *prometheus.CounterVec
	sweepDuration        prometheus.Histogram
	sweepSkippedTotal    *prometheus.CounterVec
	assignmentsTotal     *prometheus.CounterVec
	reassignmentsTotal   *prometheus.CounterVec
	notifyFailedTotal    *prometheus.CounterVec
	slaEscalationsTotal  prometheus.Counter
	relayDeliveriesTotal *prometheus.CounterVec
	relayInflight        prometheus.Gauge
}

const namespace = "bordereau"

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_transitions_total",
				Help:      "Batch status transition attempts by target status and outcome.",
			},
			[]string{"to", "outcome"},
		),
		staleRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_transition_stale_retries_total",
				Help:      "Conditional writes that lost a race and were re-evaluated.",
			},
		),
		reconcileTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_total",
				Help:      "Reconciliation runs by matched rule.",
			},
			[]string{"rule"},
		),
		sweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Duration of a full reconciliation sweep.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		sweepSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_skipped_total",
				Help:      "Sweep ticks skipped, by reason.",
			},
			[]string{"reason"},
		),
		assignmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "assignments_total",
				Help:      "Assignments by item kind and whether the handler ended up overloaded.",
			},
			[]string{"kind", "overloaded"},
		),
		reassignmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reassignments_total",
				Help:      "Reassignments by item kind.",
			},
			[]string{"kind"},
		),
		notifyFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_failed_total",
				Help:      "Notifications that could not be handed to the dispatcher.",
			},
			[]string{"kind"},
		),
		slaEscalationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sla_escalations_total",
				Help:      "Overdue batches escalated to team leads.",
			},
		),
		relayDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_deliveries_total",
				Help:      "Relay deliveries by outcome.",
			},
			[]string{"outcome"},
		),
		relayInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "relay_inflight",
				Help:      "Current number of in-flight relay deliveries.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.transitionsTotal,
		m.staleRetriesTotal,
		m.reconcileTotal,
		m.sweepDuration,
		m.sweepSkippedTotal,
		m.assignmentsTotal,
		m.reassignmentsTotal,
		m.notifyFailedTotal,
		m.slaEscalationsTotal,
		m.relayDeliveriesTotal,
		m.relayInflight,
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

func (m *Metrics) IncTransition(to string, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(normalizeLabel(to), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncStaleRetry() {
	if m == nil {
		return
	}
	m.staleRetriesTotal.Inc()
}

func (m *Metrics) IncReconcile(rule string) {
	if m == nil {
		return
	}
	m.reconcileTotal.WithLabelValues(normalizeLabel(rule)).Inc()
}

func (m *Metrics) ObserveSweepDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.sweepDuration.Observe(seconds)
}

func (m *Metrics) IncSweepSkipped(reason string) {
	if m == nil {
		return
	}
	m.sweepSkippedTotal.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *Metrics) IncAssignment(kind string, overloaded bool) {
	if m == nil {
		return
	}
	m.assignmentsTotal.WithLabelValues(normalizeLabel(kind), strconv.FormatBool(overloaded)).Inc()
}

func (m *Metrics) IncReassignment(kind string) {
	if m == nil {
		return
	}
	m.reassignmentsTotal.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *Metrics) IncNotificationFailed(kind string) {
	if m == nil {
		return
	}
	m.notifyFailedTotal.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *Metrics) IncSLAEscalation() {
	if m == nil {
		return
	}
	m.slaEscalationsTotal.Inc()
}

func (m *Metrics) IncRelayDelivery(outcome string) {
	if m == nil {
		return
	}
	m.relayDeliveriesTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncRelayInFlight() {
	if m == nil {
		return
	}
	m.relayInflight.Inc()
}

func (m *Metrics) DecRelayInFlight() {
	if m == nil {
		return
	}
	m.relayInflight.Dec()
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
