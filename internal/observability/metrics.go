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

// Metrics stores Prometheus collectors used by the operator API and the
// dispatch worker.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	mailSentTotal       prometheus.Counter
	mailFailedTotal     *prometheus.CounterVec
	mailBouncedTotal    prometheus.Counter
	mailSendDuration    prometheus.Histogram
	dispatchRunDuration prometheus.Histogram
	entriesInFlight     prometheus.Gauge
	retryScheduledTotal prometheus.Counter
	jobsCompletedTotal  prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "report_dispatch",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "report_dispatch",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		mailSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "report_dispatch",
				Name:      "mail_sent_total",
				Help:      "Total number of queue entries delivered successfully.",
			},
		),
		mailFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "report_dispatch",
				Name:      "mail_failed_total",
				Help:      "Total number of failed delivery attempts by reason.",
			},
			[]string{"reason"},
		),
		mailBouncedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "report_dispatch",
				Name:      "mail_bounced_total",
				Help:      "Total number of queue entries that bounced permanently.",
			},
		),
		mailSendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "report_dispatch",
				Name:      "mail_send_duration_seconds",
				Help:      "Mail transport send duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		dispatchRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "report_dispatch",
				Name:      "dispatch_run_duration_seconds",
				Help:      "Duration of one dispatch worker run in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		entriesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "report_dispatch",
				Name:      "entries_in_flight",
				Help:      "Current number of queue entries being delivered.",
			},
		),
		retryScheduledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "report_dispatch",
				Name:      "retry_scheduled_total",
				Help:      "Total number of queue entries scheduled for retry.",
			},
		),
		jobsCompletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "report_dispatch",
				Name:      "jobs_completed_total",
				Help:      "Total number of batch jobs completed.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.mailSentTotal,
		m.mailFailedTotal,
		m.mailBouncedTotal,
		m.mailSendDuration,
		m.dispatchRunDuration,
		m.entriesInFlight,
		m.retryScheduledTotal,
		m.jobsCompletedTotal,
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

func (m *Metrics) IncMailSent() {
	if m == nil {
		return
	}
	m.mailSentTotal.Inc()
}

func (m *Metrics) IncMailFailed(reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.mailFailedTotal.WithLabelValues(reasonLabel).Inc()
}

func (m *Metrics) IncMailBounced() {
	if m == nil {
		return
	}
	m.mailBouncedTotal.Inc()
}

func (m *Metrics) ObserveMailSendDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.mailSendDuration.Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) ObserveDispatchRunDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.dispatchRunDuration.Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) IncEntriesInFlight() {
	if m == nil {
		return
	}
	m.entriesInFlight.Inc()
}

func (m *Metrics) DecEntriesInFlight() {
	if m == nil {
		return
	}
	m.entriesInFlight.Dec()
}

func (m *Metrics) IncRetryScheduled() {
	if m == nil {
		return
	}
	m.retryScheduledTotal.Inc()
}

func (m *Metrics) IncJobsCompleted() {
	if m == nil {
		return
	}
	m.jobsCompletedTotal.Inc()
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

func nonNegativeSeconds(duration time.Duration) float64 {
	seconds := duration.Seconds()
	if seconds < 0 {
		return 0
	}
	return seconds
}
