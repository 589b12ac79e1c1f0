package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsDeliveryCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncMailSent()
	metrics.IncMailSent()
	metrics.IncMailFailed("Transient_Error")
	metrics.IncMailBounced()
	metrics.ObserveMailSendDuration(120 * time.Millisecond)
	metrics.IncEntriesInFlight()
	metrics.DecEntriesInFlight()
	metrics.IncRetryScheduled()
	metrics.IncJobsCompleted()

	if got := testutil.ToFloat64(metrics.mailSentTotal); got != 2 {
		t.Fatalf("mail_sent_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.mailFailedTotal.WithLabelValues("transient_error")); got != 1 {
		t.Fatalf("mail_failed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.mailBouncedTotal); got != 1 {
		t.Fatalf("mail_bounced_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.retryScheduledTotal); got != 1 {
		t.Fatalf("retry_scheduled_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.entriesInFlight); got != 0 {
		t.Fatalf("entries_in_flight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.jobsCompletedTotal); got != 1 {
		t.Fatalf("jobs_completed_total = %v, want 1", got)
	}
}

func TestMetricsFailureReasonNormalization(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	metrics.IncMailFailed("  ")

	if got := testutil.ToFloat64(metrics.mailFailedTotal.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("mail_failed_total{reason=unknown} = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsNilReceiverIsNoop(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncMailSent()
	metrics.IncMailFailed("x")
	metrics.IncMailBounced()
	metrics.ObserveMailSendDuration(time.Second)
	metrics.ObserveDispatchRunDuration(time.Second)
	metrics.IncEntriesInFlight()
	metrics.DecEntriesInFlight()
	metrics.IncRetryScheduled()
	metrics.IncJobsCompleted()
}
