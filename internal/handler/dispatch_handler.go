package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/report-dispatch/internal/domain"
	"github.com/kursadbilgin/report-dispatch/internal/quota"
	"github.com/kursadbilgin/report-dispatch/internal/service"
)

type DistributionService interface {
	Preview(ctx context.Context, scope domain.DistributionScope) (*service.PreviewSummary, error)
	Initiate(ctx context.Context, scope domain.DistributionScope, initiatorID string, confirm bool) (*service.InitiateResult, error)
	RetryFailed(ctx context.Context, jobID string) (int64, error)
	CancelJob(ctx context.Context, jobID string) (int64, error)
	Status(ctx context.Context, jobID string) (*service.JobStatusSummary, error)
}

type DispatchTrigger interface {
	TriggerNow(ctx context.Context, batchSize int) (service.RunResult, error)
}

type DispatchHandler struct {
	distributions DistributionService
	trigger       DispatchTrigger
	quota         quota.DailyQuota
}

func NewDispatchHandler(distributions DistributionService, trigger DispatchTrigger, dailyQuota quota.DailyQuota) (*DispatchHandler, error) {
	if distributions == nil {
		return nil, fmt.Errorf("distribution service is required")
	}
	if trigger == nil {
		return nil, fmt.Errorf("dispatch trigger is required")
	}
	if dailyQuota == nil {
		return nil, fmt.Errorf("daily quota is required")
	}
	return &DispatchHandler{distributions: distributions, trigger: trigger, quota: dailyQuota}, nil
}

func RegisterDispatchRoutes(router fiber.Router, distributions DistributionService, trigger DispatchTrigger, dailyQuota quota.DailyQuota) error {
	h, err := NewDispatchHandler(distributions, trigger, dailyQuota)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/distributions/preview", h.PreviewDistribution)
	v1.Post("/distributions", h.InitiateDistribution)
	v1.Get("/jobs/:id", h.GetJob)
	v1.Post("/jobs/:id/retry", h.RetryJob)
	v1.Post("/jobs/:id/cancel", h.CancelJob)
	v1.Post("/dispatch/run", h.TriggerDispatch)
	v1.Get("/dispatch/quota", h.GetQuota)

	return nil
}

type distributionRequest struct {
	CohortID string `json:"cohortId"`
	PeriodID string `json:"periodId"`
	Confirm  bool   `json:"confirm"`
}

type previewResponse struct {
	TotalDocuments            int `json:"totalDocuments"`
	DocumentsWithRecipients   int `json:"documentsWithRecipients"`
	DistinctRecipients        int `json:"distinctRecipients"`
	DocumentsWithoutRecipient int `json:"documentsWithoutRecipient"`
}

type initiateResponse struct {
	Confirmed   bool             `json:"confirmed"`
	JobID       string           `json:"jobId,omitempty"`
	QueuedCount int              `json:"queuedCount,omitempty"`
	Preview     *previewResponse `json:"preview"`
}

type jobResponse struct {
	ID              string            `json:"id"`
	Kind            string            `json:"kind"`
	Label           string            `json:"label"`
	ScopeRef        string            `json:"scopeRef"`
	InitiatorID     string            `json:"initiatorId,omitempty"`
	Status          string            `json:"status"`
	TotalItems      int               `json:"totalItems"`
	ProcessedItems  int               `json:"processedItems"`
	SuccessfulItems int               `json:"successfulItems"`
	FailedItems     int               `json:"failedItems"`
	SkippedItems    int               `json:"skippedItems"`
	ProgressPercent float64           `json:"progressPercent"`
	StartedAt       *time.Time        `json:"startedAt,omitempty"`
	CompletedAt     *time.Time        `json:"completedAt,omitempty"`
	EstimatedAt     *time.Time        `json:"estimatedAt,omitempty"`
	ResultSummary   *string           `json:"resultSummary,omitempty"`
	Entries         []entryCountItem  `json:"entries"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

type entryCountItem struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

type runResponse struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

func (h *DispatchHandler) PreviewDistribution(c *fiber.Ctx) error {
	scope, err := parseScope(c)
	if err != nil {
		return toHTTPError(err)
	}

	preview, err := h.distributions.Preview(c.Context(), scope)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toPreviewResponse(preview))
}

func (h *DispatchHandler) InitiateDistribution(c *fiber.Ctx) error {
	var req distributionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	scope := domain.DistributionScope{
		CohortID: strings.TrimSpace(req.CohortID),
		PeriodID: strings.TrimSpace(req.PeriodID),
	}

	result, err := h.distributions.Initiate(c.Context(), scope, requestInitiatorID(c), req.Confirm)
	if err != nil {
		return toHTTPError(err)
	}

	status := fiber.StatusOK
	if result.Confirmed {
		status = fiber.StatusAccepted
	}

	return c.Status(status).JSON(initiateResponse{
		Confirmed:   result.Confirmed,
		JobID:       result.JobID,
		QueuedCount: result.QueuedCount,
		Preview:     toPreviewResponse(result.Preview),
	})
}

func (h *DispatchHandler) GetJob(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	summary, err := h.distributions.Status(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toJobResponse(summary))
}

func (h *DispatchHandler) RetryJob(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	requeued, err := h.distributions.RetryFailed(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"jobId":    id,
		"requeued": requeued,
	})
}

func (h *DispatchHandler) CancelJob(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	canceled, err := h.distributions.CancelJob(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"jobId":           id,
		"canceledEntries": canceled,
		"status":          domain.JobStatusCanceled.String(),
	})
}

func (h *DispatchHandler) TriggerDispatch(c *fiber.Ctx) error {
	batchSize := c.QueryInt("batchSize", 0)

	result, err := h.trigger.TriggerNow(c.Context(), batchSize)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyRunning) {
			return fiber.NewError(fiber.StatusConflict, "a dispatch run is already in progress")
		}
		return err
	}

	return c.Status(fiber.StatusOK).JSON(runResponse{
		Processed: result.Processed,
		Sent:      result.Sent,
		Failed:    result.Failed,
	})
}

func (h *DispatchHandler) GetQuota(c *fiber.Ctx) error {
	remaining, err := h.quota.Remaining(c.Context())
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"remainingToday": remaining,
	})
}

func parseScope(c *fiber.Ctx) (domain.DistributionScope, error) {
	var req distributionRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.DistributionScope{}, fmt.Errorf("%w: invalid request body", domain.ErrValidation)
	}

	scope := domain.DistributionScope{
		CohortID: strings.TrimSpace(req.CohortID),
		PeriodID: strings.TrimSpace(req.PeriodID),
	}
	if err := scope.Validate(); err != nil {
		return domain.DistributionScope{}, err
	}
	return scope, nil
}

func requestInitiatorID(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get("X-Initiator-Id"))
}

func toPreviewResponse(preview *service.PreviewSummary) *previewResponse {
	if preview == nil {
		return nil
	}
	return &previewResponse{
		TotalDocuments:            preview.TotalDocuments,
		DocumentsWithRecipients:   preview.DocumentsWithRecipients,
		DistinctRecipients:        preview.DistinctRecipients,
		DocumentsWithoutRecipient: preview.DocumentsWithoutRecipient,
	}
}

func toJobResponse(summary *service.JobStatusSummary) jobResponse {
	job := summary.Job

	counts := make([]entryCountItem, 0, len(summary.Counts))
	for _, count := range summary.Counts {
		counts = append(counts, entryCountItem{
			Status: count.Status.String(),
			Count:  count.Count,
		})
	}

	return jobResponse{
		ID:              job.ID,
		Kind:            job.Kind,
		Label:           job.Label,
		ScopeRef:        job.ScopeRef,
		InitiatorID:     job.InitiatorID,
		Status:          job.Status.String(),
		TotalItems:      job.TotalItems,
		ProcessedItems:  job.ProcessedItems,
		SuccessfulItems: job.SuccessfulItems,
		FailedItems:     job.FailedItems,
		SkippedItems:    job.SkippedItems,
		ProgressPercent: job.ProgressPercent,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
		EstimatedAt:     job.EstimatedAt,
		ResultSummary:   job.ResultSummary,
		Entries:         counts,
		Metadata:        job.Metadata,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNoRecipients):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
