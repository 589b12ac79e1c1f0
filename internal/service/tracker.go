package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/report-dispatch/internal/domain"
	"github.com/kursadbilgin/report-dispatch/internal/repository"
	"go.uber.org/zap"
)

// BatchJobTracker exposes the job state machine over plain job records.
// It is pure bookkeeping: it never initiates delivery.
type BatchJobTracker struct {
	jobs   repository.BatchJobRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewBatchJobTracker(jobs repository.BatchJobRepository, logger *zap.Logger) (*BatchJobTracker, error) {
	if jobs == nil {
		return nil, fmt.Errorf("batch job repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchJobTracker{
		jobs:   jobs,
		logger: logger,
		now:    time.Now,
	}, nil
}

// CreateJobParams describes a new batch job. Total is fixed at creation.
type CreateJobParams struct {
	Kind        string
	Label       string
	ScopeRef    string
	InitiatorID string
	Total       int
	Metadata    map[string]string
}

// NewJob validates the parameters and builds a pending job record. It does
// not persist; the orchestrator writes the record inside its transaction.
func (t *BatchJobTracker) NewJob(p CreateJobParams) (*domain.BatchJob, error) {
	if p.Total < 0 {
		return nil, fmt.Errorf("%w: total must not be negative", domain.ErrValidation)
	}
	if strings.TrimSpace(p.Label) == "" {
		return nil, fmt.Errorf("%w: label is required", domain.ErrValidation)
	}

	kind := strings.TrimSpace(p.Kind)
	if kind == "" {
		kind = domain.JobKindDistribution
	}

	return &domain.BatchJob{
		ID:          uuid.NewString(),
		Kind:        kind,
		Label:       p.Label,
		ScopeRef:    p.ScopeRef,
		InitiatorID: p.InitiatorID,
		Status:      domain.JobStatusPending,
		TotalItems:  p.Total,
		Metadata:    p.Metadata,
	}, nil
}

// Start moves a pending job to in-progress. Losing the race to another
// caller is fine; the job is running either way.
func (t *BatchJobTracker) Start(ctx context.Context, id string) (bool, error) {
	return t.jobs.StartIfPending(ctx, id, t.now().UTC())
}

// UpdateProgress stores the cumulative counts a worker maintains, recomputes
// the progress percentage and the linear-rate completion estimate, and
// appends errMsg to the job's error log when present.
func (t *BatchJobTracker) UpdateProgress(ctx context.Context, id string, counts domain.JobCounts, errMsg *string) error {
	if err := counts.Validate(); err != nil {
		return err
	}

	job, err := t.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", domain.ErrConflict, id, job.Status)
	}

	now := t.now().UTC()

	var estimatedAt *time.Time
	if job.StartedAt != nil {
		estimatedAt = domain.EstimateCompletion(*job.StartedAt, now, counts.Processed, job.TotalItems)
	}

	errorLog := job.ErrorLog
	if errMsg != nil && strings.TrimSpace(*errMsg) != "" {
		errorLog = append(errorLog, domain.JobLogEntry{At: now, Message: *errMsg})
	}

	return t.jobs.SaveProgress(ctx, id, repository.ProgressUpdate{
		Counts:      counts,
		Percent:     domain.ProgressPercent(counts.Processed, job.TotalItems),
		EstimatedAt: estimatedAt,
		ErrorLog:    errorLog,
	})
}

// Complete moves a non-terminal job to COMPLETED and forces progress to 100.
func (t *BatchJobTracker) Complete(ctx context.Context, id, summary string) error {
	percent := float64(100)
	return t.jobs.Finish(ctx, id, repository.FinishUpdate{
		Status:  domain.JobStatusCompleted,
		Percent: &percent,
		Summary: &summary,
		At:      t.now().UTC(),
	})
}

// Fail moves a non-terminal job to FAILED.
func (t *BatchJobTracker) Fail(ctx context.Context, id, message string) error {
	return t.jobs.Finish(ctx, id, repository.FinishUpdate{
		Status:  domain.JobStatusFailed,
		Summary: &message,
		At:      t.now().UTC(),
	})
}

// Cancel moves a non-terminal job to CANCELED. Operator initiated only.
func (t *BatchJobTracker) Cancel(ctx context.Context, id string) error {
	return t.jobs.Finish(ctx, id, repository.FinishUpdate{
		Status: domain.JobStatusCanceled,
		At:     t.now().UTC(),
	})
}

// GetJob returns the current job record.
func (t *BatchJobTracker) GetJob(ctx context.Context, id string) (*domain.BatchJob, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}
	return t.jobs.GetByID(ctx, strings.TrimSpace(id))
}

// ListInProgress returns every job currently in progress.
func (t *BatchJobTracker) ListInProgress(ctx context.Context) ([]domain.BatchJob, error) {
	return t.jobs.ListByStatus(ctx, domain.JobStatusInProgress)
}
