package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/report-dispatch/internal/domain"
	"github.com/kursadbilgin/report-dispatch/internal/repository"
)

func TestBatchJobTrackerNewJobDefaults(t *testing.T) {
	t.Parallel()

	tracker, err := NewBatchJobTracker(&fakeBatchJobRepo{}, nil)
	if err != nil {
		t.Fatalf("NewBatchJobTracker() error = %v", err)
	}

	job, err := tracker.NewJob(CreateJobParams{
		Label:       "Report card distribution c1/2026-S1",
		ScopeRef:    "c1/2026-S1",
		InitiatorID: "operator-1",
		Total:       42,
	})
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}

	if job.ID == "" {
		t.Fatal("job id should be generated")
	}
	if job.Kind != domain.JobKindDistribution {
		t.Fatalf("kind = %s, want %s", job.Kind, domain.JobKindDistribution)
	}
	if job.Status != domain.JobStatusPending {
		t.Fatalf("status = %s, want PENDING", job.Status)
	}
	if job.TotalItems != 42 {
		t.Fatalf("total = %d, want 42", job.TotalItems)
	}
}

func TestBatchJobTrackerNewJobValidation(t *testing.T) {
	t.Parallel()

	tracker, err := NewBatchJobTracker(&fakeBatchJobRepo{}, nil)
	if err != nil {
		t.Fatalf("NewBatchJobTracker() error = %v", err)
	}

	if _, err := tracker.NewJob(CreateJobParams{Label: "x", Total: -1}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("negative total error = %v, want ErrValidation", err)
	}
	if _, err := tracker.NewJob(CreateJobParams{Label: "  ", Total: 1}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("blank label error = %v, want ErrValidation", err)
	}

	// Total zero is legal: the job completes on the first sweep.
	if _, err := tracker.NewJob(CreateJobParams{Label: "empty run", Total: 0}); err != nil {
		t.Fatalf("zero total error = %v, want nil", err)
	}
}

func TestBatchJobTrackerUpdateProgressComputesEstimate(t *testing.T) {
	t.Parallel()

	baseTime := time.Unix(1_700_000_000, 0).UTC()
	startedAt := baseTime.Add(-10 * time.Minute)

	var saved *repository.ProgressUpdate
	repo := &fakeBatchJobRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.BatchJob, error) {
			return &domain.BatchJob{
				ID:         id,
				Status:     domain.JobStatusInProgress,
				TotalItems: 100,
				StartedAt:  &startedAt,
			}, nil
		},
		saveProgressFn: func(ctx context.Context, id string, update repository.ProgressUpdate) error {
			saved = &update
			return nil
		},
	}

	tracker, err := NewBatchJobTracker(repo, nil)
	if err != nil {
		t.Fatalf("NewBatchJobTracker() error = %v", err)
	}
	tracker.now = func() time.Time { return baseTime }

	counts := domain.JobCounts{Processed: 25, Successful: 20, Failed: 5}
	if err := tracker.UpdateProgress(context.Background(), "job-1", counts, nil); err != nil {
		t.Fatalf("UpdateProgress() error = %v", err)
	}

	if saved == nil {
		t.Fatal("expected progress to be saved")
	}
	if saved.Percent != 25 {
		t.Fatalf("percent = %v, want 25", saved.Percent)
	}
	// 10 minutes for 25 items projects 30 more minutes for the remaining 75.
	wantETA := baseTime.Add(30 * time.Minute)
	if saved.EstimatedAt == nil || !saved.EstimatedAt.Equal(wantETA) {
		t.Fatalf("estimatedAt = %v, want %v", saved.EstimatedAt, wantETA)
	}
}

func TestBatchJobTrackerUpdateProgressAppendsErrorLog(t *testing.T) {
	t.Parallel()

	baseTime := time.Unix(1_700_000_000, 0).UTC()
	startedAt := baseTime.Add(-time.Minute)

	var saved *repository.ProgressUpdate
	repo := &fakeBatchJobRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.BatchJob, error) {
			return &domain.BatchJob{
				ID:         id,
				Status:     domain.JobStatusInProgress,
				TotalItems: 10,
				StartedAt:  &startedAt,
				ErrorLog:   []domain.JobLogEntry{{At: startedAt, Message: "earlier failure"}},
			}, nil
		},
		saveProgressFn: func(ctx context.Context, id string, update repository.ProgressUpdate) error {
			saved = &update
			return nil
		},
	}

	tracker, err := NewBatchJobTracker(repo, nil)
	if err != nil {
		t.Fatalf("NewBatchJobTracker() error = %v", err)
	}
	tracker.now = func() time.Time { return baseTime }

	msg := "delivery to ben@example.org failed"
	counts := domain.JobCounts{Processed: 2, Successful: 1, Failed: 1}
	if err := tracker.UpdateProgress(context.Background(), "job-1", counts, &msg); err != nil {
		t.Fatalf("UpdateProgress() error = %v", err)
	}

	if saved == nil || len(saved.ErrorLog) != 2 {
		t.Fatalf("error log = %+v, want 2 entries", saved)
	}
	if saved.ErrorLog[1].Message != msg {
		t.Fatalf("appended message = %q, want %q", saved.ErrorLog[1].Message, msg)
	}
}

func TestBatchJobTrackerUpdateProgressTerminalJob(t *testing.T) {
	t.Parallel()

	repo := &fakeBatchJobRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.BatchJob, error) {
			return &domain.BatchJob{ID: id, Status: domain.JobStatusCompleted, TotalItems: 10}, nil
		},
	}

	tracker, err := NewBatchJobTracker(repo, nil)
	if err != nil {
		t.Fatalf("NewBatchJobTracker() error = %v", err)
	}

	err = tracker.UpdateProgress(context.Background(), "job-1", domain.JobCounts{Processed: 1, Successful: 1}, nil)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
}

func TestBatchJobTrackerUpdateProgressInvalidCounts(t *testing.T) {
	t.Parallel()

	tracker, err := NewBatchJobTracker(&fakeBatchJobRepo{}, nil)
	if err != nil {
		t.Fatalf("NewBatchJobTracker() error = %v", err)
	}

	counts := domain.JobCounts{Processed: 3, Successful: 1, Failed: 1}
	err = tracker.UpdateProgress(context.Background(), "job-1", counts, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestBatchJobTrackerCompleteForcesFullProgress(t *testing.T) {
	t.Parallel()

	var finished *repository.FinishUpdate
	repo := &fakeBatchJobRepo{
		finishFn: func(ctx context.Context, id string, update repository.FinishUpdate) error {
			finished = &update
			return nil
		},
	}

	tracker, err := NewBatchJobTracker(repo, nil)
	if err != nil {
		t.Fatalf("NewBatchJobTracker() error = %v", err)
	}

	if err := tracker.Complete(context.Background(), "job-1", "delivered 9 of 10, failed 1, skipped 0"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if finished == nil {
		t.Fatal("expected Finish to be called")
	}
	if finished.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", finished.Status)
	}
	if finished.Percent == nil || *finished.Percent != 100 {
		t.Fatalf("percent = %v, want 100", finished.Percent)
	}
	if finished.Summary == nil || *finished.Summary == "" {
		t.Fatal("summary should be stored")
	}
}

func TestBatchJobTrackerStartDelegates(t *testing.T) {
	t.Parallel()

	baseTime := time.Unix(1_700_000_000, 0).UTC()
	repo := &fakeBatchJobRepo{
		startIfPendingFn: func(ctx context.Context, id string, at time.Time) (bool, error) {
			if !at.Equal(baseTime) {
				t.Fatalf("startedAt = %v, want %v", at, baseTime)
			}
			return true, nil
		},
	}

	tracker, err := NewBatchJobTracker(repo, nil)
	if err != nil {
		t.Fatalf("NewBatchJobTracker() error = %v", err)
	}
	tracker.now = func() time.Time { return baseTime }

	started, err := tracker.Start(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !started {
		t.Fatal("expected start to report true")
	}
}

func TestBatchJobTrackerGetJobRequiresID(t *testing.T) {
	t.Parallel()

	tracker, err := NewBatchJobTracker(&fakeBatchJobRepo{}, nil)
	if err != nil {
		t.Fatalf("NewBatchJobTracker() error = %v", err)
	}

	if _, err := tracker.GetJob(context.Background(), "   "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

type fakeBatchJobRepo struct {
	createFn         func(ctx context.Context, j *domain.BatchJob) error
	getByIDFn        func(ctx context.Context, id string) (*domain.BatchJob, error)
	listByStatusFn   func(ctx context.Context, status domain.JobStatus) ([]domain.BatchJob, error)
	startIfPendingFn func(ctx context.Context, id string, at time.Time) (bool, error)
	saveProgressFn   func(ctx context.Context, id string, update repository.ProgressUpdate) error
	finishFn         func(ctx context.Context, id string, update repository.FinishUpdate) error
}

func (f *fakeBatchJobRepo) Create(ctx context.Context, j *domain.BatchJob) error {
	if f.createFn != nil {
		return f.createFn(ctx, j)
	}
	return nil
}

func (f *fakeBatchJobRepo) GetByID(ctx context.Context, id string) (*domain.BatchJob, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return &domain.BatchJob{ID: id, Status: domain.JobStatusPending}, nil
}

func (f *fakeBatchJobRepo) ListByStatus(ctx context.Context, status domain.JobStatus) ([]domain.BatchJob, error) {
	if f.listByStatusFn != nil {
		return f.listByStatusFn(ctx, status)
	}
	return nil, nil
}

func (f *fakeBatchJobRepo) StartIfPending(ctx context.Context, id string, at time.Time) (bool, error) {
	if f.startIfPendingFn != nil {
		return f.startIfPendingFn(ctx, id, at)
	}
	return true, nil
}

func (f *fakeBatchJobRepo) SaveProgress(ctx context.Context, id string, update repository.ProgressUpdate) error {
	if f.saveProgressFn != nil {
		return f.saveProgressFn(ctx, id, update)
	}
	return nil
}

func (f *fakeBatchJobRepo) Finish(ctx context.Context, id string, update repository.FinishUpdate) error {
	if f.finishFn != nil {
		return f.finishFn(ctx, id, update)
	}
	return nil
}
