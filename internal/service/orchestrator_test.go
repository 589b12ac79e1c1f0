package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kursadbilgin/report-dispatch/internal/domain"
	"github.com/kursadbilgin/report-dispatch/internal/repository"
)

func twoSponsorGrouping() *GroupingResult {
	docA := domain.Document{ID: "doc-1", SubjectID: "child-1", StorageKey: "reports/doc-1.pdf", Title: "Report card child-1", Finalized: true}
	docB := domain.Document{ID: "doc-2", SubjectID: "child-2", StorageKey: "reports/doc-2.pdf", Title: "Report card child-2", Finalized: true}
	docC := domain.Document{ID: "doc-3", SubjectID: "child-3", StorageKey: "reports/doc-3.pdf", Title: "Report card child-3", Finalized: true}

	return &GroupingResult{
		Groups: []RecipientGroup{
			{
				Recipient: domain.Recipient{Address: "anna@example.org", DisplayName: "Anna", Kind: domain.RecipientKindSponsor, Active: true},
				Documents: []domain.Document{docA, docB},
			},
			{
				Recipient: domain.Recipient{Address: "ben@example.org", DisplayName: "Ben", Kind: domain.RecipientKindSponsor, Active: true},
				Documents: []domain.Document{docB},
			},
		},
		Unreachable:    []domain.Document{docC},
		TotalDocuments: 3,
	}
}

func newTestOrchestrator(
	t *testing.T,
	grouper Grouper,
	jobs *fakeBatchJobRepo,
	uow *fakeUnitOfWork,
	entries *fakeQueueEntryRepo,
) *DistributionOrchestrator {
	t.Helper()

	if jobs == nil {
		jobs = &fakeBatchJobRepo{}
	}
	if uow == nil {
		uow = &fakeUnitOfWork{}
	}
	if entries == nil {
		entries = &fakeQueueEntryRepo{}
	}

	tracker, err := NewBatchJobTracker(jobs, nil)
	if err != nil {
		t.Fatalf("NewBatchJobTracker() error = %v", err)
	}
	uow.jobs = jobs
	uow.entries = entries

	orchestrator, err := NewDistributionOrchestrator(grouper, tracker, uow, entries, nil)
	if err != nil {
		t.Fatalf("NewDistributionOrchestrator() error = %v", err)
	}
	return orchestrator
}

func TestOrchestratorPreviewSummarizesScope(t *testing.T) {
	t.Parallel()

	grouper := &fakeGrouper{
		groupFn: func(ctx context.Context, scope domain.DistributionScope) (*GroupingResult, error) {
			return twoSponsorGrouping(), nil
		},
	}
	orchestrator := newTestOrchestrator(t, grouper, nil, nil, nil)

	preview, err := orchestrator.Preview(context.Background(), domain.DistributionScope{CohortID: "c1", PeriodID: "2026-S1"})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}

	if preview.TotalDocuments != 3 {
		t.Fatalf("totalDocuments = %d, want 3", preview.TotalDocuments)
	}
	if preview.DocumentsWithRecipients != 2 {
		t.Fatalf("documentsWithRecipients = %d, want 2", preview.DocumentsWithRecipients)
	}
	if preview.DistinctRecipients != 2 {
		t.Fatalf("distinctRecipients = %d, want 2", preview.DistinctRecipients)
	}
	if preview.DocumentsWithoutRecipient != 1 {
		t.Fatalf("documentsWithoutRecipient = %d, want 1", preview.DocumentsWithoutRecipient)
	}
}

func TestOrchestratorInitiateWithoutConfirmWritesNothing(t *testing.T) {
	t.Parallel()

	grouper := &fakeGrouper{
		groupFn: func(ctx context.Context, scope domain.DistributionScope) (*GroupingResult, error) {
			return twoSponsorGrouping(), nil
		},
	}
	uow := &fakeUnitOfWork{
		doFn: func(ctx context.Context, fn func(jobs repository.BatchJobRepository, entries repository.QueueEntryRepository) error) error {
			t.Fatal("unconfirmed initiate must not open a transaction")
			return nil
		},
	}
	orchestrator := newTestOrchestrator(t, grouper, nil, uow, nil)

	result, err := orchestrator.Initiate(context.Background(), domain.DistributionScope{CohortID: "c1", PeriodID: "2026-S1"}, "operator-1", false)
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}

	if result.Confirmed {
		t.Fatal("result must not report confirmed")
	}
	if result.JobID != "" || result.QueuedCount != 0 {
		t.Fatalf("result = %+v, want preview only", result)
	}
	if result.Preview == nil || result.Preview.DistinctRecipients != 2 {
		t.Fatalf("preview = %+v, want 2 distinct recipients", result.Preview)
	}
}

func TestOrchestratorInitiateConfirmedCreatesJobAndEntries(t *testing.T) {
	t.Parallel()

	grouper := &fakeGrouper{
		groupFn: func(ctx context.Context, scope domain.DistributionScope) (*GroupingResult, error) {
			return twoSponsorGrouping(), nil
		},
	}

	var createdJob *domain.BatchJob
	jobs := &fakeBatchJobRepo{
		createFn: func(ctx context.Context, j *domain.BatchJob) error {
			createdJob = j
			return nil
		},
	}

	var createdEntries []*domain.QueueEntry
	entries := &fakeQueueEntryRepo{
		createManyFn: func(ctx context.Context, batch []*domain.QueueEntry) error {
			createdEntries = batch
			return nil
		},
	}

	orchestrator := newTestOrchestrator(t, grouper, jobs, nil, entries)

	result, err := orchestrator.Initiate(context.Background(), domain.DistributionScope{CohortID: "c1", PeriodID: "2026-S1"}, "operator-1", true)
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}

	if !result.Confirmed || result.QueuedCount != 2 {
		t.Fatalf("result = %+v, want confirmed with 2 queued", result)
	}
	if createdJob == nil {
		t.Fatal("expected the job to be created")
	}
	if createdJob.TotalItems != 2 {
		t.Fatalf("job total = %d, want 2 (one per recipient, not per document)", createdJob.TotalItems)
	}
	if createdJob.InitiatorID != "operator-1" {
		t.Fatalf("initiator = %s, want operator-1", createdJob.InitiatorID)
	}
	if result.JobID != createdJob.ID {
		t.Fatalf("result job id = %s, want %s", result.JobID, createdJob.ID)
	}

	if len(createdEntries) != 2 {
		t.Fatalf("entries = %d, want 2", len(createdEntries))
	}
	anna := createdEntries[0]
	if anna.RecipientAddress != "anna@example.org" {
		t.Fatalf("first entry recipient = %s, want anna@example.org", anna.RecipientAddress)
	}
	if anna.BatchJobID == nil || *anna.BatchJobID != createdJob.ID {
		t.Fatal("entry must reference the batch job")
	}
	if anna.Priority != domain.PriorityReportCard {
		t.Fatalf("priority = %d, want %d", anna.Priority, domain.PriorityReportCard)
	}
	if anna.Status != domain.EntryStatusPending {
		t.Fatalf("status = %s, want PENDING", anna.Status)
	}
	if len(anna.Attachments) != 2 {
		t.Fatalf("anna attachments = %d, want 2", len(anna.Attachments))
	}
	if !strings.Contains(anna.BodyHTML, "Report card child-1") {
		t.Fatalf("body html = %q, want document titles listed", anna.BodyHTML)
	}
	if !strings.Contains(anna.Subject, "2026-S1") {
		t.Fatalf("subject = %q, want period reference", anna.Subject)
	}
}

func TestOrchestratorInitiateNoRecipients(t *testing.T) {
	t.Parallel()

	grouper := &fakeGrouper{
		groupFn: func(ctx context.Context, scope domain.DistributionScope) (*GroupingResult, error) {
			return &GroupingResult{TotalDocuments: 2, Unreachable: []domain.Document{{ID: "doc-1"}, {ID: "doc-2"}}}, nil
		},
	}
	orchestrator := newTestOrchestrator(t, grouper, nil, nil, nil)

	_, err := orchestrator.Initiate(context.Background(), domain.DistributionScope{CohortID: "c1", PeriodID: "2026-S1"}, "operator-1", true)
	if !errors.Is(err, domain.ErrNoRecipients) {
		t.Fatalf("error = %v, want ErrNoRecipients", err)
	}
}

func TestOrchestratorInitiateTransactionFailure(t *testing.T) {
	t.Parallel()

	grouper := &fakeGrouper{
		groupFn: func(ctx context.Context, scope domain.DistributionScope) (*GroupingResult, error) {
			return twoSponsorGrouping(), nil
		},
	}
	entries := &fakeQueueEntryRepo{
		createManyFn: func(ctx context.Context, batch []*domain.QueueEntry) error {
			return errors.New("unique constraint violated")
		},
	}
	orchestrator := newTestOrchestrator(t, grouper, nil, nil, entries)

	_, err := orchestrator.Initiate(context.Background(), domain.DistributionScope{CohortID: "c1", PeriodID: "2026-S1"}, "operator-1", true)
	if err == nil {
		t.Fatal("expected the entry failure to surface")
	}
	if !strings.Contains(err.Error(), "queue entries") {
		t.Fatalf("error = %v, want queue entry context", err)
	}
}

func TestOrchestratorRetryFailedRequeues(t *testing.T) {
	t.Parallel()

	entries := &fakeQueueEntryRepo{
		requeueFailedFn: func(ctx context.Context, jobID string) (int64, error) {
			return 3, nil
		},
	}
	orchestrator := newTestOrchestrator(t, &fakeGrouper{}, nil, nil, entries)

	requeued, err := orchestrator.RetryFailed(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("RetryFailed() error = %v", err)
	}
	if requeued != 3 {
		t.Fatalf("requeued = %d, want 3", requeued)
	}
}

func TestOrchestratorRetryFailedZeroIsValid(t *testing.T) {
	t.Parallel()

	orchestrator := newTestOrchestrator(t, &fakeGrouper{}, nil, nil, &fakeQueueEntryRepo{})

	requeued, err := orchestrator.RetryFailed(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("RetryFailed() error = %v", err)
	}
	if requeued != 0 {
		t.Fatalf("requeued = %d, want 0", requeued)
	}
}

func TestOrchestratorRetryFailedUnknownJob(t *testing.T) {
	t.Parallel()

	jobs := &fakeBatchJobRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.BatchJob, error) {
			return nil, domain.ErrNotFound
		},
	}
	orchestrator := newTestOrchestrator(t, &fakeGrouper{}, jobs, nil, nil)

	_, err := orchestrator.RetryFailed(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestOrchestratorCancelJobCancelsEntriesAndJob(t *testing.T) {
	t.Parallel()

	jobCanceled := false
	jobs := &fakeBatchJobRepo{
		finishFn: func(ctx context.Context, id string, update repository.FinishUpdate) error {
			if update.Status != domain.JobStatusCanceled {
				t.Fatalf("status = %s, want CANCELED", update.Status)
			}
			jobCanceled = true
			return nil
		},
	}
	entries := &fakeQueueEntryRepo{
		cancelByJobFn: func(ctx context.Context, jobID string) (int64, error) {
			return 4, nil
		},
	}
	orchestrator := newTestOrchestrator(t, &fakeGrouper{}, jobs, nil, entries)

	canceled, err := orchestrator.CancelJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("CancelJob() error = %v", err)
	}
	if canceled != 4 {
		t.Fatalf("canceled entries = %d, want 4", canceled)
	}
	if !jobCanceled {
		t.Fatal("expected the job record to be canceled")
	}
}

func TestOrchestratorStatusCombinesJobAndCounts(t *testing.T) {
	t.Parallel()

	jobs := &fakeBatchJobRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.BatchJob, error) {
			return &domain.BatchJob{ID: id, Status: domain.JobStatusInProgress, TotalItems: 10}, nil
		},
	}
	entries := &fakeQueueEntryRepo{
		statusCountsFn: func(ctx context.Context, jobID string) ([]repository.EntryStatusCount, error) {
			return []repository.EntryStatusCount{
				{Status: domain.EntryStatusSent, Count: 6},
				{Status: domain.EntryStatusFailed, Count: 1},
			}, nil
		},
	}
	orchestrator := newTestOrchestrator(t, &fakeGrouper{}, jobs, nil, entries)

	status, err := orchestrator.Status(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Job == nil || status.Job.ID != "job-1" {
		t.Fatalf("job = %+v, want job-1", status.Job)
	}
	if len(status.Counts) != 2 {
		t.Fatalf("counts = %d, want 2", len(status.Counts))
	}
}

type fakeGrouper struct {
	groupFn func(ctx context.Context, scope domain.DistributionScope) (*GroupingResult, error)
}

func (f *fakeGrouper) Group(ctx context.Context, scope domain.DistributionScope) (*GroupingResult, error) {
	if f.groupFn != nil {
		return f.groupFn(ctx, scope)
	}
	return &GroupingResult{}, nil
}

// fakeUnitOfWork runs the callback against the configured repos directly,
// without transactional semantics.
type fakeUnitOfWork struct {
	jobs    repository.BatchJobRepository
	entries repository.QueueEntryRepository
	doFn    func(ctx context.Context, fn func(jobs repository.BatchJobRepository, entries repository.QueueEntryRepository) error) error
}

func (f *fakeUnitOfWork) Do(ctx context.Context, fn func(jobs repository.BatchJobRepository, entries repository.QueueEntryRepository) error) error {
	if f.doFn != nil {
		return f.doFn(ctx, fn)
	}
	return fn(f.jobs, f.entries)
}
