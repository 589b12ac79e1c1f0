package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kursadbilgin/report-dispatch/internal/domain"
	"github.com/kursadbilgin/report-dispatch/internal/repository"
	"go.uber.org/zap"
)

// Grouper is the slice of the recipient grouper the orchestrator needs.
type Grouper interface {
	Group(ctx context.Context, scope domain.DistributionScope) (*GroupingResult, error)
}

// PreviewSummary is the confirmation payload shown before a real send.
type PreviewSummary struct {
	TotalDocuments            int `json:"totalDocuments"`
	DocumentsWithRecipients   int `json:"documentsWithRecipients"`
	DistinctRecipients        int `json:"distinctRecipients"`
	DocumentsWithoutRecipient int `json:"documentsWithoutRecipient"`
}

// InitiateResult reports what Initiate did. Without the confirm flag only
// Preview is populated and nothing was written.
type InitiateResult struct {
	Confirmed   bool
	JobID       string
	QueuedCount int
	Preview     *PreviewSummary
}

// JobStatusSummary is the operator-facing aggregate for one job.
type JobStatusSummary struct {
	Job    *domain.BatchJob
	Counts []repository.EntryStatusCount
}

// DistributionOrchestrator composes the grouper, the job tracker and the
// queue entry store to initiate distribution runs.
type DistributionOrchestrator struct {
	grouper Grouper
	tracker *BatchJobTracker
	uow     repository.UnitOfWork
	entries repository.QueueEntryRepository
	logger  *zap.Logger
	newID   func() string
}

func NewDistributionOrchestrator(
	grouper Grouper,
	tracker *BatchJobTracker,
	uow repository.UnitOfWork,
	entries repository.QueueEntryRepository,
	logger *zap.Logger,
) (*DistributionOrchestrator, error) {
	if grouper == nil {
		return nil, fmt.Errorf("grouper is required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("job tracker is required")
	}
	if uow == nil {
		return nil, fmt.Errorf("unit of work is required")
	}
	if entries == nil {
		return nil, fmt.Errorf("queue entry repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DistributionOrchestrator{
		grouper: grouper,
		tracker: tracker,
		uow:     uow,
		entries: entries,
		logger:  logger,
		newID:   uuid.NewString,
	}, nil
}

// Preview summarizes what a run over the scope would send. Read only and
// safe to call repeatedly.
func (o *DistributionOrchestrator) Preview(ctx context.Context, scope domain.DistributionScope) (*PreviewSummary, error) {
	grouping, err := o.grouper.Group(ctx, scope)
	if err != nil {
		return nil, err
	}
	return summarize(grouping), nil
}

// Initiate creates one batch job plus one queue entry per recipient group,
// committed together or not at all. Without confirm it returns the preview
// and writes nothing; this two-step gate guards against accidental mass-send.
func (o *DistributionOrchestrator) Initiate(
	ctx context.Context,
	scope domain.DistributionScope,
	initiatorID string,
	confirm bool,
) (*InitiateResult, error) {
	grouping, err := o.grouper.Group(ctx, scope)
	if err != nil {
		return nil, err
	}
	summary := summarize(grouping)

	if !confirm {
		return &InitiateResult{Preview: summary}, nil
	}

	if summary.DistinctRecipients == 0 {
		return nil, fmt.Errorf("%w: scope %s", domain.ErrNoRecipients, scope)
	}

	job, err := o.tracker.NewJob(CreateJobParams{
		Kind:        domain.JobKindDistribution,
		Label:       fmt.Sprintf("Report card distribution %s", scope),
		ScopeRef:    scope.String(),
		InitiatorID: initiatorID,
		Total:       summary.DistinctRecipients,
		Metadata: map[string]string{
			"cohortId": scope.CohortID,
			"periodId": scope.PeriodID,
		},
	})
	if err != nil {
		return nil, err
	}

	queueEntries := make([]*domain.QueueEntry, 0, len(grouping.Groups))
	for i := range grouping.Groups {
		entry, err := o.composeEntry(job.ID, scope, grouping.Groups[i])
		if err != nil {
			return nil, err
		}
		queueEntries = append(queueEntries, entry)
	}

	err = o.uow.Do(ctx, func(jobs repository.BatchJobRepository, entries repository.QueueEntryRepository) error {
		if err := jobs.Create(ctx, job); err != nil {
			return fmt.Errorf("failed to create batch job: %w", err)
		}
		if err := entries.CreateMany(ctx, queueEntries); err != nil {
			return fmt.Errorf("failed to create queue entries: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("distribution initiated",
		zap.String("jobId", job.ID),
		zap.String("scope", scope.String()),
		zap.String("initiator", initiatorID),
		zap.Int("recipients", len(queueEntries)),
	)

	return &InitiateResult{
		Confirmed:   true,
		JobID:       job.ID,
		QueuedCount: len(queueEntries),
		Preview:     summary,
	}, nil
}

// RetryFailed re-queues every failed entry of the job that still has retry
// budget. Zero re-queued is a valid outcome; the call is safe to repeat.
func (o *DistributionOrchestrator) RetryFailed(ctx context.Context, jobID string) (int64, error) {
	if _, err := o.tracker.GetJob(ctx, jobID); err != nil {
		return 0, err
	}

	requeued, err := o.entries.RequeueFailed(ctx, jobID)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue entries for job %s: %w", jobID, err)
	}

	o.logger.Info("failed entries requeued",
		zap.String("jobId", jobID),
		zap.Int64("requeued", requeued),
	)
	return requeued, nil
}

// CancelJob cancels the job's still-pending entries and the job record.
// Entries already processing run to completion.
func (o *DistributionOrchestrator) CancelJob(ctx context.Context, jobID string) (int64, error) {
	if _, err := o.tracker.GetJob(ctx, jobID); err != nil {
		return 0, err
	}

	canceled, err := o.entries.CancelByJob(ctx, jobID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel entries for job %s: %w", jobID, err)
	}

	if err := o.tracker.Cancel(ctx, jobID); err != nil {
		return canceled, err
	}

	o.logger.Info("batch job canceled",
		zap.String("jobId", jobID),
		zap.Int64("canceledEntries", canceled),
	)
	return canceled, nil
}

// Status returns the job record with its per-status entry breakdown.
func (o *DistributionOrchestrator) Status(ctx context.Context, jobID string) (*JobStatusSummary, error) {
	job, err := o.tracker.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	counts, err := o.entries.StatusCounts(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &JobStatusSummary{Job: job, Counts: counts}, nil
}

func (o *DistributionOrchestrator) composeEntry(
	jobID string,
	scope domain.DistributionScope,
	group RecipientGroup,
) (*domain.QueueEntry, error) {
	attachments := make([]domain.AttachmentRef, 0, len(group.Documents))
	var titles []string
	for _, doc := range group.Documents {
		attachments = append(attachments, domain.AttachmentRef{
			DocumentID: doc.ID,
			StorageKey: doc.StorageKey,
			FileName:   fmt.Sprintf("%s.pdf", doc.Title),
		})
		titles = append(titles, doc.Title)
	}

	entry := &domain.QueueEntry{
		ID:               o.newID(),
		BatchJobID:       &jobID,
		RecipientAddress: group.Recipient.Address,
		RecipientName:    group.Recipient.DisplayName,
		RecipientKind:    group.Recipient.Kind,
		Subject:          fmt.Sprintf("Report cards for period %s", scope.PeriodID),
		BodyHTML:         composeHTMLBody(group.Recipient.DisplayName, titles),
		BodyText:         composeTextBody(group.Recipient.DisplayName, titles),
		Attachments:      attachments,
		Status:           domain.EntryStatusPending,
		Priority:         domain.PriorityReportCard,
		MaxRetries:       domain.DefaultMaxRetries,
		Metadata: map[string]string{
			"cohortId": scope.CohortID,
			"periodId": scope.PeriodID,
		},
	}

	if err := entry.Validate(); err != nil {
		return nil, err
	}
	return entry, nil
}

func composeHTMLBody(name string, titles []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Dear %s,</p>", displayName(name))
	b.WriteString("<p>The following report cards are ready for you:</p><ul>")
	for _, title := range titles {
		fmt.Fprintf(&b, "<li>%s</li>", title)
	}
	b.WriteString("</ul><p>Access links are attached below and expire after a limited time.</p>")
	return b.String()
}

func composeTextBody(name string, titles []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\nThe following report cards are ready for you:\n", displayName(name))
	for _, title := range titles {
		fmt.Fprintf(&b, "- %s\n", title)
	}
	b.WriteString("\nAccess links are attached below and expire after a limited time.\n")
	return b.String()
}

func displayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "sponsor"
	}
	return name
}

func summarize(grouping *GroupingResult) *PreviewSummary {
	return &PreviewSummary{
		TotalDocuments:            grouping.TotalDocuments,
		DocumentsWithRecipients:   grouping.TotalDocuments - len(grouping.Unreachable),
		DistinctRecipients:        len(grouping.Groups),
		DocumentsWithoutRecipient: len(grouping.Unreachable),
	}
}
