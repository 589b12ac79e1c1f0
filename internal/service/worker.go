package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/report-dispatch/internal/domain"
	"github.com/kursadbilgin/report-dispatch/internal/mailer"
	"github.com/kursadbilgin/report-dispatch/internal/observability"
	"github.com/kursadbilgin/report-dispatch/internal/repository"
	"github.com/kursadbilgin/report-dispatch/internal/storage"
	"go.uber.org/zap"
)

const (
	defaultBatchSize     = 50
	defaultAttachmentTTL = 24 * time.Hour
)

// JobTracker is the slice of the batch job tracker the worker needs.
type JobTracker interface {
	Start(ctx context.Context, id string) (bool, error)
	UpdateProgress(ctx context.Context, id string, counts domain.JobCounts, errMsg *string) error
	Complete(ctx context.Context, id, summary string) error
	ListInProgress(ctx context.Context) ([]domain.BatchJob, error)
}

// RunResult is the tally of one dispatch run.
type RunResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// DispatchWorker drains due queue entries through the mail transport.
// Entries are processed sequentially: the transport is a shared rate-limited
// resource, and sequential ownership keeps per-entry transitions race free.
type DispatchWorker struct {
	entries       repository.QueueEntryRepository
	tracker       JobTracker
	documents     storage.DocumentStore
	mail          mailer.Mailer
	logger        *zap.Logger
	metrics       *observability.Metrics
	attachmentTTL time.Duration
	now           func() time.Time
}

func NewDispatchWorker(
	entries repository.QueueEntryRepository,
	tracker JobTracker,
	documents storage.DocumentStore,
	mail mailer.Mailer,
	attachmentTTL time.Duration,
	logger *zap.Logger,
) (*DispatchWorker, error) {
	if entries == nil {
		return nil, fmt.Errorf("queue entry repository is required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("job tracker is required")
	}
	if documents == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if mail == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if attachmentTTL <= 0 {
		attachmentTTL = defaultAttachmentTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchWorker{
		entries:       entries,
		tracker:       tracker,
		documents:     documents,
		mail:          mail,
		logger:        logger,
		attachmentTTL: attachmentTTL,
		now:           time.Now,
	}, nil
}

func (w *DispatchWorker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// RunOnce pulls one bounded batch of due entries and delivers them. First
// deliveries drain before retries; the retry pull only gets the leftover
// budget. Per-entry failures are captured in the tally and the entry record,
// never raised; only store-level faults propagate.
func (w *DispatchWorker) RunOnce(ctx context.Context, batchSize int) (RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	runStart := w.now()
	var result RunResult

	due, err := w.entries.FetchDueForDelivery(ctx, batchSize)
	if err != nil {
		return result, fmt.Errorf("failed to fetch due entries: %w", err)
	}
	if remaining := batchSize - len(due); remaining > 0 {
		retries, err := w.entries.FetchDueForRetry(ctx, remaining)
		if err != nil {
			return result, fmt.Errorf("failed to fetch due retries: %w", err)
		}
		due = append(due, retries...)
	}

	touchedJobs := make(map[string]bool)

	for i := range due {
		entry, err := w.entries.MarkProcessing(ctx, due[i].ID)
		if err != nil {
			return result, fmt.Errorf("failed to claim entry %s: %w", due[i].ID, err)
		}
		// Nil means another worker won the claim or the entry moved on; skip.
		if entry == nil {
			continue
		}

		if entry.BatchJobID != nil && !touchedJobs[*entry.BatchJobID] {
			touchedJobs[*entry.BatchJobID] = true
			if _, err := w.tracker.Start(ctx, *entry.BatchJobID); err != nil {
				return result, fmt.Errorf("failed to start job %s: %w", *entry.BatchJobID, err)
			}
		}

		sent, err := w.deliver(ctx, entry)
		if err != nil {
			return result, err
		}

		result.Processed++
		if sent {
			result.Sent++
		} else {
			result.Failed++
		}
	}

	if err := w.pushJobProgress(ctx, touchedJobs); err != nil {
		return result, err
	}

	if w.metrics != nil {
		w.metrics.ObserveDispatchRunDuration(w.now().Sub(runStart))
	}

	return result, nil
}

// deliver sends one claimed entry and records the outcome. The bool reports
// delivery success; the error is reserved for store-level faults.
func (w *DispatchWorker) deliver(ctx context.Context, entry *domain.QueueEntry) (bool, error) {
	if w.metrics != nil {
		w.metrics.IncEntriesInFlight()
		defer w.metrics.DecEntriesInFlight()
	}

	msg, buildErr := w.buildMessage(ctx, entry)

	var sendErr error
	if buildErr != nil {
		sendErr = buildErr
	} else {
		var res *mailer.SendResult
		sendStart := w.now()
		res, sendErr = w.mail.Send(ctx, msg)
		if w.metrics != nil {
			w.metrics.ObserveMailSendDuration(w.now().Sub(sendStart))
		}

		if sendErr == nil {
			if err := w.entries.MarkSent(ctx, entry.ID, res.MessageID, res.ProviderResponse); err != nil {
				return false, w.tolerateLostClaim(entry.ID, "sent", err)
			}
			if w.metrics != nil {
				w.metrics.IncMailSent()
			}
			return true, nil
		}
	}

	if mailer.IsBounce(sendErr) {
		if err := w.entries.MarkBounced(ctx, entry.ID, sendErr.Error()); err != nil {
			return false, w.tolerateLostClaim(entry.ID, "bounced", err)
		}
		if w.metrics != nil {
			w.metrics.IncMailBounced()
		}
		w.logger.Warn("entry bounced",
			zap.String("entryId", entry.ID),
			zap.String("recipient", entry.RecipientAddress),
			zap.Error(sendErr),
		)
		return false, nil
	}

	plan := domain.PlanRetry(entry.RetryCount, entry.MaxRetries, w.now().UTC())
	if err := w.entries.MarkFailed(ctx, entry.ID, sendErr.Error(), plan); err != nil {
		return false, w.tolerateLostClaim(entry.ID, "failed", err)
	}
	if w.metrics != nil {
		if plan.Terminal {
			w.metrics.IncMailFailed("retry_exhausted")
		} else {
			w.metrics.IncMailFailed("transient_error")
			w.metrics.IncRetryScheduled()
		}
	}
	w.logger.Warn("entry delivery failed",
		zap.String("entryId", entry.ID),
		zap.Int("retryCount", plan.RetryCount),
		zap.Bool("terminal", plan.Terminal),
		zap.Error(sendErr),
	)
	return false, nil
}

// buildMessage resolves the entry's attachment references into time-limited
// URLs just before send. Signed URLs are never persisted.
func (w *DispatchWorker) buildMessage(ctx context.Context, entry *domain.QueueEntry) (mailer.Message, error) {
	msg := mailer.Message{
		To:      entry.RecipientAddress,
		ToName:  entry.RecipientName,
		Subject: entry.Subject,
		HTML:    entry.BodyHTML,
		Text:    entry.BodyText,
	}

	for _, ref := range entry.Attachments {
		url, err := w.documents.SignedURL(ctx, ref.StorageKey, w.attachmentTTL)
		if err != nil {
			return mailer.Message{}, &mailer.MailError{
				Code:      "attachment_unavailable",
				Message:   fmt.Sprintf("failed to resolve document %s", ref.DocumentID),
				Transient: true,
				Cause:     err,
			}
		}
		msg.Attachments = append(msg.Attachments, mailer.Attachment{
			FileName: ref.FileName,
			URL:      url,
		})
	}

	return msg, nil
}

// pushJobProgress writes the cumulative tallies for every job touched this
// run. A terminal job rejecting the update is logged and skipped; the
// delivery already happened and the aggregate is best effort at that point.
func (w *DispatchWorker) pushJobProgress(ctx context.Context, touched map[string]bool) error {
	for jobID := range touched {
		counts, err := w.entries.CumulativeCounts(ctx, jobID)
		if err != nil {
			return fmt.Errorf("failed to count entries for job %s: %w", jobID, err)
		}
		if err := w.tracker.UpdateProgress(ctx, jobID, counts, nil); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				w.logger.Warn("skipping progress update on terminal job", zap.String("jobId", jobID))
				continue
			}
			return fmt.Errorf("failed to update progress for job %s: %w", jobID, err)
		}
	}
	return nil
}

// tolerateLostClaim downgrades a lost-claim conflict to a log line. Any other
// store fault propagates.
func (w *DispatchWorker) tolerateLostClaim(entryID, outcome string, err error) error {
	if errors.Is(err, domain.ErrConflict) {
		w.logger.Warn("entry state changed before outcome could be recorded",
			zap.String("entryId", entryID),
			zap.String("outcome", outcome),
		)
		return nil
	}
	return fmt.Errorf("failed to mark entry %s %s: %w", entryID, outcome, err)
}

// SweepCompletions closes out every in-progress job with no open entries
// left. Completion is detected eventually rather than instantly; the status
// is a pure aggregate.
func (w *DispatchWorker) SweepCompletions(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	jobs, err := w.tracker.ListInProgress(ctx)
	if err != nil {
		return fmt.Errorf("failed to list in-progress jobs: %w", err)
	}

	for i := range jobs {
		job := jobs[i]

		open, err := w.entries.OpenEntryCount(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("failed to count open entries for job %s: %w", job.ID, err)
		}
		if open > 0 {
			continue
		}

		counts, err := w.entries.CumulativeCounts(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("failed to count entries for job %s: %w", job.ID, err)
		}

		if err := w.tracker.UpdateProgress(ctx, job.ID, counts, nil); err != nil && !errors.Is(err, domain.ErrConflict) {
			return fmt.Errorf("failed to store final counts for job %s: %w", job.ID, err)
		}

		summary := fmt.Sprintf("delivered %d of %d, failed %d, skipped %d",
			counts.Successful, job.TotalItems, counts.Failed, counts.Skipped)
		if err := w.tracker.Complete(ctx, job.ID, summary); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			return fmt.Errorf("failed to complete job %s: %w", job.ID, err)
		}

		if w.metrics != nil {
			w.metrics.IncJobsCompleted()
		}
		w.logger.Info("batch job completed",
			zap.String("jobId", job.ID),
			zap.String("summary", summary),
		)
	}

	return nil
}
