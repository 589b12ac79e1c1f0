package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/report-dispatch/internal/domain"
	"gorm.io/gorm"
)

// EntryStatusCount is one row of a per-job status breakdown.
type EntryStatusCount struct {
	Status domain.EntryStatus `gorm:"column:status"`
	Count  int                `gorm:"column:count"`
}

type QueueEntryRepository interface {
	CreateMany(ctx context.Context, entries []*domain.QueueEntry) error
	GetByID(ctx context.Context, id string) (*domain.QueueEntry, error)
	FetchDueForDelivery(ctx context.Context, limit int) ([]domain.QueueEntry, error)
	FetchDueForRetry(ctx context.Context, limit int) ([]domain.QueueEntry, error)
	MarkProcessing(ctx context.Context, id string) (*domain.QueueEntry, error)
	MarkSent(ctx context.Context, id, providerMsgID, providerResponse string) error
	MarkFailed(ctx context.Context, id, errorMessage string, plan domain.RetryPlan) error
	MarkBounced(ctx context.Context, id, reason string) error
	Cancel(ctx context.Context, id string) error
	CancelByJob(ctx context.Context, jobID string) (int64, error)
	RequeueFailed(ctx context.Context, jobID string) (int64, error)
	CumulativeCounts(ctx context.Context, jobID string) (domain.JobCounts, error)
	OpenEntryCount(ctx context.Context, jobID string) (int64, error)
	StatusCounts(ctx context.Context, jobID string) ([]EntryStatusCount, error)
}

// cancelableStatuses are the only states an entry may be canceled from.
var cancelableStatuses = []domain.EntryStatus{domain.EntryStatusPending, domain.EntryStatusQueued}

// claimableStatuses are the states a worker may claim an entry from. FAILED is
// included so retry pulls use the same claim primitive as first deliveries.
var claimableStatuses = []domain.EntryStatus{
	domain.EntryStatusPending,
	domain.EntryStatusQueued,
	domain.EntryStatusFailed,
}

type GormQueueEntryRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormQueueEntryRepo(db *gorm.DB) *GormQueueEntryRepo {
	return &GormQueueEntryRepo{db: db, now: time.Now}
}

func (r *GormQueueEntryRepo) CreateMany(ctx context.Context, entries []*domain.QueueEntry) error {
	models := make([]QueueEntryModel, 0, len(entries))
	modelIndexes := make([]int, 0, len(entries))
	for i, e := range entries {
		model := entryModelFromDomain(e)
		if model != nil {
			models = append(models, *model)
			modelIndexes = append(modelIndexes, i)
		}
	}

	if len(models) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).CreateInBatches(&models, 100).Error; err != nil {
		return err
	}

	for i := range models {
		idx := modelIndexes[i]
		if idx < len(entries) && entries[idx] != nil {
			*entries[idx] = *entryModelToDomain(&models[i])
		}
	}

	return nil
}

func (r *GormQueueEntryRepo) GetByID(ctx context.Context, id string) (*domain.QueueEntry, error) {
	var model QueueEntryModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entryModelToDomain(&model), nil
}

func (r *GormQueueEntryRepo) FetchDueForDelivery(ctx context.Context, limit int) ([]domain.QueueEntry, error) {
	var models []QueueEntryModel
	err := r.db.WithContext(ctx).
		Where("status IN ?", []domain.EntryStatus{domain.EntryStatusPending, domain.EntryStatusQueued}).
		Order("priority ASC, created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return entryModelsToDomain(models), nil
}

func (r *GormQueueEntryRepo) FetchDueForRetry(ctx context.Context, limit int) ([]domain.QueueEntry, error) {
	var models []QueueEntryModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND retry_count < max_retries AND (next_retry_at IS NULL OR next_retry_at <= ?)",
			domain.EntryStatusFailed, r.now()).
		Order("priority ASC, created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return entryModelsToDomain(models), nil
}

// MarkProcessing claims an entry for delivery. The conditional update is the
// claim primitive: only one worker can win. A nil entry with nil error means
// the claim was lost or the entry reached a terminal state in the meantime.
func (r *GormQueueEntryRepo) MarkProcessing(ctx context.Context, id string) (*domain.QueueEntry, error) {
	result := r.db.WithContext(ctx).
		Model(&QueueEntryModel{}).
		Where("id = ? AND status IN ?", id, claimableStatuses).
		Update("status", domain.EntryStatusProcessing)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	var model QueueEntryModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return entryModelToDomain(&model), nil
}

func (r *GormQueueEntryRepo) MarkSent(ctx context.Context, id, providerMsgID, providerResponse string) error {
	result := r.db.WithContext(ctx).
		Model(&QueueEntryModel{}).
		Where("id = ? AND status = ?", id, domain.EntryStatusProcessing).
		Updates(map[string]any{
			"status":            domain.EntryStatusSent,
			"sent_at":           r.now(),
			"provider_msg_id":   providerMsgID,
			"provider_response": providerResponse,
			"next_retry_at":     nil,
			"error_message":     nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormQueueEntryRepo) MarkFailed(ctx context.Context, id, errorMessage string, plan domain.RetryPlan) error {
	result := r.db.WithContext(ctx).
		Model(&QueueEntryModel{}).
		Where("id = ? AND status = ?", id, domain.EntryStatusProcessing).
		Updates(map[string]any{
			"status":        domain.EntryStatusFailed,
			"retry_count":   plan.RetryCount,
			"last_retry_at": r.now(),
			"next_retry_at": plan.NextRetryAt,
			"error_message": errorMessage,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormQueueEntryRepo) MarkBounced(ctx context.Context, id, reason string) error {
	result := r.db.WithContext(ctx).
		Model(&QueueEntryModel{}).
		Where("id = ? AND status = ?", id, domain.EntryStatusProcessing).
		Updates(map[string]any{
			"status":        domain.EntryStatusBounced,
			"next_retry_at": nil,
			"error_message": reason,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormQueueEntryRepo) Cancel(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&QueueEntryModel{}).
		Where("id = ? AND status IN ?", id, cancelableStatuses).
		Update("status", domain.EntryStatusCanceled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormQueueEntryRepo) CancelByJob(ctx context.Context, jobID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&QueueEntryModel{}).
		Where("batch_job_id = ? AND status IN ?", jobID, cancelableStatuses).
		Update("status", domain.EntryStatusCanceled)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormQueueEntryRepo) RequeueFailed(ctx context.Context, jobID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&QueueEntryModel{}).
		Where("batch_job_id = ? AND status = ? AND retry_count < max_retries",
			jobID, domain.EntryStatusFailed).
		Updates(map[string]any{
			"status":        domain.EntryStatusQueued,
			"next_retry_at": nil,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormQueueEntryRepo) CumulativeCounts(ctx context.Context, jobID string) (domain.JobCounts, error) {
	var row struct {
		Successful int `gorm:"column:successful"`
		Failed     int `gorm:"column:failed"`
		Skipped    int `gorm:"column:skipped"`
	}

	err := r.db.WithContext(ctx).
		Model(&QueueEntryModel{}).
		Select(`
			COUNT(*) FILTER (WHERE status = 'SENT') AS successful,
			COUNT(*) FILTER (WHERE status = 'BOUNCED' OR (status = 'FAILED' AND retry_count >= max_retries)) AS failed,
			COUNT(*) FILTER (WHERE status = 'CANCELED') AS skipped`).
		Where("batch_job_id = ?", jobID).
		Scan(&row).Error
	if err != nil {
		return domain.JobCounts{}, err
	}

	return domain.JobCounts{
		Processed:  row.Successful + row.Failed + row.Skipped,
		Successful: row.Successful,
		Failed:     row.Failed,
		Skipped:    row.Skipped,
	}, nil
}

func (r *GormQueueEntryRepo) OpenEntryCount(ctx context.Context, jobID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&QueueEntryModel{}).
		Where("batch_job_id = ? AND status IN ?", jobID, []domain.EntryStatus{
			domain.EntryStatusPending,
			domain.EntryStatusQueued,
			domain.EntryStatusProcessing,
		}).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *GormQueueEntryRepo) StatusCounts(ctx context.Context, jobID string) ([]EntryStatusCount, error) {
	var counts []EntryStatusCount
	err := r.db.WithContext(ctx).
		Model(&QueueEntryModel{}).
		Select("status, COUNT(*) as count").
		Where("batch_job_id = ?", jobID).
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func entryModelsToDomain(models []QueueEntryModel) []domain.QueueEntry {
	entries := make([]domain.QueueEntry, 0, len(models))
	for i := range models {
		entries = append(entries, *entryModelToDomain(&models[i]))
	}
	return entries
}
