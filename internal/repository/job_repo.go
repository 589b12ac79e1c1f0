package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/report-dispatch/internal/domain"
	"gorm.io/gorm"
)

// ProgressUpdate carries everything a progress write persists in one statement.
type ProgressUpdate struct {
	Counts      domain.JobCounts
	Percent     float64
	EstimatedAt *time.Time
	ErrorLog    []domain.JobLogEntry
}

// FinishUpdate moves a job into a terminal state.
type FinishUpdate struct {
	Status  domain.JobStatus
	Percent *float64
	Summary *string
	At      time.Time
}

type BatchJobRepository interface {
	Create(ctx context.Context, j *domain.BatchJob) error
	GetByID(ctx context.Context, id string) (*domain.BatchJob, error)
	ListByStatus(ctx context.Context, status domain.JobStatus) ([]domain.BatchJob, error)
	StartIfPending(ctx context.Context, id string, at time.Time) (bool, error)
	SaveProgress(ctx context.Context, id string, update ProgressUpdate) error
	Finish(ctx context.Context, id string, update FinishUpdate) error
}

var nonTerminalJobStatuses = []domain.JobStatus{domain.JobStatusPending, domain.JobStatusInProgress}

type GormBatchJobRepo struct {
	db *gorm.DB
}

func NewGormBatchJobRepo(db *gorm.DB) *GormBatchJobRepo {
	return &GormBatchJobRepo{db: db}
}

func (r *GormBatchJobRepo) Create(ctx context.Context, j *domain.BatchJob) error {
	model := jobModelFromDomain(j)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if j != nil {
		*j = *jobModelToDomain(model)
	}
	return nil
}

func (r *GormBatchJobRepo) GetByID(ctx context.Context, id string) (*domain.BatchJob, error) {
	var model BatchJobModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return jobModelToDomain(&model), nil
}

func (r *GormBatchJobRepo) ListByStatus(ctx context.Context, status domain.JobStatus) ([]domain.BatchJob, error) {
	var models []BatchJobModel
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	jobs := make([]domain.BatchJob, 0, len(models))
	for i := range models {
		jobs = append(jobs, *jobModelToDomain(&models[i]))
	}
	return jobs, nil
}

// StartIfPending transitions PENDING to IN_PROGRESS. The false return means
// another caller got there first, which is not an error.
func (r *GormBatchJobRepo) StartIfPending(ctx context.Context, id string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&BatchJobModel{}).
		Where("id = ? AND status = ?", id, domain.JobStatusPending).
		Updates(map[string]any{
			"status":     domain.JobStatusInProgress,
			"started_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormBatchJobRepo) SaveProgress(ctx context.Context, id string, update ProgressUpdate) error {
	logJSON, err := json.Marshal(update.ErrorLog)
	if err != nil {
		return fmt.Errorf("failed to encode job error log: %w", err)
	}

	result := r.db.WithContext(ctx).
		Model(&BatchJobModel{}).
		Where("id = ? AND status IN ?", id, nonTerminalJobStatuses).
		Updates(map[string]any{
			"processed_items":  update.Counts.Processed,
			"successful_items": update.Counts.Successful,
			"failed_items":     update.Counts.Failed,
			"skipped_items":    update.Counts.Skipped,
			"progress_percent": update.Percent,
			"estimated_at":     update.EstimatedAt,
			"error_log":        string(logJSON),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormBatchJobRepo) Finish(ctx context.Context, id string, update FinishUpdate) error {
	fields := map[string]any{
		"status":       update.Status,
		"completed_at": update.At,
		"estimated_at": nil,
	}
	if update.Percent != nil {
		fields["progress_percent"] = *update.Percent
	}
	if update.Summary != nil {
		fields["result_summary"] = *update.Summary
	}

	result := r.db.WithContext(ctx).
		Model(&BatchJobModel{}).
		Where("id = ? AND status IN ?", id, nonTerminalJobStatuses).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}
