package repository

import (
	"context"
	"time"

	"github.com/kursadbilgin/report-dispatch/internal/domain"
	"gorm.io/gorm"
)

// DocumentModel is the persistence model for the documents table. Rows are
// written by the report card production subsystem; this engine only reads them.
type DocumentModel struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	SubjectID  string `gorm:"type:uuid;not null"`
	CohortID   string `gorm:"type:varchar(100);not null"`
	PeriodID   string `gorm:"type:varchar(100);not null"`
	StorageKey string `gorm:"type:varchar(512);not null"`
	Title      string `gorm:"type:varchar(255);not null"`
	Finalized  bool   `gorm:"not null;default:false"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (DocumentModel) TableName() string {
	return "documents"
}

// RecipientModel is the persistence model for the sponsor_recipients table,
// maintained by the sponsorship subsystem.
type RecipientModel struct {
	ID          string               `gorm:"type:uuid;primaryKey"`
	SubjectID   string               `gorm:"type:uuid;not null"`
	Address     string               `gorm:"type:varchar(255);not null"`
	DisplayName string               `gorm:"type:varchar(255)"`
	Kind        domain.RecipientKind `gorm:"type:varchar(20);not null"`
	Active      bool                 `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (RecipientModel) TableName() string {
	return "sponsor_recipients"
}

// GormDocumentCatalog reads the production subsystem's document rows for one
// distribution scope.
type GormDocumentCatalog struct {
	db *gorm.DB
}

func NewGormDocumentCatalog(db *gorm.DB) *GormDocumentCatalog {
	return &GormDocumentCatalog{db: db}
}

func (r *GormDocumentCatalog) DocumentsInScope(ctx context.Context, scope domain.DistributionScope) ([]domain.Document, error) {
	var models []DocumentModel
	err := r.db.WithContext(ctx).
		Where("cohort_id = ? AND period_id = ?", scope.CohortID, scope.PeriodID).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	docs := make([]domain.Document, 0, len(models))
	for i := range models {
		docs = append(docs, domain.Document{
			ID:         models[i].ID,
			SubjectID:  models[i].SubjectID,
			StorageKey: models[i].StorageKey,
			Title:      models[i].Title,
			Finalized:  models[i].Finalized,
		})
	}
	return docs, nil
}

// GormRecipientDirectory resolves the sponsor contacts of one subject.
type GormRecipientDirectory struct {
	db *gorm.DB
}

func NewGormRecipientDirectory(db *gorm.DB) *GormRecipientDirectory {
	return &GormRecipientDirectory{db: db}
}

func (r *GormRecipientDirectory) RecipientsForSubject(ctx context.Context, subjectID string) ([]domain.Recipient, error) {
	var models []RecipientModel
	err := r.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("address ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	recipients := make([]domain.Recipient, 0, len(models))
	for i := range models {
		recipients = append(recipients, domain.Recipient{
			Address:     models[i].Address,
			DisplayName: models[i].DisplayName,
			Kind:        models[i].Kind,
			Active:      models[i].Active,
		})
	}
	return recipients, nil
}
