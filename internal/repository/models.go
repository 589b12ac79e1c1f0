package repository

import (
	"time"

	"github.com/kursadbilgin/report-dispatch/internal/domain"
)

// BatchJobModel is the persistence model for the batch_jobs table.
type BatchJobModel struct {
	ID              string           `gorm:"type:uuid;primaryKey"`
	Kind            string           `gorm:"type:varchar(50);not null"`
	Label           string           `gorm:"type:varchar(255);not null"`
	ScopeRef        string           `gorm:"type:varchar(100);not null"`
	InitiatorID     string           `gorm:"type:varchar(100);not null"`
	Status          domain.JobStatus `gorm:"type:varchar(20);not null"`
	TotalItems      int              `gorm:"not null"`
	ProcessedItems  int              `gorm:"not null;default:0"`
	SuccessfulItems int              `gorm:"not null;default:0"`
	FailedItems     int              `gorm:"not null;default:0"`
	SkippedItems    int              `gorm:"not null;default:0"`
	ProgressPercent float64          `gorm:"type:numeric(5,2);not null;default:0"`
	StartedAt       *time.Time
	CompletedAt     *time.Time
	EstimatedAt     *time.Time
	ResultSummary   *string              `gorm:"type:text"`
	ErrorLog        []domain.JobLogEntry `gorm:"type:jsonb;serializer:json"`
	Metadata        map[string]string    `gorm:"type:jsonb;serializer:json"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (BatchJobModel) TableName() string {
	return "batch_jobs"
}

// QueueEntryModel is the persistence model for the queue_entries table.
type QueueEntryModel struct {
	ID               string               `gorm:"type:uuid;primaryKey"`
	BatchJobID       *string              `gorm:"type:uuid"`
	RecipientAddress string               `gorm:"type:varchar(255);not null"`
	RecipientName    string               `gorm:"type:varchar(255)"`
	RecipientKind    domain.RecipientKind `gorm:"type:varchar(20);not null"`
	Subject          string               `gorm:"type:varchar(500);not null"`
	BodyHTML         string               `gorm:"type:text"`
	BodyText         string               `gorm:"type:text"`
	Attachments      []domain.AttachmentRef `gorm:"type:jsonb;serializer:json"`
	Status           domain.EntryStatus     `gorm:"type:varchar(20);not null"`
	Priority         int                    `gorm:"not null;default:5"`
	RetryCount       int                    `gorm:"not null;default:0"`
	MaxRetries       int                    `gorm:"not null;default:3"`
	LastRetryAt      *time.Time
	NextRetryAt      *time.Time
	SentAt           *time.Time
	ErrorMessage     *string           `gorm:"type:text"`
	ProviderMsgID    *string           `gorm:"type:varchar(255)"`
	ProviderResponse *string           `gorm:"type:text"`
	Metadata         map[string]string `gorm:"type:jsonb;serializer:json"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (QueueEntryModel) TableName() string {
	return "queue_entries"
}

func jobModelFromDomain(j *domain.BatchJob) *BatchJobModel {
	if j == nil {
		return nil
	}

	return &BatchJobModel{
		ID:              j.ID,
		Kind:            j.Kind,
		Label:           j.Label,
		ScopeRef:        j.ScopeRef,
		InitiatorID:     j.InitiatorID,
		Status:          j.Status,
		TotalItems:      j.TotalItems,
		ProcessedItems:  j.ProcessedItems,
		SuccessfulItems: j.SuccessfulItems,
		FailedItems:     j.FailedItems,
		SkippedItems:    j.SkippedItems,
		ProgressPercent: j.ProgressPercent,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
		EstimatedAt:     j.EstimatedAt,
		ResultSummary:   j.ResultSummary,
		ErrorLog:        j.ErrorLog,
		Metadata:        j.Metadata,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
}

func jobModelToDomain(m *BatchJobModel) *domain.BatchJob {
	if m == nil {
		return nil
	}

	return &domain.BatchJob{
		ID:              m.ID,
		Kind:            m.Kind,
		Label:           m.Label,
		ScopeRef:        m.ScopeRef,
		InitiatorID:     m.InitiatorID,
		Status:          m.Status,
		TotalItems:      m.TotalItems,
		ProcessedItems:  m.ProcessedItems,
		SuccessfulItems: m.SuccessfulItems,
		FailedItems:     m.FailedItems,
		SkippedItems:    m.SkippedItems,
		ProgressPercent: m.ProgressPercent,
		StartedAt:       m.StartedAt,
		CompletedAt:     m.CompletedAt,
		EstimatedAt:     m.EstimatedAt,
		ResultSummary:   m.ResultSummary,
		ErrorLog:        m.ErrorLog,
		Metadata:        m.Metadata,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func entryModelFromDomain(e *domain.QueueEntry) *QueueEntryModel {
	if e == nil {
		return nil
	}

	return &QueueEntryModel{
		ID:               e.ID,
		BatchJobID:       e.BatchJobID,
		RecipientAddress: e.RecipientAddress,
		RecipientName:    e.RecipientName,
		RecipientKind:    e.RecipientKind,
		Subject:          e.Subject,
		BodyHTML:         e.BodyHTML,
		BodyText:         e.BodyText,
		Attachments:      e.Attachments,
		Status:           e.Status,
		Priority:         e.Priority,
		RetryCount:       e.RetryCount,
		MaxRetries:       e.MaxRetries,
		LastRetryAt:      e.LastRetryAt,
		NextRetryAt:      e.NextRetryAt,
		SentAt:           e.SentAt,
		ErrorMessage:     e.ErrorMessage,
		ProviderMsgID:    e.ProviderMsgID,
		ProviderResponse: e.ProviderResponse,
		Metadata:         e.Metadata,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

func entryModelToDomain(m *QueueEntryModel) *domain.QueueEntry {
	if m == nil {
		return nil
	}

	return &domain.QueueEntry{
		ID:               m.ID,
		BatchJobID:       m.BatchJobID,
		RecipientAddress: m.RecipientAddress,
		RecipientName:    m.RecipientName,
		RecipientKind:    m.RecipientKind,
		Subject:          m.Subject,
		BodyHTML:         m.BodyHTML,
		BodyText:         m.BodyText,
		Attachments:      m.Attachments,
		Status:           m.Status,
		Priority:         m.Priority,
		RetryCount:       m.RetryCount,
		MaxRetries:       m.MaxRetries,
		LastRetryAt:      m.LastRetryAt,
		NextRetryAt:      m.NextRetryAt,
		SentAt:           m.SentAt,
		ErrorMessage:     m.ErrorMessage,
		ProviderMsgID:    m.ProviderMsgID,
		ProviderResponse: m.ProviderResponse,
		Metadata:         m.Metadata,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}
