package domain

import (
	"fmt"
	"strings"
	"time"
)

// EntryStatus represents the lifecycle state of a queue entry.
type EntryStatus string

const (
	EntryStatusPending    EntryStatus = "PENDING"
	EntryStatusQueued     EntryStatus = "QUEUED"
	EntryStatusProcessing EntryStatus = "PROCESSING"
	EntryStatusSent       EntryStatus = "SENT"
	EntryStatusFailed     EntryStatus = "FAILED"
	EntryStatusBounced    EntryStatus = "BOUNCED"
	EntryStatusCanceled   EntryStatus = "CANCELED"
)

func (s EntryStatus) String() string { return string(s) }

func (s EntryStatus) IsValid() bool {
	switch s {
	case EntryStatusPending, EntryStatusQueued, EntryStatusProcessing,
		EntryStatusSent, EntryStatusFailed, EntryStatusBounced, EntryStatusCanceled:
		return true
	}
	return false
}

func ParseEntryStatusFromString(s string) (EntryStatus, error) {
	st := EntryStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid entry status %q", ErrValidation, s)
	}
	return st, nil
}

// Entry priorities. Lower value drains first; priority strictly dominates age.
const (
	PriorityReportCard = 1
	PriorityDefault    = 5
)

const DefaultMaxRetries = 3

// AttachmentRef points at a document by stable id. Bytes are never stored on
// the entry; content is resolved to a time-limited URL just before send.
type AttachmentRef struct {
	DocumentID string `json:"documentId"`
	StorageKey string `json:"storageKey"`
	FileName   string `json:"fileName"`
}

// QueueEntry is one outbound message owed to one recipient.
type QueueEntry struct {
	ID               string
	BatchJobID       *string
	RecipientAddress string
	RecipientName    string
	RecipientKind    RecipientKind
	Subject          string
	BodyHTML         string
	BodyText         string
	Attachments      []AttachmentRef
	Status           EntryStatus
	Priority         int
	RetryCount       int
	MaxRetries       int
	LastRetryAt      *time.Time
	NextRetryAt      *time.Time
	SentAt           *time.Time
	ErrorMessage     *string
	ProviderMsgID    *string
	ProviderResponse *string
	Metadata         map[string]string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (e *QueueEntry) Validate() error {
	if strings.TrimSpace(e.RecipientAddress) == "" {
		return fmt.Errorf("%w: recipient address is required", ErrValidation)
	}
	if !e.RecipientKind.IsValid() {
		return fmt.Errorf("%w: invalid recipient kind %q", ErrValidation, e.RecipientKind)
	}
	if strings.TrimSpace(e.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if e.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrValidation)
	}
	if e.RetryCount > e.MaxRetries {
		return fmt.Errorf("%w: retry count %d exceeds max retries %d", ErrValidation, e.RetryCount, e.MaxRetries)
	}
	return nil
}

// IsTerminal reports whether the entry can no longer change state.
func (e *QueueEntry) IsTerminal() bool {
	switch e.Status {
	case EntryStatusSent, EntryStatusBounced, EntryStatusCanceled:
		return true
	case EntryStatusFailed:
		return e.RetryCount >= e.MaxRetries
	}
	return false
}

// HasRetryBudget reports whether a failed entry is still eligible for another attempt.
func (e *QueueEntry) HasRetryBudget() bool {
	return e.RetryCount < e.MaxRetries
}
