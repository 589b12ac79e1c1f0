package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a batch job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCanceled   JobStatus = "CANCELED"
)

func (s JobStatus) String() string { return string(s) }

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusInProgress, JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is permitted.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

func ParseJobStatusFromString(s string) (JobStatus, error) {
	st := JobStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid job status %q", ErrValidation, s)
	}
	return st, nil
}

// JobKindDistribution tags batch jobs created by the distribution orchestrator.
const JobKindDistribution = "REPORT_CARD_DISTRIBUTION"

// JobLogEntry is one append-only error log record on a batch job.
type JobLogEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
	Fatal   bool      `json:"fatal"`
}

// JobCounts carries the cumulative per-outcome tallies a worker maintains.
type JobCounts struct {
	Processed  int
	Successful int
	Failed     int
	Skipped    int
}

func (c JobCounts) Validate() error {
	if c.Processed < 0 || c.Successful < 0 || c.Failed < 0 || c.Skipped < 0 {
		return fmt.Errorf("%w: job counts must not be negative", ErrValidation)
	}
	if c.Processed != c.Successful+c.Failed+c.Skipped {
		return fmt.Errorf("%w: processed %d must equal successful %d + failed %d + skipped %d",
			ErrValidation, c.Processed, c.Successful, c.Failed, c.Skipped)
	}
	return nil
}

// BatchJob is the aggregate record of one distribution run.
type BatchJob struct {
	ID              string
	Kind            string
	Label           string
	ScopeRef        string
	InitiatorID     string
	Status          JobStatus
	TotalItems      int
	ProcessedItems  int
	SuccessfulItems int
	FailedItems     int
	SkippedItems    int
	ProgressPercent float64
	StartedAt       *time.Time
	CompletedAt     *time.Time
	EstimatedAt     *time.Time
	ResultSummary   *string
	ErrorLog        []JobLogEntry
	Metadata        map[string]string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProgressPercent computes the two-decimal progress value for a processed/total pair.
// Zero-total jobs report zero progress.
func ProgressPercent(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(processed)/float64(total)*10000) / 100
}

// EstimateCompletion projects a completion time from the observed linear rate.
// The estimate is undefined (nil) until at least one item has been processed.
func EstimateCompletion(startedAt, now time.Time, processed, total int) *time.Time {
	if processed <= 0 || total <= 0 || processed >= total {
		return nil
	}
	elapsed := now.Sub(startedAt)
	if elapsed <= 0 {
		return nil
	}
	remaining := time.Duration(float64(elapsed) / float64(processed) * float64(total-processed))
	eta := now.Add(remaining)
	return &eta
}
