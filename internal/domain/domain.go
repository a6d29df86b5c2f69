package domain

import "time"

// Status is the lifecycle state of a summarization job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}

	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition encodes the job state machine. Besides the forward path
// pending → processing → {completed, failed}, two edges exist for redelivered
// work: processing → pending is the explicit requeue before a retry, and
// processing → processing re-admits a job whose previous lease expired.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusProcessing ||
			to == StatusPending ||
			to == StatusCompleted ||
			to == StatusFailed
	}

	return false
}

// Job is the status-store record tracked per document.
type Job struct {
	DocumentID   string
	Status       Status
	AttemptCount int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Document is the result-store record. SummaryText is nil until the job
// completes; SourceText is immutable after submission.
type Document struct {
	DocumentID    string
	SourceText    string
	SummaryText   *string
	SourceLength  int
	SummaryLength int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
