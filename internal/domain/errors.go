package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput rejects empty or oversized source text at submission.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound means no job exists for the requested document ID.
	ErrNotFound = errors.New("document not found")
	// ErrNotReady means the job has not reached a terminal state yet.
	ErrNotReady = errors.New("summary not ready")
	// ErrConflict means a conditional status transition lost to another
	// writer or targeted a terminal state.
	ErrConflict = errors.New("status transition conflict")
)

// JobFailedError is returned by result queries for jobs in the failed state.
type JobFailedError struct {
	Message string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job failed: %s", e.Message)
}

// ProcessingError classifies a failed summarization attempt. Retryable errors
// are released back to the queue until the attempt budget runs out; terminal
// ones fail the job immediately.
type ProcessingError struct {
	Err       error
	Retryable bool
}

func (e *ProcessingError) Error() string {
	return e.Err.Error()
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Retryable reports whether err may succeed on a later attempt. Errors that
// carry no classification are treated as retryable, matching how network-level
// failures behave.
func Retryable(err error) bool {
	var perr *ProcessingError
	if errors.As(err, &perr) {
		return perr.Retryable
	}

	return true
}
