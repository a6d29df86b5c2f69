// Package statusstore tracks job state keyed by document ID. Transitions are
// conditional writes so that concurrent workers racing on redelivered messages
// cannot revive a terminal job.
package statusstore

import (
	"context"

	"summaryd/internal/domain"
)

type Store interface {
	// Create writes a fresh pending record, replacing any previous one.
	// Resubmission of a failed document goes through here to reset the
	// attempt counter.
	Create(ctx context.Context, documentID string) (*domain.Job, error)

	// Get returns the current record or domain.ErrNotFound.
	Get(ctx context.Context, documentID string) (*domain.Job, error)

	// BeginAttempt atomically moves a pending or processing job to
	// processing and increments its attempt counter. It returns
	// domain.ErrConflict when the job is already terminal and
	// domain.ErrNotFound when no record exists.
	BeginAttempt(ctx context.Context, documentID string) (*domain.Job, error)

	// MarkCompleted moves processing → completed.
	MarkCompleted(ctx context.Context, documentID string) error

	// MarkFailed moves processing → failed and records the last error.
	MarkFailed(ctx context.Context, documentID string, message string) error

	// Requeue moves processing → pending before a retryable release.
	Requeue(ctx context.Context, documentID string) error

	Ping(ctx context.Context) error
}
