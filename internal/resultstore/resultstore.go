// Package resultstore is the durable, authoritative store for source texts
// and finished summaries. It is written before the status store commits, so a
// completed status always has a readable summary behind it.
package resultstore

import (
	"context"

	"summaryd/internal/domain"
)

type Store interface {
	// PutSource writes the original text for a document. On resubmission
	// of a failed document it replaces the source and clears any stale
	// summary.
	PutSource(ctx context.Context, documentID string, sourceText string) error

	// SetSummary materializes the summary for an existing document.
	// Returns domain.ErrNotFound when no record exists.
	SetSummary(ctx context.Context, documentID string, summaryText string) error

	// Get returns the full record or domain.ErrNotFound.
	Get(ctx context.Context, documentID string) (*domain.Document, error)

	Ping(ctx context.Context) error

	Close() error
}
