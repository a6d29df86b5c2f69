// Package service implements the public operations of the pipeline: submit,
// status lookup, and result lookup. It is stateless with respect to job data;
// everything shared lives in the stores and the queue.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"summaryd/internal/domain"
	"summaryd/internal/queue"
	"summaryd/internal/resultstore"
	"summaryd/internal/statusstore"
)

type Service struct {
	statuses       statusstore.Store
	results        resultstore.Store
	queue          queue.Queue
	maxSourceBytes int
	log            *slog.Logger
}

func New(
	statuses statusstore.Store,
	results resultstore.Store,
	q queue.Queue,
	maxSourceBytes int,
	log *slog.Logger,
) *Service {
	return &Service{
		statuses:       statuses,
		results:        results,
		queue:          q,
		maxSourceBytes: maxSourceBytes,
		log:            log,
	}
}

type SubmitResult struct {
	DocumentID string
	Status     domain.Status
}

type StatusResult struct {
	DocumentID   string
	Status       domain.Status
	AttemptCount int
	ErrorMessage string
	UpdatedAt    time.Time
}

type Result struct {
	DocumentID  string
	SummaryText string
}

// Submit validates and persists a document, then enqueues it for
// summarization. The write order (source text, then status, then queue
// message) guarantees a worker never sees a queued job without its records;
// a crash mid-submission leaves an orphaned record, never an orphaned
// message.
//
// Submission is idempotent per document: while a job is pending, processing,
// or completed, resubmitting returns the current status without enqueuing a
// second message. Resubmitting a failed document is the explicit retry path
// and starts the job over.
func (s *Service) Submit(ctx context.Context, documentID string, text string) (*SubmitResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is empty", domain.ErrInvalidInput)
	}
	if s.maxSourceBytes > 0 && len(text) > s.maxSourceBytes {
		return nil, fmt.Errorf(
			"%w: text is %d bytes, limit is %d",
			domain.ErrInvalidInput,
			len(text),
			s.maxSourceBytes,
		)
	}

	if documentID == "" {
		documentID = uuid.NewString()
	}

	existing, err := s.statuses.Get(ctx, documentID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("check existing job: %w", err)
	}
	if existing != nil && existing.Status != domain.StatusFailed {
		s.log.InfoContext(ctx, "Duplicate submission",
			"documentID", documentID,
			"status", existing.Status)

		return &SubmitResult{
			DocumentID: documentID,
			Status:     existing.Status,
		}, nil
	}

	if err := s.results.PutSource(ctx, documentID, text); err != nil {
		return nil, fmt.Errorf("store source text: %w", err)
	}

	job, err := s.statuses.Create(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("create job record: %w", err)
	}

	if err := s.queue.Enqueue(ctx, documentID); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.log.InfoContext(ctx, "Job submitted",
		"documentID", documentID,
		"sourceBytes", len(text))

	return &SubmitResult{
		DocumentID: documentID,
		Status:     job.Status,
	}, nil
}

// GetStatus is a pure read against the status store.
func (s *Service) GetStatus(ctx context.Context, documentID string) (*StatusResult, error) {
	job, err := s.statuses.Get(ctx, documentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}

		return nil, fmt.Errorf("read job record: %w", err)
	}

	return &StatusResult{
		DocumentID:   documentID,
		Status:       job.Status,
		AttemptCount: job.AttemptCount,
		ErrorMessage: job.ErrorMessage,
		UpdatedAt:    job.UpdatedAt,
	}, nil
}

// GetResult returns the summary once the job completed. Before that it
// returns domain.ErrNotReady, and for failed jobs a domain.JobFailedError
// carrying the recorded message.
func (s *Service) GetResult(ctx context.Context, documentID string) (*Result, error) {
	job, err := s.statuses.Get(ctx, documentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}

		return nil, fmt.Errorf("read job record: %w", err)
	}

	switch job.Status {
	case domain.StatusCompleted:
	case domain.StatusFailed:
		return nil, &domain.JobFailedError{Message: job.ErrorMessage}
	default:
		return nil, fmt.Errorf("%w: job is %s", domain.ErrNotReady, job.Status)
	}

	doc, err := s.results.Get(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	// The status store commits completed only after the summary write, so
	// a missing summary here is a real inconsistency, not a read race.
	if doc.SummaryText == nil {
		return nil, fmt.Errorf("summary missing for completed document %s", documentID)
	}

	return &Result{
		DocumentID:  documentID,
		SummaryText: *doc.SummaryText,
	}, nil
}
