package statusstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"summaryd/internal/domain"
)

// MemoryStore mirrors the Redis semantics for tests and broker-less runs.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*domain.Job),
		now:  time.Now,
	}
}

// SetClock replaces the time source, for deterministic tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.now = now
}

func (s *MemoryStore) Create(_ context.Context, documentID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	job := &domain.Job{
		DocumentID: documentID,
		Status:     domain.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.jobs[documentID] = job

	cp := *job
	return &cp, nil
}

func (s *MemoryStore) Get(_ context.Context, documentID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[documentID]
	if !ok {
		return nil, domain.ErrNotFound
	}

	cp := *job
	return &cp, nil
}

func (s *MemoryStore) BeginAttempt(_ context.Context, documentID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[documentID]
	if !ok {
		return nil, domain.ErrNotFound
	}

	if !job.Status.CanTransition(domain.StatusProcessing) {
		return nil, fmt.Errorf("%w: job is %s", domain.ErrConflict, job.Status)
	}

	job.Status = domain.StatusProcessing
	job.AttemptCount++
	job.UpdatedAt = s.now().UTC()

	cp := *job
	return &cp, nil
}

func (s *MemoryStore) MarkCompleted(_ context.Context, documentID string) error {
	return s.transition(documentID, domain.StatusProcessing, domain.StatusCompleted, "")
}

func (s *MemoryStore) MarkFailed(_ context.Context, documentID string, message string) error {
	if message == "" {
		message = "unknown error"
	}

	return s.transition(documentID, domain.StatusProcessing, domain.StatusFailed, message)
}

func (s *MemoryStore) Requeue(_ context.Context, documentID string) error {
	return s.transition(documentID, domain.StatusProcessing, domain.StatusPending, "")
}

func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

func (s *MemoryStore) transition(
	documentID string,
	from domain.Status,
	to domain.Status,
	message string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[documentID]
	if !ok {
		return domain.ErrNotFound
	}

	if job.Status != from {
		return fmt.Errorf("%w: job is %s, wanted %s", domain.ErrConflict, job.Status, from)
	}

	job.Status = to
	job.UpdatedAt = s.now().UTC()
	if message != "" {
		job.ErrorMessage = message
	}

	return nil
}
