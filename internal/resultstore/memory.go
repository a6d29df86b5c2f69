package resultstore

import (
	"context"
	"sync"
	"time"

	"summaryd/internal/domain"
)

// MemoryStore is a map-backed Store for tests.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]*domain.Document
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]*domain.Document),
		now:  time.Now,
	}
}

func (s *MemoryStore) PutSource(_ context.Context, documentID string, sourceText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()

	doc, ok := s.docs[documentID]
	if !ok {
		s.docs[documentID] = &domain.Document{
			DocumentID:   documentID,
			SourceText:   sourceText,
			SourceLength: len(sourceText),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return nil
	}

	doc.SourceText = sourceText
	doc.SourceLength = len(sourceText)
	doc.SummaryText = nil
	doc.SummaryLength = 0
	doc.UpdatedAt = now

	return nil
}

func (s *MemoryStore) SetSummary(_ context.Context, documentID string, summaryText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[documentID]
	if !ok {
		return domain.ErrNotFound
	}

	doc.SummaryText = &summaryText
	doc.SummaryLength = len(summaryText)
	doc.UpdatedAt = s.now().UTC()

	return nil
}

func (s *MemoryStore) Get(_ context.Context, documentID string) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[documentID]
	if !ok {
		return nil, domain.ErrNotFound
	}

	cp := *doc
	if doc.SummaryText != nil {
		summary := *doc.SummaryText
		cp.SummaryText = &summary
	}

	return &cp, nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
