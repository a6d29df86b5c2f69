package statusstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"summaryd/internal/domain"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	created, err := store.Create(ctx, "doc1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", created.Status)
	}

	job, err := store.Get(ctx, "doc1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != domain.StatusPending || job.AttemptCount != 0 {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestMemoryStoreGetUnknown(t *testing.T) {
	store := NewMemoryStore()

	if _, err := store.Get(context.Background(), "unknown"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreBeginAttemptIncrements(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Create(ctx, "doc1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	job, err := store.BeginAttempt(ctx, "doc1")
	if err != nil {
		t.Fatalf("begin attempt: %v", err)
	}
	if job.Status != domain.StatusProcessing || job.AttemptCount != 1 {
		t.Fatalf("unexpected job after first attempt: %+v", job)
	}

	// Re-admission of a processing job (expired lease) increments again.
	job, err = store.BeginAttempt(ctx, "doc1")
	if err != nil {
		t.Fatalf("begin attempt again: %v", err)
	}
	if job.AttemptCount != 2 {
		t.Fatalf("expected attempt 2, got %d", job.AttemptCount)
	}
}

func TestMemoryStoreBeginAttemptOnTerminal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Create(ctx, "doc1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.BeginAttempt(ctx, "doc1"); err != nil {
		t.Fatalf("begin attempt: %v", err)
	}
	if err := store.MarkCompleted(ctx, "doc1"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	if _, err := store.BeginAttempt(ctx, "doc1"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict on completed job, got %v", err)
	}
}

func TestMemoryStoreMarkFailedRecordsMessage(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Create(ctx, "doc1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.BeginAttempt(ctx, "doc1"); err != nil {
		t.Fatalf("begin attempt: %v", err)
	}
	if err := store.MarkFailed(ctx, "doc1", "upstream exploded"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	job, err := store.Get(ctx, "doc1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.ErrorMessage != "upstream exploded" {
		t.Fatalf("unexpected error message: %q", job.ErrorMessage)
	}
}

func TestMemoryStoreCompletedFromPendingRejected(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Create(ctx, "doc1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.MarkCompleted(ctx, "doc1"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for pending -> completed, got %v", err)
	}
}

func TestMemoryStoreRequeue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Create(ctx, "doc1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.BeginAttempt(ctx, "doc1"); err != nil {
		t.Fatalf("begin attempt: %v", err)
	}
	if err := store.Requeue(ctx, "doc1"); err != nil {
		t.Fatalf("requeue: %v", err)
	}

	job, err := store.Get(ctx, "doc1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != domain.StatusPending {
		t.Fatalf("expected pending after requeue, got %s", job.Status)
	}
	if job.AttemptCount != 1 {
		t.Fatalf("expected attempt counter to survive requeue, got %d", job.AttemptCount)
	}
}

func TestMemoryStoreTimestampsAdvance(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	current := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return current })

	created, err := store.Create(ctx, "doc1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	current = current.Add(time.Minute)
	job, err := store.BeginAttempt(ctx, "doc1")
	if err != nil {
		t.Fatalf("begin attempt: %v", err)
	}

	if !job.UpdatedAt.After(created.UpdatedAt) {
		t.Fatalf("expected updated_at to advance: %v -> %v", created.UpdatedAt, job.UpdatedAt)
	}
	if !job.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("expected created_at to stay fixed")
	}
}

func TestMemoryStoreCreateResetsFailedJob(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Create(ctx, "doc1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.BeginAttempt(ctx, "doc1"); err != nil {
		t.Fatalf("begin attempt: %v", err)
	}
	if err := store.MarkFailed(ctx, "doc1", "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	job, err := store.Create(ctx, "doc1")
	if err != nil {
		t.Fatalf("re-create: %v", err)
	}
	if job.Status != domain.StatusPending || job.AttemptCount != 0 || job.ErrorMessage != "" {
		t.Fatalf("expected reset record, got %+v", job)
	}
}
