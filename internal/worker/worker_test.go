package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"summaryd/internal/domain"
	"summaryd/internal/queue"
	"summaryd/internal/resultstore"
	"summaryd/internal/service"
	"summaryd/internal/statusstore"
	"summaryd/internal/summarizer"
)

const testVisibility = 5 * time.Minute

type stubSummarizer struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, input summarizer.Input) (string, error)
}

func (s *stubSummarizer) Summarize(_ context.Context, input summarizer.Input) (string, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	fn := s.fn
	s.mu.Unlock()

	if fn == nil {
		return "A short summary.", nil
	}

	return fn(call, input)
}

func (s *stubSummarizer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

type fixture struct {
	statuses *statusstore.MemoryStore
	results  *resultstore.MemoryStore
	queue    *queue.MemoryQueue
	svc      *service.Service
	summ     *stubSummarizer
	worker   *Worker
	backoffs []time.Duration
}

func newFixture(t *testing.T, summ *stubSummarizer) *fixture {
	t.Helper()

	f := &fixture{
		statuses: statusstore.NewMemoryStore(),
		results:  resultstore.NewMemoryStore(),
		queue:    queue.NewMemoryQueue(testVisibility),
		summ:     summ,
	}
	f.svc = service.New(f.statuses, f.results, f.queue, 0, slog.Default())
	f.worker = New(f.statuses, f.results, f.queue, summ, Config{
		MaxAttempts: 3,
		BackoffBase: 2 * time.Second,
		PollTimeout: 50 * time.Millisecond,
	}, slog.Default())
	f.worker.SetSleep(func(_ context.Context, d time.Duration) {
		f.backoffs = append(f.backoffs, d)
	})

	return f
}

func (f *fixture) processOne(t *testing.T) {
	t.Helper()

	d, err := f.queue.Dequeue(context.Background(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if d == nil {
		t.Fatalf("expected a delivery")
	}

	f.worker.process(context.Background(), slog.Default(), d)
}

func TestWorkerCompletesJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubSummarizer{})

	if _, err := f.svc.Submit(ctx, "doc1", "some long document text"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	f.processOne(t)

	job, err := f.statuses.Get(ctx, "doc1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
	if job.AttemptCount != 1 {
		t.Fatalf("expected 1 attempt, got %d", job.AttemptCount)
	}

	doc, err := f.results.Get(ctx, "doc1")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.SummaryText == nil || *doc.SummaryText != "A short summary." {
		t.Fatalf("unexpected summary: %v", doc.SummaryText)
	}

	if f.queue.Len() != 0 {
		t.Fatalf("expected the message to be acked, got %d pending", f.queue.Len())
	}
}

func TestWorkerSummaryVisibleOnlyWhenCompleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubSummarizer{})

	if _, err := f.svc.Submit(ctx, "doc1", "text"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Before processing: pending, no summary.
	doc, err := f.results.Get(ctx, "doc1")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.SummaryText != nil {
		t.Fatalf("summary present before completion")
	}

	f.processOne(t)

	job, _ := f.statuses.Get(ctx, "doc1")
	doc, _ = f.results.Get(ctx, "doc1")
	if (job.Status == domain.StatusCompleted) != (doc.SummaryText != nil) {
		t.Fatalf("summary/status invariant broken: status=%s summary=%v",
			job.Status, doc.SummaryText)
	}
}

func TestWorkerExhaustsRetriesOnTransientFailures(t *testing.T) {
	ctx := context.Background()
	summ := &stubSummarizer{
		fn: func(int, summarizer.Input) (string, error) {
			return "", &domain.ProcessingError{
				Err:       errors.New("rate limited"),
				Retryable: true,
			}
		},
	}
	f := newFixture(t, summ)

	if _, err := f.svc.Submit(ctx, "doc1", "text"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	for attempt := 1; attempt <= 3; attempt++ {
		f.processOne(t)
	}

	job, err := f.statuses.Get(ctx, "doc1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != domain.StatusFailed {
		t.Fatalf("expected failed after retry budget, got %s", job.Status)
	}
	if job.AttemptCount != 3 {
		t.Fatalf("expected attempt_count == 3, got %d", job.AttemptCount)
	}
	if job.ErrorMessage == "" {
		t.Fatalf("expected a recorded error message")
	}

	if summ.callCount() != 3 {
		t.Fatalf("expected 3 summarization calls, got %d", summ.callCount())
	}
	if f.queue.Len() != 0 {
		t.Fatalf("expected terminal ack, got %d pending", f.queue.Len())
	}

	// Exponential backoff before the first two releases, none after the
	// terminal failure.
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(f.backoffs) != len(want) {
		t.Fatalf("expected %d backoff sleeps, got %v", len(want), f.backoffs)
	}
	for i, d := range want {
		if f.backoffs[i] != d {
			t.Fatalf("backoff %d: got %s, want %s", i, f.backoffs[i], d)
		}
	}
}

func TestWorkerTerminalErrorFailsImmediately(t *testing.T) {
	ctx := context.Background()
	summ := &stubSummarizer{
		fn: func(int, summarizer.Input) (string, error) {
			return "", &domain.ProcessingError{
				Err:       errors.New("document too large for model"),
				Retryable: false,
			}
		},
	}
	f := newFixture(t, summ)

	if _, err := f.svc.Submit(ctx, "doc1", "text"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	f.processOne(t)

	job, err := f.statuses.Get(ctx, "doc1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.AttemptCount != 1 {
		t.Fatalf("expected a single attempt, got %d", job.AttemptCount)
	}
	if summ.callCount() != 1 {
		t.Fatalf("expected 1 call, got %d", summ.callCount())
	}
}

func TestWorkerDiscardsRedeliveredMessageForTerminalJob(t *testing.T) {
	ctx := context.Background()
	summ := &stubSummarizer{}
	f := newFixture(t, summ)

	if _, err := f.svc.Submit(ctx, "doc1", "text"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.processOne(t)

	// A duplicate delivery for the finished job must be dropped without
	// another summarization call.
	if err := f.queue.Enqueue(ctx, "doc1"); err != nil {
		t.Fatalf("enqueue duplicate: %v", err)
	}
	f.processOne(t)

	job, err := f.statuses.Get(ctx, "doc1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != domain.StatusCompleted || job.AttemptCount != 1 {
		t.Fatalf("terminal job mutated by duplicate delivery: %+v", job)
	}
	if summ.callCount() != 1 {
		t.Fatalf("duplicate delivery triggered a second call")
	}
	if f.queue.Len() != 0 {
		t.Fatalf("expected duplicate to be acked, got %d pending", f.queue.Len())
	}
}

func TestWorkerDropsMessageWithoutJobRecord(t *testing.T) {
	ctx := context.Background()
	summ := &stubSummarizer{}
	f := newFixture(t, summ)

	if err := f.queue.Enqueue(ctx, "ghost"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	f.processOne(t)

	if summ.callCount() != 0 {
		t.Fatalf("orphaned message reached the summarizer")
	}
	if f.queue.Len() != 0 {
		t.Fatalf("expected orphaned message to be dropped, got %d pending", f.queue.Len())
	}
}

func TestWorkerRecoversCrashedAttemptViaLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubSummarizer{})

	current := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	f.queue.SetClock(func() time.Time { return current })

	if _, err := f.svc.Submit(ctx, "doc1", "text"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// First worker dequeues, transitions to processing, then dies before
	// calling the model or acking.
	d, err := f.queue.Dequeue(ctx, 100*time.Millisecond)
	if err != nil || d == nil {
		t.Fatalf("dequeue: %v, %+v", err, d)
	}
	if _, err := f.statuses.BeginAttempt(ctx, "doc1"); err != nil {
		t.Fatalf("begin attempt: %v", err)
	}

	// Lease expires; the reaper returns the message.
	current = current.Add(testVisibility + time.Second)
	n, err := f.queue.RequeueExpired(ctx)
	if err != nil {
		t.Fatalf("requeue expired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 message requeued, got %d", n)
	}

	// A healthy worker re-admits the processing job and finishes it.
	f.processOne(t)

	job, err := f.statuses.Get(ctx, "doc1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != domain.StatusCompleted {
		t.Fatalf("expected completed after redelivery, got %s", job.Status)
	}
	if job.AttemptCount != 2 {
		t.Fatalf("expected attempt 2 after crash recovery, got %d", job.AttemptCount)
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t, &stubSummarizer{})

	done := make(chan struct{})
	go func() {
		f.worker.Run(ctx, 1)
		close(done)
	}()

	res, err := f.svc.Submit(ctx, "doc1", "a long article about queues")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", res.Status)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatalf("job did not complete in time")
		}

		status, err := f.svc.GetStatus(ctx, "doc1")
		if err != nil {
			t.Fatalf("get status: %v", err)
		}
		if status.Status == domain.StatusCompleted {
			break
		}
		if status.Status == domain.StatusFailed {
			t.Fatalf("job failed unexpectedly: %s", status.ErrorMessage)
		}

		time.Sleep(10 * time.Millisecond)
	}

	result, err := f.svc.GetResult(ctx, "doc1")
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if result.SummaryText != "A short summary." {
		t.Fatalf("unexpected summary: %q", result.SummaryText)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop after cancellation")
	}
}
