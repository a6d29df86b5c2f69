// Package worker runs the processing loop: dequeue, guard, summarize, write
// results, acknowledge. Workers share no in-process state; correctness under
// redelivery rests on the conditional status transitions and on the
// summarization call being safely re-invocable.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"summaryd/internal/domain"
	"summaryd/internal/queue"
	"summaryd/internal/resultstore"
	"summaryd/internal/statusstore"
	"summaryd/internal/summarizer"
)

type Config struct {
	// MaxAttempts is the retry budget R. The attempt that takes the
	// counter to R and still fails writes the failed status.
	MaxAttempts int
	// BackoffBase is the delay before the first retry; it doubles per
	// attempt.
	BackoffBase time.Duration
	// PollTimeout bounds one blocking dequeue.
	PollTimeout time.Duration
}

type Worker struct {
	statuses statusstore.Store
	results  resultstore.Store
	queue    queue.Queue
	summ     summarizer.Summarizer
	cfg      Config
	sleep    func(ctx context.Context, d time.Duration)
	log      *slog.Logger
}

func New(
	statuses statusstore.Store,
	results resultstore.Store,
	q queue.Queue,
	summ summarizer.Summarizer,
	cfg Config,
	log *slog.Logger,
) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}

	return &Worker{
		statuses: statuses,
		results:  results,
		queue:    q,
		summ:     summ,
		cfg:      cfg,
		sleep:    sleepWithContext,
		log:      log,
	}
}

// SetSleep replaces the backoff sleeper, for deterministic tests.
func (w *Worker) SetSleep(sleep func(ctx context.Context, d time.Duration)) {
	w.sleep = sleep
}

// Run loops until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, id int) {
	log := w.log.With("workerID", id)
	log.InfoContext(ctx, "Worker started")

	for {
		select {
		case <-ctx.Done():
			log.InfoContext(ctx, "Worker stopped")
			return
		default:
		}

		d, err := w.queue.Dequeue(ctx, w.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				log.InfoContext(ctx, "Worker stopped")
				return
			}

			log.ErrorContext(ctx, "Failed to dequeue",
				"error", err)
			w.sleep(ctx, w.cfg.PollTimeout)
			continue
		}
		if d == nil {
			continue
		}

		w.process(ctx, log, d)
	}
}

// process drives one delivery to exactly one queue outcome: an Ack on any
// terminal result, a Release on a retryable failure with budget left.
func (w *Worker) process(ctx context.Context, log *slog.Logger, d *queue.Delivery) {
	log = log.With("documentID", d.DocumentID, "messageID", d.MessageID)

	job, err := w.statuses.Get(ctx, d.DocumentID)
	if errors.Is(err, domain.ErrNotFound) {
		// A message without a job record: the submission order makes
		// this impossible for live jobs, so drop it.
		log.WarnContext(ctx, "Dropping message without job record")
		w.ack(ctx, log, d)
		return
	}
	if err != nil {
		log.ErrorContext(ctx, "Failed to read job record",
			"error", err)
		w.release(ctx, log, d)
		return
	}

	// Idempotency guard: a redelivered copy of a finished job carries no
	// work. A job still marked processing is re-admitted; its previous
	// holder lost the lease.
	if job.Status.Terminal() {
		log.InfoContext(ctx, "Discarding redelivered message for terminal job",
			"status", job.Status)
		w.ack(ctx, log, d)
		return
	}

	job, err = w.statuses.BeginAttempt(ctx, d.DocumentID)
	if errors.Is(err, domain.ErrConflict) {
		// Another worker finished the job between the read and the
		// transition.
		w.ack(ctx, log, d)
		return
	}
	if err != nil {
		log.ErrorContext(ctx, "Failed to begin attempt",
			"error", err)
		w.release(ctx, log, d)
		return
	}

	log.InfoContext(ctx, "Processing document",
		"attempt", job.AttemptCount)

	doc, err := w.results.Get(ctx, d.DocumentID)
	if err != nil {
		w.handleFailure(ctx, log, d, job, &domain.ProcessingError{
			Err:       fmt.Errorf("read source text: %w", err),
			Retryable: true,
		})
		return
	}

	summary, err := w.summ.Summarize(ctx, summarizer.Input{
		DocumentID: d.DocumentID,
		Text:       doc.SourceText,
	})
	if err != nil {
		w.handleFailure(ctx, log, d, job, err)
		return
	}

	// Result store first, status store second: a completed status must
	// never be observable before its summary is durable.
	if err := w.results.SetSummary(ctx, d.DocumentID, summary); err != nil {
		w.handleFailure(ctx, log, d, job, &domain.ProcessingError{
			Err:       fmt.Errorf("store summary: %w", err),
			Retryable: true,
		})
		return
	}

	if err := w.statuses.MarkCompleted(ctx, d.DocumentID); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Lost a redelivery race after the other copy already
			// finished; the stored summaries are equivalent.
			w.ack(ctx, log, d)
			return
		}

		log.ErrorContext(ctx, "Failed to mark job completed",
			"error", err)
		w.release(ctx, log, d)
		return
	}

	log.InfoContext(ctx, "Document summarized",
		"attempt", job.AttemptCount,
		"summaryBytes", len(summary))
	w.ack(ctx, log, d)
}

func (w *Worker) handleFailure(
	ctx context.Context,
	log *slog.Logger,
	d *queue.Delivery,
	job *domain.Job,
	err error,
) {
	retryable := domain.Retryable(err)

	if !retryable || job.AttemptCount >= w.cfg.MaxAttempts {
		log.ErrorContext(ctx, "Job failed",
			"error", err,
			"attempt", job.AttemptCount,
			"retryable", retryable)

		if markErr := w.statuses.MarkFailed(ctx, d.DocumentID, err.Error()); markErr != nil &&
			!errors.Is(markErr, domain.ErrConflict) {
			log.ErrorContext(ctx, "Failed to mark job failed",
				"error", markErr)
			w.release(ctx, log, d)
			return
		}

		w.ack(ctx, log, d)
		return
	}

	log.WarnContext(ctx, "Attempt failed, releasing for retry",
		"error", err,
		"attempt", job.AttemptCount)

	if requeueErr := w.statuses.Requeue(ctx, d.DocumentID); requeueErr != nil &&
		!errors.Is(requeueErr, domain.ErrConflict) {
		log.ErrorContext(ctx, "Failed to requeue job status",
			"error", requeueErr)
	}

	w.sleep(ctx, w.backoff(job.AttemptCount))
	w.release(ctx, log, d)
}

// backoff doubles per attempt: base, 2·base, 4·base, …
func (w *Worker) backoff(attempt int) time.Duration {
	d := w.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
	}

	return d
}

func (w *Worker) ack(ctx context.Context, log *slog.Logger, d *queue.Delivery) {
	if err := w.queue.Ack(ctx, d); err != nil {
		log.ErrorContext(ctx, "Failed to ack message",
			"error", err)
	}
}

func (w *Worker) release(ctx context.Context, log *slog.Logger, d *queue.Delivery) {
	if err := w.queue.Release(ctx, d); err != nil {
		log.ErrorContext(ctx, "Failed to release message",
			"error", err)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Pool runs the same worker loop on n goroutines. Workers coordinate only
// through the stores and the queue, never through each other.
type Pool struct {
	worker *Worker
	size   int
	log    *slog.Logger
}

func NewPool(worker *Worker, size int, log *slog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}

	return &Pool{worker: worker, size: size, log: log}
}

// Run blocks until ctx is cancelled and every worker goroutine has returned.
func (p *Pool) Run(ctx context.Context) {
	p.log.InfoContext(ctx, "Worker pool starting",
		"size", p.size)

	var wg sync.WaitGroup
	for i := 1; i <= p.size; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker.Run(ctx, id)
		}(i)
	}

	wg.Wait()
	p.log.Info("Worker pool stopped")
}
