package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	messageID  string
	documentID string
}

type inflightEntry struct {
	entry  memoryEntry
	expiry time.Time
}

// MemoryQueue implements the same at-least-once contract without a broker.
// Lease expiry follows an injectable clock so redelivery is testable without
// waiting out a real visibility timeout.
type MemoryQueue struct {
	mu         sync.Mutex
	pending    []memoryEntry
	inflight   map[string]inflightEntry
	visibility time.Duration
	now        func() time.Time
}

func NewMemoryQueue(visibility time.Duration) *MemoryQueue {
	return &MemoryQueue{
		inflight:   make(map[string]inflightEntry),
		visibility: visibility,
		now:        time.Now,
	}
}

// SetClock replaces the lease-expiry time source.
func (q *MemoryQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.now = now
}

func (q *MemoryQueue) Enqueue(_ context.Context, documentID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append(q.pending, memoryEntry{
		messageID:  uuid.NewString(),
		documentID: documentID,
	})

	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, pollTimeout time.Duration) (*Delivery, error) {
	deadline := time.Now().Add(pollTimeout)

	for {
		if d := q.tryDequeue(); d != nil {
			return d, nil
		}

		if time.Now().After(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (q *MemoryQueue) tryDequeue() *Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}

	entry := q.pending[0]
	q.pending = q.pending[1:]
	q.inflight[entry.messageID] = inflightEntry{
		entry:  entry,
		expiry: q.now().Add(q.visibility),
	}

	return &Delivery{
		MessageID:  entry.messageID,
		DocumentID: entry.documentID,
	}
}

func (q *MemoryQueue) Ack(_ context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.inflight, d.MessageID)

	return nil
}

func (q *MemoryQueue) Release(_ context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	held, ok := q.inflight[d.MessageID]
	if !ok {
		// Already requeued by the reaper.
		return nil
	}

	delete(q.inflight, d.MessageID)
	q.pending = append(q.pending, held.entry)

	return nil
}

func (q *MemoryQueue) RequeueExpired(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	requeued := 0

	for id, held := range q.inflight {
		if held.expiry.After(now) {
			continue
		}

		delete(q.inflight, id)
		q.pending = append(q.pending, held.entry)
		requeued++
	}

	return requeued, nil
}

func (q *MemoryQueue) Ping(_ context.Context) error {
	return nil
}

// Len reports how many messages are waiting for delivery.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}
