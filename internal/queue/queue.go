// Package queue carries "process this document" messages from the submission
// service to workers. Delivery is at-least-once with a visibility-timeout
// lease; no ordering between messages is guaranteed, and downstream logic
// never assumes one.
package queue

import (
	"context"
	"time"
)

// Delivery is one leased message. The lease lasts until the visibility
// timeout expires; within it no other consumer receives the same message.
type Delivery struct {
	MessageID  string
	DocumentID string

	raw string
}

type Queue interface {
	// Enqueue makes a new message for documentID visible to consumers.
	Enqueue(ctx context.Context, documentID string) error

	// Dequeue blocks up to pollTimeout for a message. A nil delivery with
	// a nil error means the poll timed out with nothing to do.
	Dequeue(ctx context.Context, pollTimeout time.Duration) (*Delivery, error)

	// Ack deletes the message. Exactly one Ack happens per terminal
	// outcome of a job attempt chain.
	Ack(ctx context.Context, d *Delivery) error

	// Release returns the message to the queue for redelivery before the
	// lease expires.
	Release(ctx context.Context, d *Delivery) error

	// RequeueExpired returns in-flight messages whose lease has lapsed
	// (crashed or stalled consumers) to the queue. It reports how many
	// messages were moved.
	RequeueExpired(ctx context.Context) (int, error)

	Ping(ctx context.Context) error
}
