package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

type message struct {
	MessageID  string `json:"message_id"`
	DocumentID string `json:"document_id"`
}

// RedisQueue is a reliable list queue: BRPOPLPUSH moves messages from the
// pending list to an in-flight list, and a per-message lease key with a TTL
// marks the visibility window. Messages still in-flight after their lease key
// expires are requeued by RequeueExpired.
type RedisQueue struct {
	client     *redis.Client
	name       string
	visibility time.Duration
}

func NewRedisQueue(client *redis.Client, name string, visibility time.Duration) *RedisQueue {
	return &RedisQueue{
		client:     client,
		name:       name,
		visibility: visibility,
	}
}

func (q *RedisQueue) inflightKey() string {
	return q.name + ":inflight"
}

func (q *RedisQueue) leaseKey(messageID string) string {
	return q.name + ":lease:" + messageID
}

func (q *RedisQueue) Enqueue(ctx context.Context, documentID string) error {
	raw, err := json.Marshal(message{
		MessageID:  uuid.NewString(),
		DocumentID: documentID,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := q.client.LPush(ctx, q.name, raw).Err(); err != nil {
		return fmt.Errorf("push message: %w", err)
	}

	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, pollTimeout time.Duration) (*Delivery, error) {
	raw, err := q.client.BRPopLPush(ctx, q.name, q.inflightKey(), pollTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop message: %w", err)
	}

	var msg message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		// A message we cannot decode would be redelivered forever.
		q.client.LRem(ctx, q.inflightKey(), 1, raw)
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}

	if err := q.client.Set(ctx, q.leaseKey(msg.MessageID), msg.DocumentID, q.visibility).Err(); err != nil {
		return nil, fmt.Errorf("write lease: %w", err)
	}

	return &Delivery{
		MessageID:  msg.MessageID,
		DocumentID: msg.DocumentID,
		raw:        raw,
	}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.inflightKey(), 1, d.raw)
	pipe.Del(ctx, q.leaseKey(d.MessageID))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack message: %w", err)
	}

	return nil
}

func (q *RedisQueue) Release(ctx context.Context, d *Delivery) error {
	removed, err := q.client.LRem(ctx, q.inflightKey(), 1, d.raw).Result()
	if err != nil {
		return fmt.Errorf("remove in-flight message: %w", err)
	}

	q.client.Del(ctx, q.leaseKey(d.MessageID))

	// Already requeued by the reaper; pushing again would duplicate it.
	if removed == 0 {
		return nil
	}

	if err := q.client.LPush(ctx, q.name, d.raw).Err(); err != nil {
		return fmt.Errorf("requeue message: %w", err)
	}

	return nil
}

func (q *RedisQueue) RequeueExpired(ctx context.Context) (int, error) {
	raws, err := q.client.LRange(ctx, q.inflightKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("list in-flight messages: %w", err)
	}

	requeued := 0
	for _, raw := range raws {
		var msg message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			q.client.LRem(ctx, q.inflightKey(), 1, raw)
			continue
		}

		held, err := q.client.Exists(ctx, q.leaseKey(msg.MessageID)).Result()
		if err != nil {
			return requeued, fmt.Errorf("check lease: %w", err)
		}
		if held > 0 {
			continue
		}

		removed, err := q.client.LRem(ctx, q.inflightKey(), 1, raw).Result()
		if err != nil {
			return requeued, fmt.Errorf("remove expired message: %w", err)
		}
		if removed == 0 {
			// Acked between the scan and the removal.
			continue
		}

		if err := q.client.LPush(ctx, q.name, raw).Err(); err != nil {
			return requeued, fmt.Errorf("requeue expired message: %w", err)
		}
		requeued++
	}

	return requeued, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
