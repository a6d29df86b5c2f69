package statusstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"summaryd/internal/domain"
)

const keyPrefix = "job:"

// Lua keeps check-and-set atomic; a plain GET/SET pair would let two workers
// interleave between the read and the write.
var beginAttemptScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
	return {'missing', 0}
end
if status ~= 'pending' and status ~= 'processing' then
	return {status, 0}
end
local attempt = redis.call('HINCRBY', KEYS[1], 'attempt_count', 1)
redis.call('HSET', KEYS[1], 'status', 'processing', 'updated_at', ARGV[1])
return {'ok', attempt}
`)

var transitionScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
	return 'missing'
end
if status ~= ARGV[1] then
	return status
end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'updated_at', ARGV[3])
if ARGV[4] ~= '' then
	redis.call('HSET', KEYS[1], 'error_message', ARGV[4])
end
return 'ok'
`)

// RedisStore keeps one hash per document under job:{document_id}.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(documentID string) string {
	return keyPrefix + documentID
}

func (s *RedisStore) Create(ctx context.Context, documentID string) (*domain.Job, error) {
	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339Nano)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(documentID))
	pipe.HSet(ctx, s.key(documentID), map[string]interface{}{
		"status":        string(domain.StatusPending),
		"attempt_count": 0,
		"error_message": "",
		"created_at":    nowStr,
		"updated_at":    nowStr,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("write job record: %w", err)
	}

	return &domain.Job{
		DocumentID: documentID,
		Status:     domain.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *RedisStore) Get(ctx context.Context, documentID string) (*domain.Job, error) {
	fields, err := s.client.HGetAll(ctx, s.key(documentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read job record: %w", err)
	}

	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}

	return parseJob(documentID, fields)
}

func (s *RedisStore) BeginAttempt(ctx context.Context, documentID string) (*domain.Job, error) {
	now := time.Now().UTC()

	res, err := beginAttemptScript.Run(
		ctx,
		s.client,
		[]string{s.key(documentID)},
		now.Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("run begin attempt script: %w", err)
	}

	parts, ok := res.([]interface{})
	if !ok || len(parts) != 2 {
		return nil, fmt.Errorf("unexpected script result: %v", res)
	}

	code, _ := parts[0].(string)
	switch code {
	case "ok":
	case "missing":
		return nil, domain.ErrNotFound
	default:
		return nil, fmt.Errorf("%w: job is %s", domain.ErrConflict, code)
	}

	attempt, _ := parts[1].(int64)

	return s.jobAfterTransition(ctx, documentID, domain.StatusProcessing, int(attempt), now)
}

func (s *RedisStore) MarkCompleted(ctx context.Context, documentID string) error {
	return s.transition(ctx, documentID, domain.StatusProcessing, domain.StatusCompleted, "")
}

func (s *RedisStore) MarkFailed(ctx context.Context, documentID string, message string) error {
	if message == "" {
		message = "unknown error"
	}

	return s.transition(ctx, documentID, domain.StatusProcessing, domain.StatusFailed, message)
}

func (s *RedisStore) Requeue(ctx context.Context, documentID string) error {
	return s.transition(ctx, documentID, domain.StatusProcessing, domain.StatusPending, "")
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) transition(
	ctx context.Context,
	documentID string,
	from domain.Status,
	to domain.Status,
	message string,
) error {
	res, err := transitionScript.Run(
		ctx,
		s.client,
		[]string{s.key(documentID)},
		string(from),
		string(to),
		time.Now().UTC().Format(time.RFC3339Nano),
		message,
	).Result()
	if err != nil {
		return fmt.Errorf("run transition script: %w", err)
	}

	code, _ := res.(string)
	switch code {
	case "ok":
		return nil
	case "missing":
		return domain.ErrNotFound
	default:
		return fmt.Errorf("%w: job is %s, wanted %s", domain.ErrConflict, code, from)
	}
}

func (s *RedisStore) jobAfterTransition(
	ctx context.Context,
	documentID string,
	status domain.Status,
	attempt int,
	updatedAt time.Time,
) (*domain.Job, error) {
	createdAt, err := s.client.HGet(ctx, s.key(documentID), "created_at").Result()
	if err != nil {
		return nil, fmt.Errorf("read created_at: %w", err)
	}

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &domain.Job{
		DocumentID:   documentID,
		Status:       status,
		AttemptCount: attempt,
		CreatedAt:    created,
		UpdatedAt:    updatedAt,
	}, nil
}

func parseJob(documentID string, fields map[string]string) (*domain.Job, error) {
	status := domain.Status(fields["status"])
	if !status.Valid() {
		return nil, fmt.Errorf("invalid status %q for document %s", fields["status"], documentID)
	}

	attempt, err := strconv.Atoi(fields["attempt_count"])
	if err != nil {
		return nil, fmt.Errorf("parse attempt_count: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &domain.Job{
		DocumentID:   documentID,
		Status:       status,
		AttemptCount: attempt,
		ErrorMessage: fields["error_message"],
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}
