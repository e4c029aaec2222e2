package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "idempotency:record:"

// redisRecord is the wire form of a record in Redis. Status and outcome
// travel together in a single value so Begin needs one round trip.
type redisRecord struct {
	Fingerprint   string          `json:"fingerprint"`
	Status        string          `json:"status"` // in_progress | completed | failed
	Result        json.RawMessage `json:"result,omitempty"`
	FailureReason string          `json:"failureReason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// RedisStore implements RecordStore on a shared Redis backend, for
// load-balanced deployments where retries may land on a different instance
// than the original call.
//
// Unlike the in-memory store there is no per-key wait primitive across
// processes, so Await polls at a fixed interval bounded by the caller's
// context. Records always carry a TTL; a shared backend must not accumulate
// keys forever.
type RedisStore struct {
	client       *redis.Client
	ttl          time.Duration
	pollInterval time.Duration
}

// NewRedisStore creates a Redis-backed record store. The TTL bounds both the
// deduplication window and how long a crashed owner can leave a record stuck
// in progress; typical values are minutes.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisStore{
		client:       client,
		ttl:          ttl,
		pollInterval: 100 * time.Millisecond,
	}
}

func (s *RedisStore) redisKey(key string) string {
	return redisKeyPrefix + key
}

// Begin claims the key with SET NX; losing the claim means a record already
// exists and its state decides the status.
func (s *RedisStore) Begin(ctx context.Context, key, fingerprint string) (BeginStatus, *Outcome, error) {
	fresh, err := json.Marshal(redisRecord{
		Fingerprint: fingerprint,
		Status:      "in_progress",
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return 0, nil, fmt.Errorf("marshal record: %w", err)
	}

	for {
		claimed, err := s.client.SetNX(ctx, s.redisKey(key), fresh, s.ttl).Result()
		if err != nil {
			return 0, nil, fmt.Errorf("redis setnx: %w", err)
		}
		if claimed {
			return StatusStarted, nil, nil
		}

		rec, err := s.get(ctx, key)
		if err != nil {
			return 0, nil, err
		}
		if rec == nil {
			// Expired between SETNX and GET; claim again.
			continue
		}

		if rec.Fingerprint != fingerprint {
			return StatusConflict, nil, nil
		}
		switch rec.Status {
		case "completed":
			return StatusCompleted, &Outcome{Status: StatusCompleted, Result: rec.Result}, nil
		case "failed":
			return StatusFailed, &Outcome{Status: StatusFailed, FailureReason: rec.FailureReason}, nil
		default:
			return StatusInFlight, nil, nil
		}
	}
}

// Await polls the record until it turns terminal or ctx expires.
func (s *RedisStore) Await(ctx context.Context, key string) (*Outcome, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		rec, err := s.get(ctx, key)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, ErrUnknownKey
		}
		switch rec.Status {
		case "completed":
			return &Outcome{Status: StatusCompleted, Result: rec.Result}, nil
		case "failed":
			return &Outcome{Status: StatusFailed, FailureReason: rec.FailureReason}, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Complete transitions the record to completed with the cached result.
func (s *RedisStore) Complete(ctx context.Context, key string, result json.RawMessage) error {
	return s.finish(ctx, key, func(rec *redisRecord) {
		rec.Status = "completed"
		rec.Result = result
	})
}

// Fail transitions the record to failed with the recorded reason.
func (s *RedisStore) Fail(ctx context.Context, key, reason string) error {
	return s.finish(ctx, key, func(rec *redisRecord) {
		rec.Status = "failed"
		rec.FailureReason = reason
	})
}

// finish is called only by the Begin caller that observed StatusStarted, so
// a plain read-modify-write is sufficient: nobody else writes this key while
// it is in progress.
func (s *RedisStore) finish(ctx context.Context, key string, transition func(*redisRecord)) error {
	rec, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	if rec == nil || rec.Status != "in_progress" {
		return ErrInvalidTransition
	}

	transition(rec)
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := s.client.Set(ctx, s.redisKey(key), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) get(ctx context.Context, key string) (*redisRecord, error) {
	raw, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}

var _ RecordStore = (*RedisStore)(nil)
