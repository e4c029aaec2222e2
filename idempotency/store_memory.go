package idempotency

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type recordState int

const (
	stateInProgress recordState = iota
	stateCompleted
	stateFailed
)

type record struct {
	fingerprint   string
	state         recordState
	result        json.RawMessage
	failureReason string
	createdAt     time.Time
	expiresAt     time.Time // zero when the store keeps records forever
	done          chan struct{}
}

func (r *record) terminal() bool {
	return r.state != stateInProgress
}

func (r *record) outcome() *Outcome {
	if r.state == stateFailed {
		return &Outcome{Status: StatusFailed, FailureReason: r.failureReason}
	}
	return &Outcome{Status: StatusCompleted, Result: r.result}
}

// InMemoryStore provides an in-memory implementation of RecordStore.
//
// Suitable for single-instance deployments where record state does not need
// to be shared across processes. For distributed deployments use
// NewRedisStore or another shared backend.
//
// Records are kept for the lifetime of the process unless a TTL is set with
// WithTTL, in which case terminal records are lazily evicted once expired.
// In-progress records never expire: an in-flight operation always runs to
// completion and is recorded.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]*record
	ttl     time.Duration
}

// NewInMemoryStore creates an in-memory record store. By default records
// never expire, matching the demo's process-lifetime dedup window; pass
// WithTTL to bound memory for longer-lived servers.
func NewInMemoryStore(opts ...StoreOption) *InMemoryStore {
	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return &InMemoryStore{
		records: make(map[string]*record),
		ttl:     cfg.ttl,
	}
}

// Begin atomically checks for a record under key and creates one in
// progress when none exists.
func (s *InMemoryStore) Begin(ctx context.Context, key, fingerprint string) (BeginStatus, *Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok {
		if rec.terminal() && s.expired(rec) {
			delete(s.records, key)
		} else {
			if rec.fingerprint != fingerprint {
				return StatusConflict, nil, nil
			}
			if !rec.terminal() {
				return StatusInFlight, nil, nil
			}
			out := rec.outcome()
			return out.Status, out, nil
		}
	}

	s.records[key] = &record{
		fingerprint: fingerprint,
		state:       stateInProgress,
		createdAt:   time.Now(),
		done:        make(chan struct{}),
	}
	return StatusStarted, nil, nil
}

// Await blocks until the record under key reaches a terminal state, waking
// on the record's done channel rather than polling.
func (s *InMemoryStore) Await(ctx context.Context, key string) (*Outcome, error) {
	s.mu.Lock()
	rec, ok := s.records[key]
	if !ok {
		s.mu.Unlock()
		return nil, ErrUnknownKey
	}
	if rec.terminal() {
		out := rec.outcome()
		s.mu.Unlock()
		return out, nil
	}
	done := rec.done
	s.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok = s.records[key]
	if !ok || !rec.terminal() {
		return nil, ErrUnknownKey
	}
	return rec.outcome(), nil
}

// Complete transitions an in-progress record to Completed and wakes waiters.
func (s *InMemoryStore) Complete(ctx context.Context, key string, result json.RawMessage) error {
	return s.finish(key, func(rec *record) {
		rec.state = stateCompleted
		rec.result = result
	})
}

// Fail transitions an in-progress record to Failed and wakes waiters.
func (s *InMemoryStore) Fail(ctx context.Context, key, reason string) error {
	return s.finish(key, func(rec *record) {
		rec.state = stateFailed
		rec.failureReason = reason
	})
}

func (s *InMemoryStore) finish(key string, transition func(*record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || rec.terminal() {
		return ErrInvalidTransition
	}

	transition(rec)
	if s.ttl > 0 {
		rec.expiresAt = time.Now().Add(s.ttl)
	}
	close(rec.done)

	s.sweepLocked()
	return nil
}

func (s *InMemoryStore) expired(rec *record) bool {
	return !rec.expiresAt.IsZero() && time.Now().After(rec.expiresAt)
}

// sweepLocked lazily evicts expired terminal records. Must be called with
// the lock held.
func (s *InMemoryStore) sweepLocked() {
	if s.ttl <= 0 {
		return
	}
	for key, rec := range s.records {
		if rec.terminal() && s.expired(rec) {
			delete(s.records, key)
		}
	}
}

var _ RecordStore = (*InMemoryStore)(nil)
