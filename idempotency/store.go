package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// BeginStatus is the result of checking the store for a key.
type BeginStatus int

const (
	// StatusStarted means the key was unseen. The record is now in progress
	// and the caller owns the execution of the guarded operation.
	StatusStarted BeginStatus = iota
	// StatusInFlight means another caller is currently executing under this
	// key. Wait with Await.
	StatusInFlight
	// StatusCompleted means the operation already succeeded; the cached
	// result is returned alongside.
	StatusCompleted
	// StatusFailed means the operation already failed terminally; the
	// recorded failure is returned alongside.
	StatusFailed
	// StatusConflict means the key exists but was registered with a
	// different argument fingerprint. Key reuse across different calls is a
	// client bug, not a retry.
	StatusConflict
)

// Outcome is the terminal outcome of a guarded operation.
//
// Status is StatusCompleted or StatusFailed. Result is populated only for
// completed outcomes, FailureReason only for failed ones.
type Outcome struct {
	Status        BeginStatus
	Result        json.RawMessage
	FailureReason string
}

// RecordStore is the keyed record table guarding operation execution.
// Implementations must be safe for concurrent use and must make Begin and
// the terminal transitions indivisible per key: two concurrent Begin calls
// with the same key must never both observe StatusStarted.
//
// The interface supports both in-memory and distributed backends (Redis,
// database) for different deployment scenarios.
type RecordStore interface {
	// Begin atomically checks for an existing record under key. If none
	// exists it creates one in progress with the given fingerprint and
	// returns StatusStarted; the caller must then execute the guarded
	// operation and finish with Complete or Fail. Otherwise it reports the
	// existing record's state, with the outcome for terminal states.
	Begin(ctx context.Context, key, fingerprint string) (BeginStatus, *Outcome, error)

	// Await blocks until the in-flight record under key reaches a terminal
	// state, then returns that outcome. It respects ctx cancellation; a
	// caller giving up on the wait does not disturb the record.
	Await(ctx context.Context, key string) (*Outcome, error)

	// Complete transitions an in-progress record to Completed, caches the
	// result, and wakes waiters. Calling it on a missing or already
	// terminal record returns ErrInvalidTransition.
	Complete(ctx context.Context, key string, result json.RawMessage) error

	// Fail transitions an in-progress record to Failed, records the reason,
	// and wakes waiters. The failure is replayed on later calls with the
	// same key. Calling it on a missing or already terminal record returns
	// ErrInvalidTransition.
	Fail(ctx context.Context, key, reason string) error
}

// Fingerprint derives the comparable representation of a guarded call used
// to detect key reuse with different arguments. It hashes the idempotency
// key together with the canonical (sorted-key) JSON encoding of the
// arguments, so retries fingerprint identically regardless of the wire-level
// key order the client happened to send.
func Fingerprint(key string, args map[string]any) string {
	canonical, err := json.Marshal(args)
	if err != nil {
		// Arguments decoded from JSON always re-encode; anything else
		// degrades to a key-only fingerprint.
		canonical = nil
	}

	h := sha256.New()
	h.Write([]byte(key))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}
