package idempotency

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition reports an attempt to terminally transition a record
// that is missing or already terminal. It indicates the at-most-once
// bookkeeping was violated by the caller and is never surfaced to clients.
var ErrInvalidTransition = errors.New("idempotency: invalid record transition")

// ErrUnknownKey reports an Await on a key with no record, for example after
// the record was evicted between Begin and Await.
var ErrUnknownKey = errors.New("idempotency: no record for key")

// KeyConflictError reports reuse of an idempotency key with different
// arguments. This is a protocol violation by the client, distinct from the
// guarded operation failing, and is never cached.
type KeyConflictError struct {
	Key  string
	Tool string
}

func (e *KeyConflictError) Error() string {
	return fmt.Sprintf("idempotency key %q already used for %s with different arguments", e.Key, e.Tool)
}

// OperationError is the replay of a terminally failed operation. The message
// matches the original failure, so every retry under the same key observes
// the identical error.
type OperationError struct {
	Reason string
}

func (e *OperationError) Error() string {
	return e.Reason
}
