package idempotency

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// Operation is a side-effecting operation guarded by the store. It returns
// its result as raw JSON so the executor can cache and replay it without
// knowing its shape.
type Operation func(ctx context.Context) (json.RawMessage, error)

// Executor runs operations at most once per idempotency key.
//
// The store is injected so the executor stays testable in isolation and so
// deployments can choose their backend (in-memory, Redis).
type Executor struct {
	store  RecordStore
	logger *zap.Logger
}

// NewExecutor creates an executor backed by the given record store.
func NewExecutor(store RecordStore, opts ...ExecutorOption) *Executor {
	cfg := &executorConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Executor{store: store, logger: cfg.logger}
}

// Execute runs op under the given idempotency key.
//
// An empty key runs op unconditionally: idempotency is opt-in per call.
// Otherwise exactly one caller per key executes op; everyone else receives
// the cached outcome, waiting for an in-flight execution when necessary.
// Reusing a key with different args returns a *KeyConflictError, and a
// replayed failure is returned as an *OperationError carrying the original
// reason.
func (e *Executor) Execute(ctx context.Context, key, tool string, args map[string]any, op Operation) (json.RawMessage, error) {
	if key == "" {
		return op(ctx)
	}

	fingerprint := Fingerprint(key, args)

	status, outcome, err := e.store.Begin(ctx, key, fingerprint)
	if err != nil {
		return nil, err
	}

	switch status {
	case StatusCompleted:
		return outcome.Result, nil

	case StatusFailed:
		return nil, &OperationError{Reason: outcome.FailureReason}

	case StatusConflict:
		return nil, &KeyConflictError{Key: key, Tool: tool}

	case StatusInFlight:
		outcome, err := e.store.Await(ctx, key)
		if err != nil {
			return nil, err
		}
		if outcome.Status == StatusFailed {
			return nil, &OperationError{Reason: outcome.FailureReason}
		}
		return outcome.Result, nil

	case StatusStarted:
		// Fall through: this caller owns the execution.
	}

	// Once started, the operation and its terminal transition must survive
	// the original caller disconnecting. The whole point of the key is that
	// a timed-out client can retry and converge on this outcome.
	opCtx := context.WithoutCancel(ctx)

	result, opErr := op(opCtx)
	if opErr != nil {
		if err := e.store.Fail(opCtx, key, opErr.Error()); err != nil {
			e.logger.Error("failed to record operation failure",
				zap.String("tool", tool),
				zap.String("idempotency_key", key),
				zap.Error(err))
		}
		return nil, opErr
	}

	if err := e.store.Complete(opCtx, key, result); err != nil {
		e.logger.Error("failed to record operation result",
			zap.String("tool", tool),
			zap.String("idempotency_key", key),
			zap.Error(err))
	}
	return result, nil
}
