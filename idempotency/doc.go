// Package idempotency implements at-most-once execution of side-effecting
// tool calls under a caller-supplied idempotency key.
//
// # Overview
//
// Two pieces compose the package:
//
//   - RecordStore: a keyed table of idempotency records tracking the
//     lifecycle of each guarded call (in progress, completed, failed)
//     together with its cached outcome. The store knows nothing about what
//     the guarded operation does.
//   - Executor: wraps an arbitrary operation with store-aware pre-check,
//     execution, and result caching. It is the generic shape of "exactly
//     once side effect per key"; the payment tool is one instantiation.
//
// # How It Works
//
//  1. Execute computes a fingerprint from the key and the call arguments.
//  2. Begin atomically checks the store. If the key is unseen, a record is
//     created in progress and the operation runs.
//  3. Concurrent calls with the same key wait for the first one and receive
//     its outcome; later calls get the cached outcome without re-executing.
//  4. A key reused with different arguments is rejected as a conflict. That
//     is a client bug, not a retry, and is never cached.
//
// Both terminal outcomes are recorded: a failed operation is replayed as the
// same failure on retry, exactly like a success. Retrying a declined debit
// under the same key must not debit again.
//
// # Stores
//
// NewInMemoryStore suits single-process deployments and is the demo default.
// NewRedisStore shares records across processes for load-balanced
// deployments and enforces a TTL so records do not accumulate forever.
//
// # Usage
//
//	store := idempotency.NewInMemoryStore()
//	exec := idempotency.NewExecutor(store, idempotency.WithLogger(logger))
//
//	result, err := exec.Execute(ctx, key, "make_payment", args,
//	    func(ctx context.Context) (json.RawMessage, error) {
//	        return applyPayment(ctx, args)
//	    })
package idempotency
