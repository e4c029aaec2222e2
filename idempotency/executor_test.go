package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingOp returns an Operation that counts executions and returns a
// result embedding the execution number, so tests can tell a replay from a
// re-execution.
func countingOp(calls *atomic.Int64) Operation {
	return func(ctx context.Context) (json.RawMessage, error) {
		n := calls.Add(1)
		return json.RawMessage(fmt.Sprintf(`{"execution":%d}`, n)), nil
	}
}

func TestExecutor_EmptyKeyAlwaysExecutes(t *testing.T) {
	exec := NewExecutor(NewInMemoryStore())
	var calls atomic.Int64
	op := countingOp(&calls)
	args := map[string]any{"amount": float64(2500)}

	for i := 0; i < 3; i++ {
		if _, err := exec.Execute(context.Background(), "", "make_payment", args, op); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 executions without a key, got %d", calls.Load())
	}
}

func TestExecutor_AtMostOncePerKey(t *testing.T) {
	exec := NewExecutor(NewInMemoryStore())
	var calls atomic.Int64
	op := countingOp(&calls)
	args := map[string]any{"amount": float64(2500)}

	var first json.RawMessage
	for i := 0; i < 5; i++ {
		result, err := exec.Execute(context.Background(), "key-1", "make_payment", args, op)
		if err != nil {
			t.Fatalf("Execute #%d: %v", i, err)
		}
		if first == nil {
			first = result
		} else if string(result) != string(first) {
			t.Errorf("Expected every caller to see the first result, got %s then %s", first, result)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("Expected exactly one execution, got %d", calls.Load())
	}
}

func TestExecutor_FailureReplayedIdentically(t *testing.T) {
	exec := NewExecutor(NewInMemoryStore())
	var calls atomic.Int64
	op := func(ctx context.Context) (json.RawMessage, error) {
		calls.Add(1)
		return nil, errors.New("insufficient funds: balance 1000 cannot cover 2500")
	}
	args := map[string]any{"amount": float64(2500)}

	_, err1 := exec.Execute(context.Background(), "key-1", "make_payment", args, op)
	if err1 == nil {
		t.Fatal("Expected first call to fail")
	}

	_, err2 := exec.Execute(context.Background(), "key-1", "make_payment", args, op)
	var opErr *OperationError
	if !errors.As(err2, &opErr) {
		t.Fatalf("Expected *OperationError on replay, got %T: %v", err2, err2)
	}
	if opErr.Reason != err1.Error() {
		t.Errorf("Expected identical replayed failure, got %q vs %q", opErr.Reason, err1.Error())
	}
	if calls.Load() != 1 {
		t.Errorf("Expected exactly one execution, got %d", calls.Load())
	}
}

func TestExecutor_KeyReuseWithDifferentArgs(t *testing.T) {
	exec := NewExecutor(NewInMemoryStore())
	var calls atomic.Int64
	op := countingOp(&calls)

	if _, err := exec.Execute(context.Background(), "key-1", "make_payment", map[string]any{"amount": float64(2500)}, op); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	_, err := exec.Execute(context.Background(), "key-1", "make_payment", map[string]any{"amount": float64(3000)}, op)
	var conflict *KeyConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected *KeyConflictError, got %T: %v", err, err)
	}
	if conflict.Key != "key-1" || conflict.Tool != "make_payment" {
		t.Errorf("Unexpected conflict details: %+v", conflict)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected the conflicting call to perform no side effect, got %d executions", calls.Load())
	}
}

func TestExecutor_ConcurrentCallersConverge(t *testing.T) {
	exec := NewExecutor(NewInMemoryStore())
	var calls atomic.Int64
	op := func(ctx context.Context) (json.RawMessage, error) {
		n := calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return json.RawMessage(fmt.Sprintf(`{"execution":%d}`, n)), nil
	}
	args := map[string]any{"amount": float64(2500)}

	const racers = 8
	results := make([]string, racers)
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := exec.Execute(context.Background(), "key-1", "make_payment", args, op)
			results[i], errs[i] = string(result), err
		}(i)
	}
	wg.Wait()

	for i := 0; i < racers; i++ {
		if errs[i] != nil {
			t.Fatalf("racer %d: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("racer %d saw %s, racer 0 saw %s", i, results[i], results[0])
		}
	}
	if calls.Load() != 1 {
		t.Errorf("Expected exactly one execution across racers, got %d", calls.Load())
	}
}

func TestExecutor_CallerDisconnectDoesNotAbortOperation(t *testing.T) {
	exec := NewExecutor(NewInMemoryStore())

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // caller already gone before the operation starts

	ran := false
	result, err := exec.Execute(ctx, "key-1", "make_payment", map[string]any{"amount": float64(2500)},
		func(opCtx context.Context) (json.RawMessage, error) {
			ran = true
			if opCtx.Err() != nil {
				t.Error("Expected the guarded operation to run detached from the caller's context")
			}
			return json.RawMessage(`{"status":"processed"}`), nil
		})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !ran {
		t.Fatal("Expected the operation to run")
	}

	// The outcome is recorded and a later retry replays it.
	replay, err := exec.Execute(context.Background(), "key-1", "make_payment", map[string]any{"amount": float64(2500)},
		func(context.Context) (json.RawMessage, error) {
			t.Error("Expected the retry to replay, not re-execute")
			return nil, nil
		})
	if err != nil {
		t.Fatalf("Execute (retry): %v", err)
	}
	if string(replay) != string(result) {
		t.Errorf("Expected retry to see the recorded result, got %s vs %s", replay, result)
	}
}

// stubStore lets executor tests script the store's answers.
type stubStore struct {
	status   BeginStatus
	outcome  *Outcome
	beginErr error

	completeCalls atomic.Int64
	failCalls     atomic.Int64
}

func (s *stubStore) Begin(ctx context.Context, key, fingerprint string) (BeginStatus, *Outcome, error) {
	return s.status, s.outcome, s.beginErr
}

func (s *stubStore) Await(ctx context.Context, key string) (*Outcome, error) {
	return s.outcome, nil
}

func (s *stubStore) Complete(ctx context.Context, key string, result json.RawMessage) error {
	s.completeCalls.Add(1)
	return ErrInvalidTransition
}

func (s *stubStore) Fail(ctx context.Context, key, reason string) error {
	s.failCalls.Add(1)
	return ErrInvalidTransition
}

func TestExecutor_InvalidTransitionIsNotUserFacing(t *testing.T) {
	// A broken store transition is logged, not propagated: the caller still
	// gets the operation's own outcome.
	store := &stubStore{status: StatusStarted}
	exec := NewExecutor(store)

	result, err := exec.Execute(context.Background(), "key-1", "make_payment", map[string]any{},
		func(context.Context) (json.RawMessage, error) {
			return json.RawMessage(`{"ok":true}`), nil
		})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if string(result) != `{"ok":true}` {
		t.Errorf("Expected operation result despite store defect, got %s", result)
	}
	if store.completeCalls.Load() != 1 {
		t.Errorf("Expected one Complete attempt, got %d", store.completeCalls.Load())
	}
}
