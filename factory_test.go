package reliablestore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExecuteInTransactionCommitsOnSuccess(t *testing.T) {
	var resource *fakeResource
	err := ExecuteInTransaction(context.Background(), func(ctx context.Context, tx *Transaction) error {
		resource = newFakeResource("r1")
		return tx.EnlistResource(resource)
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, commit, _ := resource.counts(); commit != 1 {
		t.Fatalf("got %d commit calls, want 1", commit)
	}
}

func TestExecuteInTransactionRollsBackOnActionError(t *testing.T) {
	actionErr := errors.New("boom")
	var resource *fakeResource

	err := ExecuteInTransaction(context.Background(), func(ctx context.Context, tx *Transaction) error {
		resource = newFakeResource("r1")
		if err := tx.EnlistResource(resource); err != nil {
			return err
		}
		return actionErr
	})
	if !errors.Is(err, actionErr) {
		t.Fatalf("got %v, want %v", err, actionErr)
	}
	if _, commit, rollback := resource.counts(); commit != 0 || rollback != 1 {
		t.Fatalf("got (commit=%d rollback=%d), want (0,1)", commit, rollback)
	}
}

func TestExecuteInTransactionRecoversPanicAndRollsBack(t *testing.T) {
	var resource *fakeResource
	err := ExecuteInTransaction(context.Background(), func(ctx context.Context, tx *Transaction) error {
		resource = newFakeResource("r1")
		if err := tx.EnlistResource(resource); err != nil {
			return err
		}
		panic("action panicked")
	})
	if err == nil {
		t.Fatal("expected the recovered panic to surface as an error")
	}
	if _, _, rollback := resource.counts(); rollback != 1 {
		t.Fatal("expected rollback after a recovered panic")
	}
}

func TestDefaultRetryPredicateExcludesPrepareAndCommitFailures(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{context.DeadlineExceeded, false},
		{newError(Timeout, errors.New("t")), true},
		{newError(Cancelled, errors.New("c")), true},
		{newError(PrepareFailed, errors.New("p")), false},
		{newError(CommitFailed, errors.New("c")), false},
	}
	for _, c := range cases {
		if got := DefaultRetryPredicate(c.err); got != c.want {
			t.Errorf("DefaultRetryPredicate(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestExecuteWithRetrySucceedsOnThirdAttempt(t *testing.T) {
	attempts := 0
	err := ExecuteWithRetry(context.Background(), func(ctx context.Context, tx *Transaction) error {
		attempts++
		if attempts < 3 {
			return newError(Timeout, errors.New("not yet"))
		}
		return nil
	}, 5, time.Millisecond)

	if err != nil {
		t.Fatalf("execute with retry: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("got %d attempts, want 3", attempts)
	}
}

func TestExecuteWithRetryGivesUpOnNonRetryableError(t *testing.T) {
	attempts := 0
	sentinel := newError(PrepareFailed, errors.New("conflict"))
	err := ExecuteWithRetry(context.Background(), func(ctx context.Context, tx *Transaction) error {
		attempts++
		return sentinel
	}, 5, time.Millisecond)

	if !IsCode(err, PrepareFailed) {
		t.Fatalf("got %v, want PrepareFailed", err)
	}
	if attempts != 1 {
		t.Fatalf("got %d attempts, want 1 (PrepareFailed must not be retried)", attempts)
	}
}

func TestSavepointScopeRollsBackUnlessCommitted(t *testing.T) {
	tx := newTransaction(DefaultOptions())
	defer tx.Dispose()

	r := newFakeResource("r1")
	if err := tx.EnlistResource(r); err != nil {
		t.Fatalf("enlist: %v", err)
	}

	scope, err := CreateSavepointScope(context.Background(), tx, "scope")
	if err != nil {
		t.Fatalf("create savepoint scope: %v", err)
	}
	if err := scope.Close(context.Background()); err != nil {
		t.Fatalf("close (should roll back): %v", err)
	}

	r.mu.Lock()
	rolledBackTo := append([]string(nil), r.rolledBackTo...)
	r.mu.Unlock()
	if len(rolledBackTo) != 1 || rolledBackTo[0] != "scope" {
		t.Fatalf("expected resource to be rolled back to %q, got %v", "scope", rolledBackTo)
	}
}

func TestSavepointScopeCommitSkipsRollback(t *testing.T) {
	tx := newTransaction(DefaultOptions())
	defer tx.Dispose()

	r := newFakeResource("r1")
	if err := tx.EnlistResource(r); err != nil {
		t.Fatalf("enlist: %v", err)
	}

	scope, err := CreateSavepointScope(context.Background(), tx, "scope")
	if err != nil {
		t.Fatalf("create savepoint scope: %v", err)
	}
	scope.Commit()
	if err := scope.Close(context.Background()); err != nil {
		t.Fatalf("close after commit should be a no-op: %v", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.rolledBackTo) != 0 {
		t.Fatalf("expected no rollback-to-savepoint calls, got %v", r.rolledBackTo)
	}
}
