package reliablestore

import (
	"context"
	"testing"
	"time"
)

func TestNewTransactionStartsActive(t *testing.T) {
	tx := newTransaction(DefaultOptions())
	defer tx.Dispose()

	if tx.State() != Active {
		t.Fatalf("got state %s, want Active", tx.State())
	}
	if tx.ID().IsNil() {
		t.Fatal("expected a non-nil transaction id")
	}
}

func TestEnlistResourceRejectsDuplicateID(t *testing.T) {
	tx := newTransaction(DefaultOptions())
	defer tx.Dispose()

	r1 := newFakeResource("dup")
	r2 := newFakeResource("dup")

	if err := tx.EnlistResource(r1); err != nil {
		t.Fatalf("first enlist: %v", err)
	}
	if err := tx.EnlistResource(r2); err == nil {
		t.Fatal("expected an error enlisting a duplicate resource id")
	} else if !IsCode(err, InvalidState) {
		t.Fatalf("got %v, want InvalidState", err)
	}
}

func TestEnlistResourceRejectsNonActive(t *testing.T) {
	tx := newTransaction(DefaultOptions())
	defer tx.Dispose()

	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("commit with no resources: %v", err)
	}
	if err := tx.EnlistResource(newFakeResource("late")); err == nil {
		t.Fatal("expected enlist after commit to fail")
	}
}

func TestCompletionCallbackFiresOnceAndLate(t *testing.T) {
	tx := newTransaction(DefaultOptions())
	defer tx.Dispose()

	var seen []State
	tx.AddCompletionCallback(func(s State) { seen = append(seen, s) })

	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// A callback registered after the transaction is already terminal must
	// still fire, immediately, exactly once.
	tx.AddCompletionCallback(func(s State) { seen = append(seen, s) })

	if len(seen) != 2 {
		t.Fatalf("got %d callback firings, want 2: %v", len(seen), seen)
	}
	for _, s := range seen {
		if s != Committed {
			t.Fatalf("got state %s, want Committed", s)
		}
	}
}

func TestTimeoutDrivesRollback(t *testing.T) {
	opts := DefaultOptions()
	opts.Timeout = 20 * time.Millisecond
	tx := newTransaction(opts)
	defer tx.Dispose()

	r := newFakeResource("r1")
	if err := tx.EnlistResource(r); err != nil {
		t.Fatalf("enlist: %v", err)
	}

	done := make(chan State, 1)
	tx.AddCompletionCallback(func(s State) { done <- s })

	select {
	case s := <-done:
		if s != TimedOut {
			t.Fatalf("got terminal state %s, want TimedOut", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transaction to time out")
	}

	if _, _, rollbacks := r.counts(); rollbacks != 1 {
		t.Fatalf("got %d rollback calls, want 1", rollbacks)
	}
}

func TestDisposeAutoRollsBackActiveTransaction(t *testing.T) {
	tx := newTransaction(DefaultOptions())
	r := newFakeResource("r1")
	if err := tx.EnlistResource(r); err != nil {
		t.Fatalf("enlist: %v", err)
	}

	tx.Dispose()

	if tx.State() != RolledBack {
		t.Fatalf("got state %s, want RolledBack", tx.State())
	}
	if _, _, rollbacks := r.counts(); rollbacks != 1 {
		t.Fatalf("got %d rollback calls, want 1", rollbacks)
	}
}

func TestCloseAsyncPropagatesRollbackError(t *testing.T) {
	tx := newTransaction(DefaultOptions())
	r := newErroringResource("r1", "rollback")
	if err := tx.EnlistResource(r); err != nil {
		t.Fatalf("enlist: %v", err)
	}

	err := tx.CloseAsync(context.Background())
	if err == nil {
		t.Fatal("expected CloseAsync to surface the rollback error")
	}
	if !IsCode(err, RollbackFailed) {
		t.Fatalf("got %v, want RollbackFailed", err)
	}
}
