package reliablestore

import (
	"context"
	"fmt"
	"sync"
)

// fakeResource is a hand-rolled TransactionalResource test double, in the
// teacher's own test style (plain stdlib testing + hand-written mocks, see
// common/mocks rather than testify).
type fakeResource struct {
	id string

	mu              sync.Mutex
	prepareVote     bool
	prepareErr      error
	commitErr       error
	rollbackErr     error
	savepointErr    error
	prepareCalls    int
	commitCalls     int
	rollbackCalls   int
	savepointCalls  []string
	rolledBackTo    []string
	discardedNames  []string
}

func newFakeResource(id string) *fakeResource {
	return &fakeResource{id: id, prepareVote: true}
}

func (f *fakeResource) ResourceID() string { return f.id }

func (f *fakeResource) Prepare(ctx context.Context, tx *Transaction) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepareCalls++
	return f.prepareVote, f.prepareErr
}

func (f *fakeResource) Commit(ctx context.Context, tx *Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commitCalls++
	return f.commitErr
}

func (f *fakeResource) Rollback(ctx context.Context, tx *Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollbackCalls++
	return f.rollbackErr
}

func (f *fakeResource) CreateSavepoint(ctx context.Context, tx *Transaction, sp Savepoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savepointCalls = append(f.savepointCalls, sp.Name)
	return f.savepointErr
}

func (f *fakeResource) RollbackToSavepoint(ctx context.Context, tx *Transaction, sp Savepoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rolledBackTo = append(f.rolledBackTo, sp.Name)
	return nil
}

func (f *fakeResource) DiscardSavepointData(ctx context.Context, tx *Transaction, sp Savepoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discardedNames = append(f.discardedNames, sp.Name)
	return nil
}

func (f *fakeResource) counts() (prepare, commit, rollback int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prepareCalls, f.commitCalls, f.rollbackCalls
}

var _ TransactionalResource = (*fakeResource)(nil)

// erroringResource errors on the step named by failOn ("prepare", "commit"
// or "rollback"), to exercise fan-out error paths.
type erroringResource struct {
	*fakeResource
	failOn string
}

func newErroringResource(id, failOn string) *erroringResource {
	r := &erroringResource{fakeResource: newFakeResource(id), failOn: failOn}
	switch failOn {
	case "prepare":
		r.prepareErr = fmt.Errorf("%s: prepare exploded", id)
	case "commit":
		r.commitErr = fmt.Errorf("%s: commit exploded", id)
	case "rollback":
		r.rollbackErr = fmt.Errorf("%s: rollback exploded", id)
	}
	return r
}
