package reliablestore

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// linkedContext merges the caller-supplied ctx with this transaction's
// internal cancellation token (which fires on timeout and on Dispose), per
// §5: "linked with the coordinator's internal cancellation token".
func (t *Transaction) linkedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := make(chan struct{})
	go func() {
		select {
		case <-t.ctx.Done():
			cancel()
		case <-merged.Done():
		case <-stop:
		}
	}()
	return merged, func() {
		close(stop)
		cancel()
	}
}

// Commit drives the full two-phase commit across every enlisted resource
// (§4.1). Precondition: state == Active.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.State() == TimedOut {
		return newError(Timeout, fmt.Errorf("transaction %s timed out", t.id))
	}
	if err := t.requireState("Commit", Active); err != nil {
		return err
	}

	ctx, cancel := t.linkedContext(ctx)
	defer cancel()

	t.setState(Preparing)
	logEvent("transaction.commit.phase1", t.id, "", Preparing, 0, nil)

	ready, err := t.phase1Prepare(ctx)
	if err != nil || !ready {
		cause := err
		if cause == nil {
			cause = fmt.Errorf("one or more resources voted not-ready during prepare")
		}
		rerr := t.driveRollback(context.WithoutCancel(ctx))
		t.setState(Failed)
		if rerr != nil {
			return newError(PrepareFailed, cause, rerr)
		}
		return newError(PrepareFailed, cause)
	}

	t.stateLock.Lock()
	if t.state != Preparing {
		// The timeout timer fired during Phase 1: it has already moved the
		// transaction to TimedOut and scheduled its rollback.
		t.stateLock.Unlock()
		return newError(Timeout, fmt.Errorf("transaction %s timed out during prepare", t.id))
	}
	t.state = Prepared
	t.stateLock.Unlock()
	t.setState(Committing)
	// Commit must complete even if the caller's context or our own timer
	// fires after this point (§4.1, §5): disarm the timer and stop
	// honoring further cancellation once phase 2 begins.
	t.disarmTimer()

	if err := t.phase2Commit(context.WithoutCancel(ctx)); err != nil {
		rerr := t.driveRollback(context.WithoutCancel(ctx))
		t.setState(Failed)
		if rerr != nil {
			return newError(CommitFailed, err, rerr)
		}
		return newError(CommitFailed, err)
	}

	t.setState(Committed)
	logEvent("transaction.commit", t.id, "", Committed, 0, nil)
	return nil
}

// phase1Prepare fans Prepare out to every enlisted resource in parallel and
// fans the results back in. No ordering among resources is guaranteed.
func (t *Transaction) phase1Prepare(ctx context.Context) (bool, error) {
	resources := t.enlistedResources()
	if len(resources) == 0 {
		return true, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	votes := make([]bool, len(resources))
	for i, r := range resources {
		i, r := i, r
		g.Go(func() error {
			ok, err := r.Prepare(gctx, t)
			if err != nil {
				logEvent("resource.prepare", t.id, r.ResourceID(), Preparing, 0, err)
				return fmt.Errorf("resource %q prepare: %w", r.ResourceID(), err)
			}
			votes[i] = ok
			logEvent("resource.prepare", t.id, r.ResourceID(), Preparing, 0, nil)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	for _, v := range votes {
		if !v {
			return false, nil
		}
	}
	return true, nil
}

// phase2Commit fans Commit out to every enlisted resource in parallel.
func (t *Transaction) phase2Commit(ctx context.Context) error {
	resources := t.enlistedResources()
	if len(resources) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range resources {
		r := r
		g.Go(func() error {
			if err := r.Commit(gctx, t); err != nil {
				logEvent("resource.commit", t.id, r.ResourceID(), Committing, 0, err)
				return fmt.Errorf("resource %q commit: %w", r.ResourceID(), err)
			}
			logEvent("resource.commit", t.id, r.ResourceID(), Committing, 0, nil)
			return nil
		})
	}
	return g.Wait()
}

// Rollback is idempotent (§4.1): from Active or Preparing it drives rollback
// on every resource in parallel and settles into RolledBack. From
// Committed/RolledBack/Failed/TimedOut it is a no-op.
func (t *Transaction) Rollback(ctx context.Context) error {
	t.stateLock.Lock()
	cur := t.state
	if cur.IsTerminal() {
		t.stateLock.Unlock()
		return nil
	}
	t.state = RollingBack
	t.stateLock.Unlock()

	err := t.driveRollback(context.WithoutCancel(ctx))
	t.setState(RolledBack)
	logEvent("transaction.rollback", t.id, "", RolledBack, 0, err)
	if err != nil {
		return newError(RollbackFailed, err)
	}
	return nil
}

// driveRollback fans Rollback out to every enlisted resource in parallel.
// It never stops early on the first failure — every resource is given a
// chance to roll back, and failures are aggregated, never masking whatever
// caused rollback to be driven in the first place (§4.1, §7).
func (t *Transaction) driveRollback(ctx context.Context) error {
	resources := t.enlistedResources()
	if len(resources) == 0 {
		return nil
	}

	type result struct {
		id  string
		err error
	}
	results := make(chan result, len(resources))
	for _, r := range resources {
		r := r
		go func() {
			err := r.Rollback(ctx, t)
			logEvent("resource.rollback", t.id, r.ResourceID(), RollingBack, 0, err)
			results <- result{id: r.ResourceID(), err: err}
		}()
	}

	var errs []error
	for range resources {
		res := <-results
		if res.err != nil {
			errs = append(errs, fmt.Errorf("resource %q rollback: %w", res.id, res.err))
		}
	}
	return errors.Join(errs...)
}

// CreateSavepoint registers a new savepoint, broadcasting its creation to
// every currently enlisted resource (§4.1). A resource enlisted later does
// not retroactively carry earlier savepoints.
func (t *Transaction) CreateSavepoint(ctx context.Context, name string) (Savepoint, error) {
	if err := t.requireState("CreateSavepoint", Active); err != nil {
		return Savepoint{}, err
	}
	if !t.opts.EnableSavepoints {
		return Savepoint{}, newError(InvalidState, fmt.Errorf("savepoints disabled for transaction %s", t.id))
	}

	t.savepointLock.Lock()
	if _, exists := t.savepoints[name]; exists {
		t.savepointLock.Unlock()
		return Savepoint{}, newError(SavepointConflict, fmt.Errorf("savepoint %q already exists in transaction %s", name, t.id))
	}
	t.savepointLock.Unlock()

	sp := newSavepoint(t.id, name)

	resources := t.enlistedResources()
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range resources {
		r := r
		g.Go(func() error {
			if err := r.CreateSavepoint(gctx, t, sp); err != nil {
				return fmt.Errorf("resource %q create savepoint: %w", r.ResourceID(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Savepoint{}, err
	}

	t.savepointLock.Lock()
	t.savepoints[name] = sp
	t.savepointOrder = append(t.savepointOrder, name)
	t.savepointLock.Unlock()

	logEvent("savepoint.create", t.id, "", Active, 0, nil)
	return sp, nil
}

// RollbackToSavepoint restores every enlisted resource to the staged-op
// state observed when sp was created, and discards every savepoint created
// afterward (§4.1). Per the resolved Open Question in §9, an unregistered
// savepoint is FATAL at the coordinator: the transaction transitions to
// Failed and the caller must not continue using it.
func (t *Transaction) RollbackToSavepoint(ctx context.Context, sp Savepoint) error {
	if err := t.requireState("RollbackToSavepoint", Active); err != nil {
		return err
	}
	if sp.TransactionID != t.id {
		return newError(WrongTransactionSavepoint, fmt.Errorf("savepoint %q belongs to transaction %s, not %s", sp.Name, sp.TransactionID, t.id))
	}

	t.savepointLock.Lock()
	registered, ok := t.savepoints[sp.Name]
	t.savepointLock.Unlock()
	if !ok {
		t.setState(Failed)
		return newError(SavepointMissing, fmt.Errorf("savepoint %q not registered in transaction %s", sp.Name, t.id))
	}
	sp = registered

	resources := t.enlistedResources()
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range resources {
		r := r
		g.Go(func() error {
			if err := r.RollbackToSavepoint(gctx, t, sp); err != nil {
				return fmt.Errorf("resource %q rollback to savepoint: %w", r.ResourceID(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.setState(Failed)
		return err
	}

	// Discard every savepoint created after sp, from both the coordinator
	// registry and from every resource (§4.1).
	t.savepointLock.Lock()
	var toDiscard []Savepoint
	kept := t.savepointOrder[:0:0]
	for _, name := range t.savepointOrder {
		existing := t.savepoints[name]
		if existing.CreatedAt.After(sp.CreatedAt) {
			toDiscard = append(toDiscard, existing)
			delete(t.savepoints, name)
			continue
		}
		kept = append(kept, name)
	}
	t.savepointOrder = kept
	t.savepointLock.Unlock()

	for _, discarded := range toDiscard {
		for _, r := range resources {
			_ = r.DiscardSavepointData(ctx, t, discarded)
		}
	}

	logEvent("savepoint.rollback", t.id, "", Active, 0, nil)
	return nil
}
