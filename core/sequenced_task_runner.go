package core

import (
	"context"
	"sync/atomic"
	"time"
)

// SequencedTaskRunner owns exactly one sequence for its lifetime. Every
// post appends to that sequence, which guarantees posting-order,
// non-concurrent execution for the runner's tasks.
type SequencedTaskRunner struct {
	delegate SchedulerDelegate
	seq      *Sequence
	closed   atomic.Bool
}

var _ SequencedRunner = (*SequencedTaskRunner)(nil)

// NewSequencedTaskRunner creates a runner backed by a fresh sequence
// carrying traits.
func NewSequencedTaskRunner(delegate SchedulerDelegate, traits TaskTraits) *SequencedTaskRunner {
	if delegate == nil {
		panic("SequencedTaskRunner: delegate must not be nil")
	}
	return &SequencedTaskRunner{
		delegate: delegate,
		seq:      NewSequence(traits),
	}
}

// Token identifies the runner's underlying sequence.
func (r *SequencedTaskRunner) Token() SequenceToken {
	return r.seq.Token()
}

// PostTask appends task to the runner's sequence.
func (r *SequencedTaskRunner) PostTask(task Task) bool {
	if r.closed.Load() {
		return false
	}
	return r.delegate.PostTaskWithSequence(r.wrap(task), r.seq)
}

// PostDelayedTask appends a task that becomes eligible once delay elapses.
// Earlier immediate tasks still run first; the sequence stays FIFO and
// non-concurrent.
func (r *SequencedTaskRunner) PostDelayedTask(task Task, delay time.Duration) bool {
	if r.closed.Load() {
		return false
	}
	return r.delegate.PostDelayedTaskWithSequence(r.wrap(task), delay, r.seq)
}

// wrap injects the runner into the task's context so the closure can
// repost without capturing the runner itself; the sequence must never hold
// a strong reference back to its runner.
func (r *SequencedTaskRunner) wrap(task Task) Task {
	return func(ctx context.Context) {
		task(WithCurrentTaskRunner(ctx, r))
	}
}

// Shutdown marks the runner closed and drops everything still queued on its
// sequence. A task already mid-execution is not interrupted.
func (r *SequencedTaskRunner) Shutdown() {
	r.closed.Store(true)

	tx := r.seq.BeginTransaction()
	defer tx.Done()
	tx.Clear()
}

// IsClosed returns true if the runner has been shut down.
func (r *SequencedTaskRunner) IsClosed() bool {
	return r.closed.Load()
}

// =============================================================================
// UpdateableSequencedTaskRunner: SequencedTaskRunner + priority updates
// =============================================================================

// sortKeyUpdater is implemented by delegates that maintain a ready set and
// can republish a sequence's ranking.
type sortKeyUpdater interface {
	UpdateSortKey(seq *Sequence)
}

// UpdateableSequencedTaskRunner is a SequencedTaskRunner whose sequence
// priority can be raised or lowered after construction.
type UpdateableSequencedTaskRunner struct {
	*SequencedTaskRunner
}

var _ UpdateableSequencedRunner = (*UpdateableSequencedTaskRunner)(nil)

// NewUpdateableSequencedTaskRunner creates a runner backed by a fresh
// sequence carrying traits.
func NewUpdateableSequencedTaskRunner(delegate SchedulerDelegate, traits TaskTraits) *UpdateableSequencedTaskRunner {
	return &UpdateableSequencedTaskRunner{
		SequencedTaskRunner: NewSequencedTaskRunner(delegate, traits),
	}
}

// UpdatePriority rewrites the sequence's priority and republishes its sort
// key into the ready set. Safe to call while a task from the sequence is
// mid-execution on a worker; the next ranking decision sees the new key.
func (r *UpdateableSequencedTaskRunner) UpdatePriority(priority TaskPriority) {
	tx := r.seq.BeginTransaction()
	defer tx.Done()

	tx.UpdatePriority(priority)
	if updater, ok := r.delegate.(sortKeyUpdater); ok {
		updater.UpdateSortKey(r.seq)
	}
}
