package core

import (
	"context"
	"sync/atomic"
	"time"
)

// ParallelTaskRunner posts tasks that may run concurrently with each other.
// Every post creates a brand-new single-task sequence and submits it, so no
// ordering guarantee exists across tasks posted through the same runner, or
// across runners.
type ParallelTaskRunner struct {
	delegate SchedulerDelegate
	traits   TaskTraits
	closed   atomic.Bool
}

var _ TaskRunner = (*ParallelTaskRunner)(nil)

// NewParallelTaskRunner creates a runner whose posts carry traits.
func NewParallelTaskRunner(delegate SchedulerDelegate, traits TaskTraits) *ParallelTaskRunner {
	if delegate == nil {
		panic("ParallelTaskRunner: delegate must not be nil")
	}
	return &ParallelTaskRunner{
		delegate: delegate,
		traits:   traits,
	}
}

// PostTask submits task with the runner's traits.
func (r *ParallelTaskRunner) PostTask(task Task) bool {
	return r.PostTaskWithTraits(task, TaskTraits{})
}

// PostTaskWithTraits submits task with the runner's traits overridden by
// traits.
func (r *ParallelTaskRunner) PostTaskWithTraits(task Task, traits TaskTraits) bool {
	if r.closed.Load() {
		return false
	}
	seq := NewSequence(Override(r.traits, traits))
	return r.delegate.PostTaskWithSequence(r.wrap(task), seq)
}

// delayedTaskManager is the preferred delayed path: the manager holds the
// (task, sequence) pair and re-invokes PostTaskWithSequence at maturity.
type delayedTaskManager interface {
	PostDelayedTaskViaManager(task Task, delay time.Duration, seq *Sequence) bool
}

// PostDelayedTask submits task to run once delay elapses.
func (r *ParallelTaskRunner) PostDelayedTask(task Task, delay time.Duration) bool {
	return r.PostDelayedTaskWithTraits(task, delay, TaskTraits{})
}

// PostDelayedTaskWithTraits submits a delayed task with overriding traits.
func (r *ParallelTaskRunner) PostDelayedTaskWithTraits(task Task, delay time.Duration, traits TaskTraits) bool {
	if r.closed.Load() {
		return false
	}
	seq := NewSequence(Override(r.traits, traits))
	if manager, ok := r.delegate.(delayedTaskManager); ok {
		return manager.PostDelayedTaskViaManager(r.wrap(task), delay, seq)
	}
	return r.delegate.PostDelayedTaskWithSequence(r.wrap(task), delay, seq)
}

// wrap injects the runner into the task's context so the closure can
// repost without capturing the runner itself.
func (r *ParallelTaskRunner) wrap(task Task) Task {
	return func(ctx context.Context) {
		task(WithCurrentTaskRunner(ctx, r))
	}
}

// Shutdown stops the runner from accepting further posts. One-off sequences
// already submitted are unaffected.
func (r *ParallelTaskRunner) Shutdown() {
	r.closed.Store(true)
}

// IsClosed returns true if the runner has been shut down.
func (r *ParallelTaskRunner) IsClosed() bool {
	return r.closed.Load()
}
