package core

import (
	"context"
	"time"
)

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// =============================================================================
// TaskPriority: 3-level priority attached to tasks and sequences
// =============================================================================

type TaskPriority int

const (
	// TaskPriorityBestEffort: Lowest priority
	TaskPriorityBestEffort TaskPriority = iota

	// TaskPriorityUserVisible: Default priority
	TaskPriorityUserVisible

	// TaskPriorityUserBlocking: Highest priority
	// `UserBlocking` means the user is actively waiting on the result.
	// Every moment this task spends queued degrades the experience.
	TaskPriorityUserBlocking
)

func (p TaskPriority) String() string {
	switch p {
	case TaskPriorityBestEffort:
		return "best_effort"
	case TaskPriorityUserVisible:
		return "user_visible"
	case TaskPriorityUserBlocking:
		return "user_blocking"
	default:
		return "unknown"
	}
}

func isValidPriority(p TaskPriority) bool {
	return p >= TaskPriorityBestEffort && p <= TaskPriorityUserBlocking
}

// =============================================================================
// ShutdownBehavior: policy for tasks during process teardown
// =============================================================================

type ShutdownBehavior int

const (
	// ContinueOnShutdown tasks may run before shutdown but are abandoned
	// once shutdown begins. New posts are refused during shutdown.
	ContinueOnShutdown ShutdownBehavior = iota

	// SkipOnShutdown is the default. Tasks already running finish, queued
	// tasks are skipped, and new posts are refused once shutdown begins.
	SkipOnShutdown

	// BlockShutdown tasks must run to completion before shutdown finishes.
	// Posts with this behavior are still accepted while shutdown is in
	// progress.
	BlockShutdown
)

func (b ShutdownBehavior) String() string {
	switch b {
	case ContinueOnShutdown:
		return "continue_on_shutdown"
	case SkipOnShutdown:
		return "skip_on_shutdown"
	case BlockShutdown:
		return "block_shutdown"
	default:
		return "unknown"
	}
}

func isValidShutdownBehavior(b ShutdownBehavior) bool {
	return b >= ContinueOnShutdown && b <= BlockShutdown
}

// =============================================================================
// TaskRunner: Define task submission interface
// =============================================================================

// TaskRunner posts tasks for asynchronous execution. Post methods return
// false when the task is provably unable to run (the process is shutting
// down and the traits' shutdown behavior forbids starting it). A false
// return is routine control flow, not a failure.
type TaskRunner interface {
	PostTask(task Task) bool
	PostDelayedTask(task Task, delay time.Duration) bool
}

// SequencedRunner is a TaskRunner whose tasks execute one at a time, in
// posting order, on whichever pool worker picks up its sequence.
type SequencedRunner interface {
	TaskRunner

	// Token identifies the runner's underlying sequence.
	Token() SequenceToken
}

// UpdateableSequencedRunner is a SequencedRunner whose sequence priority
// can be changed after construction. Split from SequencedRunner so only
// call sites that need re-prioritization depend on it.
type UpdateableSequencedRunner interface {
	SequencedRunner

	// UpdatePriority changes the priority of the sequence and everything
	// queued on it. Safe to call while a task from the sequence is
	// mid-execution on a worker.
	UpdatePriority(priority TaskPriority)
}

// =============================================================================
// SchedulerDelegate: boundary to the worker-dispatch layer
// =============================================================================

// SchedulerDelegate is the funnel through which runners hand work to the
// scheduling layer.
type SchedulerDelegate interface {
	// PostTaskWithSequence pushes task onto seq and, when the push
	// transitions seq from empty to non-empty, registers seq with the
	// ready set. Returns false iff the shutdown state forbids the
	// sequence's shutdown behavior.
	PostTaskWithSequence(task Task, seq *Sequence) bool

	// PostDelayedTaskWithSequence pushes task onto seq's delayed queue
	// and arranges for seq to become ready once delay elapses.
	PostDelayedTaskWithSequence(task Task, delay time.Duration, seq *Sequence) bool
}

// =============================================================================
// Context Helper
// =============================================================================
type taskRunnerKeyType struct{}

var taskRunnerKey taskRunnerKeyType

// WithCurrentTaskRunner returns a context carrying runner as the current
// TaskRunner, so tasks can repost to the runner that scheduled them.
func WithCurrentTaskRunner(ctx context.Context, runner TaskRunner) context.Context {
	return context.WithValue(ctx, taskRunnerKey, runner)
}

func GetCurrentTaskRunner(ctx context.Context) TaskRunner {
	if v := ctx.Value(taskRunnerKey); v != nil {
		return v.(TaskRunner)
	}
	return nil
}
