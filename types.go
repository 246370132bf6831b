package taskpool

import "github.com/ktlin/go-task-pool/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the taskpool package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// TaskTraits describes task attributes (priority, shutdown behavior,
// blocking characteristics, extension)
type TaskTraits = core.TaskTraits

// TaskPriority defines the priority levels for tasks
type TaskPriority = core.TaskPriority

// ShutdownBehavior governs whether a task may start or must finish during
// process teardown
type ShutdownBehavior = core.ShutdownBehavior

// TaskRunner is the interface for posting tasks
type TaskRunner = core.TaskRunner

// SequencedTaskRunner ensures sequential, non-concurrent execution of tasks
type SequencedTaskRunner = core.SequencedTaskRunner

// UpdateableSequencedTaskRunner is a SequencedTaskRunner whose priority can
// be changed after construction
type UpdateableSequencedTaskRunner = core.UpdateableSequencedTaskRunner

// ParallelTaskRunner posts one-off tasks with no mutual ordering
type ParallelTaskRunner = core.ParallelTaskRunner

// Sequence is the per-runner task queue
type Sequence = core.Sequence

// SequenceToken is a process-unique, creation-ordered sequence identifier
type SequenceToken = core.SequenceToken

// SequenceSortKey ranks sequences for worker assignment
type SequenceSortKey = core.SequenceSortKey

// Priority constants
const (
	TaskPriorityBestEffort   TaskPriority = core.TaskPriorityBestEffort
	TaskPriorityUserVisible  TaskPriority = core.TaskPriorityUserVisible
	TaskPriorityUserBlocking TaskPriority = core.TaskPriorityUserBlocking
)

// Shutdown behavior constants
const (
	ContinueOnShutdown ShutdownBehavior = core.ContinueOnShutdown
	SkipOnShutdown     ShutdownBehavior = core.SkipOnShutdown
	BlockShutdown      ShutdownBehavior = core.BlockShutdown
)

// Convenience functions for creating TaskTraits
var (
	NewTaskTraits        = core.NewTaskTraits
	DefaultTaskTraits    = core.DefaultTaskTraits
	TraitsUserBlocking   = core.TraitsUserBlocking
	TraitsBestEffort     = core.TraitsBestEffort
	TraitsUserVisible    = core.TraitsUserVisible
	WithPriority         = core.WithPriority
	WithShutdownBehavior = core.WithShutdownBehavior
	WithMayBlock         = core.WithMayBlock
	WithSyncPrimitives   = core.WithSyncPrimitives
	WithExtension        = core.WithExtension
	Override             = core.Override
)

// NewSequencedTaskRunner creates a new SequencedTaskRunner with the given
// delegate. Re-exported for advanced users who want to create runners
// against custom schedulers.
func NewSequencedTaskRunner(delegate core.SchedulerDelegate, traits TaskTraits) *SequencedTaskRunner {
	return core.NewSequencedTaskRunner(delegate, traits)
}

// NewParallelTaskRunner creates a new ParallelTaskRunner with the given
// delegate.
func NewParallelTaskRunner(delegate core.SchedulerDelegate, traits TaskTraits) *ParallelTaskRunner {
	return core.NewParallelTaskRunner(delegate, traits)
}

// GetCurrentTaskRunner retrieves the current TaskRunner from context
var GetCurrentTaskRunner = core.GetCurrentTaskRunner
