// Package taskpool provides a browser-engine-inspired task scheduling core
// for Go.
//
// Instead of managing goroutines directly, callers post closures to runners.
// A runner feeds a Sequence, the per-runner task queue; worker goroutines
// drain sequences through a global ready set ranked by priority, assigned
// worker count, and ready time. Tasks on one sequence execute in posting
// order and never concurrently with each other, which makes lock-free
// programming practical for state owned by that sequence.
//
// # Quick Start
//
// Initialize the global worker pool at application startup:
//
//	taskpool.InitGlobalWorkerPool(4) // 4 workers
//	defer taskpool.ShutdownGlobalWorkerPool()
//
// Create a SequencedTaskRunner for sequential task execution:
//
//	runner := taskpool.CreateSequencedRunner(taskpool.DefaultTaskTraits())
//	runner.PostTask(func(ctx context.Context) {
//		// Your code here - guaranteed sequential execution
//	})
//
// # Key Concepts
//
// TaskTraits: Immutable scheduling metadata. Priority (BestEffort,
// UserVisible, UserBlocking) determines when the sequence gets scheduled,
// not the order within a sequence. ShutdownBehavior decides whether the
// task may start once teardown begins. Traits are built from an unordered
// option list and merged with Override.
//
// Sequence: Container of tasks that execute non-concurrently, in FIFO
// order. Holds an immediate FIFO and a delayed min-heap; all mutation goes
// through a Transaction holding the sequence's lock.
//
// SequenceSortKey: The (priority, worker count, ready time) tuple that
// ranks competing sequences for worker assignment.
//
// GoroutineWorkerPool: The execution engine. Workers claim the best
// sequence, run one task, and hand the sequence back for re-ranking.
//
// # Shutdown
//
// Posting returns false, never an error, when the process is shutting down
// and the traits' shutdown behavior forbids starting the task. Tasks with
// BlockShutdown are accepted and executed until shutdown completes.
//
// # Example
//
//	import (
//		"context"
//		taskpool "github.com/ktlin/go-task-pool"
//		"github.com/ktlin/go-task-pool/core"
//	)
//
//	func main() {
//		taskpool.InitGlobalWorkerPool(4)
//		defer taskpool.ShutdownGlobalWorkerPool()
//
//		runner := taskpool.CreateSequencedRunner(core.DefaultTaskTraits())
//
//		// Tasks execute sequentially
//		runner.PostTask(func(ctx context.Context) {
//			println("Task 1")
//		})
//		runner.PostTask(func(ctx context.Context) {
//			println("Task 2")
//		})
//
//		// Delayed task
//		runner.PostDelayedTask(func(ctx context.Context) {
//			println("Task 3 - delayed")
//		}, 1*time.Second)
//	}
package taskpool
