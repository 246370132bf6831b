package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution.
// This allows custom panic handling, logging, and recovery strategies.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context from the panicked task
	// - sequence: The token of the sequence the task was taken from
	// - workerID: The ID of the worker executing the task
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, sequence SequenceToken, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, sequence SequenceToken, workerID int, panicInfo any, stackTrace []byte) {
	fmt.Printf("[Worker %d @ sequence %s] Panic: %v\nStack trace:\n%s",
		workerID, sequence, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting scheduling metrics.
// Implementations can send metrics to monitoring systems (Prometheus,
// StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution
// performance.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute.
	RecordTaskDuration(sequence SequenceToken, priority TaskPriority, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(sequence SequenceToken, panicInfo any)

	// RecordReadySetDepth records the number of sequences currently
	// eligible for worker assignment.
	RecordReadySetDepth(depth int)

	// RecordTaskRejected records that a post was refused (e.g. during
	// shutdown).
	RecordTaskRejected(sequence SequenceToken, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskDuration is a no-op.
func (m *NilMetrics) RecordTaskDuration(sequence SequenceToken, priority TaskPriority, duration time.Duration) {
}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic(sequence SequenceToken, panicInfo any) {
}

// RecordReadySetDepth is a no-op.
func (m *NilMetrics) RecordReadySetDepth(depth int) {
}

// RecordTaskRejected is a no-op.
func (m *NilMetrics) RecordTaskRejected(sequence SequenceToken, reason string) {
}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when a post is refused by the scheduler,
// which happens when the process is shutting down and the traits' shutdown
// behavior forbids starting the task.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	// HandleRejectedTask is called when a post is refused.
	HandleRejectedTask(sequence SequenceToken, reason string)
}

// DefaultRejectedTaskHandler provides a basic handler that logs rejected
// tasks.
type DefaultRejectedTaskHandler struct{}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(sequence SequenceToken, reason string) {
	fmt.Printf("[Sequence %s] Task rejected: %s", sequence, reason)
}

// =============================================================================
// SchedulerConfig: Configuration for SequenceScheduler
// =============================================================================

// SchedulerConfig holds configuration options for SequenceScheduler.
// All handlers are optional; if not provided, default implementations will
// be used.
type SchedulerConfig struct {
	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record scheduling metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a post is refused. Defaults to
	// DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler

	// Logger receives structured scheduling events. Defaults to NoOpLogger.
	Logger Logger

	// Registry resolves embedder trait executors. Defaults to the
	// process-wide registry.
	Registry *ExtensionRegistry
}

// DefaultSchedulerConfig returns a config with default handlers.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		PanicHandler:        &DefaultPanicHandler{},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{},
		Logger:              NewNoOpLogger(),
		Registry:            DefaultExtensionRegistry(),
	}
}
