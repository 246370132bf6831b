package core

import (
	"fmt"
	"sync"
)

// =============================================================================
// ExtensionRegistry: process-wide table of embedder trait executors
// =============================================================================

// TraitsExecutor is an embedder-registered scheduling path consulted in
// preference to the default one when a sequence's traits carry the
// executor's extension id.
type TraitsExecutor interface {
	// PostTaskWithSequence mirrors SchedulerDelegate.PostTaskWithSequence
	// for sequences routed to this executor.
	PostTaskWithSequence(task Task, seq *Sequence) bool
}

// ExtensionRegistry maps extension ids to executors. Registration happens
// once during process setup, before any posting begins; lookups after that
// are read-mostly and cheap.
type ExtensionRegistry struct {
	mu        sync.RWMutex
	executors [MaxExtensionID + 1]TraitsExecutor
}

var defaultRegistry ExtensionRegistry

// DefaultExtensionRegistry returns the process-wide registry.
func DefaultExtensionRegistry() *ExtensionRegistry {
	return &defaultRegistry
}

// RegisterExecutor binds executor to id. Panics if id is 0, out of the
// [1, MaxExtensionID] range, executor is nil, or an executor is already
// registered for id; all of these are setup bugs, not runtime conditions.
func (r *ExtensionRegistry) RegisterExecutor(id uint8, executor TraitsExecutor) {
	if id < ExtensionIDFirst || id > MaxExtensionID {
		panic(fmt.Sprintf("RegisterExecutor: id %d outside valid range [%d, %d]", id, ExtensionIDFirst, MaxExtensionID))
	}
	if executor == nil {
		panic(fmt.Sprintf("RegisterExecutor: nil executor for id %d", id))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.executors[id] != nil {
		panic(fmt.Sprintf("RegisterExecutor: id %d already registered", id))
	}
	r.executors[id] = executor
}

// ExecutorFor resolves the executor for the extension carried by traits.
// Returns (nil, false) when traits carries no extension. Panics when an id
// is set but nothing was ever registered for it.
func (r *ExtensionRegistry) ExecutorFor(traits TaskTraits) (TraitsExecutor, bool) {
	ext, ok := traits.Extension()
	if !ok {
		return nil, false
	}

	r.mu.RLock()
	executor := r.executors[ext.ID]
	r.mu.RUnlock()

	if executor == nil {
		panic(fmt.Sprintf("ExecutorFor: no executor registered for extension id %d", ext.ID))
	}
	return executor, true
}

// ResetForTesting clears all registrations. Test teardown only.
func (r *ExtensionRegistry) ResetForTesting() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.executors {
		r.executors[i] = nil
	}
}

// =============================================================================
// ExecutorSlot: per-worker active-executor state
// =============================================================================

// ExecutorSlot holds the executor currently driving a worker, the moral
// equivalent of a thread-local slot. Each pool worker owns exactly one and
// only that worker reads or writes it; nothing here is safe for sharing
// across goroutines.
type ExecutorSlot struct {
	active TraitsExecutor
}

// Set installs executor as the active one for the owning worker.
func (s *ExecutorSlot) Set(executor TraitsExecutor) {
	s.active = executor
}

// Get returns the active executor, or nil when the slot is empty.
func (s *ExecutorSlot) Get() TraitsExecutor {
	return s.active
}

// Clear empties the slot. Explicitly callable for test teardown.
func (s *ExecutorSlot) Clear() {
	s.active = nil
}
