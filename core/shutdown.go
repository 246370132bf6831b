package core

import "sync/atomic"

// =============================================================================
// ShutdownManager: process-wide shutdown coordination
// =============================================================================

type shutdownState int32

const (
	shutdownNotStarted shutdownState = iota
	shutdownInProgress
	shutdownComplete
)

// ShutdownManager tracks process teardown and answers whether a given
// shutdown behavior class is still allowed to start. The scheduling delegate
// consults it on every post.
type ShutdownManager struct {
	state atomic.Int32
}

func NewShutdownManager() *ShutdownManager {
	return &ShutdownManager{}
}

// StartShutdown moves the process into teardown. From this point only
// BlockShutdown posts are accepted.
func (m *ShutdownManager) StartShutdown() {
	m.state.CompareAndSwap(int32(shutdownNotStarted), int32(shutdownInProgress))
}

// CompleteShutdown marks teardown finished; nothing is accepted after this.
func (m *ShutdownManager) CompleteShutdown() {
	m.state.Store(int32(shutdownComplete))
}

// IsShuttingDown reports whether StartShutdown has been called.
func (m *ShutdownManager) IsShuttingDown() bool {
	return shutdownState(m.state.Load()) != shutdownNotStarted
}

// Allows reports whether a task with the given shutdown behavior may still
// be posted.
func (m *ShutdownManager) Allows(behavior ShutdownBehavior) bool {
	switch shutdownState(m.state.Load()) {
	case shutdownNotStarted:
		return true
	case shutdownInProgress:
		return behavior == BlockShutdown
	default:
		return false
	}
}
