package core_test

import (
	"testing"

	core "github.com/ktlin/go-task-pool/core"
)

// TestShutdownManager_StateMachine verifies the allow matrix across the
// teardown lifecycle
func TestShutdownManager_StateMachine(t *testing.T) {
	m := core.NewShutdownManager()

	// Before shutdown everything is allowed.
	for _, b := range []core.ShutdownBehavior{core.ContinueOnShutdown, core.SkipOnShutdown, core.BlockShutdown} {
		if !m.Allows(b) {
			t.Errorf("Allows(%v) = false before shutdown", b)
		}
	}
	if m.IsShuttingDown() {
		t.Error("IsShuttingDown() = true before StartShutdown")
	}

	// In progress: only BlockShutdown.
	m.StartShutdown()
	if !m.IsShuttingDown() {
		t.Error("IsShuttingDown() = false after StartShutdown")
	}
	if m.Allows(core.ContinueOnShutdown) || m.Allows(core.SkipOnShutdown) {
		t.Error("non-blocking behavior allowed during shutdown")
	}
	if !m.Allows(core.BlockShutdown) {
		t.Error("Allows(BlockShutdown) = false during shutdown")
	}

	// Complete: nothing.
	m.CompleteShutdown()
	if m.Allows(core.BlockShutdown) {
		t.Error("Allows(BlockShutdown) = true after CompleteShutdown")
	}
}

// TestShutdownManager_StartIsIdempotent verifies repeated StartShutdown calls
// cannot resurrect a completed shutdown
func TestShutdownManager_StartIsIdempotent(t *testing.T) {
	m := core.NewShutdownManager()
	m.StartShutdown()
	m.CompleteShutdown()
	m.StartShutdown()

	if m.Allows(core.BlockShutdown) {
		t.Error("StartShutdown after CompleteShutdown reopened posting")
	}
}
