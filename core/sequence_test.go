package core

import (
	"context"
	"testing"
	"time"
)

func noopTask(ctx context.Context) {}

// moveToReady drives seq from LocationNone into the immediate ready state the
// way the scheduling delegate does on a first push.
func moveToReady(t *testing.T, seq *Sequence, task Task) {
	t.Helper()
	tx := seq.BeginTransaction()
	defer tx.Done()
	if !tx.ShouldBeQueued() {
		t.Fatal("ShouldBeQueued() = false on an empty sequence")
	}
	tx.markReady(time.Now())
	tx.PushImmediateTask(task)
}

// TestSequence_InitialState verifies a fresh sequence starts empty and
// untracked
func TestSequence_InitialState(t *testing.T) {
	seq := NewSequence(TraitsUserBlocking())

	if seq.Location() != LocationNone {
		t.Errorf("Location() = %v, want LocationNone", seq.Location())
	}
	if seq.Priority() != TaskPriorityUserBlocking {
		t.Errorf("Priority() = %v, want UserBlocking", seq.Priority())
	}
	if seq.WorkerCount() != 0 {
		t.Errorf("WorkerCount() = %d, want 0", seq.WorkerCount())
	}

	tx := seq.BeginTransaction()
	defer tx.Done()
	if !tx.IsEmpty() {
		t.Error("IsEmpty() = false on a fresh sequence")
	}
}

// TestSequence_TokensAreUnique verifies sequence tokens never collide
func TestSequence_TokensAreUnique(t *testing.T) {
	seen := make(map[SequenceToken]bool)
	for i := 0; i < 1000; i++ {
		token := NewSequence(DefaultTaskTraits()).Token()
		if seen[token] {
			t.Fatalf("duplicate token %s after %d sequences", token, i)
		}
		seen[token] = true
	}
}

// TestTransaction_ShouldBeQueuedOnlyOnEmptyToNonEmpty verifies the ready-set
// registration predicate
// Given: A sequence moving through None -> ImmediateQueue
// When: ShouldBeQueued is consulted at each stage
// Then: It is true only while the sequence is outside the ready set
func TestTransaction_ShouldBeQueuedOnlyOnEmptyToNonEmpty(t *testing.T) {
	seq := NewSequence(DefaultTaskTraits())

	moveToReady(t, seq, noopTask)

	// Second push: the sequence is already registered.
	tx := seq.BeginTransaction()
	if tx.ShouldBeQueued() {
		t.Error("ShouldBeQueued() = true while already in the immediate queue")
	}
	tx.PushImmediateTask(noopTask)
	tx.Done()

	if seq.Location() != LocationImmediateQueue {
		t.Errorf("Location() = %v, want ImmediateQueue", seq.Location())
	}
}

// TestTransaction_PushWithoutPredicatePanics verifies the
// predicate-observation contract
func TestTransaction_PushWithoutPredicatePanics(t *testing.T) {
	t.Run("immediate", func(t *testing.T) {
		seq := NewSequence(DefaultTaskTraits())
		tx := seq.BeginTransaction()
		defer tx.Done()
		defer func() {
			if recover() == nil {
				t.Error("PushImmediateTask without ShouldBeQueued did not panic")
			}
		}()
		tx.PushImmediateTask(noopTask)
	})

	t.Run("delayed", func(t *testing.T) {
		seq := NewSequence(DefaultTaskTraits())
		tx := seq.BeginTransaction()
		defer tx.Done()
		defer func() {
			if recover() == nil {
				t.Error("PushDelayedTask without TopDelayedTaskWillChange did not panic")
			}
		}()
		tx.PushDelayedTask(noopTask, time.Now().Add(time.Second))
	})
}

// TestTransaction_UseAfterDonePanics verifies finished transactions reject
// further operations
func TestTransaction_UseAfterDonePanics(t *testing.T) {
	seq := NewSequence(DefaultTaskTraits())
	tx := seq.BeginTransaction()
	tx.Done()

	defer func() {
		if recover() == nil {
			t.Error("operation on a finished transaction did not panic")
		}
	}()
	tx.ShouldBeQueued()
}

// TestTransaction_RunCycle verifies the WillRunTask / TakeTask /
// DidProcessTask worker cycle
// Given: A sequence with two immediate tasks
// When: A worker runs the full cycle twice
// Then: Tasks come out in FIFO order and the sequence settles at LocationNone
func TestTransaction_RunCycle(t *testing.T) {
	seq := NewSequence(DefaultTaskTraits())

	var order []int
	moveToReady(t, seq, func(ctx context.Context) { order = append(order, 1) })

	tx := seq.BeginTransaction()
	tx.ShouldBeQueued()
	tx.PushImmediateTask(func(ctx context.Context) { order = append(order, 2) })
	tx.Done()

	for i := 0; i < 2; i++ {
		tx := seq.BeginTransaction()
		tx.WillRunTask()
		if seq.Location() != LocationRunning {
			t.Fatalf("Location() = %v after WillRunTask, want Running", seq.Location())
		}
		if seq.WorkerCount() != 1 {
			t.Fatalf("WorkerCount() = %d after WillRunTask, want 1", seq.WorkerCount())
		}
		task, ok := tx.TakeTask()
		tx.Done()
		if !ok {
			t.Fatalf("TakeTask() returned no task on pass %d", i)
		}

		// Run outside the transaction, like a worker would.
		task.Run(context.Background())

		tx = seq.BeginTransaction()
		more := tx.DidProcessTask()
		tx.Done()
		if wantMore := i == 0; more != wantMore {
			t.Fatalf("DidProcessTask() = %v on pass %d, want %v", more, i, wantMore)
		}
	}

	if order[0] != 1 || order[1] != 2 {
		t.Errorf("execution order = %v, want [1 2]", order)
	}
	if seq.Location() != LocationNone {
		t.Errorf("Location() = %v after draining, want None", seq.Location())
	}
	if seq.WorkerCount() != 0 {
		t.Errorf("WorkerCount() = %d after draining, want 0", seq.WorkerCount())
	}
}

// TestTransaction_WillRunTaskOutsideReadySetPanics verifies claiming an
// unregistered sequence is a contract violation
func TestTransaction_WillRunTaskOutsideReadySetPanics(t *testing.T) {
	seq := NewSequence(DefaultTaskTraits())
	tx := seq.BeginTransaction()
	defer tx.Done()

	defer func() {
		if recover() == nil {
			t.Error("WillRunTask on LocationNone did not panic")
		}
	}()
	tx.WillRunTask()
}

// TestTransaction_SecondWorkerPanics verifies the concurrency budget of 1
func TestTransaction_SecondWorkerPanics(t *testing.T) {
	seq := NewSequence(DefaultTaskTraits())
	moveToReady(t, seq, noopTask)

	tx := seq.BeginTransaction()
	tx.WillRunTask()
	tx.Done()

	tx = seq.BeginTransaction()
	defer tx.Done()
	defer func() {
		if recover() == nil {
			t.Error("second WillRunTask did not panic")
		}
	}()
	tx.WillRunTask()
}

// TestTransaction_DelayedTaskNotRipe verifies unripe delayed tasks are never
// taken
func TestTransaction_DelayedTaskNotRipe(t *testing.T) {
	seq := NewSequence(DefaultTaskTraits())

	tx := seq.BeginTransaction()
	if !tx.TopDelayedTaskWillChange(time.Now().Add(time.Hour)) {
		t.Fatal("TopDelayedTaskWillChange() = false on an empty heap")
	}
	tx.PushDelayedTask(noopTask, time.Now().Add(time.Hour))
	tx.markReady(time.Now())
	tx.Done()

	tx = seq.BeginTransaction()
	tx.WillRunTask()
	task, ok := tx.TakeTask()
	tx.Done()

	if ok {
		t.Errorf("TakeTask() returned unripe delayed task %v", task.ID)
	}

	tx = seq.BeginTransaction()
	more := tx.DidProcessTask()
	tx.Done()
	if more {
		t.Error("DidProcessTask() = true with only an unripe delayed task")
	}
	if seq.Location() != LocationDelayedQueue {
		t.Errorf("Location() = %v, want DelayedQueue", seq.Location())
	}
}

// TestTransaction_RipeDelayedBeatsLaterImmediate verifies the earliest
// eligible task wins when both heads are eligible
func TestTransaction_RipeDelayedBeatsLaterImmediate(t *testing.T) {
	seq := NewSequence(DefaultTaskTraits())

	var order []string
	pastRunAt := time.Now().Add(-50 * time.Millisecond)

	// The delayed task was scheduled before the immediate one was posted.
	tx := seq.BeginTransaction()
	tx.TopDelayedTaskWillChange(pastRunAt)
	tx.PushDelayedTask(func(ctx context.Context) { order = append(order, "delayed") }, pastRunAt)
	tx.ShouldBeQueued()
	tx.markReady(time.Now())
	tx.PushImmediateTask(func(ctx context.Context) { order = append(order, "immediate") })
	tx.Done()

	for i := 0; i < 2; i++ {
		tx := seq.BeginTransaction()
		tx.WillRunTask()
		task, ok := tx.TakeTask()
		tx.Done()
		if !ok {
			t.Fatalf("TakeTask() found nothing on pass %d", i)
		}
		task.Run(context.Background())

		tx = seq.BeginTransaction()
		tx.DidProcessTask()
		tx.Done()
	}

	if len(order) != 2 || order[0] != "delayed" || order[1] != "immediate" {
		t.Errorf("execution order = %v, want [delayed immediate]", order)
	}
}

// TestTransaction_DelayedHeapOrdersByRunTime verifies the delayed heap pops
// nearest-first regardless of insertion order
func TestTransaction_DelayedHeapOrdersByRunTime(t *testing.T) {
	seq := NewSequence(DefaultTaskTraits())
	base := time.Now().Add(-time.Second)

	var order []int
	offsets := []time.Duration{300 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond}
	want := []int{1, 2, 0} // sorted by offset

	tx := seq.BeginTransaction()
	for i, off := range offsets {
		i := i
		tx.TopDelayedTaskWillChange(base.Add(off))
		tx.PushDelayedTask(func(ctx context.Context) { order = append(order, i) }, base.Add(off))
	}
	tx.markReady(time.Now())
	tx.Done()

	for range offsets {
		tx := seq.BeginTransaction()
		tx.WillRunTask()
		task, ok := tx.TakeTask()
		tx.Done()
		if !ok {
			t.Fatal("TakeTask() found nothing with ripe delayed tasks queued")
		}
		task.Run(context.Background())

		tx = seq.BeginTransaction()
		tx.DidProcessTask()
		tx.Done()
	}

	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("execution order = %v, want %v", order, want)
		}
	}
}

// TestTransaction_TopDelayedTaskWillChange verifies the nearest-wake
// predicate
func TestTransaction_TopDelayedTaskWillChange(t *testing.T) {
	seq := NewSequence(DefaultTaskTraits())
	base := time.Now().Add(time.Minute)

	tx := seq.BeginTransaction()
	defer tx.Done()

	if !tx.TopDelayedTaskWillChange(base) {
		t.Error("empty heap: TopDelayedTaskWillChange() = false")
	}
	tx.PushDelayedTask(noopTask, base)

	if tx.TopDelayedTaskWillChange(base.Add(time.Second)) {
		t.Error("later task: TopDelayedTaskWillChange() = true")
	}
	if !tx.TopDelayedTaskWillChange(base.Add(-time.Second)) {
		t.Error("earlier task: TopDelayedTaskWillChange() = false")
	}
}

// TestTransaction_UpdatePriority verifies priority propagation to the
// sequence and subsequently taken tasks
func TestTransaction_UpdatePriority(t *testing.T) {
	seq := NewSequence(TraitsBestEffort())
	moveToReady(t, seq, noopTask)

	tx := seq.BeginTransaction()
	tx.UpdatePriority(TaskPriorityUserBlocking)
	tx.Done()

	if seq.Priority() != TaskPriorityUserBlocking {
		t.Errorf("Priority() = %v after update, want UserBlocking", seq.Priority())
	}
	if key := seq.SortKey(); key.Priority != TaskPriorityUserBlocking {
		t.Errorf("SortKey().Priority = %v, want UserBlocking", key.Priority)
	}

	// The task pushed before the update was stamped with the old traits; the
	// descriptor rewrite affects the sequence's ranking, not history.
	tx = seq.BeginTransaction()
	tx.WillRunTask()
	task, _ := tx.TakeTask()
	tx.Done()
	if task.Traits.Priority() != TaskPriorityBestEffort {
		t.Errorf("queued task priority = %v, want the priority at push time", task.Traits.Priority())
	}
}

// TestTransaction_Clear verifies Clear drops both sub-containers
func TestTransaction_Clear(t *testing.T) {
	seq := NewSequence(DefaultTaskTraits())

	tx := seq.BeginTransaction()
	tx.ShouldBeQueued()
	tx.markReady(time.Now())
	tx.PushImmediateTask(noopTask)
	tx.PushImmediateTask(noopTask)
	tx.TopDelayedTaskWillChange(time.Now().Add(time.Hour))
	tx.PushDelayedTask(noopTask, time.Now().Add(time.Hour))

	if n := tx.Clear(); n != 3 {
		t.Errorf("Clear() = %d, want 3", n)
	}
	if !tx.IsEmpty() {
		t.Error("IsEmpty() = false after Clear")
	}
	tx.Done()

	if seq.Location() != LocationNone {
		t.Errorf("Location() = %v after Clear, want None", seq.Location())
	}
}

// TestTransaction_ClearWhileRunningKeepsLocation verifies a mid-execution
// clear defers the location settle to DidProcessTask
func TestTransaction_ClearWhileRunningKeepsLocation(t *testing.T) {
	seq := NewSequence(DefaultTaskTraits())
	moveToReady(t, seq, noopTask)

	tx := seq.BeginTransaction()
	tx.WillRunTask()
	tx.TakeTask()
	tx.Done()

	tx = seq.BeginTransaction()
	tx.Clear()
	tx.Done()
	if seq.Location() != LocationRunning {
		t.Errorf("Location() = %v after Clear while running, want Running", seq.Location())
	}

	tx = seq.BeginTransaction()
	if tx.DidProcessTask() {
		t.Error("DidProcessTask() = true on a cleared sequence")
	}
	tx.Done()
	if seq.Location() != LocationNone {
		t.Errorf("Location() = %v, want None", seq.Location())
	}
}

// TestSequence_CompactionPreservesOrder verifies FIFO order survives the
// backing-array compaction triggered by long queues
func TestSequence_CompactionPreservesOrder(t *testing.T) {
	seq := NewSequence(DefaultTaskTraits())

	const n = 200
	var order []int
	tx := seq.BeginTransaction()
	tx.ShouldBeQueued()
	tx.markReady(time.Now())
	for i := 0; i < n; i++ {
		i := i
		tx.PushImmediateTask(func(ctx context.Context) { order = append(order, i) })
	}
	tx.Done()

	for i := 0; i < n; i++ {
		tx := seq.BeginTransaction()
		tx.WillRunTask()
		task, ok := tx.TakeTask()
		tx.Done()
		if !ok {
			t.Fatalf("TakeTask() found nothing at %d of %d", i, n)
		}
		task.Run(context.Background())

		tx = seq.BeginTransaction()
		tx.DidProcessTask()
		tx.Done()
	}

	for i := 0; i < n; i++ {
		if order[i] != i {
			t.Fatalf("order[%d] = %d, want %d", i, order[i], i)
		}
	}
}
