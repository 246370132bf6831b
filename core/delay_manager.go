package core

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// delayedEntry is one armed timer: either a task-level repost or a sequence
// wake.
type delayedEntry struct {
	RunAt time.Time
	Fire  func()
	index int // for heap interface
}

// delayedEntryHeap implements heap.Interface
type delayedEntryHeap []*delayedEntry

func (h delayedEntryHeap) Len() int           { return len(h) }
func (h delayedEntryHeap) Less(i, j int) bool { return h[i].RunAt.Before(h[j].RunAt) }
func (h delayedEntryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *delayedEntryHeap) Push(x any) {
	n := len(*h)
	item := x.(*delayedEntry)
	item.index = n
	*h = append(*h, item)
}

func (h *delayedEntryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h *delayedEntryHeap) Peek() *delayedEntry {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// DelayManager holds time-keyed work on a min-heap and fires it at maturity
// from a single timer goroutine. It stores two kinds of entries: task-level
// reposts, which re-invoke the scheduling delegate once the delay elapses,
// and sequence wakes, which nudge a sequence parked in the delayed set back
// into the ready set.
type DelayManager struct {
	pq     delayedEntryHeap
	mu     sync.Mutex
	wakeup chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

func NewDelayManager() *DelayManager {
	ctx, cancel := context.WithCancel(context.Background())
	dm := &DelayManager{
		pq:     make(delayedEntryHeap, 0),
		wakeup: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	heap.Init(&dm.pq)
	go dm.loop()
	return dm
}

// AddDelayedTask arranges for task to be handed back to delegate on seq
// once delay elapses. Used by the parallel one-off path: the sequence is
// not registered anywhere until maturity.
func (dm *DelayManager) AddDelayedTask(task Task, delay time.Duration, seq *Sequence, delegate SchedulerDelegate) {
	dm.add(&delayedEntry{
		RunAt: time.Now().Add(delay),
		Fire:  func() { delegate.PostTaskWithSequence(task, seq) },
	})
}

// ScheduleSequenceWake arranges for onRipe(seq) to run at wakeAt. The
// callback must tolerate stale wakes: the sequence may have left the
// delayed set by the time the timer fires.
func (dm *DelayManager) ScheduleSequenceWake(seq *Sequence, wakeAt time.Time, onRipe func(*Sequence)) {
	dm.add(&delayedEntry{
		RunAt: wakeAt,
		Fire:  func() { onRipe(seq) },
	})
}

func (dm *DelayManager) add(item *delayedEntry) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	heap.Push(&dm.pq, item)

	if item.index == 0 {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
}

func (dm *DelayManager) loop() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		// Calculate next run time
		nextRun, ok := dm.calculateNextRun()
		if !ok {
			// No entries, wait indefinitely
			nextRun = 1000 * time.Hour
		}

		timer.Reset(nextRun)

		select {
		case <-dm.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			// Timer fired, process all expired entries in one go
			dm.processExpiredEntries()
		case <-dm.wakeup:
			// New entry added, need to recalculate
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// calculateNextRun determines how long to wait until the next entry fires.
// Returns false when the heap is empty; an already-expired head yields a
// zero wait so the timer fires immediately.
func (dm *DelayManager) calculateNextRun() (time.Duration, bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	item := dm.pq.Peek()
	if item == nil {
		return 0, false
	}

	now := time.Now()
	if item.RunAt.Before(now) {
		return 0, true // Already expired, fire now
	}
	return item.RunAt.Sub(now), true
}

// processExpiredEntries fires all entries that have matured
func (dm *DelayManager) processExpiredEntries() {
	dm.mu.Lock()

	now := time.Now()
	// Collect all expired entries to avoid holding the lock while firing
	var expired []*delayedEntry

	for dm.pq.Len() > 0 {
		item := dm.pq.Peek()
		if item.RunAt.After(now) {
			break // No more expired entries
		}
		heap.Pop(&dm.pq)
		expired = append(expired, item)
	}

	dm.mu.Unlock()

	// Fire expired entries outside the lock
	for _, item := range expired {
		item.Fire()
	}
}

func (dm *DelayManager) Stop() {
	dm.cancel()

	// Clear pq to release all captured references
	dm.mu.Lock()
	dm.pq = make(delayedEntryHeap, 0)
	heap.Init(&dm.pq)
	dm.mu.Unlock()
}

func (dm *DelayManager) TaskCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.pq)
}
