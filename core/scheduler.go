package core

import (
	"container/heap"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// readyHeap: the scheduler-global ready set, best sequence first
// =============================================================================

type readyEntry struct {
	seq   *Sequence
	key   SequenceSortKey
	index int // for heap interface
}

type readyHeap []*readyEntry

func (h readyHeap) Len() int { return len(h) }

// Less puts the highest-ranked sort key at the top.
func (h readyHeap) Less(i, j int) bool {
	return h[i].key.RanksAbove(h[j].key)
}

func (h readyHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *readyHeap) Push(x any) {
	n := len(*h)
	item := x.(*readyEntry)
	item.index = n
	*h = append(*h, item)
}

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

// =============================================================================
// SequenceScheduler: worker-dispatch layer over a sort-key-ordered ready set
// =============================================================================

// SequenceScheduler implements SchedulerDelegate. Runners post through it;
// pool workers drain it. Each registered sequence carries the sort key
// snapshotted at insertion, so the best sequence is extractable in O(log n).
type SequenceScheduler struct {
	mu      sync.Mutex
	ready   readyHeap
	entries map[SequenceToken]*readyEntry

	signal      chan struct{}
	workerCount int

	shutdown     *ShutdownManager
	delayManager *DelayManager

	metricActive int32 // executing on a worker

	panicHandler        PanicHandler
	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler
	logger              Logger
	registry            *ExtensionRegistry

	history executionHistory
}

var _ SchedulerDelegate = (*SequenceScheduler)(nil)

func NewSequenceScheduler(workerCount int) *SequenceScheduler {
	return NewSequenceSchedulerWithConfig(workerCount, DefaultSchedulerConfig())
}

func NewSequenceSchedulerWithConfig(workerCount int, config *SchedulerConfig) *SequenceScheduler {
	s := &SequenceScheduler{
		ready:        make(readyHeap, 0),
		entries:      make(map[SequenceToken]*readyEntry),
		signal:       make(chan struct{}, workerCount*2),
		workerCount:  workerCount,
		shutdown:     NewShutdownManager(),
		delayManager: NewDelayManager(),
		history:      newExecutionHistory(defaultTaskHistoryCapacity),
	}

	// Apply config
	if config != nil {
		s.panicHandler = config.PanicHandler
		s.metrics = config.Metrics
		s.rejectedTaskHandler = config.RejectedTaskHandler
		s.logger = config.Logger
		s.registry = config.Registry
	}

	// Use defaults if not provided
	if s.panicHandler == nil {
		s.panicHandler = &DefaultPanicHandler{}
	}
	if s.metrics == nil {
		s.metrics = &NilMetrics{}
	}
	if s.rejectedTaskHandler == nil {
		s.rejectedTaskHandler = &DefaultRejectedTaskHandler{}
	}
	if s.logger == nil {
		s.logger = NewNoOpLogger()
	}
	if s.registry == nil {
		s.registry = DefaultExtensionRegistry()
	}

	return s
}

// PostTaskWithSequence pushes task onto seq, registering seq with the ready
// set when this push makes it non-empty. Both happen under the sequence
// transaction, so the sequence is never discoverable-but-empty nor
// non-discoverable-but-non-empty. Sequences whose traits carry an extension
// are routed to the registered embedder executor instead.
func (s *SequenceScheduler) PostTaskWithSequence(task Task, seq *Sequence) bool {
	if executor, ok := s.registry.ExecutorFor(seq.Traits()); ok {
		return executor.PostTaskWithSequence(task, seq)
	}
	return s.EnqueueTaskWithSequence(task, seq)
}

// EnqueueTaskWithSequence is the default scheduling path, bypassing any
// embedder executor. Executors that only observe or annotate posts call
// this to hand the sequence back to the scheduler.
func (s *SequenceScheduler) EnqueueTaskWithSequence(task Task, seq *Sequence) bool {
	if !s.allowsPost(seq, seq.Traits()) {
		return false
	}

	tx := seq.BeginTransaction()
	defer tx.Done()

	if tx.ShouldBeQueued() {
		tx.markReady(time.Now())
		s.enqueueReady(seq)
	}
	tx.PushImmediateTask(task)
	return true
}

// PostDelayedTaskWithSequence pushes task onto seq's delayed heap and parks
// seq in the delayed set (with a timer wake) when nothing readier holds it.
func (s *SequenceScheduler) PostDelayedTaskWithSequence(task Task, delay time.Duration, seq *Sequence) bool {
	traits := seq.Traits()
	if !s.allowsPost(seq, traits) {
		return false
	}

	runAt := time.Now().Add(delay)

	tx := seq.BeginTransaction()
	defer tx.Done()

	topChanged := tx.TopDelayedTaskWillChange(runAt)
	tx.PushDelayedTask(task, runAt)

	switch seq.Location() {
	case LocationNone:
		tx.markDelayed(runAt)
		s.delayManager.ScheduleSequenceWake(seq, runAt, s.onSequenceRipe)
	case LocationDelayedQueue:
		if topChanged {
			tx.markDelayed(runAt)
			s.delayManager.ScheduleSequenceWake(seq, runAt, s.onSequenceRipe)
		}
	}
	return true
}

// PostDelayedTaskViaManager hands a (task, sequence) pair to the delay
// manager, which re-invokes PostTaskWithSequence once the delay elapses.
// The one-off parallel path uses this: the sequence stays unregistered
// until maturity.
func (s *SequenceScheduler) PostDelayedTaskViaManager(task Task, delay time.Duration, seq *Sequence) bool {
	if !s.allowsPost(seq, seq.Traits()) {
		return false
	}
	s.delayManager.AddDelayedTask(task, delay, seq, s)
	return true
}

func (s *SequenceScheduler) allowsPost(seq *Sequence, traits TaskTraits) bool {
	if s.shutdown.Allows(traits.ShutdownBehavior()) {
		return true
	}
	s.logger.Debug("post refused", F("sequence", seq.Token()), F("behavior", traits.ShutdownBehavior()))
	s.rejectedTaskHandler.HandleRejectedTask(seq.Token(), "shutting down")
	s.metrics.RecordTaskRejected(seq.Token(), "shutting down")
	return false
}

// onSequenceRipe runs on the delay manager goroutine when a parked
// sequence's wake matures. Wakes can be stale; only a sequence still in the
// delayed set with a ripe top task moves into the ready set.
func (s *SequenceScheduler) onSequenceRipe(seq *Sequence) {
	tx := seq.BeginTransaction()
	defer tx.Done()

	if seq.Location() != LocationDelayedQueue {
		return // stale wake
	}

	next, ok := tx.NextDelayedRunTime()
	if !ok {
		return
	}
	if now := time.Now(); next.After(now) {
		// A nearer wake superseded this one and was then outrun by a
		// priority update; re-arm.
		tx.markDelayed(next)
		s.delayManager.ScheduleSequenceWake(seq, next, s.onSequenceRipe)
		return
	}

	tx.markReady(next)
	s.enqueueReady(seq)
}

// enqueueReady inserts seq into the ready set (or refreshes its key) and
// wakes a worker. Callers hold the sequence transaction.
func (s *SequenceScheduler) enqueueReady(seq *Sequence) {
	key := seq.SortKey()

	s.mu.Lock()
	if entry, ok := s.entries[seq.Token()]; ok {
		entry.key = key
		heap.Fix(&s.ready, entry.index)
	} else {
		entry = &readyEntry{seq: seq, key: key}
		heap.Push(&s.ready, entry)
		s.entries[seq.Token()] = entry
	}
	depth := len(s.ready)
	s.mu.Unlock()

	s.metrics.RecordReadySetDepth(depth)

	select {
	case s.signal <- struct{}{}:
	default:
		// Signal channel full; a worker is already due to wake.
	}
}

// UpdateSortKey refreshes seq's ranking in the ready set after a state
// change (typically a priority update). A sequence not currently registered
// is left alone; its next insertion snapshots a fresh key. This makes
// priority updates eventually consistent with in-flight selection.
func (s *SequenceScheduler) UpdateSortKey(seq *Sequence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[seq.Token()]; ok {
		entry.key = seq.SortKey()
		heap.Fix(&s.ready, entry.index)
	}
}

// NextSequence blocks until a sequence is available for execution and
// returns it, removed from the ready set. Returns false when stopCh fires.
// The caller owns the WillRunTask / TakeTask / DidProcessTask cycle.
func (s *SequenceScheduler) NextSequence(stopCh <-chan struct{}) (*Sequence, bool) {
	for {
		s.mu.Lock()
		for len(s.ready) > 0 {
			entry := heap.Pop(&s.ready).(*readyEntry)
			delete(s.entries, entry.seq.Token())
			if entry.seq.Location() == LocationImmediateQueue {
				s.mu.Unlock()
				return entry.seq, true
			}
			// Stale entry (sequence cleared or re-parked); drop it.
		}
		s.mu.Unlock()

		select {
		case <-s.signal:
			continue
		case <-stopCh:
			return nil, false
		}
	}
}

// DidProcessSequence finishes one execution cycle: it releases the worker's
// claim and, when more work remains, re-registers the sequence under a
// freshly snapshotted sort key or re-arms its delayed wake.
func (s *SequenceScheduler) DidProcessSequence(seq *Sequence) {
	tx := seq.BeginTransaction()
	defer tx.Done()

	if tx.DidProcessTask() {
		s.enqueueReady(seq)
		return
	}
	if seq.Location() == LocationDelayedQueue {
		if next, ok := tx.NextDelayedRunTime(); ok {
			s.delayManager.ScheduleSequenceWake(seq, next, s.onSequenceRipe)
		}
	}
}

// ShouldRunTask reports whether a task with the given traits may still
// start. Queued SkipOnShutdown and ContinueOnShutdown tasks are dropped
// once shutdown begins.
func (s *SequenceScheduler) ShouldRunTask(traits TaskTraits) bool {
	return !s.shutdown.IsShuttingDown() || traits.ShutdownBehavior() == BlockShutdown
}

// ShutdownManager exposes the shutdown coordinator, e.g. to embedder
// executors that need the same predicate.
func (s *SequenceScheduler) ShutdownManager() *ShutdownManager {
	return s.shutdown
}

// Shutdown refuses further non-BlockShutdown posts, stops the delay
// manager, and discards every queued sequence.
func (s *SequenceScheduler) Shutdown() {
	s.shutdown.StartShutdown()
	s.delayManager.Stop()

	s.mu.Lock()
	s.ready = make(readyHeap, 0)
	s.entries = make(map[SequenceToken]*readyEntry)
	s.mu.Unlock()
	s.metrics.RecordReadySetDepth(0)

	s.shutdown.CompleteShutdown()
}

// ShutdownGraceful stops accepting non-BlockShutdown posts and waits for
// the ready set and active workers to drain. Returns an error if the
// timeout elapses first, after force-clearing what remained.
func (s *SequenceScheduler) ShutdownGraceful(timeout time.Duration) error {
	s.shutdown.StartShutdown()
	s.delayManager.Stop()

	deadline := time.After(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			s.mu.Lock()
			s.ready = make(readyHeap, 0)
			s.entries = make(map[SequenceToken]*readyEntry)
			s.mu.Unlock()
			s.shutdown.CompleteShutdown()
			return fmt.Errorf("shutdown graceful timeout after %v, forced clearing", timeout)
		case <-ticker.C:
			if s.ReadySequenceCount() == 0 && s.ActiveTaskCount() == 0 {
				s.shutdown.CompleteShutdown()
				return nil
			}
		}
	}
}

// Metrics
func (s *SequenceScheduler) WorkerCount() int { return s.workerCount }

func (s *SequenceScheduler) ReadySequenceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ready)
}

func (s *SequenceScheduler) ActiveTaskCount() int { return int(atomic.LoadInt32(&s.metricActive)) }

func (s *SequenceScheduler) DelayedTaskCount() int {
	return s.delayManager.TaskCount()
}

func (s *SequenceScheduler) OnTaskStart() {
	atomic.AddInt32(&s.metricActive, 1)
}

func (s *SequenceScheduler) OnTaskEnd() {
	atomic.AddInt32(&s.metricActive, -1)
}

// RecordExecution appends a completed execution to the history ring and
// forwards duration metrics.
func (s *SequenceScheduler) RecordExecution(record TaskExecutionRecord) {
	s.history.Add(record)
	s.metrics.RecordTaskDuration(record.Sequence, record.Priority, record.Duration)
}

// RecentTasks returns completed task execution records in newest-first
// order.
func (s *SequenceScheduler) RecentTasks(limit int) []TaskExecutionRecord {
	return s.history.Recent(limit)
}

// GetPanicHandler returns the panic handler for this scheduler
func (s *SequenceScheduler) GetPanicHandler() PanicHandler {
	return s.panicHandler
}

// GetMetrics returns the metrics collector for this scheduler
func (s *SequenceScheduler) GetMetrics() Metrics {
	return s.metrics
}

// GetLogger returns the logger for this scheduler
func (s *SequenceScheduler) GetLogger() Logger {
	return s.logger
}

// Registry returns the extension registry this scheduler resolves embedder
// executors from.
func (s *SequenceScheduler) Registry() *ExtensionRegistry {
	return s.registry
}
