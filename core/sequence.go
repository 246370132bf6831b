package core

import (
	"container/heap"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"
)

const (
	defaultImmediateCap = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// SequenceToken is a process-unique, creation-ordered sequence identifier.
type SequenceToken xid.ID

func (t SequenceToken) String() string {
	return xid.ID(t).String()
}

// SequenceLocation records where a sequence currently lives in the
// scheduler's bookkeeping. A sequence is in exactly one location at a time.
type SequenceLocation int32

const (
	// LocationNone: the sequence is empty and tracked nowhere.
	LocationNone SequenceLocation = iota

	// LocationImmediateQueue: registered in the ready set, eligible for
	// worker selection.
	LocationImmediateQueue

	// LocationDelayedQueue: holds only unripe delayed tasks and waits on a
	// timer wake.
	LocationDelayedQueue

	// LocationRunning: a worker is executing a task taken from it.
	LocationRunning
)

func (l SequenceLocation) String() string {
	switch l {
	case LocationNone:
		return "none"
	case LocationImmediateQueue:
		return "immediate_queue"
	case LocationDelayedQueue:
		return "delayed_queue"
	case LocationRunning:
		return "running"
	default:
		return "unknown"
	}
}

// SequenceTask is one schedulable unit held by a Sequence.
type SequenceTask struct {
	ID        uuid.UUID
	Run       Task
	Traits    TaskTraits
	QueueTime time.Time
	RunAt     time.Time // zero for immediate tasks
}

// delayedTaskHeap is a min-heap of delayed tasks ordered by scheduled run
// time.
type delayedTaskHeap []*SequenceTask

func (h delayedTaskHeap) Len() int           { return len(h) }
func (h delayedTaskHeap) Less(i, j int) bool { return h[i].RunAt.Before(h[j].RunAt) }
func (h delayedTaskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *delayedTaskHeap) Push(x any) {
	*h = append(*h, x.(*SequenceTask))
}

func (h *delayedTaskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	*h = old[0 : n-1]
	return item
}

func (h delayedTaskHeap) Peek() *SequenceTask {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// =============================================================================
// Sequence: per-runner container of tasks that execute one at a time
// =============================================================================

// Sequence holds an immediate FIFO and a delayed min-heap of tasks. All
// content mutation happens inside a Transaction, which holds the sequence's
// exclusive lock for its full extent. Location and ready time are atomics so
// the ready-set ranking path can read them without the lock.
//
// At most one worker executes tasks drawn from a Sequence at a time; that is
// the sequencing guarantee everything above relies on.
type Sequence struct {
	token SequenceToken

	mu            sync.Mutex
	inTransaction bool
	traits        TaskTraits
	immediate     []*SequenceTask
	delayed       delayedTaskHeap

	// Mirrors traits.priority so SortKey never needs the lock.
	priority    atomic.Int32
	location    atomic.Int32
	readyTime   atomic.Int64 // unix nanos
	workerCount atomic.Int32
}

// NewSequence creates an empty sequence carrying traits as its descriptor.
func NewSequence(traits TaskTraits) *Sequence {
	s := &Sequence{
		token:     SequenceToken(xid.New()),
		traits:    traits,
		immediate: make([]*SequenceTask, 0, defaultImmediateCap),
	}
	s.priority.Store(int32(traits.Priority()))
	return s
}

func (s *Sequence) Token() SequenceToken { return s.token }

// Location is readable without a transaction.
func (s *Sequence) Location() SequenceLocation {
	return SequenceLocation(s.location.Load())
}

// ReadyTime is readable without a transaction.
func (s *Sequence) ReadyTime() time.Time {
	return time.Unix(0, s.readyTime.Load())
}

// Priority is readable without a transaction.
func (s *Sequence) Priority() TaskPriority {
	return TaskPriority(s.priority.Load())
}

// WorkerCount returns the number of workers currently assigned to this
// sequence (0 or 1).
func (s *Sequence) WorkerCount() int {
	return int(s.workerCount.Load())
}

// Traits returns a snapshot of the sequence's descriptor.
func (s *Sequence) Traits() TaskTraits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traits
}

// SortKey snapshots the ranking key for the ready set. Lock-free; callers
// re-snapshot on every state change that could affect ranking.
func (s *Sequence) SortKey() SequenceSortKey {
	return SequenceSortKey{
		Priority:    s.Priority(),
		WorkerCount: s.WorkerCount(),
		ReadyTime:   s.ReadyTime(),
	}
}

// BeginTransaction acquires the sequence's exclusive lock. The returned
// Transaction must be finished with Done on every exit path, typically via
// defer.
func (s *Sequence) BeginTransaction() *Transaction {
	s.mu.Lock()
	s.inTransaction = true
	return &Transaction{seq: s, active: true}
}

// =============================================================================
// Transaction: scoped exclusive access to a Sequence
// =============================================================================

// Transaction serializes all mutation of a Sequence. Using a finished
// transaction, or pushing without first observing the matching predicate
// (ShouldBeQueued for immediate pushes, TopDelayedTaskWillChange for delayed
// ones), is a contract violation and panics; continuing would corrupt
// shared scheduler state.
type Transaction struct {
	seq    *Sequence
	active bool

	observedShouldBeQueued bool
	observedTopWillChange  bool
}

func (t *Transaction) assertActive() {
	if !t.active || !t.seq.inTransaction {
		panic("Sequence: operation on a finished transaction")
	}
}

// Done releases the sequence lock and invalidates the transaction.
func (t *Transaction) Done() {
	t.assertActive()
	t.active = false
	t.seq.inTransaction = false
	t.seq.mu.Unlock()
}

// ShouldBeQueued reports whether the next immediate push must register the
// sequence into the ready set. Only meaningful while the caller serializes
// competing pushes through this transaction.
func (t *Transaction) ShouldBeQueued() bool {
	t.assertActive()
	t.observedShouldBeQueued = true
	loc := t.seq.Location()
	return loc == LocationNone || loc == LocationDelayedQueue
}

// TopDelayedTaskWillChange reports whether a delayed task scheduled at runAt
// would become the nearest-in-time delayed task. The answer can be stale the
// moment the transaction ends.
func (t *Transaction) TopDelayedTaskWillChange(runAt time.Time) bool {
	t.assertActive()
	t.observedTopWillChange = true
	top := t.seq.delayed.Peek()
	return top == nil || runAt.Before(top.RunAt)
}

// PushImmediateTask appends task to the immediate FIFO. ShouldBeQueued must
// have been observed earlier in this transaction.
func (t *Transaction) PushImmediateTask(task Task) *SequenceTask {
	t.assertActive()
	if !t.observedShouldBeQueued {
		panic("Sequence: PushImmediateTask without observing ShouldBeQueued")
	}
	st := &SequenceTask{
		ID:        uuid.New(),
		Run:       task,
		Traits:    t.seq.traits,
		QueueTime: time.Now(),
	}
	t.seq.immediate = append(t.seq.immediate, st)
	return st
}

// PushDelayedTask inserts task into the delayed heap, scheduled at runAt.
// TopDelayedTaskWillChange must have been observed earlier in this
// transaction.
func (t *Transaction) PushDelayedTask(task Task, runAt time.Time) *SequenceTask {
	t.assertActive()
	if !t.observedTopWillChange {
		panic("Sequence: PushDelayedTask without observing TopDelayedTaskWillChange")
	}
	st := &SequenceTask{
		ID:        uuid.New(),
		Run:       task,
		Traits:    t.seq.traits,
		QueueTime: time.Now(),
		RunAt:     runAt,
	}
	heap.Push(&t.seq.delayed, st)
	return st
}

// WillRunTask grants the calling worker permission to take a task. The
// concurrency budget of a sequence is exactly 1; a second worker claiming
// the same sequence is a contract violation.
func (t *Transaction) WillRunTask() {
	t.assertActive()
	if loc := t.seq.Location(); loc != LocationImmediateQueue {
		panic(fmt.Sprintf("Sequence: WillRunTask in location %v", loc))
	}
	if n := t.seq.workerCount.Add(1); n != 1 {
		panic(fmt.Sprintf("Sequence: concurrency budget exceeded (workers=%d)", n))
	}
	t.seq.location.Store(int32(LocationRunning))
}

// TakeTask removes and returns the earliest eligible task. Immediate tasks
// are always eligible; a delayed task is eligible only once its scheduled
// run time has passed relative to one clock snapshot taken here. When both
// heads are eligible the earlier of (immediate head's enqueue time) and
// (delayed head's scheduled time) wins, with the immediate head winning
// exact ties.
func (t *Transaction) TakeTask() (*SequenceTask, bool) {
	t.assertActive()
	if loc := t.seq.Location(); loc != LocationRunning {
		panic(fmt.Sprintf("Sequence: TakeTask in location %v", loc))
	}

	now := time.Now()
	immHead := t.peekImmediate()
	delHead := t.seq.delayed.Peek()
	delayedRipe := delHead != nil && !delHead.RunAt.After(now)

	switch {
	case immHead == nil && !delayedRipe:
		return nil, false
	case immHead == nil:
		return heap.Pop(&t.seq.delayed).(*SequenceTask), true
	case !delayedRipe:
		return t.popImmediate(), true
	case delHead.RunAt.Before(immHead.QueueTime):
		return heap.Pop(&t.seq.delayed).(*SequenceTask), true
	default:
		return t.popImmediate(), true
	}
}

// DidProcessTask releases the worker's claim after a task ran. Returns true
// when more work is ready now, in which case the caller must re-insert the
// sequence into the ready set under a freshly snapshotted sort key. When it
// returns false the sequence is either idle (LocationNone) or waiting on a
// timer wake (LocationDelayedQueue; consult NextDelayedRunTime).
func (t *Transaction) DidProcessTask() bool {
	t.assertActive()
	if loc := t.seq.Location(); loc != LocationRunning {
		panic(fmt.Sprintf("Sequence: DidProcessTask in location %v", loc))
	}
	if n := t.seq.workerCount.Add(-1); n != 0 {
		panic(fmt.Sprintf("Sequence: concurrency budget corrupted (workers=%d)", n))
	}

	now := time.Now()
	delHead := t.seq.delayed.Peek()
	delayedRipe := delHead != nil && !delHead.RunAt.After(now)

	if len(t.seq.immediate) > 0 || delayedRipe {
		t.seq.readyTime.Store(t.earliestReadyMoment(now).UnixNano())
		t.seq.location.Store(int32(LocationImmediateQueue))
		return true
	}
	if delHead != nil {
		t.seq.readyTime.Store(delHead.RunAt.UnixNano())
		t.seq.location.Store(int32(LocationDelayedQueue))
		return false
	}
	t.seq.location.Store(int32(LocationNone))
	return false
}

// NextDelayedRunTime returns the scheduled time of the nearest delayed
// task.
func (t *Transaction) NextDelayedRunTime() (time.Time, bool) {
	t.assertActive()
	top := t.seq.delayed.Peek()
	if top == nil {
		return time.Time{}, false
	}
	return top.RunAt, true
}

// UpdatePriority rewrites the priority of the sequence's own traits copy.
// Every task taken after this transaction sees the new priority.
func (t *Transaction) UpdatePriority(p TaskPriority) {
	t.assertActive()
	if !isValidPriority(p) {
		panic(fmt.Sprintf("Sequence: invalid priority %d", p))
	}
	t.seq.traits = t.seq.traits.withPriority(p)
	t.seq.priority.Store(int32(p))
}

// IsEmpty reports whether both sub-containers are empty.
func (t *Transaction) IsEmpty() bool {
	t.assertActive()
	return len(t.seq.immediate) == 0 && t.seq.delayed.Len() == 0
}

// Len returns the total number of queued tasks.
func (t *Transaction) Len() int {
	t.assertActive()
	return len(t.seq.immediate) + t.seq.delayed.Len()
}

// Clear drops every queued task and returns how many were dropped. A
// sequence mid-execution keeps LocationRunning; DidProcessTask will settle
// it to LocationNone.
func (t *Transaction) Clear() int {
	t.assertActive()
	n := len(t.seq.immediate) + t.seq.delayed.Len()
	t.seq.immediate = make([]*SequenceTask, 0, defaultImmediateCap)
	t.seq.delayed = nil
	if t.seq.Location() != LocationRunning {
		t.seq.location.Store(int32(LocationNone))
	}
	return n
}

// markReady flips a sequence into the immediate ready set. Callers commit
// to inserting it into the ready heap before releasing the transaction.
func (t *Transaction) markReady(readyTime time.Time) {
	t.assertActive()
	t.seq.readyTime.Store(readyTime.UnixNano())
	t.seq.location.Store(int32(LocationImmediateQueue))
}

// markDelayed parks a sequence waiting on its nearest delayed task.
func (t *Transaction) markDelayed(wakeAt time.Time) {
	t.assertActive()
	t.seq.readyTime.Store(wakeAt.UnixNano())
	t.seq.location.Store(int32(LocationDelayedQueue))
}

func (t *Transaction) peekImmediate() *SequenceTask {
	if len(t.seq.immediate) == 0 {
		return nil
	}
	return t.seq.immediate[0]
}

func (t *Transaction) popImmediate() *SequenceTask {
	st := t.seq.immediate[0]
	// Zero out the element in the underlying array to prevent memory leak
	t.seq.immediate[0] = nil
	t.seq.immediate = t.seq.immediate[1:]
	t.maybeCompactLocked()
	return st
}

// earliestReadyMoment computes the instant the sequence became ready:
// the front immediate task's enqueue time, or the nearest ripe delayed
// task's scheduled time when it is earlier.
func (t *Transaction) earliestReadyMoment(now time.Time) time.Time {
	ready := now
	if head := t.peekImmediate(); head != nil {
		ready = head.QueueTime
	}
	if top := t.seq.delayed.Peek(); top != nil && !top.RunAt.After(now) && top.RunAt.Before(ready) {
		ready = top.RunAt
	}
	return ready
}

func (t *Transaction) maybeCompactLocked() {
	n := len(t.seq.immediate)
	c := cap(t.seq.immediate)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		t.seq.immediate = make([]*SequenceTask, 0, defaultImmediateCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultImmediateCap), n)

	newSlice := make([]*SequenceTask, n, newCap)
	copy(newSlice, t.seq.immediate)
	t.seq.immediate = newSlice
}
