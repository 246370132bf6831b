package core

import "time"

// SequenceSortKey ranks sequences competing for worker assignment. It is a
// snapshot: recompute it on every state change that could affect ranking.
//
// Total order, most-important-first:
//  1. higher priority always outranks lower priority
//  2. at equal priority, fewer assigned workers outranks more, which biases
//     selection toward sequences currently starved of workers
//  3. at equal priority and worker count, the earlier ready time outranks
//     the later one, giving FIFO fairness across otherwise tied sequences
type SequenceSortKey struct {
	Priority    TaskPriority
	WorkerCount int
	ReadyTime   time.Time
}

// RanksAbove reports whether k should be scheduled before other. Designed to
// back a max-first heap so the best sequence is extractable in O(log n).
func (k SequenceSortKey) RanksAbove(other SequenceSortKey) bool {
	if k.Priority != other.Priority {
		return k.Priority > other.Priority
	}
	if k.WorkerCount != other.WorkerCount {
		return k.WorkerCount < other.WorkerCount
	}
	return k.ReadyTime.Before(other.ReadyTime)
}

// Equal requires all three fields to match exactly.
func (k SequenceSortKey) Equal(other SequenceSortKey) bool {
	return k.Priority == other.Priority &&
		k.WorkerCount == other.WorkerCount &&
		k.ReadyTime.Equal(other.ReadyTime)
}
