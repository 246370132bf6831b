package core_test

import (
	"testing"
	"time"

	core "github.com/ktlin/go-task-pool/core"
)

func TestSequenceSortKey_RanksAbove(t *testing.T) {
	t0 := time.Unix(1000, 0)
	t1 := t0.Add(time.Second)

	cases := []struct {
		name string
		a, b core.SequenceSortKey
		want bool
	}{
		{
			name: "higher priority wins",
			a:    core.SequenceSortKey{Priority: core.TaskPriorityUserBlocking, WorkerCount: 1, ReadyTime: t1},
			b:    core.SequenceSortKey{Priority: core.TaskPriorityBestEffort, WorkerCount: 0, ReadyTime: t0},
			want: true,
		},
		{
			name: "lower priority loses regardless of other fields",
			a:    core.SequenceSortKey{Priority: core.TaskPriorityBestEffort, WorkerCount: 0, ReadyTime: t0},
			b:    core.SequenceSortKey{Priority: core.TaskPriorityUserVisible, WorkerCount: 1, ReadyTime: t1},
			want: false,
		},
		{
			name: "fewer workers wins at equal priority",
			a:    core.SequenceSortKey{Priority: core.TaskPriorityUserVisible, WorkerCount: 0, ReadyTime: t1},
			b:    core.SequenceSortKey{Priority: core.TaskPriorityUserVisible, WorkerCount: 1, ReadyTime: t0},
			want: true,
		},
		{
			name: "earlier ready time wins at equal priority and workers",
			a:    core.SequenceSortKey{Priority: core.TaskPriorityUserVisible, WorkerCount: 0, ReadyTime: t0},
			b:    core.SequenceSortKey{Priority: core.TaskPriorityUserVisible, WorkerCount: 0, ReadyTime: t1},
			want: true,
		},
		{
			name: "identical keys do not rank above each other",
			a:    core.SequenceSortKey{Priority: core.TaskPriorityUserVisible, WorkerCount: 0, ReadyTime: t0},
			b:    core.SequenceSortKey{Priority: core.TaskPriorityUserVisible, WorkerCount: 0, ReadyTime: t0},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.RanksAbove(tc.b); got != tc.want {
				t.Errorf("RanksAbove = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSequenceSortKey_Equal(t *testing.T) {
	t0 := time.Unix(1000, 0)
	a := core.SequenceSortKey{Priority: core.TaskPriorityUserVisible, WorkerCount: 1, ReadyTime: t0}

	if !a.Equal(a) {
		t.Error("key not equal to itself")
	}
	if a.Equal(core.SequenceSortKey{Priority: core.TaskPriorityUserVisible, WorkerCount: 1, ReadyTime: t0.Add(time.Nanosecond)}) {
		t.Error("keys with different ready times compared equal")
	}
}
