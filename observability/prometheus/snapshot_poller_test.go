package prometheus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ktlin/go-task-pool/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakePool struct {
	mu    sync.Mutex
	stats core.PoolStats
}

func (f *fakePool) Stats() core.PoolStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakePool) set(stats core.PoolStats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = stats
}

func TestSnapshotPoller_CollectsPoolStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller() error: %v", err)
	}

	pool := &fakePool{}
	pool.set(core.PoolStats{ID: "p1", Workers: 4, Ready: 2, Active: 1, Delayed: 3, Running: true})
	poller.AddPool("p1", pool)

	poller.Start(context.Background())
	defer poller.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(poller.poolWorkers.WithLabelValues("p1")) == 4 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := testutil.ToFloat64(poller.poolReady.WithLabelValues("p1")); got != 2 {
		t.Errorf("pool_ready_sequences = %v, want 2", got)
	}
	if got := testutil.ToFloat64(poller.poolActive.WithLabelValues("p1")); got != 1 {
		t.Errorf("pool_active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.poolDelayed.WithLabelValues("p1")); got != 3 {
		t.Errorf("pool_delayed = %v, want 3", got)
	}
	if got := testutil.ToFloat64(poller.poolRunning.WithLabelValues("p1")); got != 1 {
		t.Errorf("pool_running = %v, want 1", got)
	}
}

func TestSnapshotPoller_StartStopIdempotent(t *testing.T) {
	poller, err := NewSnapshotPoller(prom.NewRegistry(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller() error: %v", err)
	}

	ctx := context.Background()
	poller.Start(ctx)
	poller.Start(ctx) // no-op
	poller.Stop()
	poller.Stop() // safe

	// Restartable after a stop.
	poller.Start(ctx)
	poller.Stop()
}
