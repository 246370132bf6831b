package taskpool

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ktlin/go-task-pool/core"
)

// GoroutineWorkerPool manages a set of worker goroutines draining the
// sequence scheduler's ready set. Each worker repeatedly claims the best
// sequence by sort key, runs exactly one task from it, and reports back so
// the scheduler can re-rank or park the sequence.
type GoroutineWorkerPool struct {
	id        string
	workers   int
	scheduler *core.SequenceScheduler
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	runningMu sync.RWMutex
}

// NewGoroutineWorkerPool creates a new GoroutineWorkerPool
func NewGoroutineWorkerPool(id string, workers int) *GoroutineWorkerPool {
	return NewGoroutineWorkerPoolWithConfig(id, workers, core.DefaultSchedulerConfig())
}

// NewGoroutineWorkerPoolWithConfig creates a pool with custom handlers.
func NewGoroutineWorkerPoolWithConfig(id string, workers int, config *core.SchedulerConfig) *GoroutineWorkerPool {
	return &GoroutineWorkerPool{
		id:        id,
		workers:   workers,
		scheduler: core.NewSequenceSchedulerWithConfig(workers, config),
	}
}

// Start starts all worker goroutines
func (p *GoroutineWorkerPool) Start(ctx context.Context) {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()

	if p.running {
		return // Already running
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(i, p.ctx)
	}
}

// Stop stops the worker pool
func (p *GoroutineWorkerPool) Stop() {
	// Always shutdown the scheduler to clean up resources (ready set,
	// delayed entries) even if the pool was never started
	p.scheduler.Shutdown()

	p.runningMu.Lock()
	if !p.running {
		p.runningMu.Unlock()
		return
	}
	p.runningMu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	p.Join()

	p.runningMu.Lock()
	p.running = false
	p.runningMu.Unlock()
}

// StopGraceful stops the pool gracefully, waiting for queued tasks to
// complete. Returns error if timeout is exceeded before tasks complete.
func (p *GoroutineWorkerPool) StopGraceful(timeout time.Duration) error {
	p.runningMu.Lock()
	if !p.running {
		// Not running, nothing to do
		p.runningMu.Unlock()
		return nil
	}
	p.runningMu.Unlock()

	// First, gracefully shutdown the scheduler (waits for the ready set
	// and active workers to drain)
	if err := p.scheduler.ShutdownGraceful(timeout); err != nil {
		// Timeout occurred, but we still need to cancel workers
		if p.cancel != nil {
			p.cancel()
		}
		p.Join()

		p.runningMu.Lock()
		p.running = false
		p.runningMu.Unlock()

		return err
	}

	// Scheduler drained successfully, now cancel workers
	if p.cancel != nil {
		p.cancel()
	}
	p.Join()

	p.runningMu.Lock()
	p.running = false
	p.runningMu.Unlock()

	return nil
}

// ID returns the ID of the worker pool
func (p *GoroutineWorkerPool) ID() string {
	return p.id
}

// IsRunning returns whether the worker pool is running
func (p *GoroutineWorkerPool) IsRunning() bool {
	p.runningMu.RLock()
	defer p.runningMu.RUnlock()
	return p.running
}

// workerLoop is the main loop for each worker. It drives the
// WillRunTask / TakeTask / DidProcessTask cycle on claimed sequences.
func (p *GoroutineWorkerPool) workerLoop(id int, ctx context.Context) {
	defer p.wg.Done()
	stopCh := ctx.Done()
	scheduler := p.scheduler

	var slot core.ExecutorSlot
	defer slot.Clear()

	for {
		seq, ok := scheduler.NextSequence(stopCh)
		if !ok {
			// Ready set closed or context canceled
			return
		}

		tx := seq.BeginTransaction()
		tx.WillRunTask()
		task, taken := tx.TakeTask()
		tx.Done()

		if !taken || !scheduler.ShouldRunTask(task.Traits) {
			// Nothing eligible (cleared or skipped on shutdown); release
			// the claim and move on.
			scheduler.DidProcessSequence(seq)
			continue
		}

		if executor, has := scheduler.Registry().ExecutorFor(task.Traits); has {
			slot.Set(executor)
		}

		scheduler.OnTaskStart()
		startedAt := time.Now()
		panicked := false

		// Execute task and capture panic. The sequence lock is never held
		// across user closure execution.
		func() {
			defer func() {
				scheduler.OnTaskEnd()
				if rec := recover(); rec != nil {
					panicked = true
					scheduler.GetPanicHandler().HandlePanic(ctx, seq.Token(), id, rec, debug.Stack())
					scheduler.GetMetrics().RecordTaskPanic(seq.Token(), rec)
				}
			}()
			task.Run(ctx)
		}()

		slot.Clear()

		finishedAt := time.Now()
		scheduler.RecordExecution(core.TaskExecutionRecord{
			TaskID:     task.ID,
			Sequence:   seq.Token(),
			Priority:   task.Traits.Priority(),
			WorkerID:   id,
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
			Duration:   finishedAt.Sub(startedAt),
			Panicked:   panicked,
		})

		scheduler.DidProcessSequence(seq)
	}
}

// Join waits for all worker goroutines to finish
func (p *GoroutineWorkerPool) Join() {
	p.wg.Wait()
}

// Scheduler returns the underlying sequence scheduler.
func (p *GoroutineWorkerPool) Scheduler() *core.SequenceScheduler {
	return p.scheduler
}

// WorkerCount returns the number of workers
func (p *GoroutineWorkerPool) WorkerCount() int {
	return p.workers
}

func (p *GoroutineWorkerPool) ReadySequenceCount() int {
	return p.scheduler.ReadySequenceCount()
}

func (p *GoroutineWorkerPool) ActiveTaskCount() int {
	return p.scheduler.ActiveTaskCount()
}

func (p *GoroutineWorkerPool) DelayedTaskCount() int {
	return p.scheduler.DelayedTaskCount()
}

// Stats returns current observability data for this pool.
func (p *GoroutineWorkerPool) Stats() core.PoolStats {
	return core.PoolStats{
		ID:      p.id,
		Workers: p.workers,
		Ready:   p.ReadySequenceCount(),
		Active:  p.ActiveTaskCount(),
		Delayed: p.DelayedTaskCount(),
		Running: p.IsRunning(),
	}
}

// =============================================================================
// Global Worker Pool Helper (Singleton)
// =============================================================================

var (
	globalWorkerPool *GoroutineWorkerPool
	globalMu         sync.Mutex
)

// InitGlobalWorkerPool initializes the global worker pool with the
// specified number of workers. It starts the pool immediately.
func InitGlobalWorkerPool(workers int) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalWorkerPool != nil {
		return // Already initialized
	}

	globalWorkerPool = NewGoroutineWorkerPool("global-pool", workers)
	globalWorkerPool.Start(context.Background())
}

// GetGlobalWorkerPool returns the global worker pool instance.
// It panics if InitGlobalWorkerPool has not been called.
func GetGlobalWorkerPool() *GoroutineWorkerPool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalWorkerPool == nil {
		panic("GlobalWorkerPool not initialized. Call InitGlobalWorkerPool() first.")
	}
	return globalWorkerPool
}

// ShutdownGlobalWorkerPool stops the global worker pool.
func ShutdownGlobalWorkerPool() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalWorkerPool != nil {
		globalWorkerPool.Stop()
		globalWorkerPool = nil
	}
}

// CreateSequencedRunner creates a new SequencedTaskRunner backed by the
// global worker pool. This is the recommended way to get a runner with
// ordering guarantees.
func CreateSequencedRunner(traits TaskTraits) *SequencedTaskRunner {
	pool := GetGlobalWorkerPool()
	return core.NewSequencedTaskRunner(pool.Scheduler(), traits)
}

// CreateUpdateableSequencedRunner creates a SequencedTaskRunner whose
// priority can be changed after construction.
func CreateUpdateableSequencedRunner(traits TaskTraits) *UpdateableSequencedTaskRunner {
	pool := GetGlobalWorkerPool()
	return core.NewUpdateableSequencedTaskRunner(pool.Scheduler(), traits)
}

// CreateParallelRunner creates a ParallelTaskRunner backed by the global
// worker pool.
func CreateParallelRunner(traits TaskTraits) *ParallelTaskRunner {
	pool := GetGlobalWorkerPool()
	return core.NewParallelTaskRunner(pool.Scheduler(), traits)
}
