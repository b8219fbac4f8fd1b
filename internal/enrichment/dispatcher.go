package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shzded/MediCall-AI/pkg/logger"
)

// Task is one unit of enrichment work. It carries only what the worker needs, never a
// request-scoped value.
type Task struct {
	CallID       int64
	RecordingURL string
}

// Handler processes one task. The context carries the per-task deadline.
type Handler func(ctx context.Context, t Task) error

// DispatcherStats is a point-in-time view of the pool.
type DispatcherStats struct {
	Length    int    `json:"length"`
	Capacity  int    `json:"capacity"`
	Workers   int    `json:"workers"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// Dispatcher is a bounded task queue drained by a fixed worker pool.
type Dispatcher struct {
	tasks   chan Task
	workers int
	timeout time.Duration
	log     *slog.Logger

	mu      sync.RWMutex
	running bool
	wg      sync.WaitGroup

	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

func NewDispatcher(queueSize, workers int, timeout time.Duration, log *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 100
	}
	if workers <= 0 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Dispatcher{
		tasks:   make(chan Task, queueSize),
		workers: workers,
		timeout: timeout,
		log:     log,
	}
}

// Start launches the workers. Cancelling ctx aborts in-flight tasks.
func (d *Dispatcher) Start(ctx context.Context, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, h)
	}
}

// Submit queues t without blocking.
func (d *Dispatcher) Submit(t Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		return ErrDispatcherStopped
	}
	select {
	case d.tasks <- t:
		return nil
	default:
		d.dropped.Add(1)
		return fmt.Errorf("%w: call %d", ErrQueueFull, t.CallID)
	}
}

// Stop refuses new tasks and waits for queued ones to finish, or for ctx.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.tasks)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.log.Warn("enrichment dispatcher stop timed out", "pending", len(d.tasks))
	}
}

func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Length:    len(d.tasks),
		Capacity:  cap(d.tasks),
		Workers:   d.workers,
		Processed: d.processed.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}

func (d *Dispatcher) worker(ctx context.Context, h Handler) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-d.tasks:
			if !ok {
				return
			}
			d.run(ctx, h, t)
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, h Handler, t Task) {
	start := time.Now()
	log := d.log.With("call_id", t.CallID)

	taskCtx, cancel := context.WithTimeout(logger.With(ctx, log), d.timeout)
	defer cancel()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("enrichment panic: %v", r)
			}
		}()
		err = h(taskCtx, t)
	}()

	d.processed.Add(1)
	if err != nil {
		d.failed.Add(1)
		log.Warn("enrichment task failed", "err", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	log.Debug("enrichment task done", "duration_ms", time.Since(start).Milliseconds())
}
