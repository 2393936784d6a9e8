package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/vnykmshr/gostream/pkg/common/validation"
)

// New creates a new worker pool with the specified number of workers and queue size.
// It panics on invalid arguments; use NewWithConfig to get an error instead.
func New(workerCount, queueSize int) Pool {
	p, err := NewWithConfig(Config{
		WorkerCount: workerCount,
		QueueSize:   queueSize,
	})
	if err != nil {
		panic(err)
	}
	return p
}

// NewWithConfig creates a new worker pool with the specified configuration.
func NewWithConfig(config Config) (Pool, error) {
	if err := validation.ValidatePositive("workerpool", "WorkerCount", config.WorkerCount); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegative("workerpool", "QueueSize", float64(config.QueueSize)); err != nil {
		return nil, err
	}

	pool := &workerPool{
		config:    config,
		taskQueue: make(chan taskWithContext, config.QueueSize),
		done:      make(chan struct{}),
	}

	for i := 0; i < config.WorkerCount; i++ {
		pool.workerWg.Add(1)
		go pool.run(i)
	}

	return pool, nil
}

// Submit adds a task to the pool for execution.
// The task will be executed with context.Background().
func (p *workerPool) Submit(task Task) error {
	return p.SubmitWithContext(context.Background(), task)
}

// SubmitWithContext adds a task to the pool for execution with the given context.
// If the pool has a TaskTimeout configured, the effective timeout is the
// minimum of the context deadline and TaskTimeout.
func (p *workerPool) SubmitWithContext(ctx context.Context, task Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// Holding the read lock keeps Shutdown from closing the queue mid-send.
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.isShutdown {
		return fmt.Errorf("cannot submit task: %w", ErrPoolShutdown)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("cannot submit task: context canceled: %w", ctx.Err())
	default:
	}

	select {
	case p.taskQueue <- taskWithContext{task: task, ctx: ctx}:
		p.totalSubmitted.Add(1)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cannot submit task: context canceled: %w", ctx.Err())
	}
}

// Shutdown initiates a graceful shutdown of the pool.
func (p *workerPool) Shutdown() <-chan struct{} {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.isShutdown = true
		close(p.taskQueue)
		p.mu.Unlock()

		go func() {
			p.workerWg.Wait()
			close(p.done)
		}()
	})
	return p.done
}

// Size returns the number of workers in the pool.
func (p *workerPool) Size() int {
	return p.config.WorkerCount
}

// QueueSize returns the current number of queued tasks waiting for execution.
func (p *workerPool) QueueSize() int {
	return len(p.taskQueue)
}

// ActiveWorkers returns the number of workers currently executing tasks.
func (p *workerPool) ActiveWorkers() int {
	return int(p.activeWorkers.Load())
}

// TotalSubmitted returns the total number of tasks submitted to the pool.
func (p *workerPool) TotalSubmitted() int64 {
	return p.totalSubmitted.Load()
}

// TotalCompleted returns the total number of tasks completed by the pool.
func (p *workerPool) TotalCompleted() int64 {
	return p.totalCompleted.Load()
}

// run is the main loop for a worker. It drains the queue until Shutdown closes it.
func (p *workerPool) run(id int) {
	defer p.workerWg.Done()
	for twc := range p.taskQueue {
		p.executeTask(id, twc)
	}
}

// executeTask executes a single task with the provided context.
func (p *workerPool) executeTask(id int, twc taskWithContext) {
	start := time.Now()
	var err error

	p.activeWorkers.Add(1)

	if p.config.OnTaskStart != nil {
		p.config.OnTaskStart(id, twc.task)
	}

	defer func() {
		if r := recover(); r != nil {
			if p.config.PanicHandler != nil {
				p.config.PanicHandler(twc.task, r)
			}
			err = fmt.Errorf("task panicked: %v\nStack trace:\n%s", r, debug.Stack())
		}

		p.activeWorkers.Add(-1)
		p.totalCompleted.Add(1)

		if p.config.OnTaskComplete != nil {
			p.config.OnTaskComplete(id, Result{
				Task:     twc.task,
				Error:    err,
				Duration: time.Since(start),
				WorkerID: id,
			})
		}
	}()

	ctx := twc.ctx
	if p.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.TaskTimeout)
		defer cancel()
	}

	err = twc.task.Execute(ctx)
}
