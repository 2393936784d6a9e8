package workerpool

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// ErrPoolShutdown is returned when submitting to a pool that has been shut down.
var ErrPoolShutdown = errors.New("worker pool has been shut down")

// Task represents a unit of work that can be executed by a worker.
type Task interface {
	// Execute runs the task with the given context.
	// It should respect context cancellation and return any error encountered.
	Execute(ctx context.Context) error
}

// TaskFunc is a function type that implements the Task interface.
type TaskFunc func(ctx context.Context) error

// Execute implements the Task interface for TaskFunc.
func (f TaskFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Result represents the result of a task execution.
type Result struct {
	// Task is the original task that was executed
	Task Task

	// Error is any error that occurred during task execution
	Error error

	// Duration is how long the task took to execute
	Duration time.Duration

	// WorkerID identifies which worker executed the task
	WorkerID int
}

// Pool executes blocking work off the event loop on a fixed set of goroutines.
type Pool interface {
	// Submit adds a task to the pool for execution.
	Submit(task Task) error

	// SubmitWithContext submits a task with a context for cancellation.
	// The context applies to queuing and is passed to the task.
	SubmitWithContext(ctx context.Context, task Task) error

	// Shutdown stops accepting tasks. Queued tasks still run.
	// Returns a channel that closes when every worker has exited.
	Shutdown() <-chan struct{}

	// Size returns the number of workers in the pool.
	Size() int

	// QueueSize returns the current number of queued tasks waiting for execution.
	QueueSize() int

	// ActiveWorkers returns the number of workers currently executing tasks.
	ActiveWorkers() int

	// TotalSubmitted returns the total number of tasks submitted to the pool.
	TotalSubmitted() int64

	// TotalCompleted returns the total number of tasks completed by the pool.
	TotalCompleted() int64
}

// Config holds configuration options for creating a worker pool.
type Config struct {
	// WorkerCount is the number of workers in the pool.
	// Must be greater than 0.
	WorkerCount int

	// QueueSize is the maximum number of tasks that can be queued.
	// Zero means submissions block until a worker is free.
	QueueSize int

	// TaskTimeout is the default timeout for individual task execution.
	// Zero means no timeout.
	TaskTimeout time.Duration

	// PanicHandler is called when a task panics.
	// The panic is always converted to the task's error.
	PanicHandler func(task Task, recovered interface{})

	// OnTaskStart is called before a task begins execution.
	OnTaskStart func(workerID int, task Task)

	// OnTaskComplete is called after a task completes (success or failure).
	OnTaskComplete func(workerID int, result Result)
}

// DefaultConfig returns a pool sized to the machine.
func DefaultConfig() Config {
	return Config{
		WorkerCount: runtime.NumCPU(),
		QueueSize:   256,
	}
}

type taskWithContext struct {
	task Task
	ctx  context.Context
}

// workerPool implements the Pool interface.
type workerPool struct {
	config Config

	taskQueue    chan taskWithContext
	shutdownOnce sync.Once
	done         chan struct{}

	mu         sync.RWMutex
	isShutdown bool

	activeWorkers  atomic.Int64
	totalSubmitted atomic.Int64
	totalCompleted atomic.Int64

	workerWg sync.WaitGroup
}
