package workerpool

import (
	"context"
	"time"

	"github.com/vnykmshr/gostream/pkg/metrics"
)

// MetricsPool wraps a worker Pool with Prometheus metrics collection.
type MetricsPool struct {
	pool     Pool
	name     string
	registry *metrics.Registry
}

// NewWithConfigAndMetrics creates a worker pool whose task and occupancy
// figures are exported through registry under the given pool name.
func NewWithConfigAndMetrics(config Config, name string, registry *metrics.Registry) (Pool, error) {
	base, err := NewWithConfig(config)
	if err != nil || registry == nil {
		return base, err
	}

	mp := &MetricsPool{
		pool:     base,
		name:     name,
		registry: registry,
	}
	mp.updateMetrics()
	return mp, nil
}

// updateMetrics updates the current state metrics.
func (mp *MetricsPool) updateMetrics() {
	mp.registry.WorkerPoolSize.WithLabelValues(mp.name).Set(float64(mp.pool.Size()))
	mp.registry.WorkerPoolActive.WithLabelValues(mp.name).Set(float64(mp.pool.ActiveWorkers()))
	mp.registry.WorkerPoolQueued.WithLabelValues(mp.name).Set(float64(mp.pool.QueueSize()))
}

// Submit adds a task to the pool for execution.
func (mp *MetricsPool) Submit(task Task) error {
	return mp.SubmitWithContext(context.Background(), task)
}

// SubmitWithContext submits a task with a context for cancellation.
func (mp *MetricsPool) SubmitWithContext(ctx context.Context, task Task) error {
	if task == nil {
		return mp.pool.SubmitWithContext(ctx, nil)
	}

	err := mp.pool.SubmitWithContext(ctx, &metricsTask{
		original:   task,
		pool:       mp,
		submitTime: time.Now(),
	})
	mp.updateMetrics()
	return err
}

// metricsTask wraps a Task to collect execution metrics.
type metricsTask struct {
	original   Task
	pool       *MetricsPool
	submitTime time.Time
}

// Execute runs the original task and records metrics.
func (mt *metricsTask) Execute(ctx context.Context) error {
	start := time.Now()
	reg := mt.pool.registry
	name := mt.pool.name

	reg.TaskQueueWait.WithLabelValues(name).Observe(start.Sub(mt.submitTime).Seconds())

	err := mt.original.Execute(ctx)

	reg.TaskExecutionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	reg.TasksExecuted.WithLabelValues(name).Inc()
	if err != nil {
		reg.TasksFailed.WithLabelValues(name).Inc()
	}
	mt.pool.updateMetrics()
	return err
}

// Shutdown initiates graceful shutdown of the pool.
func (mp *MetricsPool) Shutdown() <-chan struct{} {
	return mp.pool.Shutdown()
}

// Size returns the current number of workers.
func (mp *MetricsPool) Size() int {
	return mp.pool.Size()
}

// QueueSize returns the current number of queued tasks.
func (mp *MetricsPool) QueueSize() int {
	return mp.pool.QueueSize()
}

// ActiveWorkers returns the number of workers currently executing tasks.
func (mp *MetricsPool) ActiveWorkers() int {
	return mp.pool.ActiveWorkers()
}

// TotalSubmitted returns the total number of tasks submitted.
func (mp *MetricsPool) TotalSubmitted() int64 {
	return mp.pool.TotalSubmitted()
}

// TotalCompleted returns the total number of tasks completed.
func (mp *MetricsPool) TotalCompleted() int64 {
	return mp.pool.TotalCompleted()
}
