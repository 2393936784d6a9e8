// Package metrics provides Prometheus instrumentation for gostream components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for gostream components.
type Registry struct {
	// Stream Metrics
	StreamChunks       *prometheus.CounterVec
	StreamBytes        *prometheus.CounterVec
	StreamBuffered     *prometheus.GaugeVec
	BackpressureEvents *prometheus.CounterVec
	DrainEvents        *prometheus.CounterVec
	StreamErrors       *prometheus.CounterVec
	StreamsDestroyed   *prometheus.CounterVec

	// Pipeline Metrics
	PipelineRuns     *prometheus.CounterVec
	PipelineDuration *prometheus.HistogramVec

	// Native Bridge Metrics
	BridgePulls    *prometheus.CounterVec
	BridgeResizes  *prometheus.CounterVec
	BridgeSizeHint *prometheus.GaugeVec

	// Worker Pool Metrics
	TasksExecuted         *prometheus.CounterVec
	TasksFailed           *prometheus.CounterVec
	TaskExecutionDuration *prometheus.HistogramVec
	TaskQueueWait         *prometheus.HistogramVec
	WorkerPoolSize        *prometheus.GaugeVec
	WorkerPoolActive      *prometheus.GaugeVec
	WorkerPoolQueued      *prometheus.GaugeVec
}

// DefaultRegistry is the default metrics registry used by gostream components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithConfig(Config{Enabled: true, Registry: reg})
}

// NewRegistryWithConfig creates a registry honoring the namespace and constant
// labels of cfg. It returns nil when cfg is disabled; every component treats a
// nil registry as "metrics off".
func NewRegistryWithConfig(cfg Config) *Registry {
	if !cfg.Enabled {
		return nil
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	factory := promauto.With(reg)
	labels := cfg.Labels

	counter := func(subsystem, name, help string, vars ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, vars)
	}
	gauge := func(subsystem, name, help string, vars ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, vars)
	}
	histogram := func(subsystem, name, help string, vars ...string) *prometheus.HistogramVec {
		return factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, vars)
	}

	return &Registry{
		StreamChunks: counter("stream", "chunks_total",
			"Total number of chunks moved through a stream side", "stream", "side"),
		StreamBytes: counter("stream", "bytes_total",
			"Total number of bytes moved through a stream side", "stream", "side"),
		StreamBuffered: gauge("stream", "buffered",
			"Current buffered length of a stream side", "stream", "side"),
		BackpressureEvents: counter("stream", "backpressure_total",
			"Number of writes or pushes refused by the high-water mark", "stream"),
		DrainEvents: counter("stream", "drain_total",
			"Number of drain notifications emitted", "stream"),
		StreamErrors: counter("stream", "errors_total",
			"Number of error notifications emitted", "stream", "code"),
		StreamsDestroyed: counter("stream", "destroyed_total",
			"Number of streams torn down", "stream"),

		PipelineRuns: counter("pipeline", "runs_total",
			"Number of completed pipelines by outcome", "pipeline", "result"),
		PipelineDuration: histogram("pipeline", "duration_seconds",
			"Wall time from pipeline start to completion callback", "pipeline"),

		BridgePulls: counter("bridge", "pulls_total",
			"Number of pulls issued to a native source", "source"),
		BridgeResizes: counter("bridge", "resizes_total",
			"Number of adaptive read size increases", "source"),
		BridgeSizeHint: gauge("bridge", "size_hint_bytes",
			"Current read size hint of a native source", "source"),

		TasksExecuted: counter("workerpool", "tasks_executed_total",
			"Total number of tasks executed", "pool"),
		TasksFailed: counter("workerpool", "tasks_failed_total",
			"Total number of tasks that returned an error", "pool"),
		TaskExecutionDuration: histogram("workerpool", "task_duration_seconds",
			"Task execution duration", "pool"),
		TaskQueueWait: histogram("workerpool", "task_queue_wait_seconds",
			"Time a task spent queued before a worker picked it up", "pool"),
		WorkerPoolSize: gauge("workerpool", "size",
			"Number of workers in the pool", "pool"),
		WorkerPoolActive: gauge("workerpool", "active",
			"Number of workers currently executing a task", "pool"),
		WorkerPoolQueued: gauge("workerpool", "queued",
			"Number of tasks waiting in the queue", "pool"),
	}
}
