package eventloop

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vnykmshr/gostream/pkg/logging"
	"github.com/vnykmshr/gostream/pkg/metrics"
	"github.com/vnykmshr/gostream/pkg/scheduling/workerpool"
)

var (
	// ErrRunning is returned when Run is called on a loop that is already running.
	ErrRunning = errors.New("eventloop: already running")

	// ErrClosed is returned by Run after Close.
	ErrClosed = errors.New("eventloop: closed")
)

// Config holds configuration for a Loop.
type Config struct {
	// Name identifies the loop in logs and in worker pool metrics.
	Name string

	// Workers sizes the pool used by Spawn. Zero runs every spawned job on
	// its own goroutine.
	Workers int

	// QueueSize bounds the pool queue when Workers > 0.
	QueueSize int

	// Logger receives loop lifecycle events. Nil disables logging.
	Logger *zap.Logger

	// Metrics exports worker pool figures when Workers > 0.
	Metrics *metrics.Registry
}

// DefaultConfig returns a loop without a worker pool.
func DefaultConfig() Config {
	return Config{Name: "main"}
}

// Stats holds loop counters.
type Stats struct {
	TasksRun    int64
	Spawned     int64
	TimersFired int64
}

// Loop is a single goroutine executor with a FIFO task queue.
//
// Every stream bound to a Loop is only touched from inside tasks run by that
// loop, so stream state needs no locking. NextTick, Ref, Unref, Spawn, Go and
// AfterFunc are safe to call from any goroutine.
type Loop struct {
	config Config
	logger *zap.Logger
	pool   workerpool.Pool

	mu    sync.Mutex
	queue []func()
	head  int
	refs  int

	wake    chan struct{}
	running atomic.Bool
	closed  atomic.Bool

	baseCtx context.Context
	cancel  context.CancelFunc

	tasksRun    atomic.Int64
	spawned     atomic.Int64
	timersFired atomic.Int64
}

// New creates a loop with the default configuration.
func New() *Loop {
	l, err := NewWithConfig(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return l
}

// NewWithConfig creates a loop with the given configuration.
func NewWithConfig(config Config) (*Loop, error) {
	l := &Loop{
		config: config,
		logger: logging.OrNop(config.Logger).Named("eventloop").With(zap.String("loop", config.Name)),
		wake:   make(chan struct{}, 1),
	}
	l.baseCtx, l.cancel = context.WithCancel(context.Background())

	if config.Workers > 0 {
		poolCfg := workerpool.Config{
			WorkerCount: config.Workers,
			QueueSize:   config.QueueSize,
		}
		pool, err := workerpool.NewWithConfigAndMetrics(poolCfg, config.Name, config.Metrics)
		if err != nil {
			return nil, fmt.Errorf("eventloop: %w", err)
		}
		l.pool = pool
	}
	return l, nil
}

// NextTick queues fn to run on the loop after every task already queued.
func (l *Loop) NextTick(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
}

// Ref keeps Run from returning while the queue is empty.
// Every Ref must be balanced by one Unref.
func (l *Loop) Ref() {
	l.mu.Lock()
	l.refs++
	l.mu.Unlock()
}

// Unref releases a reference taken with Ref.
func (l *Loop) Unref() {
	l.mu.Lock()
	if l.refs > 0 {
		l.refs--
	}
	l.mu.Unlock()
	l.signal()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Context is canceled when the loop is closed. Spawned work receives it.
func (l *Loop) Context() context.Context {
	return l.baseCtx
}

// Run queues main, then executes tasks until the queue is empty and no
// references remain, ctx is done, or a task panics. A panic is returned as
// an error.
func (l *Loop) Run(ctx context.Context, main func()) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	if main != nil {
		l.NextTick(main)
	}

	l.logger.Debug("loop started")
	defer l.logger.Debug("loop stopped", zap.Int64("tasks", l.tasksRun.Load()))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		task, idle := l.next()
		if task != nil {
			if err := l.exec(task); err != nil {
				l.logger.Error("task panicked", zap.Error(err))
				return err
			}
			continue
		}
		if idle {
			return nil
		}
		select {
		case <-l.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// next pops the next task. idle is true when the queue is empty and no
// references are held; both are observed under one lock.
func (l *Loop) next() (task func(), idle bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.head < len(l.queue) {
		task = l.queue[l.head]
		l.queue[l.head] = nil
		l.head++
		if l.head == len(l.queue) {
			l.queue = l.queue[:0]
			l.head = 0
		}
		return task, false
	}
	return nil, l.refs == 0
}

func (l *Loop) exec(task func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("eventloop: task panicked: %v\nStack trace:\n%s", r, debug.Stack())
		}
	}()
	l.tasksRun.Add(1)
	task()
	return nil
}

// Spawn runs work off the loop and queues the continuation it returns, if
// any, back onto the loop. The loop stays alive until the continuation has
// run. A panic in work is re-raised on the loop.
//
// With a worker pool, work holds a worker until it returns. Work that may
// block on the loop itself belongs in Go.
func (l *Loop) Spawn(work func(ctx context.Context) func()) {
	l.spawn(work, true)
}

// Go is Spawn on a dedicated goroutine, never on the worker pool. It is
// meant for long-lived jobs such as decoders and sink consumers that wait
// for data produced by the loop.
func (l *Loop) Go(work func(ctx context.Context) func()) {
	l.spawn(work, false)
}

func (l *Loop) spawn(work func(ctx context.Context) func(), pooled bool) {
	l.Ref()
	l.spawned.Add(1)

	run := func(ctx context.Context) error {
		var cont func()
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				cont = func() { panic(fmt.Sprintf("%v\n%s", r, stack)) }
			}
			l.NextTick(func() {
				defer l.Unref()
				if cont != nil {
					cont()
				}
			})
		}()
		cont = work(ctx)
		return nil
	}

	if pooled && l.pool != nil {
		if err := l.pool.SubmitWithContext(l.baseCtx, workerpool.TaskFunc(run)); err == nil {
			return
		}
	}
	go func() { _ = run(l.baseCtx) }()
}

// AfterFunc runs fn on the loop once d has elapsed. A pending timer keeps the
// loop alive. The returned stop function cancels it and reports whether it
// did so before fn was queued.
func (l *Loop) AfterFunc(d time.Duration, fn func()) (stop func() bool) {
	l.Ref()
	var once sync.Once
	release := func() { once.Do(l.Unref) }

	t := time.AfterFunc(d, func() {
		l.NextTick(func() {
			defer release()
			l.timersFired.Add(1)
			fn()
		})
	})
	return func() bool {
		if t.Stop() {
			release()
			return true
		}
		return false
	}
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		TasksRun:    l.tasksRun.Load(),
		Spawned:     l.spawned.Load(),
		TimersFired: l.timersFired.Load(),
	}
}

// Pending returns the number of queued tasks and held references.
func (l *Loop) Pending() (tasks, refs int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue) - l.head, l.refs
}

// Close cancels the loop context and shuts the worker pool down, waiting for
// in-flight spawned work to return.
func (l *Loop) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.cancel()
	if l.pool != nil {
		<-l.pool.Shutdown()
	}
	return nil
}
