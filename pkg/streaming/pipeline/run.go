package pipeline

import (
	"context"
	"errors"
	"iter"
	"time"

	"go.uber.org/zap"

	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
	gscontext "github.com/vnykmshr/gostream/pkg/common/context"
	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
	"github.com/vnykmshr/gostream/pkg/streaming/stream"
)

// member is a stream taking part in a run.
type member struct {
	s        stream.Stream
	name     string
	finished bool
}

// run wires one set of stages together and settles exactly once.
type run struct {
	loop   *eventloop.Loop
	config Config
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc
	stop   func() bool

	members []*member
	pending int
	err     error
	failed  string
	value   any
	settled bool

	start    time.Time
	complete func(Result)
}

func newRun(loop *eventloop.Loop, config Config, complete func(Result)) *run {
	parent := config.Signal
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)
	r := &run{
		loop:     loop,
		config:   config,
		logger:   config.Logger,
		ctx:      ctx,
		cancel:   cancel,
		start:    time.Now(),
		complete: complete,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if config.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		r.ctx, cancelTimeout = context.WithTimeout(ctx, config.Timeout)
		prev := r.cancel
		r.cancel = func(cause error) {
			prev(cause)
			cancelTimeout()
		}
	}
	return r
}

// build connects stages. With openHead the first stage is written to by the
// caller; with openTail the last stage is read by the caller.
func (r *run) build(stages []Stage, openHead, openTail bool) (head stream.WritableStream, tail stream.ReadableStream) {
	var prev stream.ReadableStream
	for i, s := range stages {
		first, last := i == 0, i == len(stages)-1
		reading := !last || openTail
		writing := !first || openHead
		name := stageName(s, i)

		switch st := s.(type) {
		case stream.Stream:
			if writing {
				ws := st.(stream.WritableStream)
				if prev != nil {
					end := !last || openTail || r.config.End
					stream.AsReadable(prev).Pipe(ws, stream.WithEnd(end))
				} else {
					head = ws
				}
			}
			if last && !openTail && !r.config.End {
				r.enlist(st, name)
			} else {
				r.track(st, name, reading, writing)
			}
			if reading {
				prev = st.(stream.ReadableStream)
			}
		case iter.Seq2[any, error]:
			prev = r.from(st, name)
		case func(yield func(any, error) bool):
			prev = r.from(st, name)
		case SourceFunc:
			prev = r.from(st(r.ctx), name)
		case TransformFunc:
			prev = r.from(st(r.ctx, r.iterate(prev)), name)
		case SinkFunc:
			r.sink(st, r.iterate(prev), name)
		}
	}
	return head, prev
}

func (r *run) from(seq iter.Seq2[any, error], name string) stream.ReadableStream {
	cfg := stream.DefaultFromConfig()
	cfg.Name = name
	cfg.Logger = r.config.Logger
	cfg.Metrics = r.config.Metrics
	f := stream.From(r.loop, seq, cfg)
	r.track(f, name, true, false)
	return f
}

// iterate adapts s for ranging off the loop. The underlying iterator is
// created on the loop when the range starts.
func (r *run) iterate(s stream.ReadableStream) iter.Seq2[any, error] {
	rd := stream.AsReadable(s)
	return func(yield func(any, error) bool) {
		ch := make(chan iter.Seq2[any, error], 1)
		r.loop.NextTick(func() { ch <- rd.Iter(r.ctx, stream.IteratorOptions{}) })
		for v, err := range <-ch {
			if !yield(v, err) {
				return
			}
		}
	}
}

func (r *run) sink(fn SinkFunc, in iter.Seq2[any, error], name string) {
	r.pending++
	r.loop.Go(func(context.Context) func() {
		v, err := fn(r.ctx, in)
		return func() {
			if err != nil && r.ctx.Err() != nil && errors.Is(err, context.Canceled) {
				// Cancellation we caused; the first error is already recorded.
				err = nil
			}
			r.value = v
			r.done(name, err)
		}
	})
}

// enlist registers s for teardown on failure without waiting for it.
func (r *run) enlist(s stream.Stream, name string) *member {
	m := &member{s: s, name: name}
	r.members = append(r.members, m)
	return m
}

// track waits for s to finish on the sides it takes part in.
func (r *run) track(s stream.Stream, name string, reading, writing bool) {
	m := r.enlist(s, name)
	r.pending++
	stream.Finished(s, stream.FinishedOptions{SkipReadable: !reading, SkipWritable: !writing}, func(err error) {
		m.finished = err == nil
		r.done(name, err)
	})
}

// arm starts watching the external signal.
func (r *run) arm() {
	if err := gscontext.AbortError(r.ctx); err != nil {
		r.loop.NextTick(func() { r.settle("signal", err, false) })
		return
	}
	r.stop = gscontext.OnAbort(r.ctx, func(err error) {
		r.loop.NextTick(func() {
			if !r.settled && r.err == nil {
				r.settle("signal", err, false)
			}
		})
	})
	r.logger.Debug("pipeline started", zap.Int("members", len(r.members)), zap.Int("pending", r.pending))
}

func (r *run) done(name string, err error) {
	r.pending--
	r.settle(name, err, r.pending == 0)
}

func (r *run) settle(name string, err error, final bool) {
	if r.settled {
		return
	}
	if err != nil && (r.err == nil || stream.IsPrematureClose(r.err)) {
		if r.err == nil && r.config.OnError != nil {
			r.config.OnError(name, err)
		}
		r.err = err
		r.failed = name
	}
	if r.err == nil && !final {
		return
	}
	if r.err != nil {
		r.teardown()
	}
	if !final {
		return
	}

	r.settled = true
	if r.stop != nil {
		r.stop()
	}
	r.cancel(nil)

	res := Result{
		Value:     r.value,
		Error:     r.err,
		Stage:     r.failed,
		StartTime: r.start,
		EndTime:   time.Now(),
	}
	res.Duration = res.EndTime.Sub(res.StartTime)
	r.observe(res)
	r.loop.NextTick(func() { r.complete(res) })
}

// teardown cancels function stages and destroys every unfinished stream.
func (r *run) teardown() {
	r.cancel(r.err)
	for _, m := range r.members {
		if !m.finished && !m.s.Destroyed() {
			m.finished = true
			m.s.Destroy(r.err)
		}
	}
}

func (r *run) observe(res Result) {
	if res.Error != nil {
		r.logger.Debug("pipeline failed", zap.String("stage", res.Stage), zap.Error(res.Error),
			zap.Duration("duration", res.Duration))
	} else {
		r.logger.Debug("pipeline finished", zap.Duration("duration", res.Duration))
	}

	if m := r.config.Metrics; m != nil {
		outcome := "success"
		switch {
		case gserrors.IsAbort(res.Error):
			outcome = "aborted"
		case res.Error != nil:
			outcome = "failure"
		}
		m.PipelineRuns.WithLabelValues(r.config.Name, outcome).Inc()
		m.PipelineDuration.WithLabelValues(r.config.Name).Observe(res.Duration.Seconds())
	}
}
