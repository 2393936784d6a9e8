package stream

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
	gscontext "github.com/vnykmshr/gostream/pkg/common/context"
	"github.com/vnykmshr/gostream/pkg/logging"
	"github.com/vnykmshr/gostream/pkg/metrics"
	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
)

// lifecycle is the state shared by the sides of one stream: construction,
// teardown, the error latch and the close notification. A Duplex has one
// lifecycle for both of its sides.
type lifecycle struct {
	loop   *eventloop.Loop
	id     string
	name   string
	logger *zap.Logger
	inst   instruments

	constructed  bool
	destroyed    bool
	closed       bool
	closeEmitted bool
	errorEmitted bool
	errored      error
	autoDestroy  bool
	emitClose    bool

	// allowHalfOpen only matters when both sides are present.
	allowHalfOpen bool

	constructHook  func(done *Completion)
	destroyHook    func(err error, done *Completion)
	onConstruct    []func()
	pendingDestroy func(constructErr error)
	destroyCbs     []func(error)
	stopAbort      func() bool

	r *Readable
	w *Writable

	onError event[error]
	onClose signal
}

func newLifecycle(loop *eventloop.Loop, kind string, opts Options) *lifecycle {
	if loop == nil {
		panic("stream: nil event loop")
	}
	name := opts.Name
	if name == "" {
		name = kind
	}
	id := uuid.NewString()
	lc := &lifecycle{
		loop:          loop,
		id:            id,
		name:          name,
		logger:        logging.OrNop(opts.Logger).Named("stream").With(zap.String("stream", name), zap.String("id", id)),
		inst:          instruments{reg: opts.Metrics, name: name},
		constructed:   true,
		allowHalfOpen: true,
		autoDestroy:   opts.AutoDestroy,
		emitClose:     opts.EmitClose,
		constructHook: opts.Construct,
		destroyHook:   opts.Destroy,
	}
	return lc
}

// start runs the construct hook and arms the abort signal. It is called
// once both sides have been attached.
func (lc *lifecycle) start(opts Options) {
	if opts.Signal != nil {
		lc.armAbort(opts.Signal)
	}
	if lc.constructHook == nil {
		return
	}
	lc.constructed = false
	lc.loop.NextTick(func() {
		done := newCompletion(lc, "construct", lc.onConstructed)
		lc.guard("construct", done, func() { lc.constructHook(done) })
	})
}

func (lc *lifecycle) armAbort(ctx context.Context) {
	if err := gscontext.AbortError(ctx); err != nil {
		lc.loop.NextTick(func() { lc.destroy(err, nil) })
		return
	}
	stop := gscontext.OnAbort(ctx, func(err error) {
		lc.loop.NextTick(func() { lc.destroy(err, nil) })
	})
	lc.stopAbort = stop
	on(&lc.onClose, func() { stop() }, true, false)
}

func (lc *lifecycle) onConstructed(err error) {
	lc.constructed = true
	switch {
	case lc.destroyed:
		if p := lc.pendingDestroy; p != nil {
			lc.pendingDestroy = nil
			p(err)
		}
	case err != nil:
		lc.errorOrDestroy(err, true)
	default:
		lc.loop.NextTick(func() {
			for _, fn := range lc.onConstruct {
				fn()
			}
		})
	}
}

// whenConstructed registers work to run after a successful construct hook.
func (lc *lifecycle) whenConstructed(fn func()) {
	lc.onConstruct = append(lc.onConstruct, fn)
}

// Loop returns the loop the stream is bound to.
func (lc *lifecycle) Loop() *eventloop.Loop { return lc.loop }

// ID returns a unique identifier for the stream.
func (lc *lifecycle) ID() string { return lc.id }

// Name returns the configured name.
func (lc *lifecycle) Name() string { return lc.name }

// Logger returns the stream's logger.
func (lc *lifecycle) Logger() *zap.Logger { return lc.logger }

// Destroyed reports whether Destroy has been called.
func (lc *lifecycle) Destroyed() bool { return lc.destroyed }

// Closed reports whether teardown has completed.
func (lc *lifecycle) Closed() bool { return lc.closed }

// Errored returns the recorded error, if any.
func (lc *lifecycle) Errored() error { return lc.errored }

// OnError subscribes to the error notification. It fires at most once.
func (lc *lifecycle) OnError(fn func(err error)) *Subscription {
	return lc.onError.add(fn, false, false)
}

// OnClose subscribes to the close notification. It fires at most once.
func (lc *lifecycle) OnClose(fn func()) *Subscription {
	return on(&lc.onClose, fn, false, false)
}

// OnceError is OnError for a single notification.
func (lc *lifecycle) OnceError(fn func(err error)) *Subscription {
	return lc.onError.add(fn, true, false)
}

// OnceClose is OnClose for a single notification.
func (lc *lifecycle) OnceClose(fn func()) *Subscription {
	return on(&lc.onClose, fn, true, false)
}

func (lc *lifecycle) base() *lifecycle { return lc }

// Destroy tears the stream down. It is idempotent; a later call only
// contributes its error to the recorded one while that has not been
// reported yet.
func (lc *lifecycle) Destroy(err error) {
	lc.destroy(err, nil)
}

func (lc *lifecycle) destroy(err error, cb func(error)) {
	if lc.destroyed {
		if err != nil && !lc.errorEmitted {
			lc.errored = gserrors.Aggregate(lc.errored, err)
		}
		if cb != nil {
			if lc.closed {
				e := lc.errored
				lc.loop.NextTick(func() { cb(e) })
			} else {
				lc.destroyCbs = append(lc.destroyCbs, cb)
			}
		}
		return
	}

	if lc.w != nil {
		lc.w.beforeDestroy()
	}
	lc.recordError(err, true)
	lc.destroyed = true
	lc.inst.destroyed()
	lc.logger.Debug("destroying", zap.Error(err))

	if !lc.constructed {
		lc.pendingDestroy = func(constructErr error) {
			lc.runDestroy(gserrors.Aggregate(constructErr, err), cb)
		}
		return
	}
	lc.runDestroy(err, cb)
}

func (lc *lifecycle) runDestroy(err error, cb func(error)) {
	done := newCompletion(lc, "destroy", func(herr error) {
		lc.recordError(herr, true)
		lc.closed = true
		if lc.stopAbort != nil {
			lc.stopAbort()
		}
		if cb != nil {
			cb(herr)
		}
		for _, c := range lc.destroyCbs {
			c(herr)
		}
		lc.destroyCbs = nil
		if herr != nil {
			lc.loop.NextTick(func() {
				lc.emitErrorNT()
				lc.emitCloseNT()
			})
		} else {
			lc.loop.NextTick(lc.emitCloseNT)
		}
	})
	if lc.destroyHook != nil {
		lc.guard("destroy", done, func() { lc.destroyHook(err, done) })
		return
	}
	done.Done(err)
}

// recordError latches err. With aggregate set, an error arriving after
// another was recorded, but before it was reported, is combined with it.
func (lc *lifecycle) recordError(err error, aggregate bool) {
	switch {
	case err == nil:
	case lc.errored == nil:
		lc.errored = err
	case aggregate && !lc.errorEmitted:
		lc.errored = gserrors.Aggregate(lc.errored, err)
	}
}

func (lc *lifecycle) emitErrorNT() {
	if lc.errorEmitted || lc.errored == nil {
		return
	}
	lc.errorEmitted = true
	err := lc.errored
	lc.inst.errored(err)
	if !lc.onError.emit(err) {
		lc.logger.Warn("unhandled stream error", zap.Error(err))
	}
}

func (lc *lifecycle) emitCloseNT() {
	if lc.closeEmitted {
		return
	}
	lc.closeEmitted = true
	if lc.emitClose {
		fire(&lc.onClose)
	}
}

// guard runs a user hook. A panic inside it completes done with an error
// wrapping ErrHookPanicked, or goes through errorOrDestroy when done is nil
// or was already called.
func (lc *lifecycle) guard(op string, done *Completion, hook func()) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		var err error
		if e, ok := v.(error); ok {
			err = fmt.Errorf("%s: %w: %w", op, ErrHookPanicked, e)
		} else {
			err = fmt.Errorf("%s: %w: %v", op, ErrHookPanicked, v)
		}
		lc.logger.Warn("stream hook panicked", zap.String("hook", op), zap.Error(err))
		if done != nil && !done.Called() {
			done.Done(err)
			return
		}
		lc.errorOrDestroy(err, false)
	}()
	hook()
}

// errorOrDestroy routes an error either to Destroy, when auto-destroy is on,
// or to the error notification. With sync set the notification is deferred
// to the next tick.
func (lc *lifecycle) errorOrDestroy(err error, sync bool) {
	if lc.destroyed {
		return
	}
	if lc.autoDestroy {
		lc.destroy(err, nil)
		return
	}
	if err == nil {
		return
	}
	lc.recordError(err, false)
	if sync {
		lc.loop.NextTick(lc.emitErrorNT)
	} else {
		lc.emitErrorNT()
	}
}

// instruments is a nil-safe facade over the metrics registry.
type instruments struct {
	reg  *metrics.Registry
	name string
}

func (i instruments) chunk(side string, chunk any) {
	if i.reg == nil {
		return
	}
	i.reg.StreamChunks.WithLabelValues(i.name, side).Inc()
	switch c := chunk.(type) {
	case []byte:
		i.reg.StreamBytes.WithLabelValues(i.name, side).Add(float64(len(c)))
	case string:
		i.reg.StreamBytes.WithLabelValues(i.name, side).Add(float64(len(c)))
	}
}

func (i instruments) buffered(side string, n int) {
	if i.reg != nil {
		i.reg.StreamBuffered.WithLabelValues(i.name, side).Set(float64(n))
	}
}

func (i instruments) backpressure() {
	if i.reg != nil {
		i.reg.BackpressureEvents.WithLabelValues(i.name).Inc()
	}
}

func (i instruments) drained() {
	if i.reg != nil {
		i.reg.DrainEvents.WithLabelValues(i.name).Inc()
	}
}

func (i instruments) errored(err error) {
	if i.reg == nil {
		return
	}
	code := string(gserrors.CodeOf(err))
	if code == "" {
		code = "unknown"
	}
	i.reg.StreamErrors.WithLabelValues(i.name, code).Inc()
}

func (i instruments) destroyed() {
	if i.reg != nil {
		i.reg.StreamsDestroyed.WithLabelValues(i.name).Inc()
	}
}
