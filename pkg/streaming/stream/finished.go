package stream

import (
	"context"

	gscontext "github.com/vnykmshr/gostream/pkg/common/context"
)

// FinishedOptions narrows what Finished waits for. The zero value waits for
// every side the stream has.
type FinishedOptions struct {
	// SkipReadable ignores the readable side.
	SkipReadable bool

	// SkipWritable ignores the writable side.
	SkipWritable bool

	// IgnoreErrors does not complete on the error notification; the close
	// notification still reports a recorded error.
	IgnoreErrors bool

	// Signal completes with an AbortError once it is done.
	Signal context.Context
}

// Finished calls cb exactly once when s is done: its readable side ended,
// its writable side finished, or it failed. A close before that reports
// ErrPrematureClose. The returned function removes every listener without
// calling cb.
func Finished(s Stream, opts FinishedOptions, cb func(err error)) (cleanup func()) {
	lc := s.base()
	r, w := lc.r, lc.w
	readable := r != nil && !opts.SkipReadable
	writable := w != nil && !opts.SkipWritable

	var subs []*Subscription
	cleanup = func() {
		for _, sub := range subs {
			sub.Off()
		}
		subs = nil
	}
	done := false
	callback := func(err error) {
		if done {
			return
		}
		done = true
		cb(err)
	}

	willEmitClose := lc.autoDestroy && lc.emitClose && !lc.closed &&
		readable == (r != nil) && writable == (w != nil)

	readableFinished := func(strict bool) bool {
		return r.st.endEmitted || (!strict && r.st.ended && r.st.buffer.Len() == 0)
	}
	writableFinished := func(strict bool) bool {
		return w.st.finished || (!strict && w.st.ended && w.st.length == 0)
	}

	wFinished := writable && writableFinished(false)
	rFinished := readable && readableFinished(false)

	onfinish := func() {
		wFinished = true
		if lc.destroyed {
			willEmitClose = false
		}
		if willEmitClose && (r == nil || !r.IsReadable() || readable) {
			return
		}
		if !readable || rFinished {
			callback(nil)
		}
	}
	onend := func() {
		rFinished = true
		if lc.destroyed {
			willEmitClose = false
		}
		if willEmitClose && (w == nil || !w.isWritable() || writable) {
			return
		}
		if !writable || wFinished {
			callback(nil)
		}
	}
	onclose := func() {
		if err := lc.errored; err != nil {
			callback(err)
			return
		}
		if readable && !rFinished && !readableFinished(false) {
			callback(ErrPrematureClose)
			return
		}
		if writable && !wFinished && !writableFinished(false) {
			callback(ErrPrematureClose)
			return
		}
		callback(nil)
	}

	if w != nil {
		subs = append(subs, w.OnFinish(onfinish))
	}
	if r != nil {
		subs = append(subs, r.OnEnd(onend))
	}
	if !opts.IgnoreErrors {
		subs = append(subs, lc.OnError(callback))
	}
	subs = append(subs, lc.OnClose(onclose))

	switch {
	case lc.closed:
		lc.loop.NextTick(onclose)
	case lc.errorEmitted:
		if !willEmitClose {
			lc.loop.NextTick(onclose)
		}
	case !readable && (!willEmitClose || (r != nil && r.IsReadable())) &&
		(wFinished || (w != nil && !w.isWritable())):
		lc.loop.NextTick(onclose)
	case !writable && (!willEmitClose || (w != nil && w.isWritable())) &&
		(rFinished || (r != nil && !r.IsReadable())):
		lc.loop.NextTick(onclose)
	}

	if ctx := opts.Signal; ctx != nil && !lc.closed {
		if err := gscontext.AbortError(ctx); err != nil {
			lc.loop.NextTick(func() { callback(err) })
		} else {
			stop := gscontext.OnAbort(ctx, func(err error) {
				lc.loop.NextTick(func() { callback(err) })
			})
			prev := cleanup
			cleanup = func() {
				stop()
				prev()
			}
		}
	}
	return cleanup
}

// FinishedWait blocks the calling goroutine until s is done or ctx ends.
// It must not be called on the loop goroutine.
func FinishedWait(ctx context.Context, s Stream) error {
	ch := make(chan error, 1)
	loop := s.Loop()
	loop.Ref()

	var cleanup func()
	fired := false
	loop.NextTick(func() {
		cleanup = Finished(s, FinishedOptions{}, func(err error) {
			fired = true
			loop.Unref()
			ch <- err
		})
	})
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		loop.NextTick(func() {
			if !fired {
				cleanup()
				loop.Unref()
			}
		})
		return ctx.Err()
	}
}
