package stream

import (
	"context"
	"iter"

	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
)

// DefaultFromConfig returns the object-mode configuration used by From.
func DefaultFromConfig() ReadableConfig {
	cfg := DefaultReadableConfig()
	cfg.ObjectMode = true
	return cfg
}

// From creates a Readable that pulls its chunks from seq. seq runs off the
// loop, one element per pull, so it may block. A yielded error destroys the
// stream. cfg.Read is ignored.
func From(loop *eventloop.Loop, seq iter.Seq2[any, error], cfg ReadableConfig) *Readable {
	next, stop := iter.Pull2(seq)
	pulling := false
	stopped := false
	var afterPull func()

	release := func(done *Completion, err error) {
		if stopped {
			done.Done(err)
			return
		}
		stopped = true
		loop.Go(func(context.Context) func() {
			stop()
			return func() { done.Done(err) }
		})
	}

	userDestroy := cfg.Destroy
	cfg.Destroy = func(err error, done *Completion) {
		finish := func(err error) {
			if userDestroy != nil {
				userDestroy(err, done)
				return
			}
			done.Done(err)
		}
		c := newCompletion(done.lc, "destroy", finish)
		if pulling {
			afterPull = func() { release(c, err) }
			return
		}
		release(c, err)
	}

	cfg.Read = func(r *Readable, _ int) {
		if pulling {
			return
		}
		pulling = true
		var pull func()
		pull = func() {
			loop.Go(func(context.Context) func() {
				v, err, ok := next()
				return func() {
					pulling = false
					if p := afterPull; p != nil {
						afterPull = nil
						p()
						return
					}
					switch {
					case r.destroyed:
					case err != nil:
						r.Destroy(err)
					case !ok:
						r.Push(nil)
					case v == nil:
						r.Destroy(ErrNullValues)
					case r.Push(v):
						pulling = true
						pull()
					}
				}
			})
		}
		pull()
	}
	return NewReadable(loop, cfg)
}

// FromSeq is From for a sequence without errors.
func FromSeq[T any](loop *eventloop.Loop, seq iter.Seq[T], cfg ReadableConfig) *Readable {
	return From(loop, func(yield func(any, error) bool) {
		for v := range seq {
			if !yield(v, nil) {
				return
			}
		}
	}, cfg)
}
