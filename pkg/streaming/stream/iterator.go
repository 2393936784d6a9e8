package stream

import (
	"context"
	"iter"

	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
)

// IteratorOptions configures Iterator and Iter.
type IteratorOptions struct {
	// KeepOnReturn leaves the stream alive when iteration stops early.
	// By default an early stop destroys it.
	KeepOnReturn bool
}

// Iterator pulls chunks from a Readable one at a time on the loop.
type Iterator struct {
	r       *Readable
	opts    IteratorOptions
	pending func(chunk any, ok bool, err error)
	done    bool
	err     error
	sub     *Subscription
}

// Iterator returns a pull-style iterator over r. Calling it puts r into
// paused mode.
func (r *Readable) Iterator(opts IteratorOptions) *Iterator {
	it := &Iterator{r: r, opts: opts}
	it.sub = r.OnReadable(it.wake)
	Finished(r, FinishedOptions{SkipWritable: true}, func(err error) {
		it.err = gserrors.Aggregate(it.err, err)
		it.done = true
		it.sub.Off()
		it.wake()
	})
	return it
}

// Next delivers the next chunk to cb on a later tick. ok is false once the
// stream has ended, and err is set if it failed. Only one Next may be
// outstanding at a time.
func (it *Iterator) Next(cb func(chunk any, ok bool, err error)) {
	loop := it.r.loop
	if it.pending != nil {
		loop.NextTick(func() { cb(nil, false, ErrMultipleCallback) })
		return
	}
	if !it.r.destroyed {
		if chunk := it.r.Read(); chunk != nil {
			loop.NextTick(func() { cb(chunk, true, nil) })
			return
		}
	}
	if it.done {
		err := it.err
		loop.NextTick(func() { cb(nil, false, err) })
		return
	}
	it.pending = cb
}

func (it *Iterator) wake() {
	if cb := it.pending; cb != nil {
		it.pending = nil
		it.Next(cb)
	}
}

// Return stops the iteration. Unless KeepOnReturn is set, a stream that
// has not ended is destroyed with an AbortError.
func (it *Iterator) Return() {
	it.pending = nil
	if it.done || it.opts.KeepOnReturn {
		return
	}
	it.r.Destroy(gserrors.NewAbortError(nil))
}

// Iter adapts r to a range-over-func sequence for use from another
// goroutine. The loop is kept alive from this call until the range loop
// has finished, so the sequence must be ranged over exactly once. A failed
// stream yields its error last; a canceled ctx yields ctx's error.
func (r *Readable) Iter(ctx context.Context, opts IteratorOptions) iter.Seq2[any, error] {
	loop := r.loop
	loop.Ref()
	return func(yield func(any, error) bool) {
		defer loop.Unref()

		type result struct {
			chunk any
			ok    bool
			err   error
		}
		results := make(chan result, 1)
		ready := make(chan *Iterator, 1)
		loop.NextTick(func() { ready <- r.Iterator(opts) })
		it := <-ready
		defer loop.NextTick(it.Return)

		for {
			loop.NextTick(func() {
				it.Next(func(chunk any, ok bool, err error) {
					results <- result{chunk, ok, err}
				})
			})
			var res result
			select {
			case res = <-results:
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			}
			if !res.ok {
				if res.err != nil {
					yield(nil, res.err)
				}
				return
			}
			if !yield(res.chunk, nil) {
				return
			}
		}
	}
}

// Collect reads every remaining chunk of r on the loop and passes them to cb
// once the stream has ended.
func (r *Readable) Collect(cb func(chunks []any, err error)) {
	it := r.Iterator(IteratorOptions{})
	var chunks []any
	var step func(chunk any, ok bool, err error)
	step = func(chunk any, ok bool, err error) {
		if !ok {
			cb(chunks, err)
			return
		}
		chunks = append(chunks, chunk)
		it.Next(step)
	}
	it.Next(step)
}
