package stream

import "fmt"

// Completion is handed to every asynchronous hook. The hook must call Done
// exactly once, from the loop goroutine, or DoneAsync once from any goroutine.
// A second call is reported to the stream as ErrMultipleCallback.
type Completion struct {
	lc     *lifecycle
	op     string
	fn     func(error)
	called bool
}

func newCompletion(lc *lifecycle, op string, fn func(error)) *Completion {
	return &Completion{lc: lc, op: op, fn: fn}
}

// Done reports the outcome of the hook.
func (c *Completion) Done(err error) {
	if c.called {
		c.lc.errorOrDestroy(fmt.Errorf("%s: %w", c.op, ErrMultipleCallback), false)
		return
	}
	c.called = true
	c.fn(err)
}

// DoneAsync queues Done onto the stream's loop. Callers finishing from
// another goroutine must keep the loop referenced until then, which
// eventloop.Loop.Spawn does for them.
func (c *Completion) DoneAsync(err error) {
	c.lc.loop.NextTick(func() { c.Done(err) })
}

// Called reports whether Done has run.
func (c *Completion) Called() bool {
	return c.called
}
