/*
Package eventloop provides the cooperative scheduler streams run on.

A Loop owns a FIFO queue of tasks and runs them one at a time on the
goroutine that called Run. Streams defer their notifications with NextTick
so that a listener never observes a half-updated stream and never runs
inside the call that triggered it.

Basic usage:

	loop := eventloop.New()
	defer loop.Close()

	err := loop.Run(ctx, func() {
		r := stream.NewReadable(loop, cfg)
		r.OnData(func(chunk any) { ... })
	})

Run returns once the queue is empty and nothing holds a reference. Pending
timers, spawned work and native handles hold references; Ref and Unref let
other code do the same.

# Off-loop work

Spawn runs a blocking function on a worker pool (or a goroutine when the loop
has no pool) and queues the continuation it returns back onto the loop:

	loop.Spawn(func(ctx context.Context) func() {
		n, err := f.Read(buf)
		return func() { handle(n, err) }
	})

Go does the same on a dedicated goroutine. Use it for jobs that live as long
as a stream, or that wait on data the loop produces, so they never hold a
pool worker.
*/
package eventloop
