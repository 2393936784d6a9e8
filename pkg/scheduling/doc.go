/*
Package scheduling provides the execution primitives streams run on.

  - eventloop: Task queue drained by a single goroutine
  - workerpool: Fixed worker pool for concurrent task execution

Event Loop:

A loop runs until its queue is empty and nothing holds a reference:

	loop := eventloop.New()
	defer loop.Close()

	err := loop.Run(ctx, func() {
		stop := loop.AfterFunc(time.Second, func() {
			fmt.Println("tick")
		})
		_ = stop
	})

Blocking work runs on Spawn and returns its continuation to the loop:

	loop.Spawn(func(ctx context.Context) func() {
		data, err := fetch(ctx)
		return func() { handle(data, err) }
	})

Worker Pool:

A loop configured with Workers > 0 runs spawned work on a worker pool:

	loop, err := eventloop.NewWithConfig(eventloop.Config{
		Name:      "ingest",
		Workers:   4,
		QueueSize: 100,
	})

The pool can also be used on its own:

	pool := workerpool.New(4, 100) // 4 workers, queue size 100
	defer pool.Shutdown()

	pool.Submit(workerpool.TaskFunc(func(ctx context.Context) error {
		return nil
	}))
*/
package scheduling
