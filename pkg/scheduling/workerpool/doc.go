/*
Package workerpool runs blocking work on a fixed set of goroutines.

Streams never block their event loop. Anything that may block, such as a
file read, a Redis round trip or a decompressor waiting for input, is handed
to a Pool and its result is posted back to the loop. The pool bounds how many
of those calls are in flight at once.

Basic usage:

	pool := workerpool.New(4, 100) // 4 workers, queue size 100
	defer func() { <-pool.Shutdown() }()

	task := workerpool.TaskFunc(func(ctx context.Context) error {
		// Do work
		return nil
	})

	if err := pool.Submit(task); err != nil {
		log.Printf("Failed to submit: %v", err)
	}

Results are reported through Config.OnTaskComplete rather than a channel, so
a pool never stalls on an unread result.

# Shutdown

Shutdown stops new submissions and lets the workers drain everything already
queued before they exit. The returned channel closes once the last worker has
returned. Work handed off by an event loop therefore always gets to post its
continuation.

# Metrics

NewWithConfigAndMetrics decorates a pool with Prometheus gauges for size,
active workers and queue depth, plus counters and histograms for executed
tasks.
*/
package workerpool
