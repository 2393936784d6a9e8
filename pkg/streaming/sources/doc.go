/*
Package sources provides Readables for common data origins.

	names := sources.FromSlice(loop, []string{"a", "b"}, stream.DefaultFromConfig())
	events := sources.FromChannel(loop, ch, stream.DefaultFromConfig())
	ids := sources.Generate(loop, uuid.NewString, stream.DefaultFromConfig())

# Scheduled sources

Schedule produces one chunk per tick of a cron expression. The expression
takes an optional leading seconds field and the usual descriptors:

	r, err := sources.Schedule(loop, "@every 30s", func(ctx context.Context, tick time.Time) (any, error) {
		return collectStats(ctx)
	}, sources.DefaultScheduleConfig())

Producers run off the loop. A tick is skipped, and reported to OnSkip, while
the previous producer is still running or the stream buffer is full. MaxRuns
ends the stream; until then the pending timer keeps the loop alive.
*/
package sources
