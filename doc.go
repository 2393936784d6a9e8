/*
Package gostream provides event-loop driven streams for Go: readable,
writable, duplex and transform streams with backpressure, piping and
lifecycle management, plus bridges to native byte sources and sinks.

Scheduling (pkg/scheduling):
  - eventloop: Single-threaded task queue with keep-alive references
  - workerpool: Bounded pool behind eventloop.Spawn

Streaming (pkg/streaming):
  - buffer: Chunk queue shared by readable and writable sides
  - stream: Readable, Writable, Duplex, Transform and PassThrough
  - pipeline: Pipe chains, function stages and Compose
  - bridge: Native sources and sinks, copy helpers and a kind registry
  - transforms: Object operators, compression, NDJSON, lines and throttling
  - sources: Slices, generators, channels and cron schedules

Support (pkg):
  - config: YAML and GOSTREAM_* environment defaults
  - logging: zap logger construction
  - metrics: Prometheus collectors for loops, streams and bridges

Example usage:

	import (
		"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
		"github.com/vnykmshr/gostream/pkg/streaming/pipeline"
		"github.com/vnykmshr/gostream/pkg/streaming/transforms"
	)

	loop := eventloop.New()
	defer loop.Close()

	err := loop.Run(ctx, func() {
		src, _ := reg.Open(loop, "file", "access.log", bridge.DefaultReadableConfig())
		dst, _ := reg.Create(loop, "file", "access.log.gz", bridge.DefaultWritableConfig())
		pipeline.Run(loop, func(_ any, err error) {
			if err != nil {
				logger.Error("compress failed", zap.Error(err))
			}
		}, src, transforms.Gzip(loop, transforms.DefaultCodecConfig()), dst)
	})
*/
package gostream
