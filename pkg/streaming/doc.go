/*
Package streaming groups the stream engine and the packages built on it.

  - buffer: Chunk queue with byte and object accounting
  - stream: Readable, Writable, Duplex and Transform streams on an event loop
  - pipeline: Connects streams and stage functions with one completion callback
  - bridge: Adapts pull-based native sources and sinks to streams
  - bridge/redisbridge: Redis lists as bridge sources and sinks
  - transforms: Ready-made Transform streams
  - sources: Ready-made Readable streams

Every stream belongs to one eventloop.Loop. Stream methods must be called from
loop tasks; work that blocks is handed to Loop.Spawn and its result is fed back
as a task.

Basic usage:

	err := loop.Run(ctx, func() {
		src := stream.FromSeq(loop, slices.Values(lines), stream.DefaultFromConfig())
		upper := transforms.Map(loop, func(s string) (string, error) {
			return strings.ToUpper(s), nil
		})
		pipeline.Run(loop, done, src, upper, sink)
	})
*/
package streaming
