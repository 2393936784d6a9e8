/*
Package bridge adapts native byte sources and sinks to streams.

A Source is anything that can fill a buffer: a file, a socket, a Redis list.
NewReadable wraps it in a stream.Readable whose pulls run off the loop, so
sources may block. A Sink is the write-side counterpart wrapped by
NewWritable.

# Reading

	r := bridge.NewReadable(loop, bridge.NewFileSource("access.log"), bridge.DefaultReadableConfig())
	r.Pipe(dest)

Each pull hands the source a buffer of SizeHint bytes (DefaultSizeHint,
never less than MinBufferSize). The hint adapts once:

  - Start may return a size that caps it, such as the length of a file.
  - Otherwise the first pull that fills the buffer doubles it.

Unfilled buffer space is reused by the next pull when at least
MinBufferSize bytes remain. Data a source buffered before Start (see
Drainer) becomes the first chunk.

# Writing

NewWritable forwards chunks to a Sink, coalescing whatever queued up while
a write was in flight into one sink call. WriterSink adapts an io.Writer
with buffering and write retries:

	sink := bridge.NewWriterSinkWithConfig(f, bridge.SinkConfig{
		BufferSize: 64 * 1024,
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
	})
	w := bridge.NewWritable(loop, sink, bridge.DefaultWritableConfig())

# Keeping the loop alive

A NativeReadable keeps its loop running until it is destroyed or Unref is
called. A NativeWritable does not, apart from calls in flight; Ref opts in.
Sources and sinks implementing RefUpdater are told about every change.

# Registry

A Registry maps kinds such as "file" to openers and counts open readables
per kind. Build one at startup and pass it to the code that opens streams:

	reg := bridge.NewDefaultRegistry()
	reg.Register("redis", redisbridge.Opener(client))
	src, err := reg.Open(loop, "redis", "queue:events", bridge.DefaultReadableConfig())

# Without a loop

Copy and CopyAll move data from sources to sinks on plain goroutines,
CopyAll running several copies under an errgroup.
*/
package bridge
