/*
Package stream implements readable, writable, duplex and transform streams
that run on an eventloop.Loop.

# Readable

A Readable buffers chunks produced by its Read callback and hands them out
either on demand (Read) or as data notifications once flowing:

	r := stream.NewReadable(loop, stream.ReadableConfig{
		Options:       stream.DefaultOptions(),
		HighWaterMark: -1,
		Read: func(r *stream.Readable, size int) {
			r.Push([]byte("hello"))
			r.Push(nil) // end of data
		},
	})
	r.OnData(func(chunk any) { fmt.Printf("%s\n", chunk) })

Push returns false once the buffered length reaches the high-water mark.
Byte-mode streams count bytes (characters for decoded strings); object mode
counts items.

# Writable

A Writable queues chunks while its Write callback is busy. Write returns false
when the queue is above the high-water mark; wait for OnDrain before writing
more.

	w := stream.NewWritable(loop, stream.WritableConfig{
		Options:       stream.DefaultOptions(),
		HighWaterMark: -1,
		Write: func(w *stream.Writable, chunk any, done *stream.Completion) {
			_, err := os.Stdout.Write(chunk.([]byte))
			done.Done(err)
		},
	})
	w.End([]byte("bye\n"), nil)

# Duplex and Transform

A Duplex has independent readable and writable sides. A Transform is a duplex
whose readable side is produced from what is written, chunk by chunk, with an
optional Flush after the writable side ends. NewPassThrough forwards chunks
unchanged.

# Piping

Readable.Pipe moves data into a writable stream, pausing the source while the
destination needs to drain. See package pipeline for chains with a single
completion callback.

# Lifecycle

Destroy tears a stream down with an optional error. Errors are reported once
through OnError, followed by OnClose when EmitClose is set. Finished reports
when a stream has ended, finished or failed, and AddAbortSignal destroys a
stream when a context is done.

# Iteration

Iter exposes a Readable as an iter.Seq2 for code running off the loop:

	for chunk, err := range r.Iter(ctx, stream.IteratorOptions{}) {
		...
	}
*/
package stream
