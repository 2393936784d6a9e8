/*
Package transforms provides ready-made Transform streams.

Every constructor returns a *stream.Transform bound to a loop, ready to be
used as a pipeline stage:

	err := pipeline.Run(loop, done,
		bridge.NewReadable(loop, bridge.NewFileSource("events.ndjson.gz"), bridge.DefaultReadableConfig()),
		transforms.Gunzip(loop, transforms.DefaultCodecConfig()),
		transforms.NDJSONDecode(loop, transforms.DefaultNDJSONConfig()),
		transforms.Filter(loop, isClick),
		sink,
	)

# Operators

Map, Filter, FlatMap, Distinct, Skip, Limit and Peek work in object mode.
The typed variants fail the stream with stream.ErrInvalidArgType when a
chunk has the wrong type.

# Codecs

Gzip and Zstd compress on the loop. Gunzip and Unzstd decompress on their
own goroutine, outside any worker pool. They decode one chunk at a time and
stop once the readable side is full, resuming when it is read.

# Text

Lines splits bytes into strings. NDJSONEncode and NDJSONDecode convert
between values and newline-delimited JSON.

# Rate

Throttle delays chunks with loop timers to hold a byte or chunk rate.
*/
package transforms
