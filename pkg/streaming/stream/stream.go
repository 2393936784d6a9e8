package stream

import (
	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
)

// Stream is implemented by every stream kind in this package.
type Stream interface {
	Loop() *eventloop.Loop
	ID() string
	Name() string
	Destroy(err error)
	Destroyed() bool
	Closed() bool
	Errored() error
	OnError(fn func(err error)) *Subscription
	OnClose(fn func()) *Subscription

	base() *lifecycle
}

// ReadableStream is a Readable, Duplex, Transform or PassThrough.
type ReadableStream interface {
	Stream
	readable() *Readable
}

// WritableStream is a Writable, Duplex, Transform or PassThrough.
type WritableStream interface {
	Stream
	writable() *Writable
}

// AsReadable returns the readable side of s, or nil if it has none.
func AsReadable(s Stream) *Readable {
	return s.base().r
}

// AsWritable returns the writable side of s, or nil if it has none.
func AsWritable(s Stream) *Writable {
	return s.base().w
}

var (
	_ ReadableStream = (*Readable)(nil)
	_ WritableStream = (*Writable)(nil)
	_ ReadableStream = (*Duplex)(nil)
	_ WritableStream = (*Duplex)(nil)
	_ ReadableStream = (*Transform)(nil)
	_ WritableStream = (*Transform)(nil)
)
