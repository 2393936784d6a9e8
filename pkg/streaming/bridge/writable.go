package bridge

import (
	"context"
	"io"

	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"

	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
	"github.com/vnykmshr/gostream/pkg/streaming/stream"
)

// Sink is a native byte sink written by a NativeWritable. Its methods run
// off the loop, one at a time, and may block.
type Sink interface {
	Write(ctx context.Context, p []byte) (int, error)

	// Close flushes and releases the sink after the last write.
	Close(ctx context.Context) error
}

// Flusher is implemented by sinks that buffer writes.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Aborter is implemented by sinks that can drop buffered data when the
// stream is destroyed before it finished. It runs on the loop and must not
// block.
type Aborter interface {
	Abort(reason error) error
}

// WritableConfig configures a NativeWritable.
type WritableConfig struct {
	stream.WritableConfig

	// Kind labels the sink in logs. Defaults to "native".
	Kind string

	// FlushEachWrite flushes a Flusher sink after every write.
	FlushEachWrite bool
}

// DefaultWritableConfig returns a byte-mode configuration.
func DefaultWritableConfig() WritableConfig {
	return WritableConfig{
		WritableConfig: stream.DefaultWritableConfig(),
		Kind:           "native",
	}
}

// NativeWritable is a Writable draining into a Sink. Queued chunks are
// coalesced into one sink write. It starts unreferenced: only in-flight
// sink calls keep the loop alive unless Ref is called.
type NativeWritable struct {
	*stream.Writable

	sink   Sink
	kind   string
	handle *handle

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWritable creates a NativeWritable bound to loop writing to sink.
// The Write, Writev and Final hooks of cfg are ignored.
func NewWritable(loop *eventloop.Loop, sink Sink, cfg WritableConfig) *NativeWritable {
	if cfg.Kind == "" {
		cfg.Kind = "native"
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Kind
	}

	n := &NativeWritable{
		sink:   sink,
		kind:   cfg.Kind,
		handle: newHandle(loop, sink),
	}
	n.ctx, n.cancel = context.WithCancel(loop.Context())

	wcfg := cfg.WritableConfig
	wcfg.ObjectMode = false
	flushEach := cfg.FlushEachWrite
	wcfg.Write = func(_ *stream.Writable, chunk any, done *stream.Completion) {
		n.call(done, func(ctx context.Context) error {
			return n.write(ctx, bytesOf(chunk), flushEach)
		})
	}
	wcfg.Writev = func(_ *stream.Writable, chunks []any, done *stream.Completion) {
		bb := bytebufferpool.Get()
		for _, c := range chunks {
			_, _ = bb.Write(bytesOf(c))
		}
		n.call(done, func(ctx context.Context) error {
			defer bytebufferpool.Put(bb)
			return n.write(ctx, bb.B, flushEach)
		})
	}
	wcfg.Final = func(_ *stream.Writable, done *stream.Completion) {
		n.call(done, func(ctx context.Context) error {
			return sink.Close(ctx)
		})
	}
	userDestroy := wcfg.Destroy
	wcfg.Destroy = func(err error, done *stream.Completion) {
		n.handle.release()
		n.cancel()
		if a, ok := sink.(Aborter); ok && !n.WritableFinished() {
			if aerr := a.Abort(err); aerr != nil {
				err = gserrors.Aggregate(err, aerr)
			}
		}
		if userDestroy != nil {
			userDestroy(err, done)
			return
		}
		done.Done(err)
	}

	n.Writable = stream.NewWritable(loop, wcfg)
	return n
}

func (n *NativeWritable) write(ctx context.Context, p []byte, flush bool) error {
	for len(p) > 0 {
		written, err := n.sink.Write(ctx, p)
		if err != nil {
			return err
		}
		if written == 0 {
			return io.ErrShortWrite
		}
		p = p[written:]
	}
	if f, ok := n.sink.(Flusher); ok && flush {
		return f.Flush(ctx)
	}
	return nil
}

// call runs fn off the loop and completes done with its result.
func (n *NativeWritable) call(done *stream.Completion, fn func(ctx context.Context) error) {
	ctx := n.ctx
	n.Loop().Spawn(func(context.Context) func() {
		err := fn(ctx)
		return func() { done.Done(err) }
	})
}

// Flush flushes a buffering sink off the loop and calls cb on the loop.
// It fails with ErrDestroyed once the stream is destroyed.
func (n *NativeWritable) Flush(cb func(error)) {
	if n.Destroyed() {
		n.Loop().NextTick(func() { cb(stream.ErrDestroyed) })
		return
	}
	f, ok := n.sink.(Flusher)
	if !ok {
		n.Loop().NextTick(func() { cb(nil) })
		return
	}
	ctx := n.ctx
	n.Loop().Spawn(func(context.Context) func() {
		err := f.Flush(ctx)
		return func() {
			if err != nil {
				n.Logger().Debug("native sink flush failed", zap.String("kind", n.kind), zap.Error(err))
			}
			cb(err)
		}
	})
}

// Ref makes the stream keep the loop alive until Unref or destroy.
func (n *NativeWritable) Ref() {
	if n.live() {
		n.handle.ref()
	}
}

// Unref releases a reference taken with Ref.
func (n *NativeWritable) Unref() {
	if n.live() {
		n.handle.unref()
	}
}

func (n *NativeWritable) live() bool {
	if n.Destroyed() {
		n.handle.release()
		return false
	}
	return true
}

// Kind returns the sink kind.
func (n *NativeWritable) Kind() string { return n.kind }

func bytesOf(chunk any) []byte {
	if s, ok := chunk.(string); ok {
		return []byte(s)
	}
	return chunk.([]byte)
}
