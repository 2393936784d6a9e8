package bridge

import (
	"context"

	"go.uber.org/zap"

	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
	"github.com/vnykmshr/gostream/pkg/metrics"
	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
	"github.com/vnykmshr/gostream/pkg/streaming/stream"
)

const (
	// MinBufferSize is the smallest buffer handed to a source.
	MinBufferSize = 512

	// DefaultSizeHint is the initial read size.
	DefaultSizeHint = 256 * 1024
)

// ReadableConfig configures a NativeReadable.
type ReadableConfig struct {
	stream.ReadableConfig

	// Kind labels the source in metrics. Defaults to "native".
	Kind string

	// SizeHint is the initial read size. Zero or less uses DefaultSizeHint.
	SizeHint int

	// FixedSize disables growing the read size when pulls fill the buffer.
	FixedSize bool
}

// DefaultReadableConfig returns a byte-mode configuration.
func DefaultReadableConfig() ReadableConfig {
	return ReadableConfig{
		ReadableConfig: stream.DefaultReadableConfig(),
		Kind:           "native",
		SizeHint:       DefaultSizeHint,
	}
}

// NativeReadable is a Readable fed by a Source. While referenced it keeps
// the loop alive; it starts referenced.
type NativeReadable struct {
	*stream.Readable

	src      Source
	kind     string
	hint     int
	resized  bool
	pending  bool
	leftover []byte
	handle   *handle
	reg      *metrics.Registry

	ctx    context.Context
	cancel context.CancelFunc
	onDone func()
}

// NewReadable creates a NativeReadable bound to loop reading from src.
// cfg.Read is ignored.
func NewReadable(loop *eventloop.Loop, src Source, cfg ReadableConfig) *NativeReadable {
	if cfg.Kind == "" {
		cfg.Kind = "native"
	}
	if cfg.SizeHint <= 0 {
		cfg.SizeHint = DefaultSizeHint
	}
	if cfg.SizeHint > stream.MaxHighWaterMark {
		cfg.SizeHint = stream.MaxHighWaterMark
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Kind
	}

	n := &NativeReadable{
		src:     src,
		kind:    cfg.Kind,
		hint:    cfg.SizeHint,
		resized: cfg.FixedSize,
		handle:  newHandle(loop, src),
		reg:     cfg.Metrics,
	}
	n.ctx, n.cancel = context.WithCancel(loop.Context())
	n.handle.ref()

	rcfg := cfg.ReadableConfig
	userConstruct, userDestroy := rcfg.Construct, rcfg.Destroy
	rcfg.Construct = func(done *stream.Completion) {
		loop.Spawn(func(context.Context) func() {
			adjusted, err := src.Start(n.ctx, n.hint)
			var prefetched []byte
			if d, ok := src.(Drainer); ok && err == nil {
				prefetched = d.DrainPrefetched()
			}
			return func() {
				if err == nil {
					n.started(adjusted, prefetched)
				}
				if err != nil || userConstruct == nil {
					done.Done(err)
					return
				}
				userConstruct(done)
			}
		})
	}
	rcfg.Read = func(r *stream.Readable, size int) { n.read(size) }
	rcfg.Destroy = func(err error, done *stream.Completion) {
		n.handle.release()
		n.cancel()
		if cerr := src.Cancel(err); cerr != nil {
			err = gserrors.Aggregate(err, cerr)
		}
		n.src = nil
		if n.onDone != nil {
			n.onDone()
		}
		if userDestroy != nil {
			userDestroy(err, done)
			return
		}
		done.Done(err)
	}

	n.Readable = stream.NewReadable(loop, rcfg)
	n.gaugeHint()
	return n
}

func (n *NativeReadable) started(adjusted int, prefetched []byte) {
	if adjusted > 1 {
		n.resized = true
		n.hint = min(n.hint, adjusted)
		n.gaugeHint()
	}
	n.Logger().Debug("native source started", zap.String("kind", n.kind), zap.Int("hint", n.hint))
	if len(prefetched) > 0 {
		n.Push(prefetched)
	}
}

func (n *NativeReadable) read(int) {
	if n.pending {
		return
	}
	if n.src == nil {
		n.Push(nil)
		return
	}
	n.pull(n.buffer())
}

// buffer reuses the unfilled tail of the last buffer when it is large
// enough.
func (n *NativeReadable) buffer() []byte {
	if len(n.leftover) >= MinBufferSize {
		return n.leftover
	}
	return make([]byte, max(n.hint, MinBufferSize))
}

func (n *NativeReadable) pull(view []byte) {
	n.countPull()
	if sp, ok := n.src.(SyncPuller); ok {
		res, err := sp.PullSync(view)
		n.settle(view, res, err)
		return
	}

	n.pending = true
	src, ctx := n.src, n.ctx
	n.Loop().Spawn(func(context.Context) func() {
		res, err := src.PullInto(ctx, view)
		return func() {
			n.pending = false
			if n.Destroyed() {
				return
			}
			n.settle(view, res, err)
		}
	})
}

func (n *NativeReadable) settle(view []byte, res PullResult, err error) {
	if err != nil {
		n.Destroy(err)
		return
	}

	chunk := res.View
	if chunk == nil {
		chunk = view[:res.N:res.N]
		n.leftover = view[res.N:]
	} else {
		n.leftover = view
	}
	n.grow(len(chunk), res.Done)
	if len(chunk) > 0 {
		n.Push(chunk)
	}
	if res.Done {
		n.Push(nil)
		return
	}
	if len(chunk) == 0 {
		// Nothing arrived; ask again once the current tick unwinds.
		n.Loop().NextTick(func() {
			if !n.Destroyed() && !n.pending && n.src != nil {
				n.pull(n.buffer())
			}
		})
	}
}

// grow doubles the read size once when a pull filled it.
func (n *NativeReadable) grow(got int, done bool) {
	if n.resized || done || got < n.hint {
		return
	}
	n.hint = min(n.hint*2, stream.MaxHighWaterMark)
	n.resized = true
	n.Logger().Debug("native read size increased", zap.String("kind", n.kind), zap.Int("hint", n.hint))
	if m := n.reg; m != nil {
		m.BridgeResizes.WithLabelValues(n.kind).Inc()
	}
	n.gaugeHint()
}

// Ref makes the stream keep the loop alive again. It has no effect once the
// stream is destroyed.
func (n *NativeReadable) Ref() {
	if n.live() {
		n.handle.ref()
	}
}

// Unref lets the loop exit while the stream is still open.
func (n *NativeReadable) Unref() {
	if n.live() {
		n.handle.unref()
	}
}

// Referenced reports whether the stream keeps the loop alive.
func (n *NativeReadable) Referenced() bool { return n.live() && n.handle.referenced() }

// live reports whether the stream is not destroyed. A destroy still waiting
// for construction to finish releases the handle right away.
func (n *NativeReadable) live() bool {
	if n.Destroyed() {
		n.handle.release()
		return false
	}
	return true
}

// SizeHint returns the current read size.
func (n *NativeReadable) SizeHint() int { return n.hint }

// Kind returns the source kind.
func (n *NativeReadable) Kind() string { return n.kind }

func (n *NativeReadable) countPull() {
	if n.reg != nil {
		n.reg.BridgePulls.WithLabelValues(n.kind).Inc()
	}
}

func (n *NativeReadable) gaugeHint() {
	if n.reg != nil {
		n.reg.BridgeSizeHint.WithLabelValues(n.kind).Set(float64(n.hint))
	}
}
