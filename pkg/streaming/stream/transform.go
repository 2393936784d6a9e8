package stream

import (
	"fmt"

	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
)

// TransformConfig configures a Transform.
type TransformConfig struct {
	Options

	// AllowHalfOpen keeps the readable side open after the writable side
	// finished. The flush step always ends the readable side.
	AllowHalfOpen bool

	ReadableObjectMode    bool
	WritableObjectMode    bool
	ReadableHighWaterMark int
	WritableHighWaterMark int
	DecodeStrings         bool
	DefaultEncoding       string
	Encoding              string

	// Transform handles one written chunk. It emits output with t.Push,
	// any number of times, and then calls done.
	Transform func(t *Transform, chunk any, done *Completion)

	// Flush runs once after the last chunk was transformed and may push
	// trailing output before the readable side ends.
	Flush func(t *Transform, done *Completion)

	// Read is called whenever the readable side wants more output. A
	// transform that pushes from off the loop waits for it after Push
	// returned false.
	Read func(t *Transform)
}

// DefaultTransformConfig returns a byte-mode transform configuration.
func DefaultTransformConfig() TransformConfig {
	return TransformConfig{
		Options:               DefaultOptions(),
		AllowHalfOpen:         true,
		ReadableHighWaterMark: -1,
		WritableHighWaterMark: -1,
		DecodeStrings:         true,
	}
}

// ObjectTransformConfig returns a transform configuration in object mode on
// both sides.
func ObjectTransformConfig() TransformConfig {
	cfg := DefaultTransformConfig()
	cfg.ReadableObjectMode = true
	cfg.WritableObjectMode = true
	return cfg
}

// Transform is a Duplex whose output is computed from its input. A written
// chunk is not acknowledged until the readable side has room for more
// output, so a slow reader holds back the writer.
type Transform struct {
	*Duplex

	transformHook func(t *Transform, chunk any, done *Completion)
	flushHook     func(t *Transform, done *Completion)
	demandHook    func(t *Transform)
	pending       func()
}

// NewTransform creates a Transform bound to loop. It panics if the
// configuration is invalid.
func NewTransform(loop *eventloop.Loop, cfg TransformConfig) *Transform {
	whwm := cfg.WritableHighWaterMark
	if cfg.ReadableHighWaterMark == 0 && whwm < 0 {
		whwm = 0
	}
	d := newDuplex(loop, "transform", DuplexConfig{
		Options:               cfg.Options,
		AllowHalfOpen:         cfg.AllowHalfOpen,
		ReadableObjectMode:    cfg.ReadableObjectMode,
		WritableObjectMode:    cfg.WritableObjectMode,
		ReadableHighWaterMark: cfg.ReadableHighWaterMark,
		WritableHighWaterMark: whwm,
		DecodeStrings:         cfg.DecodeStrings,
		DefaultEncoding:       cfg.DefaultEncoding,
		Encoding:              cfg.Encoding,
	})
	t := &Transform{Duplex: d, transformHook: cfg.Transform, flushHook: cfg.Flush, demandHook: cfg.Read}
	d.Readable.st.sync = false
	d.Readable.readHook = func(*Readable, int) { t.read() }
	d.Writable.writeHook = func(_ *Writable, chunk any, done *Completion) { t.write(chunk, done) }
	d.Writable.finalHook = func(_ *Writable, done *Completion) { t.final(done) }
	d.start(cfg.Options)
	return t
}

// NewPassThrough creates a Transform that forwards every chunk unchanged.
func NewPassThrough(loop *eventloop.Loop, cfg TransformConfig) *Transform {
	cfg.Transform = func(t *Transform, chunk any, done *Completion) {
		t.Push(chunk)
		done.Done(nil)
	}
	cfg.Flush = nil
	if cfg.Name == "" {
		cfg.Name = "passthrough"
	}
	return NewTransform(loop, cfg)
}

func (t *Transform) write(chunk any, done *Completion) {
	if t.transformHook == nil {
		done.Done(fmt.Errorf("transform: %w", ErrMethodNotImplemented))
		return
	}
	rs := &t.Readable.st
	length := rs.buffer.Len()
	t.transformHook(t, chunk, newCompletion(t.lifecycle, "transform", func(err error) {
		if err != nil {
			done.Done(err)
			return
		}
		if t.Writable.st.ended || length == rs.buffer.Len() || rs.buffer.Len() < rs.hwm {
			done.Done(nil)
			return
		}
		t.pending = func() { done.Done(nil) }
	}))
}

func (t *Transform) read() {
	if cb := t.pending; cb != nil {
		t.pending = nil
		cb()
	}
	if t.demandHook != nil {
		t.demandHook(t)
	}
}

func (t *Transform) final(done *Completion) {
	if t.flushHook == nil || t.destroyed {
		t.Push(nil)
		done.Done(nil)
		return
	}
	t.flushHook(t, newCompletion(t.lifecycle, "flush", func(err error) {
		if err != nil {
			done.Done(err)
			return
		}
		t.Push(nil)
		done.Done(nil)
	}))
}
