package stream

import (
	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
)

// Duplex is a stream with independent readable and writable sides sharing
// one lifecycle. Destroying either side destroys both.
type Duplex struct {
	*lifecycle
	*Readable
	*Writable
}

// NewDuplex creates a Duplex bound to loop. It panics if the configuration
// is invalid.
func NewDuplex(loop *eventloop.Loop, cfg DuplexConfig) *Duplex {
	d := newDuplex(loop, "duplex", cfg)
	if cfg.Read != nil {
		d.Readable.readHook = func(_ *Readable, n int) { cfg.Read(d, n) }
	}
	if cfg.Write != nil {
		d.Writable.writeHook = func(_ *Writable, chunk any, done *Completion) { cfg.Write(d, chunk, done) }
	}
	if cfg.Writev != nil {
		d.Writable.writevHook = func(_ *Writable, chunks []any, done *Completion) { cfg.Writev(d, chunks, done) }
	}
	if cfg.Final != nil {
		d.Writable.finalHook = func(_ *Writable, done *Completion) { cfg.Final(d, done) }
	}
	d.start(cfg.Options)
	return d
}

func newDuplex(loop *eventloop.Loop, kind string, cfg DuplexConfig) *Duplex {
	lc := newLifecycle(loop, kind, cfg.Options)
	lc.allowHalfOpen = cfg.AllowHalfOpen
	return &Duplex{
		lifecycle: lc,
		Readable:  newReadable(lc, cfg.ReadableObjectMode, cfg.ReadableHighWaterMark, cfg.Encoding),
		Writable:  newWritable(lc, cfg.WritableObjectMode, cfg.WritableHighWaterMark, cfg.DecodeStrings, cfg.DefaultEncoding),
	}
}

// Pipe pipes the readable side into dest.
func (d *Duplex) Pipe(dest WritableStream, opts ...PipeOption) WritableStream {
	return d.Readable.Pipe(dest, opts...)
}

// AllowHalfOpen reports whether one side may stay open after the other ended.
func (d *Duplex) AllowHalfOpen() bool {
	return d.allowHalfOpen
}
