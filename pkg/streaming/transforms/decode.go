package transforms

import (
	"context"
	"errors"
	"io"

	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
	"github.com/vnykmshr/gostream/pkg/streaming/stream"
)

// decoder runs a blocking io.Reader based decompressor on its own goroutine.
// Input chunks reach it one at a time through in; a chunk is acknowledged
// once the decompressor asks for the next one. Every decoded chunk is pushed
// on the loop, and the goroutine waits on room before decoding further.
type decoder struct {
	loop *eventloop.Loop
	t    *stream.Transform
	open func(io.Reader) (io.ReadCloser, error)
	size int

	in    chan []byte
	room  chan struct{}
	quit  chan struct{}
	input *stream.Completion

	began   bool
	closed  bool
	stopped bool
	blocked bool
	ended   bool
	err     error
	flush   *stream.Completion
}

func newDecoder(loop *eventloop.Loop, name string, cfg CodecConfig, open func(io.Reader) (io.ReadCloser, error)) *stream.Transform {
	tc := cfg.TransformConfig
	if tc.Name == "" {
		tc.Name = name
	}
	tc.ReadableObjectMode, tc.WritableObjectMode = false, false
	tc.DecodeStrings = true
	size := cfg.ChunkSize
	if size <= 0 {
		size = DefaultCodecConfig().ChunkSize
	}

	d := &decoder{
		loop: loop,
		open: open,
		size: size,
		in:   make(chan []byte, 1),
		room: make(chan struct{}, 1),
		quit: make(chan struct{}),
	}

	tc.Transform = func(_ *stream.Transform, chunk any, done *stream.Completion) {
		if d.ended {
			done.Done(d.err)
			return
		}
		d.start()
		d.input = done
		d.in <- chunk.([]byte)
	}
	tc.Flush = func(_ *stream.Transform, done *stream.Completion) {
		d.start()
		d.closeInput()
		if d.ended {
			done.Done(d.err)
			return
		}
		d.flush = done
	}
	userRead := tc.Read
	tc.Read = func(t *stream.Transform) {
		if d.blocked {
			d.blocked = false
			d.signal()
		}
		if userRead != nil {
			userRead(t)
		}
	}
	userDestroy := tc.Destroy
	tc.Destroy = func(err error, done *stream.Completion) {
		d.stop()
		if userDestroy != nil {
			userDestroy(err, done)
			return
		}
		done.Done(err)
	}

	d.t = stream.NewTransform(loop, tc)
	return d.t
}

// start launches the decoding goroutine on first use. It runs outside the
// worker pool since it lives as long as the stream.
func (d *decoder) start() {
	if d.began {
		return
	}
	d.began = true
	d.loop.Go(func(context.Context) func() {
		err := d.decode(&chunkReader{d: d})
		return func() { d.finish(err) }
	})
}

func (d *decoder) closeInput() {
	if !d.closed {
		d.closed = true
		close(d.in)
	}
}

func (d *decoder) stop() {
	if !d.stopped {
		d.stopped = true
		close(d.quit)
	}
}

func (d *decoder) signal() {
	select {
	case d.room <- struct{}{}:
	default:
	}
}

// consumed acknowledges the chunk the decompressor has fully read.
func (d *decoder) consumed() {
	done := d.input
	d.input = nil
	if done != nil && !d.t.Destroyed() {
		done.Done(nil)
	}
}

// deliver pushes p on the loop and releases the goroutine if the readable
// side has room for more.
func (d *decoder) deliver(p []byte) {
	if d.t.Destroyed() {
		return
	}
	if d.t.Push(p) {
		d.signal()
		return
	}
	d.blocked = true
}

// decode runs off the loop until the input is exhausted or fails.
func (d *decoder) decode(r io.Reader) error {
	rc, err := d.open(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	defer func() { _ = rc.Close() }()

	buf := make([]byte, d.size)
	for {
		n, err := rc.Read(buf)
		if n > 0 {
			p := append([]byte(nil), buf[:n]...)
			d.loop.NextTick(func() { d.deliver(p) })
			select {
			case <-d.room:
			case <-d.quit:
				return stream.ErrDestroyed
			}
		}
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}
	}
}

func (d *decoder) finish(err error) {
	d.ended, d.err = true, err
	if d.t.Destroyed() {
		return
	}
	if err == nil {
		d.consumed()
	}
	if done := d.flush; done != nil {
		d.flush = nil
		done.Done(err)
		return
	}
	if err != nil {
		d.t.Destroy(err)
	}
}

// chunkReader presents the written chunks as an io.Reader. It runs on the
// decoding goroutine.
type chunkReader struct {
	d     *decoder
	cur   []byte
	taken bool
}

func (c *chunkReader) Read(p []byte) (int, error) {
	for len(c.cur) == 0 {
		if c.taken {
			c.taken = false
			c.d.loop.NextTick(c.d.consumed)
		}
		select {
		case b, ok := <-c.d.in:
			if !ok {
				return 0, io.EOF
			}
			c.cur, c.taken = b, true
		case <-c.d.quit:
			return 0, stream.ErrDestroyed
		}
	}
	n := copy(p, c.cur)
	c.cur = c.cur[n:]
	return n, nil
}
