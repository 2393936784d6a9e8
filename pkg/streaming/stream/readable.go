package stream

import (
	"fmt"
	"math"

	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
	"github.com/vnykmshr/gostream/pkg/streaming/buffer"
)

// FlowMode is the consumption mode of a Readable.
type FlowMode int

const (
	// FlowUnset means no consumer has chosen a mode yet.
	FlowUnset FlowMode = iota
	// FlowPaused means data is only delivered through Read.
	FlowPaused
	// FlowFlowing means data is pushed to data listeners as it arrives.
	FlowFlowing
)

func (m FlowMode) String() string {
	switch m {
	case FlowPaused:
		return "paused"
	case FlowFlowing:
		return "flowing"
	default:
		return "unset"
	}
}

// readAll stands for a read without a size.
const readAll = math.MinInt

type readableState struct {
	objectMode bool
	hwm        int
	buffer     *buffer.Queue
	pipes      []*pipeRelation
	awaitDrain map[*Writable]struct{}

	flowing           FlowMode
	paused            bool
	pausedSet         bool
	ended             bool
	endEmitted        bool
	reading           bool
	sync              bool
	needReadable      bool
	emittedReadable   bool
	readableListening bool
	resumeScheduled   bool
	readingMore       bool
	dataEmitted       bool

	decoder  decoder
	encoding string
}

// Readable is a pull-driven source with an internal buffer.
//
// Chunks enter through Push, usually from the Read hook, and leave through
// Read, data listeners or Pipe. All methods must be called on the stream's
// loop.
type Readable struct {
	*lifecycle
	st       readableState
	readHook func(r *Readable, size int)

	onData     event[any]
	onEnd      signal
	onReadable signal
	onPause    signal
	onResume   signal
}

// NewReadable creates a Readable bound to loop. It panics if the
// configuration is invalid.
func NewReadable(loop *eventloop.Loop, cfg ReadableConfig) *Readable {
	lc := newLifecycle(loop, "readable", cfg.Options)
	r := newReadable(lc, cfg.ObjectMode, cfg.HighWaterMark, cfg.Encoding)
	r.readHook = cfg.Read
	lc.start(cfg.Options)
	return r
}

func newReadable(lc *lifecycle, objectMode bool, hwm int, encoding string) *Readable {
	h, err := resolveHighWaterMark("ReadableHighWaterMark", hwm, objectMode)
	if err != nil {
		panic(err)
	}
	r := &Readable{
		lifecycle: lc,
		st: readableState{
			objectMode: objectMode,
			hwm:        h,
			buffer:     buffer.New(objectMode),
			awaitDrain: make(map[*Writable]struct{}),
			sync:       true,
		},
	}
	lc.r = r
	if encoding != "" {
		if err := r.SetEncoding(encoding); err != nil {
			panic(err)
		}
	}
	r.onReadable.onRemove = func() { r.loop.NextTick(r.updateReadableListening) }
	lc.whenConstructed(func() {
		if r.st.needReadable {
			r.maybeReadMore()
		}
	})
	return r
}

func (r *Readable) readable() *Readable { return r }

// Push adds a chunk to the buffer, or ends the stream when chunk is nil.
// It returns false once the buffer has reached the high-water mark; the
// producer should then wait for the next Read hook call. A destroyed or
// errored stream rejects the chunk by returning false; there is no further
// error to report since the stream has already torn down.
func (r *Readable) Push(chunk any) bool {
	return r.addChunk(chunk, false)
}

// Unshift puts a chunk back at the front of the buffer.
func (r *Readable) Unshift(chunk any) bool {
	return r.addChunk(chunk, true)
}

func (r *Readable) addChunk(chunk any, toFront bool) bool {
	st := &r.st

	var err error
	if !st.objectMode && chunk != nil {
		switch c := chunk.(type) {
		case []byte:
		case string:
			if st.decoder == nil || st.encoding != "utf8" {
				chunk = []byte(c)
			}
		default:
			err = fmt.Errorf("%w, got %T", ErrInvalidArgType, chunk)
		}
	}

	switch {
	case err != nil:
		r.errorOrDestroy(err, false)
	case chunk == nil:
		st.reading = false
		r.onEOFChunk()
	case st.objectMode || buffer.ChunkSize(chunk) > 0:
		switch {
		case toFront && st.endEmitted:
			r.errorOrDestroy(ErrUnshiftAfterEnd, true)
		case !toFront && st.ended:
			r.errorOrDestroy(ErrPushAfterEOF, true)
		case r.destroyed || r.errored != nil:
			return false
		case toFront:
			r.bufferChunk(chunk, true)
		default:
			st.reading = false
			if b, ok := chunk.([]byte); ok && st.decoder != nil {
				if s := st.decoder.Write(b); s != "" {
					r.bufferChunk(s, false)
				} else {
					r.maybeReadMore()
				}
			} else {
				r.bufferChunk(chunk, false)
			}
		}
	case !toFront:
		st.reading = false
		r.maybeReadMore()
	}

	ok := !st.ended && (st.buffer.Len() < st.hwm || st.buffer.Len() == 0)
	if !ok && !st.ended {
		r.inst.backpressure()
	}
	return ok
}

func (r *Readable) bufferChunk(chunk any, toFront bool) {
	st := &r.st
	if st.flowing == FlowFlowing && st.buffer.Len() == 0 && !st.sync && r.onData.count() > 0 {
		clear(st.awaitDrain)
		st.dataEmitted = true
		r.emitData(chunk)
	} else {
		if toFront {
			st.buffer.Unshift(chunk)
		} else {
			st.buffer.Push(chunk)
		}
		r.inst.buffered("readable", st.buffer.Len())
		if st.needReadable {
			r.emitReadable()
		}
	}
	r.maybeReadMore()
}

func (r *Readable) emitData(chunk any) {
	r.inst.chunk("readable", chunk)
	r.onData.emit(chunk)
}

func (r *Readable) onEOFChunk() {
	st := &r.st
	if st.ended {
		return
	}
	if st.decoder != nil {
		if s := st.decoder.End(); s != "" {
			st.buffer.Push(s)
		}
	}
	st.ended = true
	if st.sync {
		r.emitReadable()
		return
	}
	st.needReadable = false
	st.emittedReadable = true
	r.emitReadableNT()
}

func (r *Readable) emitReadable() {
	st := &r.st
	st.needReadable = false
	if !st.emittedReadable {
		st.emittedReadable = true
		r.loop.NextTick(r.emitReadableNT)
	}
}

func (r *Readable) emitReadableNT() {
	st := &r.st
	if !r.destroyed && r.errored == nil && (st.buffer.Len() > 0 || st.ended) {
		fire(&r.onReadable)
		st.emittedReadable = false
	}
	st.needReadable = st.flowing != FlowFlowing && !st.ended && st.buffer.Len() <= st.hwm
	r.flow()
}

func (r *Readable) maybeReadMore() {
	if !r.st.readingMore && r.constructed {
		r.st.readingMore = true
		r.loop.NextTick(r.maybeReadMoreNT)
	}
}

func (r *Readable) maybeReadMoreNT() {
	st := &r.st
	for !st.reading && !st.ended &&
		(st.buffer.Len() < st.hwm || (st.flowing == FlowFlowing && st.buffer.Len() == 0)) {
		n := st.buffer.Len()
		r.read(0)
		if n == st.buffer.Len() {
			break
		}
	}
	st.readingMore = false
}

// Read returns buffered data, asking the Read hook for more when the buffer
// is below the high-water mark. In object mode it returns one item; in byte
// mode everything buffered, or the head chunk while flowing. It returns nil
// when nothing is available.
func (r *Readable) Read() any {
	return r.read(readAll)
}

// ReadN returns exactly n units, or nil if fewer are buffered and the stream
// has not ended. After the end it returns whatever remains. ReadN(0) only
// triggers a refill.
func (r *Readable) ReadN(n int) any {
	if n < 0 {
		n = 0
	}
	return r.read(n)
}

//nolint:gocyclo
func (r *Readable) read(n int) any {
	st := &r.st
	nOrig := n

	if n > st.hwm {
		h, err := computeNewHighWaterMark(n)
		if err != nil {
			r.errorOrDestroy(fmt.Errorf("read size %d: %w", n, err), true)
			return nil
		}
		st.hwm = h
	}

	if n != 0 {
		st.emittedReadable = false
	}

	if n == 0 && st.needReadable && (st.ended || st.aboveHighWaterMark()) {
		if st.buffer.Len() == 0 && st.ended {
			r.endReadable()
		} else {
			r.emitReadable()
		}
		return nil
	}

	n = r.howMuchToRead(n)

	if n == 0 && st.ended {
		if st.buffer.Len() == 0 {
			r.endReadable()
		}
		return nil
	}

	doRead := st.needReadable
	if st.buffer.Len() == 0 || st.buffer.Len()-n < st.hwm {
		doRead = true
	}
	if st.ended || st.reading || r.destroyed || r.errored != nil || !r.constructed {
		doRead = false
	} else if doRead {
		st.reading = true
		st.sync = true
		if st.buffer.Len() == 0 {
			st.needReadable = true
		}
		r.callRead()
		st.sync = false
		if !st.reading {
			n = r.howMuchToRead(nOrig)
		}
	}

	var ret any
	if n > 0 {
		ret = r.fromList(n)
	}

	if ret == nil {
		st.needReadable = st.buffer.Len() <= st.hwm
		n = 0
	} else {
		clear(st.awaitDrain)
	}
	r.inst.buffered("readable", st.buffer.Len())

	if st.buffer.Len() == 0 {
		if !st.ended {
			st.needReadable = true
		}
		if nOrig != n && st.ended {
			r.endReadable()
		}
	}

	if ret != nil && !r.destroyed && !r.errorEmitted && !r.closeEmitted {
		st.dataEmitted = true
		r.emitData(ret)
	}
	return ret
}

func (st *readableState) aboveHighWaterMark() bool {
	if st.hwm != 0 {
		return st.buffer.Len() >= st.hwm
	}
	return st.buffer.Len() > 0
}

func (r *Readable) callRead() {
	if r.readHook == nil {
		r.errorOrDestroy(fmt.Errorf("read: %w", ErrMethodNotImplemented), false)
		return
	}
	r.guard("read", nil, func() { r.readHook(r, r.st.hwm) })
}

func (r *Readable) howMuchToRead(n int) int {
	st := &r.st
	if n == readAll {
		switch {
		case st.buffer.Len() == 0 && st.ended:
			return 0
		case st.objectMode:
			return 1
		case st.flowing == FlowFlowing && st.buffer.Len() > 0:
			return st.buffer.Size(st.buffer.First())
		}
		return st.buffer.Len()
	}
	if n <= 0 || (st.buffer.Len() == 0 && st.ended) {
		return 0
	}
	if st.objectMode {
		return 1
	}
	if n <= st.buffer.Len() {
		return n
	}
	if st.ended {
		return st.buffer.Len()
	}
	return 0
}

func (r *Readable) fromList(n int) any {
	q := r.st.buffer
	if q.Len() == 0 {
		return nil
	}
	if r.st.objectMode {
		return q.Shift()
	}
	if n >= q.Len() {
		var ret any
		switch {
		case r.st.decoder != nil:
			ret = q.Join()
		case q.Count() == 1:
			ret = q.First()
		default:
			ret = q.Concat(q.Len())
		}
		q.Clear()
		return ret
	}
	return q.Consume(n)
}

func (r *Readable) endReadable() {
	if !r.st.endEmitted {
		r.st.ended = true
		r.loop.NextTick(r.endReadableNT)
	}
}

func (r *Readable) endReadableNT() {
	st := &r.st
	if r.errored != nil || r.closeEmitted || st.endEmitted || st.buffer.Len() != 0 {
		return
	}
	st.endEmitted = true
	fire(&r.onEnd)

	if w := r.w; w != nil && w.isWritable() && !r.allowHalfOpen {
		r.loop.NextTick(func() { w.End(nil, nil) })
		return
	}
	if r.autoDestroy {
		if w := r.w; w == nil || w.st.finished {
			r.Destroy(nil)
		}
	}
}

func (r *Readable) flow() {
	for r.st.flowing == FlowFlowing && !r.destroyed && r.Read() != nil {
	}
}

// Pause stops the delivery of data events.
func (r *Readable) Pause() {
	st := &r.st
	if st.flowing != FlowPaused {
		st.flowing = FlowPaused
		fire(&r.onPause)
	}
	st.paused, st.pausedSet = true, true
}

// Resume switches the stream into flowing mode.
func (r *Readable) Resume() {
	st := &r.st
	if st.flowing != FlowFlowing {
		if st.readableListening {
			st.flowing = FlowPaused
		} else {
			st.flowing = FlowFlowing
		}
		if !st.resumeScheduled {
			st.resumeScheduled = true
			r.loop.NextTick(r.resumeNT)
		}
	}
	st.paused, st.pausedSet = false, true
}

func (r *Readable) resumeNT() {
	st := &r.st
	if !st.reading {
		r.read(0)
	}
	st.resumeScheduled = false
	fire(&r.onResume)
	r.flow()
	if st.flowing == FlowFlowing && !st.reading {
		r.read(0)
	}
}

// IsPaused reports whether the stream was explicitly paused.
func (r *Readable) IsPaused() bool {
	return (r.st.pausedSet && r.st.paused) || r.st.flowing == FlowPaused
}

func (r *Readable) updateReadableListening() {
	st := &r.st
	st.readableListening = r.onReadable.count() > 0
	switch {
	case st.resumeScheduled && st.pausedSet && !st.paused:
		st.flowing = FlowFlowing
	case r.onData.count() > 0:
		r.Resume()
	case !st.readableListening:
		st.flowing = FlowUnset
	}
}

// OnData subscribes to chunks. Subscribing switches an unpaused stream into
// flowing mode.
func (r *Readable) OnData(fn func(chunk any)) *Subscription {
	sub := r.onData.add(fn, false, false)
	r.st.readableListening = r.onReadable.count() > 0
	if r.st.flowing != FlowPaused {
		r.Resume()
	}
	return sub
}

// OnReadable subscribes to the readable notification, which fires when data
// can be read or the end has been reached. Subscribing takes the stream out
// of flowing mode.
func (r *Readable) OnReadable(fn func()) *Subscription {
	sub := on(&r.onReadable, fn, false, false)
	st := &r.st
	if !st.endEmitted && !st.readableListening {
		st.readableListening = true
		st.needReadable = true
		st.flowing = FlowPaused
		st.emittedReadable = false
		if st.buffer.Len() > 0 {
			r.emitReadable()
		} else if !st.reading {
			r.loop.NextTick(func() { r.read(0) })
		}
	}
	return sub
}

// OnEnd subscribes to the end notification, emitted once all data has been consumed.
func (r *Readable) OnEnd(fn func()) *Subscription {
	return on(&r.onEnd, fn, false, false)
}

// OnceEnd is OnEnd for a single notification.
func (r *Readable) OnceEnd(fn func()) *Subscription {
	return on(&r.onEnd, fn, true, false)
}

// OnPause subscribes to pause transitions.
func (r *Readable) OnPause(fn func()) *Subscription {
	return on(&r.onPause, fn, false, false)
}

// OnResume subscribes to resume notifications.
func (r *Readable) OnResume(fn func()) *Subscription {
	return on(&r.onResume, fn, false, false)
}

// SetEncoding makes Read and data events yield strings decoded with enc.
// Already buffered bytes are decoded immediately.
func (r *Readable) SetEncoding(enc string) error {
	d, name, err := newDecoder(enc)
	if err != nil {
		return err
	}
	st := &r.st
	st.decoder = d
	st.encoding = name

	var content string
	for _, c := range st.buffer.Chunks() {
		switch v := c.(type) {
		case []byte:
			content += d.Write(v)
		case string:
			content += v
		}
	}
	st.buffer.Clear()
	if content != "" {
		st.buffer.Push(content)
	}
	return nil
}

// ReadableEncoding returns the encoding set with SetEncoding.
func (r *Readable) ReadableEncoding() string { return r.st.encoding }

// ReadableLength returns the buffered length.
func (r *Readable) ReadableLength() int { return r.st.buffer.Len() }

// ReadableHighWaterMark returns the current high-water mark.
func (r *Readable) ReadableHighWaterMark() int { return r.st.hwm }

// ReadableObjectMode reports whether the readable side is in object mode.
func (r *Readable) ReadableObjectMode() bool { return r.st.objectMode }

// ReadableFlowing returns the consumption mode.
func (r *Readable) ReadableFlowing() FlowMode { return r.st.flowing }

// ReadableEnded reports whether the end notification has been emitted.
func (r *Readable) ReadableEnded() bool { return r.st.endEmitted }

// ReadableDidRead reports whether any data has been delivered.
func (r *Readable) ReadableDidRead() bool { return r.st.dataEmitted }

// ReadableAborted reports whether the stream was torn down before its end.
func (r *Readable) ReadableAborted() bool {
	return (r.destroyed || r.errored != nil) && !r.st.endEmitted
}

// IsReadable reports whether data may still be read.
func (r *Readable) IsReadable() bool {
	return !r.destroyed && !r.errorEmitted && !r.st.endEmitted
}
