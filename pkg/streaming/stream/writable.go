package stream

import (
	"fmt"

	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
)

type writeReq struct {
	chunk any
	cb    func(error)
}

type afterWriteTick struct {
	cbs []func(error)
}

type writableState struct {
	objectMode      bool
	hwm             int
	decodeStrings   bool
	defaultEncoding string

	length           int
	writing          bool
	corked           int
	sync             bool
	bufferProcessing bool
	writecb          func(error)
	writelen         int
	afterWrite       *afterWriteTick

	buffered      []writeReq
	bufferedIndex int
	allNoop       bool

	pendingcb   int
	prefinished bool
	finalCalled bool
	ending      bool
	ended       bool
	finished    bool
	needDrain   bool
	onFinished  []func(error)
}

// Writable is a push-driven sink with an internal buffer.
//
// Chunks handed to Write are passed one at a time to the Write hook; while a
// write is in flight further chunks queue up. Write returns false once the
// queued length reaches the high-water mark and a drain notification
// follows when the queue empties. All methods must be called on the
// stream's loop.
type Writable struct {
	*lifecycle
	st writableState

	writeHook  func(w *Writable, chunk any, done *Completion)
	writevHook func(w *Writable, chunks []any, done *Completion)
	finalHook  func(w *Writable, done *Completion)

	onDrain     signal
	onFinish    signal
	onPrefinish signal
	onPipe      event[*Readable]
	onUnpipe    event[*Readable]
}

// NewWritable creates a Writable bound to loop. It panics if the
// configuration is invalid.
func NewWritable(loop *eventloop.Loop, cfg WritableConfig) *Writable {
	lc := newLifecycle(loop, "writable", cfg.Options)
	w := newWritable(lc, cfg.ObjectMode, cfg.HighWaterMark, cfg.DecodeStrings, cfg.DefaultEncoding)
	w.writeHook = cfg.Write
	w.writevHook = cfg.Writev
	w.finalHook = cfg.Final
	lc.start(cfg.Options)
	return w
}

func newWritable(lc *lifecycle, objectMode bool, hwm int, decodeStrings bool, defaultEncoding string) *Writable {
	h, err := resolveHighWaterMark("WritableHighWaterMark", hwm, objectMode)
	if err != nil {
		panic(err)
	}
	enc := "utf8"
	if defaultEncoding != "" {
		if enc, err = normalizeEncoding(defaultEncoding); err != nil {
			panic(err)
		}
	}
	w := &Writable{
		lifecycle: lc,
		st: writableState{
			objectMode:      objectMode,
			hwm:             h,
			decodeStrings:   decodeStrings,
			defaultEncoding: enc,
			sync:            true,
			allNoop:         true,
		},
	}
	lc.w = w
	lc.whenConstructed(func() {
		if !w.st.writing {
			w.clearBuffer()
		}
		w.finishMaybe(false)
	})
	return w
}

func (w *Writable) writable() *Writable { return w }

// Write queues chunk for the Write hook. cb, if not nil, runs once the chunk
// has been handled or has failed. The result is false when the caller should
// wait for a drain notification before writing more.
func (w *Writable) Write(chunk any, cb func(error)) bool {
	ok, _ := w.write(chunk, "", cb)
	return ok
}

// WriteString queues s after converting it with encoding. An empty encoding
// selects the default encoding.
func (w *Writable) WriteString(s, encoding string, cb func(error)) bool {
	ok, _ := w.write(s, encoding, cb)
	return ok
}

func (w *Writable) write(chunk any, encoding string, cb func(error)) (bool, error) {
	st := &w.st
	noop := cb == nil
	if noop {
		cb = nop
	}

	err := w.normalizeChunk(&chunk, encoding)
	if err == nil {
		if st.ending {
			err = ErrWriteAfterEnd
		} else if w.destroyed {
			err = fmt.Errorf("write: %w", ErrDestroyed)
		}
	}
	if err != nil {
		w.loop.NextTick(func() { cb(err) })
		w.errorOrDestroy(err, true)
		return false, err
	}

	st.pendingcb++
	return w.writeOrBuffer(chunk, cb, noop), nil
}

func (w *Writable) normalizeChunk(chunk *any, encoding string) error {
	st := &w.st
	if *chunk == nil {
		return ErrNullValues
	}
	if st.objectMode {
		return nil
	}
	switch c := (*chunk).(type) {
	case []byte:
		return nil
	case string:
		if !st.decodeStrings {
			return nil
		}
		if encoding == "" {
			encoding = st.defaultEncoding
		}
		b, err := encodeString(c, encoding)
		if err != nil {
			return err
		}
		*chunk = b
		return nil
	default:
		return fmt.Errorf("%w, got %T", ErrInvalidArgType, *chunk)
	}
}

func (w *Writable) size(chunk any) int {
	if w.st.objectMode {
		return 1
	}
	switch c := chunk.(type) {
	case []byte:
		return len(c)
	case string:
		return len(c)
	}
	return 1
}

func (w *Writable) writeOrBuffer(chunk any, cb func(error), noop bool) bool {
	st := &w.st
	n := w.size(chunk)
	st.length += n
	ret := st.length < st.hwm
	if !ret {
		st.needDrain = true
		w.inst.backpressure()
	}

	if st.writing || st.corked > 0 || w.errored != nil || !w.constructed {
		st.buffered = append(st.buffered, writeReq{chunk: chunk, cb: cb})
		if !noop {
			st.allNoop = false
		}
	} else {
		w.doWrite(n, []any{chunk}, false, cb)
	}
	w.inst.buffered("writable", st.length)
	return ret && w.errored == nil && !w.destroyed
}

func (w *Writable) doWrite(n int, chunks []any, writev bool, cb func(error)) {
	st := &w.st
	st.writelen = n
	st.writecb = cb
	st.writing = true
	st.sync = true

	done := newCompletion(w.lifecycle, "write", w.onwrite)
	switch {
	case w.destroyed:
		done.Done(fmt.Errorf("write: %w", ErrDestroyed))
	case writev:
		w.guard("writev", done, func() { w.writevHook(w, chunks, done) })
	default:
		w.inst.chunk("writable", chunks[0])
		w.callWrite(chunks[0], done)
	}
	st.sync = false
}

func (w *Writable) callWrite(chunk any, done *Completion) {
	switch {
	case w.writeHook != nil:
		w.guard("write", done, func() { w.writeHook(w, chunk, done) })
	case w.writevHook != nil:
		w.guard("writev", done, func() { w.writevHook(w, []any{chunk}, done) })
	default:
		done.Done(fmt.Errorf("write: %w", ErrMethodNotImplemented))
	}
}

func (w *Writable) onwrite(err error) {
	st := &w.st
	sync := st.sync
	cb := st.writecb

	st.writing = false
	st.writecb = nil
	st.length -= st.writelen
	st.writelen = 0

	if err != nil {
		w.recordError(err, false)
		if sync {
			w.loop.NextTick(func() { w.onwriteError(err, cb) })
		} else {
			w.onwriteError(err, cb)
		}
		return
	}

	if len(st.buffered) > st.bufferedIndex {
		w.clearBuffer()
	}

	if sync {
		if st.afterWrite != nil {
			st.afterWrite.cbs = append(st.afterWrite.cbs, cb)
		} else {
			tick := &afterWriteTick{cbs: []func(error){cb}}
			st.afterWrite = tick
			w.loop.NextTick(func() {
				st.afterWrite = nil
				w.afterWrite(tick.cbs)
			})
		}
		return
	}
	w.afterWrite([]func(error){cb})
}

func (w *Writable) onwriteError(err error, cb func(error)) {
	w.st.pendingcb--
	cb(err)
	w.errorBuffer()
	w.errorOrDestroy(err, false)
}

func (w *Writable) afterWrite(cbs []func(error)) {
	st := &w.st
	if !st.ending && !w.destroyed && st.length == 0 && st.needDrain {
		st.needDrain = false
		w.inst.drained()
		fire(&w.onDrain)
	}
	for _, cb := range cbs {
		st.pendingcb--
		cb(nil)
	}
	if w.destroyed {
		w.errorBuffer()
	}
	w.finishMaybe(false)
}

// errorBuffer fails every queued write and pending end callback.
func (w *Writable) errorBuffer() {
	st := &w.st
	if st.writing {
		return
	}
	reason := func(op string) error {
		if w.errored != nil {
			return w.errored
		}
		return fmt.Errorf("%s: %w", op, ErrDestroyed)
	}
	for _, req := range st.buffered[st.bufferedIndex:] {
		st.length -= w.size(req.chunk)
		req.cb(reason("write"))
	}
	callbacks := st.onFinished
	st.onFinished = nil
	for _, cb := range callbacks {
		cb(reason("end"))
	}
	w.resetBuffer()
}

func (w *Writable) resetBuffer() {
	w.st.buffered = nil
	w.st.bufferedIndex = 0
	w.st.allNoop = true
}

func (w *Writable) beforeDestroy() {
	st := &w.st
	if !w.destroyed && (st.bufferedIndex < len(st.buffered) || len(st.onFinished) > 0) {
		w.loop.NextTick(w.errorBuffer)
	}
}

func (w *Writable) clearBuffer() {
	st := &w.st
	if st.corked > 0 || st.bufferProcessing || w.destroyed || !w.constructed {
		return
	}
	pending := len(st.buffered) - st.bufferedIndex
	if pending == 0 {
		return
	}

	i := st.bufferedIndex
	st.bufferProcessing = true
	if pending > 1 && w.writevHook != nil {
		st.pendingcb -= pending - 1
		reqs := st.buffered[i:]
		chunks := make([]any, len(reqs))
		for j, req := range reqs {
			chunks[j] = req.chunk
			w.inst.chunk("writable", req.chunk)
		}
		cb := nop
		if !st.allNoop {
			cb = func(err error) {
				for _, req := range reqs {
					req.cb(err)
				}
			}
		}
		w.resetBuffer()
		w.doWrite(st.length, chunks, true, cb)
	} else {
		for {
			req := st.buffered[i]
			st.buffered[i] = writeReq{}
			i++
			w.doWrite(w.size(req.chunk), []any{req.chunk}, false, req.cb)
			if i >= len(st.buffered) || st.writing {
				break
			}
		}
		switch {
		case i == len(st.buffered):
			w.resetBuffer()
		case i > 256:
			st.buffered = append([]writeReq(nil), st.buffered[i:]...)
			st.bufferedIndex = 0
		default:
			st.bufferedIndex = i
		}
	}
	st.bufferProcessing = false
}

// Cork buffers every write until a matching Uncork.
func (w *Writable) Cork() {
	w.st.corked++
}

// Uncork releases one Cork. The last one flushes the buffer, in one batch
// when a Writev hook is configured.
func (w *Writable) Uncork() {
	if w.st.corked > 0 {
		w.st.corked--
		if !w.st.writing {
			w.clearBuffer()
		}
	}
}

// End signals that no more data will be written. A non-nil chunk is
// written first. cb runs after the finish notification, or with an error if
// the stream fails or was already finished.
func (w *Writable) End(chunk any, cb func(error)) {
	st := &w.st
	var err error
	if chunk != nil {
		_, err = w.write(chunk, "", nil)
	}

	if st.corked > 0 {
		st.corked = 1
		w.Uncork()
	}

	switch {
	case err != nil:
	case w.errored == nil && !st.ending:
		st.ending = true
		w.finishMaybe(true)
		st.ended = true
	case st.finished:
		err = fmt.Errorf("end: %w", ErrAlreadyFinished)
	case w.destroyed:
		err = fmt.Errorf("end: %w", ErrDestroyed)
	}

	if cb != nil {
		if err != nil || st.finished {
			w.loop.NextTick(func() { cb(err) })
		} else {
			st.onFinished = append(st.onFinished, cb)
		}
	}
}

func (w *Writable) needFinish() bool {
	st := &w.st
	return st.ending &&
		!w.destroyed &&
		w.constructed &&
		st.length == 0 &&
		w.errored == nil &&
		len(st.buffered) == 0 &&
		!st.finished &&
		!st.writing &&
		!w.errorEmitted &&
		!w.closeEmitted
}

func (w *Writable) callFinal() {
	st := &w.st
	if w.destroyed {
		return
	}
	st.sync = true
	done := newCompletion(w.lifecycle, "final", func(err error) {
		st.pendingcb--
		if err != nil {
			callbacks := st.onFinished
			st.onFinished = nil
			for _, cb := range callbacks {
				cb(err)
			}
			w.errorOrDestroy(err, st.sync)
			return
		}
		if w.needFinish() {
			st.prefinished = true
			fire(&w.onPrefinish)
			st.pendingcb++
			w.loop.NextTick(w.finish)
		}
	})
	w.guard("final", done, func() { w.finalHook(w, done) })
	st.sync = false
}

func (w *Writable) prefinish() {
	st := &w.st
	if st.prefinished || st.finalCalled {
		return
	}
	if w.finalHook != nil && !w.destroyed {
		st.finalCalled = true
		st.pendingcb++
		w.loop.NextTick(w.callFinal)
		return
	}
	st.prefinished = true
	fire(&w.onPrefinish)
}

func (w *Writable) finishMaybe(sync bool) {
	st := &w.st
	if !w.needFinish() {
		return
	}
	w.prefinish()
	if st.pendingcb != 0 {
		return
	}
	if sync {
		st.pendingcb++
		w.loop.NextTick(func() {
			if w.needFinish() {
				w.finish()
			} else {
				st.pendingcb--
			}
		})
	} else if w.needFinish() {
		st.pendingcb++
		w.finish()
	}
}

func (w *Writable) finish() {
	st := &w.st
	st.pendingcb--
	st.finished = true

	callbacks := st.onFinished
	st.onFinished = nil
	for _, cb := range callbacks {
		cb(nil)
	}
	fire(&w.onFinish)

	if r := w.r; r != nil && !w.allowHalfOpen && !r.st.ended {
		w.loop.NextTick(func() { r.Push(nil) })
	}
	if w.autoDestroy {
		if r := w.r; r == nil || r.st.endEmitted {
			w.Destroy(nil)
		}
	}
}

// Pipe always fails: a Writable has nothing to read.
func (w *Writable) Pipe(dest WritableStream, _ ...PipeOption) WritableStream {
	w.errorOrDestroy(ErrCannotPipe, false)
	return dest
}

// SetDefaultEncoding sets the encoding used to convert string chunks.
func (w *Writable) SetDefaultEncoding(enc string) error {
	name, err := normalizeEncoding(enc)
	if err != nil {
		return err
	}
	w.st.defaultEncoding = name
	return nil
}

// OnDrain subscribes to drain notifications.
func (w *Writable) OnDrain(fn func()) *Subscription {
	return on(&w.onDrain, fn, false, false)
}

// OnFinish subscribes to the finish notification, emitted once every write
// has completed after End.
func (w *Writable) OnFinish(fn func()) *Subscription {
	return on(&w.onFinish, fn, false, false)
}

// OnPrefinish subscribes to the notification emitted just before finish,
// after the Final hook succeeded.
func (w *Writable) OnPrefinish(fn func()) *Subscription {
	return on(&w.onPrefinish, fn, false, false)
}

// OnPipe subscribes to sources starting to pipe into this stream.
func (w *Writable) OnPipe(fn func(src *Readable)) *Subscription {
	return w.onPipe.add(fn, false, false)
}

// OnUnpipe subscribes to sources detaching from this stream.
func (w *Writable) OnUnpipe(fn func(src *Readable)) *Subscription {
	return w.onUnpipe.add(fn, false, false)
}

func (w *Writable) isWritable() bool {
	st := &w.st
	return !w.destroyed && w.errored == nil && !st.ending && !st.ended
}

// IsWritable reports whether Write may still be called.
func (w *Writable) IsWritable() bool { return w.isWritable() }

// WritableLength returns the queued length.
func (w *Writable) WritableLength() int { return w.st.length }

// WritableHighWaterMark returns the high-water mark.
func (w *Writable) WritableHighWaterMark() int { return w.st.hwm }

// WritableObjectMode reports whether the writable side is in object mode.
func (w *Writable) WritableObjectMode() bool { return w.st.objectMode }

// WritableNeedDrain reports whether a writer should wait for drain.
func (w *Writable) WritableNeedDrain() bool {
	return !w.destroyed && !w.st.ending && w.st.needDrain
}

// WritableBuffer returns a copy of the queued chunks.
func (w *Writable) WritableBuffer() []any {
	out := make([]any, 0, len(w.st.buffered)-w.st.bufferedIndex)
	for _, req := range w.st.buffered[w.st.bufferedIndex:] {
		out = append(out, req.chunk)
	}
	return out
}

// OnceFinish is OnFinish for a single notification.
func (w *Writable) OnceFinish(fn func()) *Subscription {
	return on(&w.onFinish, fn, true, false)
}

// WritableCorked returns the cork depth.
func (w *Writable) WritableCorked() int { return w.st.corked }

// WritableEnded reports whether End has been called.
func (w *Writable) WritableEnded() bool { return w.st.ending }

// WritableFinished reports whether the finish notification has been emitted.
func (w *Writable) WritableFinished() bool { return w.st.finished }

// WritableAborted reports whether the stream was torn down before finishing.
func (w *Writable) WritableAborted() bool {
	return (w.destroyed || w.errored != nil) && !w.st.finished
}

func nop(error) {}
