package stream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritableCorkedWritesFlushInOrder(t *testing.T) {
	l := newLoop(t)

	var written, callbacks []string
	var corked int
	run(t, l, func() {
		w := NewWritable(l, writableConfig(syncWrite(&written)))
		w.Cork()
		for _, s := range []string{"x1", "x2", "x3"} {
			w.Write(s, func(err error) {
				require.NoError(t, err)
				callbacks = append(callbacks, s)
			})
		}
		corked = w.WritableCorked()
		assert.Empty(t, written)
		assert.Equal(t, 6, w.WritableLength())
		w.Uncork()
	})

	assert.Equal(t, 1, corked)
	assert.Equal(t, []string{"x1", "x2", "x3"}, written)
	assert.Equal(t, []string{"x1", "x2", "x3"}, callbacks)
}

func TestWritableWritevBatchesBuffer(t *testing.T) {
	l := newLoop(t)

	var batches [][]any
	var callbacks []int
	run(t, l, func() {
		cfg := DefaultWritableConfig()
		cfg.ObjectMode = true
		cfg.Writev = func(_ *Writable, chunks []any, done *Completion) {
			batches = append(batches, chunks)
			done.Done(nil)
		}
		w := NewWritable(l, cfg)
		w.Cork()
		w.Cork()
		for i := 1; i <= 3; i++ {
			w.Write(i, func(err error) { callbacks = append(callbacks, i) })
		}
		w.Uncork()
		assert.Empty(t, batches)
		w.Uncork()
		w.End(nil, nil)
	})

	require.Len(t, batches, 1)
	assert.Equal(t, []any{1, 2, 3}, batches[0])
	assert.Equal(t, []int{1, 2, 3}, callbacks)
}

func TestWritableBackpressureAndDrain(t *testing.T) {
	l := newLoop(t)

	var results []bool
	var drains int
	var needDrain bool
	run(t, l, func() {
		cfg := DefaultWritableConfig()
		cfg.HighWaterMark = 4
		cfg.Write = func(_ *Writable, _ any, done *Completion) {
			l.NextTick(func() { done.Done(nil) })
		}
		w := NewWritable(l, cfg)
		w.OnDrain(func() {
			drains++
			assert.Zero(t, w.WritableLength())
		})
		results = append(results, w.Write("ab", nil), w.Write("cd", nil))
		needDrain = w.WritableNeedDrain()
	})

	assert.Equal(t, []bool{true, false}, results)
	assert.True(t, needDrain)
	assert.Equal(t, 1, drains)
}

func TestWritableFinishSequence(t *testing.T) {
	l := newLoop(t)

	var events []string
	var finished bool
	run(t, l, func() {
		cfg := writableConfig(func(_ *Writable, _ any, done *Completion) {
			events = append(events, "write")
			done.Done(nil)
		})
		cfg.Final = func(_ *Writable, done *Completion) {
			events = append(events, "final")
			l.NextTick(func() { done.Done(nil) })
		}
		w := NewWritable(l, cfg)
		w.OnPrefinish(func() { events = append(events, "prefinish") })
		w.OnFinish(func() {
			events = append(events, "finish")
			finished = w.WritableFinished()
		})
		w.OnClose(func() { events = append(events, "close") })
		w.End("last", func(err error) {
			require.NoError(t, err)
			events = append(events, "end-callback")
		})
		assert.True(t, w.WritableEnded())
	})

	assert.Equal(t, []string{"write", "final", "prefinish", "end-callback", "finish", "close"}, events)
	assert.True(t, finished)
}

func TestWritableFinalError(t *testing.T) {
	l := newLoop(t)
	boom := errors.New("flush failed")

	var endErr, emitted error
	var finished bool
	run(t, l, func() {
		cfg := writableConfig(syncWrite(new([]string)))
		cfg.Final = func(_ *Writable, done *Completion) { done.Done(boom) }
		w := NewWritable(l, cfg)
		w.OnError(func(err error) { emitted = err })
		w.OnFinish(func() { finished = true })
		w.End(nil, func(err error) { endErr = err })
	})

	assert.ErrorIs(t, endErr, boom)
	assert.ErrorIs(t, emitted, boom)
	assert.False(t, finished)
}

func TestWritableUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		act  func(w *Writable, cb func(error))
		want error
	}{
		{
			name: "write after end",
			act: func(w *Writable, cb func(error)) {
				w.End(nil, nil)
				w.Write("late", cb)
			},
			want: ErrWriteAfterEnd,
		},
		{
			name: "nil chunk",
			act:  func(w *Writable, cb func(error)) { w.Write(nil, cb) },
			want: ErrNullValues,
		},
		{
			name: "invalid chunk type",
			act:  func(w *Writable, cb func(error)) { w.Write(3.14, cb) },
			want: ErrInvalidArgType,
		},
		{
			name: "write after destroy",
			act: func(w *Writable, cb func(error)) {
				w.Destroy(nil)
				w.Write("x", cb)
			},
			want: ErrDestroyed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLoop(t)

			var cbErr error
			run(t, l, func() {
				w := NewWritable(l, writableConfig(syncWrite(new([]string))))
				tt.act(w, func(err error) { cbErr = err })
			})

			assert.ErrorIs(t, cbErr, tt.want)
		})
	}
}

func TestWritableEndAfterFinish(t *testing.T) {
	l := newLoop(t)

	var second error
	run(t, l, func() {
		cfg := writableConfig(syncWrite(new([]string)))
		cfg.AutoDestroy = false
		w := NewWritable(l, cfg)
		w.End(nil, func(err error) {
			require.NoError(t, err)
			w.End(nil, func(err error) { second = err })
		})
	})

	assert.ErrorIs(t, second, ErrAlreadyFinished)
}

func TestWritableWriteErrorFailsQueuedWrites(t *testing.T) {
	l := newLoop(t)
	boom := errors.New("disk full")

	var errs []error
	var emitted int
	run(t, l, func() {
		w := NewWritable(l, writableConfig(func(_ *Writable, _ any, done *Completion) {
			l.NextTick(func() { done.Done(boom) })
		}))
		w.OnError(func(error) { emitted++ })
		for i := 0; i < 3; i++ {
			w.Write("chunk", func(err error) { errs = append(errs, err) })
		}
	})

	require.Len(t, errs, 3)
	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, 1, emitted)
}

func TestWritableDoneTwice(t *testing.T) {
	l := newLoop(t)

	var got error
	run(t, l, func() {
		w := NewWritable(l, writableConfig(func(_ *Writable, _ any, done *Completion) {
			done.Done(nil)
			done.Done(nil)
		}))
		w.OnError(func(err error) { got = err })
		w.Write("x", nil)
	})

	assert.ErrorIs(t, got, ErrMultipleCallback)
}

func TestWritablePipeFails(t *testing.T) {
	l := newLoop(t)

	var got error
	run(t, l, func() {
		w := NewWritable(l, writableConfig(syncWrite(new([]string))))
		other := NewWritable(l, writableConfig(syncWrite(new([]string))))
		w.OnError(func(err error) { got = err })
		w.Pipe(other)
		other.End(nil, nil)
	})

	assert.ErrorIs(t, got, ErrCannotPipe)
}

func TestWritableEncodings(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
		input    string
		want     string
	}{
		{"hex", "hex", "6869", "hi"},
		{"base64", "base64", "aGk=", "hi"},
		{"base64 unpadded", "base64", "aGk", "hi"},
		{"latin1", "latin1", "é", "\xe9"},
		{"utf16le", "utf16le", "hi", "h\x00i\x00"},
		{"default", "", "hi", "hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLoop(t)

			var written []string
			run(t, l, func() {
				w := NewWritable(l, writableConfig(syncWrite(&written)))
				w.WriteString(tt.input, tt.encoding, nil)
				w.End(nil, nil)
			})

			assert.Equal(t, []string{tt.want}, written)
		})
	}
}

func TestWritableSetDefaultEncoding(t *testing.T) {
	l := newLoop(t)

	var written []string
	var unknown error
	run(t, l, func() {
		w := NewWritable(l, writableConfig(syncWrite(&written)))
		require.NoError(t, w.SetDefaultEncoding("hex"))
		unknown = w.SetDefaultEncoding("klingon")
		w.Write("6f6b", nil)
		w.End(nil, nil)
	})

	assert.ErrorIs(t, unknown, ErrUnknownEncoding)
	assert.Equal(t, []string{"ok"}, written)
}

func TestWritableKeepsStringsWithoutDecoding(t *testing.T) {
	l := newLoop(t)

	var got any
	run(t, l, func() {
		cfg := writableConfig(func(_ *Writable, chunk any, done *Completion) {
			got = chunk
			done.Done(nil)
		})
		cfg.DecodeStrings = false
		w := NewWritable(l, cfg)
		w.End("text", nil)
	})

	assert.Equal(t, "text", got)
}

func TestWritableBufferSnapshot(t *testing.T) {
	l := newLoop(t)

	run(t, l, func() {
		cfg := DefaultWritableConfig()
		cfg.ObjectMode = true
		cfg.Write = func(_ *Writable, _ any, done *Completion) { done.Done(nil) }
		w := NewWritable(l, cfg)
		w.Cork()
		w.Write("a", nil)
		w.Write("b", nil)
		assert.Equal(t, []any{"a", "b"}, w.WritableBuffer())
		assert.True(t, w.WritableObjectMode())
		assert.Equal(t, DefaultObjectHighWaterMark, w.WritableHighWaterMark())
		assert.True(t, w.IsWritable())
		w.End(nil, nil)
		assert.False(t, w.IsWritable())
	})
}

func TestWritableMissingWriteHook(t *testing.T) {
	l := newLoop(t)

	var got error
	run(t, l, func() {
		w := NewWritable(l, DefaultWritableConfig())
		w.Write("x", func(err error) { got = err })
	})

	assert.ErrorIs(t, got, ErrMethodNotImplemented)
}
