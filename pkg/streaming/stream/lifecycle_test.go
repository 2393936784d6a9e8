package stream

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
)

func TestDestroyIsIdempotent(t *testing.T) {
	l := newLoop(t)
	first := errors.New("first")
	second := errors.New("second")

	var hooks, closes int
	var errs []error
	var hookErr error
	run(t, l, func() {
		cfg := readableConfig(noopRead)
		cfg.Destroy = func(err error, done *Completion) {
			hooks++
			hookErr = err
			l.NextTick(func() { done.Done(err) })
		}
		r := NewReadable(l, cfg)
		r.OnError(func(err error) { errs = append(errs, err) })
		r.OnClose(func() { closes++ })

		r.Destroy(first)
		r.Destroy(second)
		r.Destroy(nil)
		assert.True(t, r.Destroyed())
		assert.False(t, r.Closed())
	})

	assert.Equal(t, 1, hooks)
	assert.Equal(t, first, hookErr)
	assert.Equal(t, 1, closes)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], first)
	assert.ErrorIs(t, errs[0], second)
}

func TestDestroyWithoutError(t *testing.T) {
	l := newLoop(t)

	var events []string
	run(t, l, func() {
		w := NewWritable(l, writableConfig(syncWrite(new([]string))))
		w.OnError(func(error) { events = append(events, "error") })
		w.OnFinish(func() { events = append(events, "finish") })
		w.OnClose(func() { events = append(events, "close") })
		w.Destroy(nil)
	})

	assert.Equal(t, []string{"close"}, events)
}

func TestDestroyHookReplacesError(t *testing.T) {
	l := newLoop(t)
	replaced := errors.New("replaced")

	var got error
	run(t, l, func() {
		cfg := readableConfig(noopRead)
		cfg.Destroy = func(_ error, done *Completion) { done.Done(replaced) }
		r := NewReadable(l, cfg)
		r.OnError(func(err error) { got = err })
		r.Destroy(nil)
	})

	assert.Equal(t, replaced, got)
}

func TestEmitCloseDisabled(t *testing.T) {
	l := newLoop(t)

	var closes int
	var closed bool
	run(t, l, func() {
		cfg := readableConfig(noopRead)
		cfg.EmitClose = false
		r := NewReadable(l, cfg)
		r.OnClose(func() { closes++ })
		r.Destroy(nil)
		l.NextTick(func() { closed = r.Closed() })
	})

	assert.Zero(t, closes)
	assert.True(t, closed)
}

func TestErrorWithoutAutoDestroy(t *testing.T) {
	l := newLoop(t)

	var errs []error
	var destroyed bool
	run(t, l, func() {
		cfg := readableConfig(noopRead)
		cfg.AutoDestroy = false
		r := NewReadable(l, cfg)
		r.OnError(func(err error) { errs = append(errs, err) })
		r.Push(nil)
		r.Push("late")
		r.Push("later")
		l.NextTick(func() { destroyed = r.Destroyed() })
	})

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrPushAfterEOF)
	assert.False(t, destroyed)
}

func TestDestroyBeforeConstructed(t *testing.T) {
	l := newLoop(t)

	var events []string
	run(t, l, func() {
		cfg := readableConfig(noopRead)
		cfg.Construct = func(done *Completion) {
			events = append(events, "construct")
			l.AfterFunc(0, func() { done.Done(nil) })
		}
		cfg.Destroy = func(err error, done *Completion) {
			events = append(events, "destroy")
			done.Done(err)
		}
		r := NewReadable(l, cfg)
		r.OnClose(func() { events = append(events, "close") })
		l.NextTick(func() { r.Destroy(nil) })
	})

	assert.Equal(t, []string{"construct", "destroy", "close"}, events)
}

func TestAbortSignal(t *testing.T) {
	t.Run("already canceled", func(t *testing.T) {
		l := newLoop(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var got error
		run(t, l, func() {
			cfg := readableConfig(noopRead)
			cfg.Signal = ctx
			r := NewReadable(l, cfg)
			r.OnError(func(err error) { got = err })
		})

		assert.True(t, gserrors.IsAbort(got))
		assert.Equal(t, gserrors.CodeAbort, gserrors.CodeOf(got))
	})

	t.Run("canceled later with cause", func(t *testing.T) {
		l := newLoop(t)
		ctx, cancel := context.WithCancelCause(context.Background())
		cause := errors.New("shutting down")

		var got error
		run(t, l, func() {
			w := AddAbortSignal(ctx, NewWritable(l, writableConfig(syncWrite(new([]string)))))
			l.Ref()
			w.OnClose(l.Unref)
			w.OnError(func(err error) { got = err })
			l.AfterFunc(0, func() { cancel(cause) })
		})

		assert.True(t, gserrors.IsAbort(got))
		assert.ErrorIs(t, got, cause)
	})
}

func TestUnhandledErrorIsLogged(t *testing.T) {
	l := newLoop(t)
	core, logs := observer.New(zap.WarnLevel)

	run(t, l, func() {
		cfg := readableConfig(noopRead)
		cfg.Name = "source"
		cfg.Logger = zap.New(core)
		r := NewReadable(l, cfg)
		r.Destroy(errors.New("nobody listens"))
	})

	entries := logs.FilterMessage("unhandled stream error").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "source", entries[0].ContextMap()["stream"])
}

func TestStreamIdentity(t *testing.T) {
	l := newLoop(t)

	run(t, l, func() {
		a := NewReadable(l, readableConfig(noopRead))
		b := NewReadable(l, readableConfig(noopRead))
		assert.NotEqual(t, a.ID(), b.ID())
		assert.Equal(t, "readable", a.Name())
		assert.Same(t, l, a.Loop())
		assert.NotNil(t, a.Logger())
		assert.Same(t, a, AsReadable(a))
		assert.Nil(t, AsWritable(a))
		a.Destroy(nil)
		b.Destroy(nil)
	})
}

func TestNilLoopPanics(t *testing.T) {
	assert.Panics(t, func() { NewReadable(nil, readableConfig(noopRead)) })
}

func TestPanickingHooksBecomeStreamErrors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("read", func(t *testing.T) {
		l := newLoop(t)
		var errs []error
		var closed bool
		run(t, l, func() {
			r := NewReadable(l, readableConfig(func(*Readable, int) { panic("boom") }))
			r.OnError(func(err error) { errs = append(errs, err) })
			r.OnClose(func() { closed = true })
			r.OnData(func(any) {})
		})

		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], ErrHookPanicked)
		assert.Contains(t, errs[0].Error(), "boom")
		assert.Equal(t, gserrors.CodeStreamHookPanicked, gserrors.CodeOf(errs[0]))
		assert.True(t, closed)
	})

	t.Run("write", func(t *testing.T) {
		l := newLoop(t)
		var writeErr, emitted error
		run(t, l, func() {
			w := NewWritable(l, writableConfig(func(*Writable, any, *Completion) { panic(boom) }))
			w.OnError(func(err error) { emitted = err })
			w.Write([]byte("x"), func(err error) { writeErr = err })
		})

		assert.ErrorIs(t, writeErr, ErrHookPanicked)
		assert.ErrorIs(t, writeErr, boom)
		assert.ErrorIs(t, emitted, boom)
	})

	t.Run("final", func(t *testing.T) {
		l := newLoop(t)
		var endErr error
		run(t, l, func() {
			cfg := writableConfig(syncWrite(new([]string)))
			cfg.Final = func(*Writable, *Completion) { panic(boom) }
			w := NewWritable(l, cfg)
			w.OnError(func(error) {})
			w.End(nil, func(err error) { endErr = err })
		})

		assert.ErrorIs(t, endErr, ErrHookPanicked)
		assert.ErrorIs(t, endErr, boom)
	})

	t.Run("transform", func(t *testing.T) {
		l := newLoop(t)
		var writeErr error
		run(t, l, func() {
			cfg := DefaultTransformConfig()
			cfg.Transform = func(*Transform, any, *Completion) { panic(boom) }
			tr := NewTransform(l, cfg)
			tr.OnError(func(error) {})
			tr.Write([]byte("x"), func(err error) { writeErr = err })
		})

		assert.ErrorIs(t, writeErr, ErrHookPanicked)
	})

	t.Run("construct", func(t *testing.T) {
		l := newLoop(t)
		var got error
		run(t, l, func() {
			cfg := readableConfig(noopRead)
			cfg.Construct = func(*Completion) { panic(boom) }
			r := NewReadable(l, cfg)
			r.OnError(func(err error) { got = err })
		})

		assert.ErrorIs(t, got, ErrHookPanicked)
		assert.ErrorIs(t, got, boom)
	})

	t.Run("destroy", func(t *testing.T) {
		l := newLoop(t)
		var got error
		var closed bool
		run(t, l, func() {
			cfg := readableConfig(noopRead)
			cfg.Destroy = func(error, *Completion) { panic(boom) }
			r := NewReadable(l, cfg)
			r.OnError(func(err error) { got = err })
			r.OnClose(func() { closed = true })
			r.Destroy(nil)
		})

		assert.ErrorIs(t, got, ErrHookPanicked)
		assert.True(t, closed)
	})
}
