package stream

import (
	"testing"

	"go.uber.org/goleak"

	"github.com/vnykmshr/gostream/internal/testutil"
	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
)

// TestMain enables goroutine leak detection for all tests in this package.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newLoop(t *testing.T) *eventloop.Loop {
	t.Helper()
	l := eventloop.New()
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func run(t *testing.T, l *eventloop.Loop, main func()) {
	t.Helper()
	testutil.Run(t, l, main)
}

func noopRead(*Readable, int) {}

func syncWrite(out *[]string) func(*Writable, any, *Completion) {
	return func(_ *Writable, chunk any, done *Completion) {
		*out = append(*out, string(chunk.([]byte)))
		done.Done(nil)
	}
}

func readableConfig(read func(*Readable, int)) ReadableConfig {
	cfg := DefaultReadableConfig()
	cfg.Read = read
	return cfg
}

func objectReadableConfig(read func(*Readable, int)) ReadableConfig {
	cfg := readableConfig(read)
	cfg.ObjectMode = true
	return cfg
}

func writableConfig(write func(*Writable, any, *Completion)) WritableConfig {
	cfg := DefaultWritableConfig()
	cfg.Write = write
	return cfg
}

// sliceReader pushes one element per Read hook call, then ends.
func sliceReader[T any](items []T) func(*Readable, int) {
	i := 0
	return func(r *Readable, _ int) {
		if i == len(items) {
			r.Push(nil)
			return
		}
		v := items[i]
		i++
		r.Push(v)
	}
}
