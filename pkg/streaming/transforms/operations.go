package transforms

import (
	"fmt"

	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
	"github.com/vnykmshr/gostream/pkg/streaming/stream"
)

// operation builds an object-mode Transform calling fn for every chunk.
// fn pushes any output itself.
func operation(loop *eventloop.Loop, name string, fn func(t *stream.Transform, chunk any) error) *stream.Transform {
	cfg := stream.ObjectTransformConfig()
	cfg.Name = name
	cfg.Transform = func(t *stream.Transform, chunk any, done *stream.Completion) {
		done.Done(fn(t, chunk))
	}
	return stream.NewTransform(loop, cfg)
}

// typed asserts chunk to T, failing with ErrInvalidArgType.
func typed[T any](op string, chunk any) (T, error) {
	v, ok := chunk.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: %w: got %T, want %T", op, stream.ErrInvalidArgType, chunk, zero)
	}
	return v, nil
}

// Map replaces every chunk with mapper(chunk). An error from mapper fails
// the stream.
func Map[T, U any](loop *eventloop.Loop, mapper func(T) (U, error)) *stream.Transform {
	return operation(loop, "map", func(t *stream.Transform, chunk any) error {
		v, err := typed[T]("map", chunk)
		if err != nil {
			return err
		}
		out, err := mapper(v)
		if err != nil {
			return err
		}
		t.Push(out)
		return nil
	})
}

// Filter forwards the chunks for which predicate returns true.
func Filter[T any](loop *eventloop.Loop, predicate func(T) bool) *stream.Transform {
	return operation(loop, "filter", func(t *stream.Transform, chunk any) error {
		v, err := typed[T]("filter", chunk)
		if err != nil {
			return err
		}
		if predicate(v) {
			t.Push(v)
		}
		return nil
	})
}

// FlatMap pushes every element of mapper(chunk).
func FlatMap[T, U any](loop *eventloop.Loop, mapper func(T) []U) *stream.Transform {
	return operation(loop, "flatmap", func(t *stream.Transform, chunk any) error {
		v, err := typed[T]("flatmap", chunk)
		if err != nil {
			return err
		}
		for _, out := range mapper(v) {
			t.Push(out)
		}
		return nil
	})
}

// Distinct drops chunks equal to one already seen.
func Distinct[T comparable](loop *eventloop.Loop) *stream.Transform {
	seen := make(map[T]struct{})
	return operation(loop, "distinct", func(t *stream.Transform, chunk any) error {
		v, err := typed[T]("distinct", chunk)
		if err != nil {
			return err
		}
		if _, dup := seen[v]; !dup {
			seen[v] = struct{}{}
			t.Push(v)
		}
		return nil
	})
}

// Skip drops the first n chunks.
func Skip(loop *eventloop.Loop, n int) *stream.Transform {
	var count int
	return operation(loop, "skip", func(t *stream.Transform, chunk any) error {
		if count < n {
			count++
			return nil
		}
		t.Push(chunk)
		return nil
	})
}

// Limit forwards the first n chunks and then ends its readable side.
// Later chunks are consumed and dropped, so the writer is never blocked.
func Limit(loop *eventloop.Loop, n int) *stream.Transform {
	var count int
	tr := operation(loop, "limit", func(t *stream.Transform, chunk any) error {
		if count >= n {
			return nil
		}
		count++
		t.Push(chunk)
		if count == n {
			t.Push(nil)
		}
		return nil
	})
	if n <= 0 {
		tr.Push(nil)
	}
	return tr
}

// Peek calls action with every chunk and forwards it unchanged.
func Peek[T any](loop *eventloop.Loop, action func(T)) *stream.Transform {
	return operation(loop, "peek", func(t *stream.Transform, chunk any) error {
		v, err := typed[T]("peek", chunk)
		if err != nil {
			return err
		}
		action(v)
		t.Push(v)
		return nil
	})
}
