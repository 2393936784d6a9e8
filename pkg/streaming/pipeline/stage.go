package pipeline

import (
	"context"
	"fmt"
	"iter"

	"github.com/vnykmshr/gostream/pkg/streaming/stream"
)

// Stage is one element of a pipeline. It is one of:
//   - a stream.Stream (Readable, Writable, Duplex, Transform)
//   - an iter.Seq2[any, error], as the first stage only
//   - a SourceFunc, as the first stage only
//   - a TransformFunc, anywhere but first
//   - a SinkFunc, as the last stage only
type Stage interface{}

// SourceFunc produces the chunks of the first stage. The returned sequence is
// consumed off the loop and may block.
type SourceFunc func(ctx context.Context) iter.Seq2[any, error]

// TransformFunc maps the chunks of the previous stage to a new sequence.
// It is called on the loop and must return without blocking; both in and the
// returned sequence are ranged over off the loop. Stopping the range over in
// early aborts the pipeline.
type TransformFunc func(ctx context.Context, in iter.Seq2[any, error]) iter.Seq2[any, error]

// SinkFunc consumes the chunks of the previous stage off the loop. Its result
// becomes the pipeline value.
type SinkFunc func(ctx context.Context, in iter.Seq2[any, error]) (any, error)

type position struct {
	index    int
	first    bool
	last     bool
	openHead bool
	openTail bool
}

// check reports whether s may appear at pos.
func check(s Stage, pos position) error {
	fail := func(want string) error {
		return fmt.Errorf("stage %d (%T) must be %s: %w", pos.index, s, want, stream.ErrInvalidArgType)
	}

	source := pos.first && !pos.openHead
	sink := pos.last && !pos.openTail

	switch st := s.(type) {
	case stream.Stream:
		if !sink {
			if _, ok := st.(stream.ReadableStream); !ok {
				return fail("readable")
			}
		}
		if !source {
			if _, ok := st.(stream.WritableStream); !ok {
				return fail("writable")
			}
		}
	case iter.Seq2[any, error], func(yield func(any, error) bool), SourceFunc:
		if !source {
			return fail("a stream or TransformFunc")
		}
	case TransformFunc:
		if source || sink {
			return fail("a stream, iterator, SourceFunc or SinkFunc")
		}
	case SinkFunc:
		if !sink {
			return fail("a stream or TransformFunc")
		}
	case nil:
		return fmt.Errorf("stage %d is nil: %w", pos.index, stream.ErrInvalidArgType)
	default:
		return fmt.Errorf("stage %d has unsupported type %T: %w", pos.index, s, stream.ErrInvalidArgType)
	}
	return nil
}

func stageName(s Stage, index int) string {
	if st, ok := s.(stream.Stream); ok {
		return st.Name()
	}
	return fmt.Sprintf("stage-%d", index)
}
