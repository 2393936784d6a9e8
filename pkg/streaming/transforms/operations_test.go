package transforms

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
	"github.com/vnykmshr/gostream/pkg/streaming/pipeline"
	"github.com/vnykmshr/gostream/pkg/streaming/stream"
)

func ints(n ...int) []any {
	out := make([]any, len(n))
	for i, v := range n {
		out[i] = v
	}
	return out
}

func TestOperations(t *testing.T) {
	tests := []struct {
		name   string
		input  []any
		build  func(l *eventloop.Loop) []pipeline.Stage
		expect []any
	}{
		{
			name:  "map and filter",
			input: ints(1, 2, 3),
			build: func(l *eventloop.Loop) []pipeline.Stage {
				return stages(
					Map(l, func(v int) (int, error) { return v * 10, nil }),
					Filter(l, func(v int) bool { return v > 10 }),
				)
			},
			expect: ints(20, 30),
		},
		{
			name:  "map changes type",
			input: ints(7, 8),
			build: func(l *eventloop.Loop) []pipeline.Stage {
				return stages(Map(l, func(v int) (string, error) { return strconv.Itoa(v), nil }))
			},
			expect: []any{"7", "8"},
		},
		{
			name:  "flatmap and distinct",
			input: []any{"a b", "b c"},
			build: func(l *eventloop.Loop) []pipeline.Stage {
				return stages(FlatMap(l, strings.Fields), Distinct[string](l))
			},
			expect: []any{"a", "b", "c"},
		},
		{
			name:  "skip and limit",
			input: ints(1, 2, 3, 4, 5),
			build: func(l *eventloop.Loop) []pipeline.Stage {
				return stages(Skip(l, 1), Limit(l, 2))
			},
			expect: ints(2, 3),
		},
		{
			name:  "limit zero",
			input: ints(1, 2),
			build: func(l *eventloop.Loop) []pipeline.Stage {
				return stages(Limit(l, 0))
			},
			expect: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := through(t, tt.input, tt.build)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, got)
		})
	}
}

func TestPeek(t *testing.T) {
	var seen []int
	got, err := through(t, ints(1, 2), func(l *eventloop.Loop) []pipeline.Stage {
		return stages(Peek(l, func(v int) { seen = append(seen, v) }))
	})

	require.NoError(t, err)
	assert.Equal(t, ints(1, 2), got)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestMapErrors(t *testing.T) {
	_, err := through(t, []any{"x"}, func(l *eventloop.Loop) []pipeline.Stage {
		return stages(Map(l, func(v int) (int, error) { return v, nil }))
	})
	assert.ErrorIs(t, err, stream.ErrInvalidArgType)

	_, err = through(t, []any{"12", "nope"}, func(l *eventloop.Loop) []pipeline.Stage {
		return stages(Map(l, strconv.Atoi))
	})
	assert.ErrorIs(t, err, strconv.ErrSyntax)
}
