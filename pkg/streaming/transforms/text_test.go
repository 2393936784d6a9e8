package transforms

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
	"github.com/vnykmshr/gostream/pkg/streaming/pipeline"
)

type event struct {
	ID   int    `json:"id"`
	Kind string `json:"kind"`
}

func TestNDJSONRoundTrip(t *testing.T) {
	input := []any{
		map[string]any{"id": 1, "kind": "click"},
		map[string]any{"id": 2, "kind": "view"},
	}
	got, err := through(t, input, func(l *eventloop.Loop) []pipeline.Stage {
		return stages(NDJSONEncode(l, DefaultNDJSONConfig()), NDJSONDecode(l, DefaultNDJSONConfig()))
	})

	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"id": float64(1), "kind": "click"},
		map[string]any{"id": float64(2), "kind": "view"},
	}, got)
}

func TestNDJSONEncode(t *testing.T) {
	got, err := through(t, []any{event{1, "a"}, event{2, "b"}}, func(l *eventloop.Loop) []pipeline.Stage {
		return stages(NDJSONEncode(l, DefaultNDJSONConfig()))
	})

	require.NoError(t, err)
	assert.Equal(t, "{\"id\":1,\"kind\":\"a\"}\n{\"id\":2,\"kind\":\"b\"}\n", join(got))
}

func TestNDJSONDecodeTyped(t *testing.T) {
	cfg := DefaultNDJSONConfig()
	cfg.New = func() any { return &event{} }
	input := chunks(`{"id":1,"ki`, "nd\":\"a\"}\n\n", "{\"id\":2,\"kind\":\"b\"}")

	got, err := through(t, input, func(l *eventloop.Loop) []pipeline.Stage {
		return stages(NDJSONDecode(l, cfg))
	})

	require.NoError(t, err)
	assert.Equal(t, []any{&event{1, "a"}, &event{2, "b"}}, got)
}

func TestNDJSONDecodeInvalid(t *testing.T) {
	_, err := through(t, chunks("{\"id\":1}\n{oops}\n"), func(l *eventloop.Loop) []pipeline.Stage {
		return stages(NDJSONDecode(l, DefaultNDJSONConfig()))
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLines(t *testing.T) {
	tests := []struct {
		name   string
		config func(*LinesConfig)
		input  []any
		expect []any
	}{
		{
			name:   "split across chunks",
			input:  chunks("a\r\nb", "c\n", "d"),
			expect: []any{"a", "bc", "d"},
		},
		{
			name:   "keep delimiter",
			config: func(c *LinesConfig) { c.KeepDelimiter = true },
			input:  chunks("x\ny\n"),
			expect: []any{"x\n", "y\n"},
		},
		{
			name:   "custom delimiter",
			config: func(c *LinesConfig) { c.Delimiter = []byte("||") },
			input:  chunks("one|", "|two||three"),
			expect: []any{"one", "two", "three"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultLinesConfig()
			if tt.config != nil {
				tt.config(&cfg)
			}
			got, err := through(t, tt.input, func(l *eventloop.Loop) []pipeline.Stage {
				return stages(Lines(l, cfg))
			})
			require.NoError(t, err)
			assert.Equal(t, tt.expect, got)
		})
	}
}

func TestLinesTooLong(t *testing.T) {
	cfg := DefaultLinesConfig()
	cfg.MaxLineLength = 4
	_, err := through(t, chunks("ok\n", "much too long"), func(l *eventloop.Loop) []pipeline.Stage {
		return stages(Lines(l, cfg))
	})

	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestThrottle(t *testing.T) {
	cfg := DefaultThrottleConfig()
	cfg.WritableObjectMode = true
	cfg.Rate = 50
	cfg.Burst = 1

	start := time.Now()
	got, err := through(t, ints(1, 2, 3, 4, 5), func(l *eventloop.Loop) []pipeline.Stage {
		tr, err := Throttle(l, cfg)
		require.NoError(t, err)
		return stages(tr)
	})

	require.NoError(t, err)
	assert.Equal(t, ints(1, 2, 3, 4, 5), got)
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

func TestThrottleBytes(t *testing.T) {
	cfg := DefaultThrottleConfig()
	cfg.Rate = 1000
	cfg.Burst = 100

	start := time.Now()
	got, err := through(t, chunks(string(make([]byte, 150))), func(l *eventloop.Loop) []pipeline.Stage {
		tr, err := Throttle(l, cfg)
		require.NoError(t, err)
		return stages(tr)
	})

	require.NoError(t, err)
	assert.Len(t, join(got), 150)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestThrottleInvalidRate(t *testing.T) {
	cfg := DefaultThrottleConfig()
	cfg.Rate = 0
	_, err := Throttle(newLoop(t), cfg)
	assert.ErrorIs(t, err, gserrors.ErrInvalidConfiguration)
}

type fakeReserver struct {
	mu    sync.Mutex
	units []int
	delay time.Duration
	err   error
}

func (f *fakeReserver) Reserve(_ context.Context, n int) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.units = append(f.units, n)
	return f.delay, f.err
}

func TestThrottleShared(t *testing.T) {
	shared := &fakeReserver{delay: 20 * time.Millisecond}
	cfg := DefaultThrottleConfig()
	cfg.Shared = shared

	start := time.Now()
	got, err := through(t, chunks("abc", "de"), func(l *eventloop.Loop) []pipeline.Stage {
		tr, err := Throttle(l, cfg)
		require.NoError(t, err)
		return stages(tr)
	})

	require.NoError(t, err)
	assert.Equal(t, "abcde", join(got))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	shared.mu.Lock()
	defer shared.mu.Unlock()
	total := 0
	for _, n := range shared.units {
		total += n
	}
	assert.Equal(t, 5, total)
}

func TestThrottleSharedError(t *testing.T) {
	boom := errors.New("quota unavailable")
	cfg := DefaultThrottleConfig()
	cfg.WritableObjectMode = true
	cfg.Shared = &fakeReserver{err: boom}

	_, err := through(t, ints(1, 2), func(l *eventloop.Loop) []pipeline.Stage {
		tr, err := Throttle(l, cfg)
		require.NoError(t, err)
		return stages(tr)
	})
	assert.ErrorIs(t, err, boom)
}
