package sources

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		expr  string
		valid bool
	}{
		{"*/5 * * * * *", true},
		{"0 9 * * 1-5", true},
		{"@hourly", true},
		{"@every 1m", true},
		{"@every 30s", true},
		{"", false},
		{"not a schedule", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := ParseSchedule(tt.expr)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestScheduleInvalid(t *testing.T) {
	_, err := Schedule(newLoop(t), "bogus", nil, DefaultScheduleConfig())
	assert.Error(t, err)
}

func TestScheduleMaxRuns(t *testing.T) {
	l := newLoop(t)

	var got []any
	var ended bool
	run(t, l, func() {
		cfg := DefaultScheduleConfig()
		cfg.MaxRuns = 3
		n := 0
		r := FromSchedule(l, every(5*time.Millisecond), func(context.Context, time.Time) (any, error) {
			n++
			return n, nil
		}, cfg)
		r.OnData(func(chunk any) { got = append(got, chunk) })
		r.OnEnd(func() { ended = true })
	})

	assert.Equal(t, []any{1, 2, 3}, got)
	assert.True(t, ended)
}

func TestScheduleProducerErrors(t *testing.T) {
	l := newLoop(t)
	boom := errors.New("boom")

	var got []any
	var reported []error
	run(t, l, func() {
		cfg := DefaultScheduleConfig()
		cfg.MaxRuns = 3
		cfg.OnError = func(_ time.Time, err error) { reported = append(reported, err) }
		n := 0
		r := FromSchedule(l, every(2*time.Millisecond), func(context.Context, time.Time) (any, error) {
			n++
			switch n {
			case 2:
				return nil, boom
			case 3:
				return nil, nil
			}
			return n, nil
		}, cfg)
		r.OnData(func(chunk any) { got = append(got, chunk) })
	})

	assert.Equal(t, []any{1}, got)
	assert.Equal(t, []error{boom}, reported)
}

func TestScheduleStopOnError(t *testing.T) {
	l := newLoop(t)
	boom := errors.New("boom")

	var got error
	run(t, l, func() {
		cfg := DefaultScheduleConfig()
		cfg.StopOnError = true
		r := FromSchedule(l, every(time.Millisecond), func(context.Context, time.Time) (any, error) {
			return nil, boom
		}, cfg)
		r.OnError(func(err error) { got = err })
	})

	assert.ErrorIs(t, got, boom)
}

func TestScheduleSkipsWhileRunning(t *testing.T) {
	l := newLoop(t)

	var skipped []string
	var got []any
	run(t, l, func() {
		cfg := DefaultScheduleConfig()
		cfg.MaxRuns = 1
		cfg.OnSkip = func(_ time.Time, reason string) { skipped = append(skipped, reason) }
		r := FromSchedule(l, every(2*time.Millisecond), func(ctx context.Context, tick time.Time) (any, error) {
			time.Sleep(20 * time.Millisecond)
			return "slow", nil
		}, cfg)
		r.OnData(func(chunk any) { got = append(got, chunk) })
	})

	assert.Equal(t, []any{"slow"}, got)
	require.NotEmpty(t, skipped)
	assert.Equal(t, SkipStillRunning, skipped[0])
}

func TestScheduleDestroyStopsTicks(t *testing.T) {
	l := newLoop(t)

	var got []any
	run(t, l, func() {
		r := FromSchedule(l, every(time.Millisecond), func(context.Context, time.Time) (any, error) {
			return "tick", nil
		}, DefaultScheduleConfig())
		r.OnData(func(chunk any) {
			got = append(got, chunk)
			r.Destroy(nil)
		})
	})

	assert.Equal(t, []any{"tick"}, got)
	_, refs := l.Pending()
	assert.Zero(t, refs)
}
