package integration

import (
	"context"
	"iter"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/gostream/internal/testutil"
	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
	"github.com/vnykmshr/gostream/pkg/streaming/pipeline"
	"github.com/vnykmshr/gostream/pkg/streaming/sources"
	"github.com/vnykmshr/gostream/pkg/streaming/stream"
	"github.com/vnykmshr/gostream/pkg/streaming/transforms"
)

// every fires at a fixed interval below the one second cron resolution.
type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

// TestScheduledSourceThrottled feeds a fast schedule through a throttle and
// a limit and checks that the rate limit governs the pace.
func TestScheduledSourceThrottled(t *testing.T) {
	loop := eventloop.New()
	defer func() { _ = loop.Close() }()

	var produced atomic.Int32
	var got []any
	var runErr error
	start := time.Now()

	testutil.Run(t, loop, func() {
		cfg := sources.DefaultScheduleConfig()
		cfg.MaxRuns = 20
		src := sources.FromSchedule(loop, every(time.Millisecond), func(_ context.Context, _ time.Time) (any, error) {
			return int(produced.Add(1)), nil
		}, cfg)

		tc := transforms.DefaultThrottleConfig()
		tc.WritableObjectMode = true
		tc.Rate = 100
		tc.Burst = 2
		throttle, err := transforms.Throttle(loop, tc)
		require.NoError(t, err)

		collect := stream.DefaultWritableConfig()
		collect.ObjectMode = true
		collect.Write = func(_ *stream.Writable, chunk any, done *stream.Completion) {
			got = append(got, chunk)
			done.Done(nil)
		}

		err = pipeline.Run(loop, func(_ any, err error) { runErr = err },
			src, throttle, transforms.Limit(loop, 10), stream.NewWritable(loop, collect))
		require.NoError(t, err)
	})

	require.NoError(t, runErr)
	require.Len(t, got, 10)
	assert.Equal(t, 1, got[0])
	// 8 chunks beyond the burst at 100/s
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
	assert.EqualValues(t, 20, produced.Load())
}

// TestPipelineCancellation verifies that a canceled signal tears down every
// stage of a running pipeline.
func TestPipelineCancellation(t *testing.T) {
	loop := eventloop.New()
	defer func() { _ = loop.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runErr error
	var src *stream.Readable
	testutil.Run(t, loop, func() {
		src = sources.Generate(loop, func() int { return 1 }, stream.DefaultFromConfig())
		p := pipeline.NewWithConfig(loop, pipeline.Config{Name: "cancel", End: true}).
			AddStage(src).
			AddStage(transforms.Map(loop, func(n int) (int, error) { return n + 1, nil })).
			AddStage(pipeline.SinkFunc(func(ctx context.Context, in iter.Seq2[any, error]) (any, error) {
				for _, err := range in {
					if err != nil {
						return nil, err
					}
				}
				return nil, ctx.Err()
			})).
			SetSignal(ctx)
		err := p.Run(func(res pipeline.Result) { runErr = res.Error })
		require.NoError(t, err)
		loop.AfterFunc(20*time.Millisecond, cancel)
	})

	require.Error(t, runErr)
	assert.True(t, src.Destroyed())
}
