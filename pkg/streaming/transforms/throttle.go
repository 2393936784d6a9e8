package transforms

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/vnykmshr/gostream/pkg/common/validation"
	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
	"github.com/vnykmshr/gostream/pkg/streaming/buffer"
	"github.com/vnykmshr/gostream/pkg/streaming/stream"
)

// ThrottleConfig configures Throttle.
type ThrottleConfig struct {
	stream.TransformConfig

	// Rate is the number of units let through per second: bytes in byte
	// mode, chunks in object mode.
	Rate rate.Limit

	// Burst is the number of units that may pass at once.
	// Default: Rate, at least 1
	Burst int

	// Shared, when set, books units on a limiter shared with other
	// processes instead of a local one. Rate and Burst are then ignored.
	Shared Reserver
}

// Reserver books n units and returns how long to wait before they may
// pass. Reserve is called off the loop and may block.
type Reserver interface {
	Reserve(ctx context.Context, n int) (time.Duration, error)
}

// DefaultThrottleConfig returns a byte-mode configuration with no limit.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		TransformConfig: stream.DefaultTransformConfig(),
		Rate:            rate.Inf,
	}
}

// Throttle forwards chunks unchanged, delaying them so that no more than
// Rate units pass per second. Delays run on loop timers, so a throttled
// chunk holds back the writer without blocking the loop.
func Throttle(loop *eventloop.Loop, cfg ThrottleConfig) (*stream.Transform, error) {
	if cfg.Shared == nil {
		if err := validation.ValidatePositiveFloat("transforms", "Rate", float64(cfg.Rate)); err != nil {
			return nil, err
		}
	}
	burst := cfg.Burst
	if burst <= 0 && cfg.Rate != rate.Inf {
		burst = max(int(cfg.Rate), 1)
	}
	limiter := rate.NewLimiter(cfg.Rate, burst)

	tc := cfg.TransformConfig
	if tc.Name == "" {
		tc.Name = "throttle"
	}
	objectMode := tc.WritableObjectMode
	tc.ReadableObjectMode = objectMode

	var stop func() bool
	pass := func(t *stream.Transform, chunk any, done *stream.Completion, delay time.Duration) {
		if delay <= 0 {
			t.Push(chunk)
			done.Done(nil)
			return
		}
		stop = loop.AfterFunc(delay, func() {
			stop = nil
			if t.Destroyed() {
				return
			}
			t.Push(chunk)
			done.Done(nil)
		})
	}
	tc.Transform = func(t *stream.Transform, chunk any, done *stream.Completion) {
		units := 1
		if !objectMode {
			units = buffer.ChunkSize(chunk)
		}
		if cfg.Shared == nil {
			pass(t, chunk, done, reserve(limiter, units, burst))
			return
		}
		loop.Spawn(func(ctx context.Context) func() {
			delay, err := cfg.Shared.Reserve(ctx, units)
			return func() {
				if t.Destroyed() {
					return
				}
				if err != nil {
					done.Done(err)
					return
				}
				pass(t, chunk, done, delay)
			}
		})
	}
	userDestroy := tc.Destroy
	tc.Destroy = func(err error, done *stream.Completion) {
		if stop != nil {
			stop()
			stop = nil
		}
		if userDestroy != nil {
			userDestroy(err, done)
			return
		}
		done.Done(err)
	}
	return stream.NewTransform(loop, tc), nil
}

// reserve books units on limiter in pieces no larger than burst and
// returns how long to wait before they may pass.
func reserve(limiter *rate.Limiter, units, burst int) time.Duration {
	if limiter.Limit() == rate.Inf {
		return 0
	}
	now := time.Now()
	var delay time.Duration
	for units > 0 {
		n := min(units, burst)
		units -= n
		delay = limiter.ReserveN(now, n).DelayFrom(now)
	}
	return delay
}
