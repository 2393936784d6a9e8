package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
	"github.com/vnykmshr/gostream/pkg/streaming/stream"
)

// Producer computes the chunk for one tick. It runs off the loop. A nil
// value skips the tick.
type Producer func(ctx context.Context, tick time.Time) (any, error)

// ScheduleConfig configures a scheduled Readable.
type ScheduleConfig struct {
	stream.ReadableConfig

	// MaxRuns ends the stream after this many ticks (0 = unlimited)
	MaxRuns int

	// TimeZone specifies the timezone for cron expression evaluation
	TimeZone *time.Location

	// StopOnError destroys the stream with the first producer error.
	// Otherwise the error is reported to OnError and the tick is skipped.
	StopOnError bool

	// OnError is called when a producer fails
	OnError func(tick time.Time, err error)

	// OnSkip is called when a tick is skipped because the previous one is
	// still running or the buffer is full
	OnSkip func(tick time.Time, reason string)
}

// DefaultScheduleConfig returns an object-mode configuration.
func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{ReadableConfig: stream.DefaultFromConfig()}
}

// Skip reasons reported to OnSkip.
const (
	SkipStillRunning = "still running"
	SkipBufferFull   = "buffer full"
)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a cron expression with an optional seconds field,
// or a descriptor such as "@hourly" or "@every 5m".
func ParseSchedule(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("cron expression cannot be empty")
	}
	s, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression '%s': %w", expr, err)
	}
	return s, nil
}

// Schedule creates a Readable that calls produce on every tick of the cron
// expression expr and pushes the result. A pending tick keeps the loop
// alive until MaxRuns is reached or the stream is destroyed.
func Schedule(loop *eventloop.Loop, expr string, produce Producer, cfg ScheduleConfig) (*stream.Readable, error) {
	s, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	return FromSchedule(loop, s, produce, cfg), nil
}

// FromSchedule is Schedule with an already parsed schedule.
func FromSchedule(loop *eventloop.Loop, schedule cron.Schedule, produce Producer, cfg ScheduleConfig) *stream.Readable {
	rc := objectConfig(cfg.ReadableConfig, "schedule")
	tz := cfg.TimeZone
	if tz == nil {
		tz = time.Local
	}

	var (
		r       *stream.Readable
		stop    func() bool
		running bool
		runs    int
	)

	var arm func()
	skip := func(tick time.Time, reason string) {
		r.Logger().Debug("scheduled tick skipped", zap.Time("tick", tick), zap.String("reason", reason))
		if cfg.OnSkip != nil {
			cfg.OnSkip(tick, reason)
		}
	}
	settle := func(tick time.Time, v any, err error) {
		running = false
		if r.Destroyed() {
			return
		}
		runs++
		switch {
		case err != nil && cfg.StopOnError:
			r.Destroy(err)
			return
		case err != nil:
			r.Logger().Warn("scheduled producer failed", zap.Time("tick", tick), zap.Error(err))
			if cfg.OnError != nil {
				cfg.OnError(tick, err)
			}
		case v != nil:
			r.Push(v)
		}
		if cfg.MaxRuns > 0 && runs >= cfg.MaxRuns {
			stopTimer(&stop)
			r.Push(nil)
		}
	}
	fire := func(tick time.Time) {
		stop = nil
		if r.Destroyed() {
			return
		}
		arm()
		switch {
		case running:
			skip(tick, SkipStillRunning)
		case r.ReadableLength() >= r.ReadableHighWaterMark():
			skip(tick, SkipBufferFull)
		default:
			running = true
			loop.Spawn(func(ctx context.Context) func() {
				v, err := produce(ctx, tick)
				return func() { settle(tick, v, err) }
			})
		}
	}
	arm = func() {
		if cfg.MaxRuns > 0 && runs >= cfg.MaxRuns {
			return
		}
		now := time.Now().In(tz)
		next := schedule.Next(now)
		if next.IsZero() {
			return
		}
		stop = loop.AfterFunc(next.Sub(now), func() { fire(next) })
	}

	userConstruct, userDestroy := rc.Construct, rc.Destroy
	rc.Construct = func(done *stream.Completion) {
		arm()
		if userConstruct != nil {
			userConstruct(done)
			return
		}
		done.Done(nil)
	}
	rc.Read = func(*stream.Readable, int) {}
	rc.Destroy = func(err error, done *stream.Completion) {
		stopTimer(&stop)
		if userDestroy != nil {
			userDestroy(err, done)
			return
		}
		done.Done(err)
	}
	r = stream.NewReadable(loop, rc)
	return r
}

func stopTimer(stop *func() bool) {
	if *stop != nil {
		(*stop)()
		*stop = nil
	}
}
