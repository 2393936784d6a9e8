package pipeline

import (
	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
	"github.com/vnykmshr/gostream/pkg/streaming/stream"
)

// Compose combines stages into a single Duplex. Chunks written to it enter
// the first stage and chunks read from it leave the last one. The first stage
// must be writable or a TransformFunc; the last readable or a TransformFunc.
// Destroying the Duplex destroys every stage, and a failing stage destroys
// the Duplex. It must be called on the loop goroutine.
func Compose(loop *eventloop.Loop, config Config, stages ...Stage) (*stream.Duplex, error) {
	if len(stages) > 0 {
		if _, ok := stages[0].(TransformFunc); ok {
			head := stream.NewPassThrough(loop, stream.ObjectTransformConfig())
			stages = append([]Stage{head}, stages...)
		}
	}
	if err := validate(stages, true, true); err != nil {
		return nil, gserrors.NewOperationError("pipeline", "compose", err)
	}
	if config.Name == "" {
		config.Name = "compose"
	}
	config.End = true

	var (
		d         *stream.Duplex
		settled   bool
		result    error
		onfinish  *stream.Completion
		onclose   *stream.Completion
		onrelease func()
	)

	r := newRun(loop, config, func(res Result) {
		settled = true
		result = res.Error
		if c := onclose; c != nil {
			onclose = nil
			c.Done(res.Error)
			return
		}
		if res.Error != nil {
			d.Destroy(res.Error)
		}
	})
	headStream, tailStream := r.build(stages, true, true)
	head := stream.AsWritable(headStream)
	tail := stream.AsReadable(tailStream)

	cfg := stream.DefaultDuplexConfig()
	cfg.Name = config.Name
	cfg.Logger = config.Logger
	cfg.Metrics = config.Metrics
	cfg.WritableObjectMode = head.WritableObjectMode()
	cfg.ReadableObjectMode = tail.ReadableObjectMode()

	cfg.Write = func(_ *stream.Duplex, chunk any, done *stream.Completion) {
		if head.Write(chunk, nil) {
			done.Done(nil)
			return
		}
		var sub *stream.Subscription
		sub = head.OnDrain(func() {
			sub.Off()
			done.Done(nil)
		})
		onrelease = sub.Off
	}

	cfg.Final = func(_ *stream.Duplex, done *stream.Completion) {
		onfinish = done
		head.End(nil, nil)
	}
	finishSide := head
	if w := stream.AsWritable(tailStream); w != nil {
		finishSide = w
	}
	finishSide.OnceFinish(func() {
		if c := onfinish; c != nil {
			onfinish = nil
			c.Done(nil)
		}
	})

	pump := func() {
		for {
			chunk := tail.Read()
			if chunk == nil || !d.Push(chunk) {
				return
			}
		}
	}
	cfg.Read = func(*stream.Duplex, int) { pump() }
	tail.OnReadable(pump)
	tail.OnceEnd(func() { d.Push(nil) })

	cfg.Destroy = func(err error, done *stream.Completion) {
		if onrelease != nil {
			onrelease()
		}
		onfinish = nil
		if settled {
			done.Done(gserrors.Aggregate(err, result))
			return
		}
		onclose = done
		if err == nil && d.ReadableEnded() && d.WritableFinished() {
			// Both sides are done; the stages settle on their own.
			return
		}
		if err == nil {
			err = gserrors.NewAbortError(nil)
		}
		r.settle(config.Name, err, false)
	}

	d = stream.NewDuplex(loop, cfg)
	r.arm()
	return d, nil
}
