package sources

import (
	"context"

	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
	"github.com/vnykmshr/gostream/pkg/streaming/stream"
)

// FromSlice creates a Readable that pushes the items of slice one per read
// and then ends. cfg.Read is ignored; stream.DefaultFromConfig gives an
// object-mode stream.
func FromSlice[T any](loop *eventloop.Loop, slice []T, cfg stream.ReadableConfig) *stream.Readable {
	cfg = objectConfig(cfg, "slice")
	i := 0
	cfg.Read = func(r *stream.Readable, _ int) {
		if i == len(slice) {
			r.Push(nil)
			return
		}
		v := slice[i]
		i++
		r.Push(v)
	}
	return stream.NewReadable(loop, cfg)
}

// Generate creates an endless Readable pushing generator() on every read.
// End it with a limiting transform or by destroying it.
func Generate[T any](loop *eventloop.Loop, generator func() T, cfg stream.ReadableConfig) *stream.Readable {
	cfg = objectConfig(cfg, "generate")
	cfg.Read = func(r *stream.Readable, _ int) {
		r.Push(generator())
	}
	return stream.NewReadable(loop, cfg)
}

// FromChannel creates a Readable that receives from ch off the loop and
// ends when ch is closed. Destroying the stream stops the receive.
func FromChannel[T any](loop *eventloop.Loop, ch <-chan T, cfg stream.ReadableConfig) *stream.Readable {
	cfg = objectConfig(cfg, "channel")
	stop := make(chan struct{})
	var receiving bool

	cfg.Read = func(r *stream.Readable, _ int) {
		if receiving {
			return
		}
		receiving = true
		loop.Go(func(ctx context.Context) func() {
			var v T
			var ok, stopped bool
			select {
			case v, ok = <-ch:
			case <-stop:
				stopped = true
			case <-ctx.Done():
				stopped = true
			}
			return func() {
				receiving = false
				switch {
				case stopped || r.Destroyed():
				case !ok:
					r.Push(nil)
				default:
					r.Push(v)
				}
			}
		})
	}
	userDestroy := cfg.Destroy
	cfg.Destroy = func(err error, done *stream.Completion) {
		close(stop)
		if userDestroy != nil {
			userDestroy(err, done)
			return
		}
		done.Done(err)
	}
	return stream.NewReadable(loop, cfg)
}

func objectConfig(cfg stream.ReadableConfig, name string) stream.ReadableConfig {
	if cfg.Name == "" {
		cfg.Name = name
	}
	return cfg
}
