package stream

import (
	"slices"

	"go.uber.org/zap"
)

type pipeOptions struct {
	end bool
}

// PipeOption configures Pipe.
type PipeOption func(*pipeOptions)

// WithEnd controls whether the destination is ended when the source ends.
// It defaults to true.
func WithEnd(end bool) PipeOption {
	return func(o *pipeOptions) { o.end = end }
}

type pipeRelation struct {
	dest    *Writable
	ondrain *Subscription
	subs    []*Subscription
	cleaned bool
}

// cleanup removes every listener the relation installed.
func (p *pipeRelation) cleanup(src *Readable) {
	if p.cleaned {
		return
	}
	p.cleaned = true
	for _, s := range p.subs {
		s.Off()
	}
	if p.ondrain != nil {
		p.ondrain.Off()
		if _, waiting := src.st.awaitDrain[p.dest]; waiting {
			src.pipeOnDrain(p.dest)
		}
	}
}

// Pipe forwards every chunk to dest, pausing while dest reports
// backpressure, and ends dest when the source ends. A source may pipe to
// several destinations; it then resumes only after all of them drained.
// It returns dest.
func (r *Readable) Pipe(dest WritableStream, opts ...PipeOption) WritableStream {
	o := pipeOptions{end: true}
	for _, opt := range opts {
		opt(&o)
	}

	w := dest.writable()
	st := &r.st
	rel := &pipeRelation{dest: w}
	st.pipes = append(st.pipes, rel)
	r.logger.Debug("pipe", zap.String("dest", w.name), zap.Bool("end", o.end))

	unpipe := func() { r.Unpipe(dest) }
	endFn := unpipe
	if o.end {
		endFn = func() { w.End(nil, nil) }
	}
	if st.endEmitted {
		r.loop.NextTick(endFn)
	} else {
		rel.subs = append(rel.subs, r.OnceEnd(endFn))
	}

	pause := func() {
		if !rel.cleaned {
			if slices.Contains(st.pipes, rel) {
				st.awaitDrain[w] = struct{}{}
			}
			r.logger.Debug("pipe backpressure", zap.String("dest", w.name))
			r.Pause()
		}
		if rel.ondrain == nil {
			rel.ondrain = w.OnDrain(func() { r.pipeOnDrain(w) })
		}
	}

	rel.subs = append(rel.subs, r.OnData(func(chunk any) {
		if !w.Write(chunk, nil) {
			pause()
		}
	}))

	var onClose, onFinish *Subscription
	onError := w.onError.add(func(err error) {
		unpipe()
		if w.onError.count() == 0 {
			w.logger.Warn("unhandled stream error", zap.Error(err))
		}
	}, true, true)
	onClose = w.OnceClose(func() {
		onFinish.Off()
		unpipe()
	})
	onFinish = w.OnceFinish(func() {
		onClose.Off()
		unpipe()
	})
	rel.subs = append(rel.subs, onError, onClose, onFinish,
		r.OnceClose(unpipe),
		r.OnceError(func(error) { unpipe() }),
	)

	w.onPipe.emit(r)

	if w.WritableNeedDrain() {
		pause()
	} else if st.flowing != FlowFlowing {
		r.Resume()
	}
	return dest
}

func (r *Readable) pipeOnDrain(w *Writable) {
	st := &r.st
	delete(st.awaitDrain, w)
	if len(st.awaitDrain) == 0 && r.onData.count() > 0 {
		r.logger.Debug("pipe drained", zap.String("dest", w.name))
		r.Resume()
	}
}

// Unpipe detaches dest, or every destination when dest is nil. A source
// left without destinations is paused.
func (r *Readable) Unpipe(dest WritableStream) {
	st := &r.st
	if len(st.pipes) == 0 {
		return
	}

	if dest == nil {
		rels := st.pipes
		st.pipes = nil
		r.Pause()
		for _, rel := range rels {
			r.detach(rel)
		}
		return
	}

	w := dest.writable()
	i := slices.IndexFunc(st.pipes, func(p *pipeRelation) bool { return p.dest == w })
	if i < 0 {
		return
	}
	rel := st.pipes[i]
	st.pipes = slices.Delete(st.pipes, i, i+1)
	if len(st.pipes) == 0 {
		r.Pause()
	}
	r.detach(rel)
}

func (r *Readable) detach(rel *pipeRelation) {
	r.logger.Debug("unpipe", zap.String("dest", rel.dest.name))
	rel.cleanup(r)
	rel.dest.onUnpipe.emit(r)
}

// Pipes returns the number of attached destinations.
func (r *Readable) Pipes() int {
	return len(r.st.pipes)
}
