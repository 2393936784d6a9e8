package bridge

import "github.com/vnykmshr/gostream/pkg/scheduling/eventloop"

// handle counts references that keep the loop alive on behalf of a native
// resource. It is only touched on the loop.
type handle struct {
	loop     *eventloop.Loop
	upd      RefUpdater
	refs     int
	released bool
}

func newHandle(loop *eventloop.Loop, resource any) *handle {
	h := &handle{loop: loop}
	h.upd, _ = resource.(RefUpdater)
	return h
}

func (h *handle) ref() {
	if h.released {
		return
	}
	h.refs++
	if h.refs == 1 {
		h.loop.Ref()
		if h.upd != nil {
			h.upd.UpdateRef(true)
		}
	}
}

func (h *handle) unref() {
	if h.released || h.refs == 0 {
		return
	}
	h.refs--
	if h.refs == 0 {
		h.loop.Unref()
		if h.upd != nil {
			h.upd.UpdateRef(false)
		}
	}
}

// release drops every reference; later ref and unref calls are ignored.
func (h *handle) release() {
	if h.released {
		return
	}
	if h.refs > 0 {
		h.refs = 1
		h.unref()
	}
	h.released = true
}

func (h *handle) referenced() bool {
	return h.refs > 0
}
