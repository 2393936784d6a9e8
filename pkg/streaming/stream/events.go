package stream

import "slices"

// Subscription is returned by every On* method. Off removes the listener.
type Subscription struct {
	off func()
}

// Off removes the listener. It is safe to call more than once.
func (s *Subscription) Off() {
	if s != nil && s.off != nil {
		s.off()
		s.off = nil
	}
}

type listener[T any] struct {
	fn      func(T)
	once    bool
	removed bool
}

// event is a typed listener list. Emission walks a snapshot, so listeners
// added during an emit are not called for it and listeners removed during
// it are skipped.
type event[T any] struct {
	listeners []*listener[T]
	onRemove  func()
}

func (e *event[T]) add(fn func(T), once, prepend bool) *Subscription {
	l := &listener[T]{fn: fn, once: once}
	if prepend {
		e.listeners = slices.Insert(e.listeners, 0, l)
	} else {
		e.listeners = append(e.listeners, l)
	}
	return &Subscription{off: func() { e.remove(l) }}
}

func (e *event[T]) remove(l *listener[T]) {
	if l.removed {
		return
	}
	l.removed = true
	if i := slices.Index(e.listeners, l); i >= 0 {
		e.listeners = slices.Delete(e.listeners, i, i+1)
	}
	if e.onRemove != nil {
		e.onRemove()
	}
}

func (e *event[T]) emit(v T) bool {
	if len(e.listeners) == 0 {
		return false
	}
	for _, l := range slices.Clone(e.listeners) {
		if l.removed {
			continue
		}
		if l.once {
			e.remove(l)
		}
		l.fn(v)
	}
	return true
}

func (e *event[T]) count() int {
	return len(e.listeners)
}

// signal is an event without a payload.
type signal = event[struct{}]

func on(e *signal, fn func(), once, prepend bool) *Subscription {
	return e.add(func(struct{}) { fn() }, once, prepend)
}

func fire(e *signal) bool {
	return e.emit(struct{}{})
}
