package bridge

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"

	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
)

// Opener creates a Source for target.
type Opener func(target string) (Source, error)

// SinkOpener creates a Sink for target.
type SinkOpener func(target string) (Sink, error)

// Registry maps source and sink kinds to openers and tracks the readables
// it opened until they are destroyed. Create one per process and hand it to
// the code that opens native streams.
type Registry struct {
	mu      sync.Mutex
	sources map[string]Opener
	sinks   map[string]SinkOpener
	active  map[string]map[string]*NativeReadable
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]Opener),
		sinks:   make(map[string]SinkOpener),
		active:  make(map[string]map[string]*NativeReadable),
	}
}

// NewDefaultRegistry returns a registry with the "file" kind registered
// for both directions.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("file", func(target string) (Source, error) {
		return NewFileSource(target), nil
	})
	r.RegisterSink("file", func(target string) (Sink, error) {
		f, err := os.Create(target)
		if err != nil {
			return nil, err
		}
		return NewWriterSink(f), nil
	})
	return r
}

// Register binds kind to a source opener, replacing any previous one.
func (r *Registry) Register(kind string, open Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[kind] = open
}

// RegisterSink binds kind to a sink opener, replacing any previous one.
func (r *Registry) RegisterSink(kind string, open SinkOpener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[kind] = open
}

// Kinds returns the registered source kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, 0, len(r.sources))
	for k := range r.sources {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Open creates a NativeReadable of the given kind reading target. The
// readable counts as active until it is destroyed. Call on the loop.
func (r *Registry) Open(loop *eventloop.Loop, kind, target string, cfg ReadableConfig) (*NativeReadable, error) {
	r.mu.Lock()
	open, ok := r.sources[kind]
	r.mu.Unlock()
	if !ok {
		return nil, gserrors.NewOperationError("bridge", "open", fmt.Errorf("%w: unknown source kind %q", gserrors.ErrInvalidConfiguration, kind))
	}

	src, err := open(target)
	if err != nil {
		return nil, gserrors.NewOperationError("bridge", "open", err)
	}

	cfg.Kind = kind
	n := NewReadable(loop, src, cfg)
	id := uuid.NewString()
	r.mu.Lock()
	if r.active[kind] == nil {
		r.active[kind] = make(map[string]*NativeReadable)
	}
	r.active[kind][id] = n
	r.mu.Unlock()
	n.onDone = func() { r.forget(kind, id) }
	return n, nil
}

// Create creates a NativeWritable of the given kind writing target.
func (r *Registry) Create(loop *eventloop.Loop, kind, target string, cfg WritableConfig) (*NativeWritable, error) {
	r.mu.Lock()
	open, ok := r.sinks[kind]
	r.mu.Unlock()
	if !ok {
		return nil, gserrors.NewOperationError("bridge", "create", fmt.Errorf("%w: unknown sink kind %q", gserrors.ErrInvalidConfiguration, kind))
	}

	sink, err := open(target)
	if err != nil {
		return nil, gserrors.NewOperationError("bridge", "create", err)
	}
	cfg.Kind = kind
	return NewWritable(loop, sink, cfg), nil
}

// Active returns the number of open readables of kind.
func (r *Registry) Active(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active[kind])
}

func (r *Registry) forget(kind, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active[kind], id)
	if len(r.active[kind]) == 0 {
		delete(r.active, kind)
	}
}
