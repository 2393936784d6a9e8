package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
	"github.com/vnykmshr/gostream/pkg/metrics"
	"github.com/vnykmshr/gostream/pkg/scheduling/eventloop"
	"github.com/vnykmshr/gostream/pkg/streaming/stream"
)

// Pipeline connects a chain of stages. Each Pipeline runs once.
type Pipeline interface {
	// Run starts the pipeline on the loop goroutine. done is called once,
	// on a later tick, after every stage has settled. An invalid chain of
	// stages is reported immediately and nothing is started.
	Run(done func(Result)) error

	// Execute runs the pipeline from another goroutine and blocks until it
	// completes or ctx is done. ctx also aborts the pipeline.
	Execute(ctx context.Context) (*Result, error)

	// AddStage appends a stage.
	AddStage(stage Stage) Pipeline

	// AddStageFunc appends a TransformFunc stage.
	AddStageFunc(fn TransformFunc) Pipeline

	// SetSignal aborts the pipeline once ctx is done.
	SetSignal(ctx context.Context) Pipeline

	// SetTimeout aborts the pipeline after d.
	SetTimeout(d time.Duration) Pipeline

	// SetEnd controls whether the last stream stage is ended.
	SetEnd(end bool) Pipeline

	// GetStages returns the stages added so far.
	GetStages() []Stage
}

// Result is the outcome of a pipeline run.
type Result struct {
	// Value is the result of a final SinkFunc, if any.
	Value any

	// Error is the first error raised by any stage.
	Error error

	// Stage names the stage that raised Error.
	Stage string

	Duration  time.Duration
	StartTime time.Time
	EndTime   time.Time
}

// Config holds pipeline configuration options.
type Config struct {
	// Name labels the pipeline in logs and metrics.
	Name string

	// Signal aborts the pipeline once it is done.
	Signal context.Context

	// Timeout aborts the pipeline after this long. Zero means no timeout.
	Timeout time.Duration

	// End ends the last stream stage once its source ends. When false the
	// last stage stays open and the pipeline completes when the stage
	// before it ends.
	End bool

	// OnError is called with the first error and the stage that raised it.
	OnError func(stageName string, err error)

	Logger  *zap.Logger
	Metrics *metrics.Registry
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{Name: "pipeline", End: true}
}

type pipeline struct {
	loop    *eventloop.Loop
	stages  []Stage
	config  Config
	started bool
	mu      sync.Mutex
}

// New creates an empty pipeline bound to loop.
func New(loop *eventloop.Loop) Pipeline {
	return NewWithConfig(loop, DefaultConfig())
}

// NewWithConfig creates an empty pipeline with the specified configuration.
func NewWithConfig(loop *eventloop.Loop, config Config) Pipeline {
	if config.Name == "" {
		config.Name = "pipeline"
	}
	return &pipeline{loop: loop, config: config}
}

// Run connects stages and calls done once with the first error, or with the
// value of a final SinkFunc. It must be called on the loop goroutine.
func Run(loop *eventloop.Loop, done func(value any, err error), stages ...Stage) error {
	p := &pipeline{loop: loop, stages: stages, config: DefaultConfig()}
	return p.Run(func(res Result) { done(res.Value, res.Error) })
}

func (p *pipeline) Run(done func(Result)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return gserrors.NewOperationError("pipeline", "run", gserrors.ErrAlreadyStarted)
	}
	if err := validate(p.stages, false, false); err != nil {
		return gserrors.NewOperationError("pipeline", "run", err)
	}
	p.started = true

	r := newRun(p.loop, p.config, done)
	r.build(p.stages, false, false)
	r.arm()
	return nil
}

func (p *pipeline) Execute(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	p.config.Signal = ctx
	p.mu.Unlock()

	results := make(chan Result, 1)
	p.loop.Ref()
	p.loop.NextTick(func() {
		defer p.loop.Unref()
		if err := p.Run(func(res Result) { results <- res }); err != nil {
			results <- Result{Error: err}
		}
	})

	select {
	case res := <-results:
		return &res, res.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func validate(stages []Stage, openHead, openTail bool) error {
	need := 2
	if openHead || openTail {
		need = 1
	}
	if len(stages) < need {
		return fmt.Errorf("need at least %d stages, got %d: %w", need, len(stages), stream.ErrMissingArgs)
	}
	for i, s := range stages {
		pos := position{
			index:    i,
			first:    i == 0,
			last:     i == len(stages)-1,
			openHead: openHead,
			openTail: openTail,
		}
		if err := check(s, pos); err != nil {
			return err
		}
	}
	return nil
}

func (p *pipeline) AddStage(stage Stage) Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stages = append(p.stages, stage)
	return p
}

func (p *pipeline) AddStageFunc(fn TransformFunc) Pipeline {
	return p.AddStage(fn)
}

func (p *pipeline) SetSignal(ctx context.Context) Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.Signal = ctx
	return p
}

func (p *pipeline) SetTimeout(d time.Duration) Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.Timeout = d
	return p
}

func (p *pipeline) SetEnd(end bool) Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.End = end
	return p
}

func (p *pipeline) GetStages() []Stage {
	p.mu.Lock()
	defer p.mu.Unlock()

	stages := make([]Stage, len(p.stages))
	copy(stages, p.stages)
	return stages
}
