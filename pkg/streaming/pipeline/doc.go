/*
Package pipeline connects streams and stage functions into a chain with a
single completion callback and shared cancellation.

# Quick Start

	err := pipeline.Run(loop, func(value any, err error) {
		if err != nil {
			log.Printf("pipeline failed: %v", err)
		}
	}, source, gzip, file)

Adjacent streams are connected with Readable.Pipe, so backpressure is carried
end to end. The callback runs once, after every stage has settled.

# Stages

A stage is a stream or a function:

	pipeline.SourceFunc     first stage; returns an iter.Seq2[any, error]
	iter.Seq2[any, error]   first stage
	pipeline.TransformFunc  maps the previous stage's chunks to a new sequence
	pipeline.SinkFunc       last stage; its result is the pipeline value

Function stages run off the loop: the loop spawns the work and feeds results
back, so a stage function may block on I/O.

	sum := pipeline.SinkFunc(func(ctx context.Context, in iter.Seq2[any, error]) (any, error) {
		total := 0
		for v, err := range in {
			if err != nil {
				return nil, err
			}
			total += v.(int)
		}
		return total, nil
	})

Function stages run on their own goroutines, never on the loop's worker
pool, so a small pool cannot stall a pipeline.

# Failure

The first error from any stage fails the pipeline: every other stream stage is
destroyed with that error and the context given to function stages is
canceled. A premature close is replaced by a more specific error if one
arrives later.

# Builder

	p := pipeline.NewWithConfig(loop, pipeline.Config{Name: "ingest", End: true}).
		AddStage(src).
		AddStageFunc(parse).
		AddStage(dst).
		SetTimeout(30 * time.Second)

	err := p.Run(func(res pipeline.Result) {
		fmt.Println(res.Duration, res.Error)
	})

Execute runs the same pipeline from another goroutine and blocks.

# Compose

Compose turns a chain into one Duplex that can itself be used as a stage.
*/
package pipeline
