package queue

import (
	"context"
	"sync"
)

// Pipeline wires a set of Stages and runs each on its own goroutine (the
// idiomatic-Go equivalent of the spec's "one OS thread per stage": every
// stage is still independently scheduled and shares no mutable state
// across the boundary, communicating only through Queues).
type Pipeline struct {
	stages []Stage
}

// NewPipeline constructs an empty composition root.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Add registers a stage to be started by Run.
func (p *Pipeline) Add(s Stage) {
	p.stages = append(p.stages, s)
}

// Run starts every stage and blocks until all of them have returned (i.e.
// until QUIT has propagated through the whole pipeline, or ctx is
// cancelled). The first non-nil error is returned; per spec, a fatal
// stage error is expected to have already exited the process via
// monitoring.Critical, so this return path mainly serves ctx cancellation
// and tests.
func (p *Pipeline) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make([]error, len(p.stages))
	for i, s := range p.stages {
		wg.Add(1)
		go func(i int, s Stage) {
			defer wg.Done()
			errs[i] = s.Run(ctx)
		}(i, s)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
