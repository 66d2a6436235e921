package analysis

import (
	"context"

	"github.com/RyanBlaney/sonido-forma/features"
	"github.com/RyanBlaney/sonido-forma/logging"
)

// Job is an analysis running in the background. Progress is delivered on
// Events, which is closed when the run finishes.
type Job struct {
	events chan ProgressEvent
	done   chan struct{}
	result *Result
	err    error
}

// Start runs the pipeline in a goroutine. The event channel is buffered for
// every stage, so a caller that never reads it does not stall the run.
func (a *Analyzer) Start(ctx context.Context, bundle *features.Bundle) *Job {
	job := &Job{
		events: make(chan ProgressEvent, len(Stages)),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(job.done)
		defer close(job.events)

		last := 0
		emit := func(ev ProgressEvent) {
			if ev.Percent <= last {
				return
			}
			last = ev.Percent
			select {
			case job.events <- ev:
			default:
				a.logger.Warn("Progress event dropped", logging.Fields{
					"stage": ev.Stage,
				})
			}
		}
		job.result, job.err = a.run(ctx, bundle, emit)
	}()

	return job
}

// Events streams stage completions with strictly increasing percentages
func (j *Job) Events() <-chan ProgressEvent {
	return j.events
}

// Done is closed when the run has finished
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the run finishes and returns its outcome
func (j *Job) Wait() (*Result, error) {
	<-j.done
	return j.result, j.err
}
