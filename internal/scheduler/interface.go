package scheduler

import (
	"context"

	"github.com/specialistvlad/gridci/internal/jobrun"
	"github.com/specialistvlad/gridci/internal/planner"
	"github.com/specialistvlad/gridci/internal/step"
	"github.com/specialistvlad/gridci/internal/trigger"
)

// Runner executes a single dispatched instance.
type Runner interface {
	Execute(ctx context.Context, req step.Request) step.Outcome
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, req step.Request) step.Outcome

func (f RunnerFunc) Execute(ctx context.Context, req step.Request) step.Outcome {
	return f(ctx, req)
}

// Recorder observes a run. Implementations must be safe for concurrent use;
// JobUpdated is called from dispatch goroutines as well as the coordinator.
// Recorders receive a context that is never cancelled with the run, so a
// cancelled run can still be persisted.
type Recorder interface {
	RunStarted(ctx context.Context, plan *planner.Plan)
	JobUpdated(ctx context.Context, run trigger.Run, job jobrun.Snapshot)
	RunFinished(ctx context.Context, result *Result)
}

// Recorders fans every call out to each recorder in order.
type Recorders []Recorder

func (rs Recorders) RunStarted(ctx context.Context, plan *planner.Plan) {
	for _, r := range rs {
		r.RunStarted(ctx, plan)
	}
}

func (rs Recorders) JobUpdated(ctx context.Context, run trigger.Run, job jobrun.Snapshot) {
	for _, r := range rs {
		r.JobUpdated(ctx, run, job)
	}
}

func (rs Recorders) RunFinished(ctx context.Context, result *Result) {
	for _, r := range rs {
		r.RunFinished(ctx, result)
	}
}
