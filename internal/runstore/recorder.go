package runstore

import (
	"context"

	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/jobrun"
	"github.com/specialistvlad/gridci/internal/planner"
	"github.com/specialistvlad/gridci/internal/scheduler"
	"github.com/specialistvlad/gridci/internal/trigger"
)

// Recorder persists every scheduler transition into a Store. Store failures
// are logged and never affect the run.
type Recorder struct {
	store Store
}

var _ scheduler.Recorder = (*Recorder)(nil)

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) RunStarted(ctx context.Context, plan *planner.Plan) {
	run := Run{
		ID:         plan.Run.ID,
		Workflow:   plan.Workflow,
		Event:      plan.Run.Event,
		Ref:        plan.Run.Ref,
		SHA:        plan.Run.SHA,
		Repository: plan.Run.Repository,
		Attempt:    plan.Run.Attempt,
		Status:     jobrun.Running,
		Started:    plan.Run.CreatedAt,
	}
	if err := r.store.SaveRun(ctx, run, plan.Snapshots()); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to persist run.", "run_id", run.ID, "error", err)
	}
}

func (r *Recorder) JobUpdated(ctx context.Context, run trigger.Run, job jobrun.Snapshot) {
	if err := r.store.SaveJob(ctx, run.ID, job); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to persist job run.", "run_id", run.ID, "job_run", job.ID, "error", err)
	}
}

func (r *Recorder) RunFinished(ctx context.Context, res *scheduler.Result) {
	if err := r.store.FinishRun(ctx, res.Run.ID, res.Outcome, res.Finished); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to persist run outcome.", "run_id", res.Run.ID, "error", err)
	}
}
