package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/gridci/internal/actions"
	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/loader"
	"github.com/specialistvlad/gridci/internal/notify"
	"github.com/specialistvlad/gridci/internal/planner"
	"github.com/specialistvlad/gridci/internal/runstore"
	"github.com/specialistvlad/gridci/internal/scheduler"
	"github.com/specialistvlad/gridci/internal/secrets"
	"github.com/specialistvlad/gridci/internal/step"
	"github.com/specialistvlad/gridci/internal/trigger"
)

// Plan loads the definition and compiles it for run. Definition problems are
// reported as *config.DefinitionError.
func (a *App) Plan(ctx context.Context, run trigger.Run) (*planner.Plan, error) {
	plan, _, err := a.compile(a.Context(ctx), run)
	return plan, err
}

func (a *App) compile(ctx context.Context, run trigger.Run) (*planner.Plan, *actions.Registry, error) {
	ld, err := loader.ForPath(a.config.DefinitionPath)
	if err != nil {
		return nil, nil, err
	}
	wf, err := ld.Load(ctx, a.config.DefinitionPath)
	if err != nil {
		return nil, nil, err
	}
	ctxlog.FromContext(ctx).Debug("Definition loaded.", "workflow", wf.Name, "jobs", len(wf.Jobs))

	acts := a.actionsFor(run.ID)
	plan, err := planner.Compile(ctx, wf, run, planner.WithActions(acts))
	if err != nil {
		return nil, nil, err
	}
	return plan, acts, nil
}

// Run executes one workflow run to completion and returns its result. The
// returned error is non-nil only when the run could not start; a failed run
// is reported through the result's outcome.
func (a *App) Run(ctx context.Context, run trigger.Run) (*scheduler.Result, error) {
	logger := a.logger.With("run_id", run.ID)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("App.Run method started.", "ref", run.Ref, "sha", run.SHA)

	plan, acts, err := a.compile(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("failed to compile workflow: %w", err)
	}

	exec := &step.Executor{
		Broker:     secrets.NewBroker(a.secrets),
		Actions:    acts,
		Commands:   a.commands,
		ProcessEnv: step.ProcessEnv(a.config.SecretsPrefix),
		WorkDir:    a.config.WorkDir,
		Output:     a.outW,
	}

	recorders := scheduler.Recorders{runstore.NewRecorder(a.store), notify.New(a.emitter)}
	if a.archiver != nil {
		recorders = append(recorders, a.archiver.Recorder())
	}
	var capacity scheduler.Capacity = scheduler.Unlimited{}
	if a.config.Capacity > 0 {
		capacity = scheduler.NewBounded(int64(a.config.Capacity))
	}

	logger.Info("🚀 Starting workflow run.", "workflow", plan.Workflow, "job_runs", len(plan.Runs()))
	res, err := scheduler.New(exec, scheduler.WithCapacity(capacity), scheduler.WithRecorder(recorders)).Run(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w", err)
	}
	logger.Info("🏁 Workflow run finished.", "outcome", res.Outcome, "duration", res.Finished.Sub(res.Started))
	return res, nil
}
