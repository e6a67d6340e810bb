package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/gate"
	"github.com/specialistvlad/gridci/internal/jobrun"
	"github.com/specialistvlad/gridci/internal/planner"
	"github.com/specialistvlad/gridci/internal/step"
	"github.com/specialistvlad/gridci/internal/trigger"
)

// Result is the terminal state of a run.
type Result struct {
	Run      trigger.Run
	Workflow string
	// Outcome is the aggregator's terminal status and the run's only
	// externally observed result.
	Outcome  jobrun.Status
	Jobs     []jobrun.Snapshot
	Started  time.Time
	Finished time.Time
}

// Succeeded reports whether the aggregator succeeded.
func (r *Result) Succeeded() bool {
	return r.Outcome == jobrun.Succeeded
}

// Scheduler runs plans.
type Scheduler struct {
	runner   Runner
	capacity Capacity
	recorder Recorder
	now      func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCapacity sets the execution-capacity collaborator.
func WithCapacity(c Capacity) Option {
	return func(s *Scheduler) { s.capacity = c }
}

// WithRecorder sets the transition observer.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a scheduler that dispatches instances to runner.
func New(runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:   runner,
		capacity: Unlimited{},
		recorder: Recorders(nil),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type completion struct {
	run     *jobrun.JobRun
	outcome step.Outcome
	started bool
}

// run holds the coordinator's bookkeeping for one plan. It is owned by the
// goroutine executing Scheduler.Run.
type run struct {
	*Scheduler
	ctx  context.Context
	rctx context.Context
	plan *planner.Plan

	remaining  map[string]int
	open       map[string]int
	dispatched map[*jobrun.JobRun]bool
	inflight   int
	settled    []string
	done       chan completion
}

// Run executes plan and blocks until every JobRun is terminal. Cancelling ctx
// cancels the run; the returned error is non-nil only for an unusable plan.
func (s *Scheduler) Run(ctx context.Context, plan *planner.Plan) (*Result, error) {
	if plan == nil || plan.Jobs[planner.AggregatorJob] == nil {
		return nil, errors.New("plan has no aggregator job")
	}
	logger := ctxlog.FromContext(ctx).With("run_id", plan.Run.ID)
	ctx = ctxlog.WithLogger(ctx, logger)

	r := &run{
		Scheduler:  s,
		ctx:        ctx,
		rctx:       context.WithoutCancel(ctx),
		plan:       plan,
		remaining:  make(map[string]int, len(plan.Order)),
		open:       make(map[string]int, len(plan.Order)),
		dispatched: make(map[*jobrun.JobRun]bool),
		done:       make(chan completion, len(plan.Runs())),
	}
	for _, name := range plan.Order {
		deps, err := plan.Graph.Dependencies(name)
		if err != nil {
			return nil, fmt.Errorf("plan graph is inconsistent: %w", err)
		}
		r.remaining[name] = len(deps)
		r.open[name] = len(plan.Jobs[name].Instances)
	}

	started := s.now()
	logger.Info("Run started.", "workflow", plan.Workflow, "jobs", len(plan.Order), "instances", len(plan.Runs()))
	s.recorder.RunStarted(r.rctx, plan)

	for _, name := range plan.Order {
		if r.remaining[name] == 0 {
			r.evaluate(name)
		}
	}
	r.drain()

	cancelled := ctx.Done()
	for r.inflight > 0 {
		select {
		case c := <-r.done:
			r.complete(c)
			r.drain()
		case <-cancelled:
			logger.Warn("Run cancelled; cancelling every instance that has not started.", "cause", context.Cause(ctx))
			cancelled = nil
			r.cancelPending()
			r.drain()
		}
	}
	if ctx.Err() != nil {
		r.cancelPending()
		r.drain()
	}

	res := &Result{
		Run:      plan.Run,
		Workflow: plan.Workflow,
		Outcome:  plan.Aggregator().Status(),
		Jobs:     plan.Snapshots(),
		Started:  started,
		Finished: s.now(),
	}
	logger.Info("Run finished.", "outcome", res.Outcome, "duration", res.Finished.Sub(res.Started))
	s.recorder.RunFinished(r.rctx, res)
	return res, nil
}

func (r *run) record(jr *jobrun.JobRun) {
	r.recorder.JobUpdated(r.rctx, r.plan.Run, jr.Snapshot())
}

// closed marks one instance of job terminal and settles the job once all of
// them are.
func (r *run) closed(job string) {
	r.open[job]--
	if r.open[job] == 0 {
		r.settled = append(r.settled, job)
	}
}

// drain evaluates every job whose last dependency has settled.
func (r *run) drain() {
	for len(r.settled) > 0 {
		name := r.settled[0]
		r.settled = r.settled[1:]
		ctxlog.FromContext(r.ctx).Debug("Job settled.", "job", name)
		dependents, _ := r.plan.Graph.Dependents(name)
		for _, dep := range dependents {
			r.remaining[dep]--
			if r.remaining[dep] == 0 {
				r.evaluate(dep)
			}
		}
	}
}

func (r *run) evaluate(name string) {
	logger := ctxlog.FromContext(r.ctx).With("job", name)
	job := r.plan.Jobs[name]
	now := r.now()

	if r.ctx.Err() != nil {
		for _, jr := range job.Instances {
			if jr.Cancel(now) {
				r.record(jr)
				r.closed(name)
			}
		}
		return
	}

	needs := make(map[string]gate.Result, len(job.Needs))
	var blocked []string
	for _, n := range job.Needs {
		runs := r.plan.Jobs[n.Job].Instances
		needs[n.Job] = aggregate(runs)
		if ok, why := satisfied(n, runs); !ok {
			blocked = append(blocked, fmt.Sprintf("%s: %s", n.Job, why))
		}
	}

	if len(blocked) > 0 {
		for _, jr := range job.Instances {
			var err error
			if job.Aggregator {
				err = jr.Fail(&UnsatisfiedError{Jobs: blocked}, now)
			} else {
				err = jr.Skip(jobrun.SkippedByUpstream, now)
			}
			r.transitioned(jr, err)
		}
		logger.Info("Needs not satisfied.", "blocked", blocked)
		return
	}

	if job.Aggregator {
		jr := job.Instances[0]
		err := errors.Join(jr.MarkReady(), jr.MarkRunning(now), jr.Finish(jobrun.Succeeded, nil, nil, now))
		r.transitioned(jr, err)
		return
	}

	for _, jr := range job.Instances {
		if err := jr.MarkReady(); err != nil {
			logger.Error("Instance was not pending.", "instance", jr.ID, "error", err)
			continue
		}
		r.record(jr)

		ok, err := gate.Eval(jr.Spec.If, gate.Context{Run: r.plan.Run, Matrix: jr.Matrix, Needs: needs})
		switch {
		case err != nil:
			logger.Warn("Gate could not be evaluated.", "instance", jr.ID, "error", err)
			r.transitioned(jr, jr.Fail(err, now))
		case !ok:
			logger.Info("Instance skipped by gate.", "instance", jr.ID)
			r.transitioned(jr, jr.Skip(jobrun.SkippedByGate, now))
		default:
			r.dispatch(jr, needs)
		}
	}
}

// transitioned records a synchronous terminal transition made by the
// coordinator.
func (r *run) transitioned(jr *jobrun.JobRun, err error) {
	if err != nil {
		ctxlog.FromContext(r.ctx).Error("Invalid transition.", "instance", jr.ID, "error", err)
		return
	}
	r.record(jr)
	r.closed(jr.Job())
}

func (r *run) dispatch(jr *jobrun.JobRun, needs map[string]gate.Result) {
	r.inflight++
	r.dispatched[jr] = true
	req := step.Request{
		Run:         r.plan.Run,
		WorkflowEnv: r.plan.Env,
		JobRun:      jr,
		Needs:       needs,

		ProtectedBranches: r.plan.ProtectedBranches,
	}
	go func() {
		if err := r.capacity.Acquire(r.ctx); err != nil {
			r.done <- completion{run: jr, outcome: step.Outcome{Status: jobrun.Cancelled, Err: err}}
			return
		}
		defer r.capacity.Release()

		if err := jr.MarkRunning(r.now()); err != nil {
			r.done <- completion{run: jr, outcome: step.Outcome{Status: jobrun.Failed, Err: err}}
			return
		}
		r.record(jr)
		out := r.runner.Execute(r.ctx, req)
		r.done <- completion{run: jr, outcome: out, started: true}
	}()
}

func (r *run) complete(c completion) {
	r.inflight--
	jr := c.run
	now := r.now()
	logger := ctxlog.FromContext(r.ctx).With("instance", jr.ID)

	if !c.started {
		var err error
		if c.outcome.Status == jobrun.Cancelled {
			jr.Cancel(now)
		} else {
			err = jr.Fail(c.outcome.Err, now)
		}
		r.transitioned(jr, err)
		return
	}

	status := c.outcome.Status
	switch status {
	case jobrun.Succeeded, jobrun.Failed, jobrun.TimedOut, jobrun.Cancelled:
	default:
		status = jobrun.Failed
	}
	if err := jr.Finish(status, c.outcome.Err, c.outcome.Steps, now); err != nil {
		logger.Error("Failed to record outcome.", "error", err)
		return
	}
	logger.Info("Instance finished.", "status", status)
	r.record(jr)
	r.closed(jr.Job())
}

// cancelPending cancels every instance that was never dispatched. Dispatched
// instances observe the cancelled context and report back.
func (r *run) cancelPending() {
	now := r.now()
	for _, name := range r.plan.Order {
		for _, jr := range r.plan.Jobs[name].Instances {
			if r.dispatched[jr] {
				continue
			}
			if jr.Cancel(now) {
				r.record(jr)
				r.closed(name)
			}
		}
	}
}
