package step

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/specialistvlad/gridci/internal/actions"
	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/gate"
	"github.com/specialistvlad/gridci/internal/jobrun"
	"github.com/specialistvlad/gridci/internal/secrets"
	"github.com/specialistvlad/gridci/internal/trigger"
)

// Failure is the StepFailure error. It fails only the owning instance.
type Failure struct {
	Step string
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("step %q failed: %v", f.Step, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Request is one instance to execute.
type Request struct {
	Run         trigger.Run
	WorkflowEnv map[string]string
	JobRun      *jobrun.JobRun
	// Needs holds the aggregated results of the instance's dependencies.
	Needs map[string]gate.Result

	ProtectedBranches []string
}

// Outcome is the result of executing an instance.
type Outcome struct {
	Status jobrun.Status
	Err    error
	Steps  []jobrun.StepRun
}

// Executor runs job instances.
type Executor struct {
	Broker   *secrets.Broker
	Actions  *actions.Registry
	Commands CommandRunner
	// ProcessEnv is the lowest-precedence environment layer.
	ProcessEnv map[string]string
	WorkDir    string
	// Output, when set, receives every redacted output line prefixed with
	// the instance and step.
	Output io.Writer
	Now    func() time.Time
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Execute runs every step of req.JobRun and reports the outcome. The JobRun
// itself is not mutated; the scheduler records the outcome.
func (e *Executor) Execute(ctx context.Context, req Request) Outcome {
	jr := req.JobRun
	spec := jr.Spec
	logger := ctxlog.FromContext(ctx).With("job_run", jr.ID.String())
	ctx = ctxlog.WithLogger(ctx, logger)

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	steps := make([]jobrun.StepRun, len(spec.Steps))
	for i, s := range spec.Steps {
		steps[i] = jobrun.StepRun{Name: s.Name, Status: jobrun.Pending}
	}

	jobSecrets, err := e.resolve(ctx, spec.Secrets)
	if err != nil {
		for i := range steps {
			skipStep(&steps[i], jobrun.SkippedByStepFailure)
		}
		logger.Warn("Job secrets unavailable; no step was started.", "error", err)
		return Outcome{Status: jobrun.Failed, Err: err, Steps: steps}
	}

	gctx := gate.Context{Run: req.Run, Matrix: jr.Matrix, Needs: req.Needs}
	var failure error
	failedStatus := jobrun.Failed

	for i, s := range spec.Steps {
		sr := &steps[i]
		if failure != nil {
			skipStep(sr, jobrun.SkippedByStepFailure)
			continue
		}
		if ctx.Err() != nil {
			failedStatus, failure = interrupted(ctx, s.Name)
			skipStep(sr, jobrun.SkippedByStepFailure)
			continue
		}

		ok, err := gate.Eval(s.If, gctx)
		if err != nil {
			sr.Status = jobrun.Failed
			sr.Error = err.Error()
			failure = &Failure{Step: s.Name, Err: err}
			continue
		}
		if !ok {
			logger.Info("Step skipped by gate.", "step", s.Name)
			skipStep(sr, jobrun.SkippedByGate)
			continue
		}

		status, err := e.runStep(ctx, req, s, jobSecrets, sr)
		if err == nil {
			continue
		}
		if s.ContinueOnError && ctx.Err() == nil {
			logger.Warn("Step failed; continuing.", "step", s.Name, "error", sr.Error)
			continue
		}
		failure = err
		failedStatus = status
	}

	if failure != nil {
		logger.Info("Job run failed.", "status", failedStatus, "error", failure)
		return Outcome{Status: failedStatus, Err: failure, Steps: steps}
	}
	return Outcome{Status: jobrun.Succeeded, Steps: steps}
}

func (e *Executor) resolve(ctx context.Context, names []string) (secrets.Set, error) {
	if len(names) == 0 {
		return secrets.Set{}, nil
	}
	if e.Broker == nil {
		return secrets.Set{}, &secrets.MissingError{Names: names}
	}
	return e.Broker.Resolve(ctx, names)
}

func (e *Executor) runStep(ctx context.Context, req Request, s jobrun.StepSpec, jobSecrets secrets.Set, sr *jobrun.StepRun) (jobrun.Status, error) {
	logger := ctxlog.FromContext(ctx).With("step", s.Name)
	ctx = ctxlog.WithLogger(ctx, logger)
	sr.Started = e.now()
	defer func() { sr.Finished = e.now() }()

	stepSecrets, err := e.resolve(ctx, s.Secrets)
	if err != nil {
		sr.Status = jobrun.Failed
		sr.Error = err.Error()
		return jobrun.Failed, &Failure{Step: s.Name, Err: err}
	}
	all := jobSecrets.Merge(stepSecrets)
	env := MergeEnv(e.ProcessEnv, req.WorkflowEnv, req.JobRun.Spec.Env, s.Env, all.Env())

	var buf bytes.Buffer
	var sink io.Writer = &buf
	var console *prefixWriter
	if e.Output != nil {
		console = &prefixWriter{w: e.Output, prefix: fmt.Sprintf("[%s/%s] ", req.JobRun.ID, s.Name)}
		sink = io.MultiWriter(&buf, console)
	}
	out := secrets.NewRedactor(sink, all.Values()...)

	attempts := 1 + s.Retries
	var runErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		sr.Attempts = attempt
		runErr = e.attempt(ctx, req, s, env, all, out)
		if runErr == nil || ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			logger.Warn("Step attempt failed; retrying.", "attempt", attempt, "error", out.String(runErr.Error()))
			fmt.Fprintf(out, "attempt %d failed: %v\n", attempt, runErr)
		}
	}
	_ = out.Flush()
	if console != nil {
		_ = console.Flush()
	}
	sr.Log = buf.String()

	if runErr == nil {
		sr.Status = jobrun.Succeeded
		return jobrun.Succeeded, nil
	}

	// Output may echo secrets through the error text, so only the masked
	// message survives; sentinel causes are re-attached.
	msg := out.String(runErr.Error())
	status := jobrun.Failed
	cause := errors.New(msg)
	switch {
	case errors.Is(runErr, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		status = jobrun.TimedOut
		cause = fmt.Errorf("%w: %s", jobrun.ErrTimedOut, msg)
	case errors.Is(ctx.Err(), context.Canceled):
		status = jobrun.Cancelled
		cause = fmt.Errorf("%w: %s", context.Canceled, msg)
	}
	sr.Status = status
	sr.Error = cause.Error()
	return status, &Failure{Step: s.Name, Err: cause}
}

func (e *Executor) attempt(ctx context.Context, req Request, s jobrun.StepSpec, env Env, set secrets.Set, out io.Writer) error {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	var err error
	if s.Uses != "" {
		err = e.runAction(ctx, req, s, env, set, out)
	} else {
		err = e.runCommand(ctx, s, env, out)
	}
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", context.DeadlineExceeded, s.Timeout)
	}
	return err
}

func (e *Executor) runCommand(ctx context.Context, s jobrun.StepSpec, env Env, out io.Writer) error {
	runner := e.Commands
	if runner == nil {
		runner = ShellRunner{}
	}
	return runner.RunCommand(ctx, Command{
		Script: s.Run,
		Env:    env.Environ(),
		Dir:    e.WorkDir,
		Stdout: out,
		Stderr: out,
	})
}

func (e *Executor) runAction(ctx context.Context, req Request, s jobrun.StepSpec, env Env, set secrets.Set, out io.Writer) error {
	if e.Actions == nil {
		return fmt.Errorf("%w %q", actions.ErrUnknownAction, s.Uses)
	}
	def, err := e.Actions.Lookup(s.Uses)
	if err != nil {
		return err
	}
	inputs, err := def.Bind(s.With)
	if err != nil {
		return err
	}
	return def.Handler(ctx, &actions.Invocation{
		Run:     req.Run,
		Job:     req.JobRun.ID,
		Step:    s.Name,
		Matrix:  req.JobRun.Matrix,
		Inputs:  inputs,
		Env:     env.Map(),
		Secrets: set,
		Stdout:  out,
		Stderr:  out,

		ProtectedBranches: req.ProtectedBranches,
	})
}

func skipStep(sr *jobrun.StepRun, reason jobrun.SkipReason) {
	sr.Status = jobrun.Skipped
	sr.SkipReason = reason
}

func interrupted(ctx context.Context, step string) (jobrun.Status, error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return jobrun.TimedOut, &Failure{Step: step, Err: jobrun.ErrTimedOut}
	}
	return jobrun.Cancelled, &Failure{Step: step, Err: ctx.Err()}
}
