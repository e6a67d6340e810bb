package planner

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/gridci/internal/actions"
	"github.com/specialistvlad/gridci/internal/config"
	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/gate"
	"github.com/specialistvlad/gridci/internal/graph"
	"github.com/specialistvlad/gridci/internal/jobrun"
	"github.com/specialistvlad/gridci/internal/matrix"
	"github.com/specialistvlad/gridci/internal/nodeid"
	"github.com/specialistvlad/gridci/internal/trigger"
	"github.com/zclconf/go-cty/cty"
)

// ActionResolver checks a reusable action reference and its rendered inputs.
type ActionResolver interface {
	Check(ref string, inputs map[string]cty.Value) error
}

// Option configures Compile.
type Option func(*options)

type options struct {
	actions ActionResolver
}

// WithActions makes Compile reject steps that use unknown actions or pass
// inputs the action does not accept.
func WithActions(r ActionResolver) Option {
	return func(o *options) { o.actions = r }
}

// Compile validates wf for run and expands it into a Plan.
func Compile(ctx context.Context, wf *config.Workflow, run trigger.Run, opts ...Option) (*Plan, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := ctxlog.FromContext(ctx).With("workflow", wf.Name, "run_id", run.ID)
	logger.Debug("Compiling workflow.", "jobs", len(wf.Jobs))

	if !wf.Accepts(run.Event) {
		return nil, config.Errorf(config.KindInvalidTrigger, "workflow "+wf.Name, "workflow does not run on %q events", run.Event)
	}
	if err := validateJobs(wf); err != nil {
		return nil, err
	}

	g, err := buildGraph(wf)
	if err != nil {
		return nil, err
	}
	order, err := g.TopologicalOrder()
	if err != nil {
		var cycle *graph.CycleError
		if errors.As(err, &cycle) {
			return nil, config.Wrap(config.KindCycle, cycle.Path[0], err)
		}
		return nil, config.Wrap(config.KindCycle, wf.Name, err)
	}

	env, err := matrix.RenderEnv(wf.Env, matrix.Scope{Lookups: wf.Lookups, Run: run}.EvalContext())
	if err != nil {
		return nil, config.Wrap(config.KindUnresolvedRef, "workflow env", err)
	}

	plan := &Plan{
		Workflow:          wf.Name,
		Run:               run,
		Env:               env,
		ProtectedBranches: wf.ProtectedBranches,
		Graph:             g,
		Jobs:              make(map[string]*Job, len(wf.Jobs)+1),
	}

	for _, name := range order {
		def, _ := wf.Job(name)
		instances, err := matrix.Expand(def, wf.Lookups, run)
		if err != nil {
			return nil, err
		}
		job := &Job{Name: name, Needs: def.Needs}
		for _, inst := range instances {
			if err := checkActions(o.actions, inst.Address(name), inst.Spec); err != nil {
				return nil, err
			}
			if invalid, ok := inst.Spec.If.(gate.Invalid); ok {
				logger.Warn("Gate is malformed; the job run will fail.", "instance", inst.Address(name).String(), "error", invalid.Err)
			}
			job.Instances = append(job.Instances, jobrun.New(inst.Address(name), inst.Values, inst.Spec))
		}
		plan.Jobs[name] = job
		plan.Order = append(plan.Order, name)
		logger.Debug("Expanded job.", "job", name, "instances", len(instances))
	}

	agg, err := aggregator(wf, g)
	if err != nil {
		return nil, err
	}
	plan.Jobs[AggregatorJob] = agg
	plan.Order = append(plan.Order, AggregatorJob)

	logger.Info("Workflow compiled.", "jobs", len(wf.Jobs), "job_runs", len(plan.Runs()))
	return plan, nil
}

func validateJobs(wf *config.Workflow) error {
	if len(wf.Jobs) == 0 {
		return config.Errorf(config.KindInvalidDoc, "workflow "+wf.Name, "workflow declares no jobs")
	}
	seen := make(map[string]bool, len(wf.Jobs))
	for _, job := range wf.Jobs {
		subj := "job " + job.Name
		if !nodeid.ValidName(job.Name) {
			return config.Errorf(config.KindInvalidDoc, subj, "invalid job name")
		}
		if job.Name == AggregatorJob {
			return config.Errorf(config.KindInvalidDoc, subj, "job name %q is reserved", AggregatorJob)
		}
		if seen[job.Name] {
			return config.Errorf(config.KindDuplicate, subj, "job declared more than once")
		}
		seen[job.Name] = true

		steps := make(map[string]bool, len(job.Steps))
		for _, st := range job.Steps {
			stepSubj := fmt.Sprintf("%s step %q", subj, st.Name)
			if steps[st.Name] {
				return config.Errorf(config.KindDuplicate, stepSubj, "step declared more than once")
			}
			steps[st.Name] = true
			if (st.Run == nil) == (st.Uses == "") {
				return config.Errorf(config.KindInvalidDoc, stepSubj, "a step must set exactly one of run and uses")
			}
			if st.Retries < 0 {
				return config.Errorf(config.KindInvalidDoc, stepSubj, "retries cannot be negative")
			}
		}
	}
	for _, name := range wf.Required {
		if !seen[name] {
			return config.Errorf(config.KindUnresolvedRef, "workflow "+wf.Name, "required job %q is not defined", name)
		}
	}
	return nil
}

func checkActions(resolver ActionResolver, addr nodeid.Address, spec jobrun.Spec) error {
	if resolver == nil {
		return nil
	}
	for _, st := range spec.Steps {
		if st.Uses == "" {
			continue
		}
		if err := resolver.Check(st.Uses, st.With); err != nil {
			subj := fmt.Sprintf("%s step %q", addr, st.Name)
			if errors.Is(err, actions.ErrUnknownAction) {
				return config.Wrap(config.KindUnresolvedRef, subj, err)
			}
			return config.Wrap(config.KindInvalidDoc, subj, err)
		}
	}
	return nil
}

func buildGraph(wf *config.Workflow) (*graph.Graph, error) {
	g := graph.New()
	for _, job := range wf.Jobs {
		g.AddNode(job.Name)
	}
	for _, job := range wf.Jobs {
		needed := make(map[string]bool, len(job.Needs))
		for _, n := range job.Needs {
			if needed[n.Job] {
				return nil, config.Errorf(config.KindDuplicate, "job "+job.Name, "job %q is needed more than once", n.Job)
			}
			needed[n.Job] = true
			if !g.Has(n.Job) {
				return nil, config.Errorf(config.KindUnresolvedRef, "job "+job.Name, "needs unknown job %q", n.Job)
			}
			if err := g.AddEdge(n.Job, job.Name); err != nil {
				return nil, config.Wrap(config.KindUnresolvedRef, "job "+job.Name, err)
			}
		}
	}
	return g, nil
}

func aggregator(wf *config.Workflow, g *graph.Graph) (*Job, error) {
	required := wf.Required
	if len(required) == 0 {
		required = g.Nodes()
	}
	g.AddNode(AggregatorJob)
	job := &Job{Name: AggregatorJob, Aggregator: true}
	for _, name := range required {
		if err := g.AddEdge(name, AggregatorJob); err != nil {
			return nil, config.Wrap(config.KindUnresolvedRef, AggregatorJob, err)
		}
		job.Needs = append(job.Needs, config.Need{Job: name})
	}
	run := jobrun.New(nodeid.New(AggregatorJob), nil, jobrun.Spec{})
	run.Aggregator = true
	job.Instances = []*jobrun.JobRun{run}
	return job, nil
}
