// This file contains the logic for translating decoded HCL blocks into the
// format-agnostic definition model defined in the config package.

package hclload

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/gridci/internal/config"
	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/trigger"
	"github.com/zclconf/go-cty/cty"
)

func (l *Loader) translateWorkflow(w *workflowBlock, wf *config.Workflow) error {
	wf.Name = w.Name
	wf.Required = w.Required
	wf.ProtectedBranches = w.ProtectedBranches
	for _, on := range w.On {
		e, err := trigger.ParseEvent(on)
		if err != nil {
			return config.Wrap(config.KindInvalidTrigger, subject("workflow", w.Name), err)
		}
		wf.On = append(wf.On, e)
	}
	env, err := exprMap(w.Env)
	if err != nil {
		return config.Wrap(config.KindInvalidDoc, subject("workflow", w.Name, "env"), err)
	}
	wf.Env = env
	return nil
}

func (l *Loader) translateJob(ctx context.Context, j *jobBlock) (*config.Job, error) {
	logger := ctxlog.FromContext(ctx).With("job", j.Name)
	logger.Debug("Translating HCL job to internal config model.", "steps", len(j.Steps))

	subj := subject("job", j.Name)
	job := &config.Job{
		Name:    j.Name,
		RunsOn:  j.RunsOn,
		If:      optional(j.If),
		Secrets: j.Secrets,
	}

	for _, n := range j.Needs {
		job.Needs = append(job.Needs, config.Need{Job: n})
	}
	for _, n := range j.Need {
		policy, err := config.ParseJoinPolicy(n.Policy)
		if err != nil {
			return nil, config.Wrap(config.KindInvalidDoc, subj, err)
		}
		onSkipped, err := config.ParseSkipPolicy(n.OnSkipped)
		if err != nil {
			return nil, config.Wrap(config.KindInvalidDoc, subj, err)
		}
		job.Needs = append(job.Needs, config.Need{Job: n.Job, Policy: policy, OnSkipped: onSkipped})
	}

	var err error
	if job.Timeout, err = config.ParseTimeout(j.Timeout); err != nil {
		return nil, config.Wrap(config.KindInvalidDoc, subj, err)
	}
	if job.Env, err = exprMap(j.Env); err != nil {
		return nil, config.Wrap(config.KindInvalidDoc, subj+" env", err)
	}

	if j.Matrix != nil {
		job.Matrix = &config.Matrix{}
		for _, a := range j.Matrix.Axes {
			job.Matrix.Axes = append(job.Matrix.Axes, config.Axis{Name: a.Name, Values: a.Values})
		}
	}

	for _, s := range j.Steps {
		st, err := translateStep(subj, s)
		if err != nil {
			return nil, err
		}
		job.Steps = append(job.Steps, st)
	}
	return job, nil
}

func translateStep(jobSubject string, s *stepBlock) (*config.Step, error) {
	subj := fmt.Sprintf("%s step %q", jobSubject, s.Name)
	st := &config.Step{
		Name:            s.Name,
		Run:             optional(s.Run),
		Uses:            s.Uses,
		If:              optional(s.If),
		Secrets:         s.Secrets,
		Retries:         s.Retries,
		ContinueOnError: s.ContinueOnError,
	}
	var err error
	if st.Timeout, err = config.ParseTimeout(s.Timeout); err != nil {
		return nil, config.Wrap(config.KindInvalidDoc, subj, err)
	}
	if st.Env, err = exprMap(s.Env); err != nil {
		return nil, config.Wrap(config.KindInvalidDoc, subj+" env", err)
	}
	if st.With, err = exprMap(s.With); err != nil {
		return nil, config.Wrap(config.KindInvalidDoc, subj+" with", err)
	}
	return st, nil
}

// optional returns nil for an attribute that was not present in the source.
// The decoder populates omitted hcl.Expression fields with a zero-width
// placeholder, so a nil check alone is insufficient.
func optional(expr hcl.Expression) hcl.Expression {
	if expr == nil {
		return nil
	}
	if _, ok := expr.(hclsyntax.Expression); !ok {
		return nil
	}
	rng := expr.Range()
	if rng.End.Byte <= rng.Start.Byte {
		return nil
	}
	return expr
}

// exprMap splits an object constructor into per-key expressions so each value
// can be rendered later with instance-specific variables.
func exprMap(expr hcl.Expression) (map[string]hcl.Expression, error) {
	expr = optional(expr)
	if expr == nil {
		return nil, nil
	}
	pairs, diags := hcl.ExprMap(expr)
	if diags.HasErrors() {
		return nil, diags
	}
	out := make(map[string]hcl.Expression, len(pairs))
	for _, p := range pairs {
		k, diags := p.Key.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		if k.IsNull() || k.Type() != cty.String {
			return nil, fmt.Errorf("keys must be static strings (%s)", p.Key.Range())
		}
		key := k.AsString()
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("duplicate key %q", key)
		}
		out[key] = p.Value
	}
	return out, nil
}
