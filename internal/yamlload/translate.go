package yamlload

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/gridci/internal/config"
	"github.com/specialistvlad/gridci/internal/trigger"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

func translate(path string, doc *document) (*config.Workflow, error) {
	wf := &config.Workflow{
		Name:              doc.Name,
		Lookups:           doc.Lookups,
		Required:          doc.Required,
		ProtectedBranches: doc.ProtectedBranches,
	}
	for _, on := range doc.On {
		e, err := trigger.ParseEvent(on)
		if err != nil {
			return nil, config.Wrap(config.KindInvalidTrigger, path, err)
		}
		wf.On = append(wf.On, e)
	}

	var err error
	if wf.Env, err = templates(path, doc.Env); err != nil {
		return nil, config.Wrap(config.KindInvalidDoc, "workflow env", err)
	}

	for _, nj := range doc.Jobs {
		job, err := translateJob(path, nj)
		if err != nil {
			return nil, err
		}
		wf.Jobs = append(wf.Jobs, job)
	}
	return wf, nil
}

func translateJob(path string, nj namedJob) (*config.Job, error) {
	subj := "job " + nj.Name
	j := nj.Job
	job := &config.Job{
		Name:    nj.Name,
		RunsOn:  j.RunsOn,
		Secrets: j.Secrets,
	}

	for _, n := range j.Needs {
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
	job.If = gateExpr(path, j.If)
	if job.Env, err = templates(path, j.Env); err != nil {
		return nil, config.Wrap(config.KindInvalidDoc, subj+" env", err)
	}
	if job.Timeout, err = timeout(j.Timeout, j.TimeoutMinutes); err != nil {
		return nil, config.Wrap(config.KindInvalidDoc, subj, err)
	}

	if len(j.Strategy.Matrix) > 0 {
		job.Matrix = &config.Matrix{}
		for _, a := range j.Strategy.Matrix {
			job.Matrix.Axes = append(job.Matrix.Axes, config.Axis{Name: a.Name, Values: a.Values})
		}
	}

	for i, s := range j.Steps {
		if s.Name == "" {
			s.Name = fmt.Sprintf("step-%d", i+1)
		}
		st, err := translateStep(path, subj, s)
		if err != nil {
			return nil, err
		}
		job.Steps = append(job.Steps, st)
	}
	return job, nil
}

func translateStep(path, jobSubject string, s stepDoc) (*config.Step, error) {
	subj := fmt.Sprintf("%s step %q", jobSubject, s.Name)
	st := &config.Step{
		Name:            s.Name,
		Uses:            s.Uses,
		Secrets:         s.Secrets,
		Retries:         s.Retries,
		ContinueOnError: s.ContinueOnError,
	}

	var err error
	if s.Run != "" {
		if st.Run, err = template(path, s.Run); err != nil {
			return nil, config.Wrap(config.KindInvalidDoc, subj, err)
		}
	}
	st.If = gateExpr(path, s.If)
	if st.Env, err = templates(path, s.Env); err != nil {
		return nil, config.Wrap(config.KindInvalidDoc, subj+" env", err)
	}
	if st.Timeout, err = timeout(s.Timeout, s.TimeoutMinutes); err != nil {
		return nil, config.Wrap(config.KindInvalidDoc, subj, err)
	}
	if len(s.With) > 0 {
		st.With = make(map[string]hcl.Expression, len(s.With))
		for k, node := range s.With {
			if st.With[k], err = inputExpr(path, &node); err != nil {
				return nil, config.Wrap(config.KindInvalidDoc, fmt.Sprintf("%s input %q", subj, k), err)
			}
		}
	}
	return st, nil
}

func template(path, src string) (hcl.Expression, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(src), path, hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return nil, diags
	}
	return expr, nil
}

func templates(path string, env map[string]string) (map[string]hcl.Expression, error) {
	if len(env) == 0 {
		return nil, nil
	}
	out := make(map[string]hcl.Expression, len(env))
	for k, v := range env {
		expr, err := template(path, v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = expr
	}
	return out, nil
}

// gateExpr parses a gate. A gate that does not parse is kept as an
// expression that reports the parse error, so it fails only its own job or
// step when evaluated.
func gateExpr(path, src string) hcl.Expression {
	src = strings.TrimSpace(src)
	if strings.HasPrefix(src, "${{") && strings.HasSuffix(src, "}}") {
		src = strings.TrimSpace(src[3 : len(src)-2])
	}
	if src == "" {
		return nil
	}
	expr, diags := hclsyntax.ParseExpression([]byte(src), path, hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return brokenGate{path: path, diags: diags}
	}
	return expr
}

type brokenGate struct {
	path  string
	diags hcl.Diagnostics
}

func (b brokenGate) Value(*hcl.EvalContext) (cty.Value, hcl.Diagnostics) {
	return cty.DynamicVal, b.diags
}

func (b brokenGate) Variables() []hcl.Traversal { return nil }
func (b brokenGate) Range() hcl.Range           { return hcl.Range{Filename: b.path} }
func (b brokenGate) StartRange() hcl.Range      { return b.Range() }

// inputExpr keeps the YAML scalar type of an action input: strings become
// templates, booleans and numbers become typed constants.
func inputExpr(path string, node *yaml.Node) (hcl.Expression, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Tag {
		case "!!bool":
			var b bool
			if err := node.Decode(&b); err != nil {
				return nil, err
			}
			return hcl.StaticExpr(cty.BoolVal(b), hcl.Range{Filename: path}), nil
		case "!!int", "!!float":
			n, err := cty.ParseNumberVal(node.Value)
			if err != nil {
				return nil, err
			}
			return hcl.StaticExpr(n, hcl.Range{Filename: path}), nil
		case "!!null":
			return hcl.StaticExpr(cty.NullVal(cty.String), hcl.Range{Filename: path}), nil
		}
		return template(path, node.Value)
	case yaml.SequenceNode:
		items := make([]cty.Value, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: list inputs may only contain scalars", item.Line)
			}
			items = append(items, cty.StringVal(item.Value))
		}
		if len(items) == 0 {
			return hcl.StaticExpr(cty.ListValEmpty(cty.String), hcl.Range{Filename: path}), nil
		}
		return hcl.StaticExpr(cty.ListVal(items), hcl.Range{Filename: path}), nil
	}
	return nil, fmt.Errorf("line %d: unsupported input value", node.Line)
}

func timeout(s string, minutes int) (time.Duration, error) {
	if s != "" {
		return config.ParseTimeout(s)
	}
	return time.Duration(minutes) * time.Minute, nil
}
