package matrix

import (
	"fmt"

	"github.com/specialistvlad/gridci/internal/config"
	"github.com/specialistvlad/gridci/internal/gate"
	"github.com/specialistvlad/gridci/internal/jobrun"
	"github.com/specialistvlad/gridci/internal/nodeid"
	"github.com/specialistvlad/gridci/internal/trigger"
)

// Instance is one element of a job's Cartesian product.
type Instance struct {
	// Index is nodeid.NoIndex for a job without a matrix.
	Index  int
	Values map[string]string
	Spec   jobrun.Spec
}

// Address returns the instance identifier within its job.
func (i Instance) Address(job string) nodeid.Address {
	return nodeid.NewIndexed(job, i.Index)
}

// Validate checks a matrix definition: at least one axis, unique non-empty
// axis names, and a non-empty list of unique values per axis.
func Validate(job string, m *config.Matrix) error {
	if m == nil {
		return nil
	}
	if len(m.Axes) == 0 {
		return config.Errorf(config.KindInvalidMatrix, job, "matrix declares no axes")
	}
	seen := make(map[string]bool, len(m.Axes))
	for _, a := range m.Axes {
		if a.Name == "" {
			return config.Errorf(config.KindInvalidMatrix, job, "matrix axis has no name")
		}
		if seen[a.Name] {
			return config.Errorf(config.KindInvalidMatrix, job, "duplicate matrix axis %q", a.Name)
		}
		seen[a.Name] = true
		if len(a.Values) == 0 {
			return config.Errorf(config.KindInvalidMatrix, job, "matrix axis %q has no values", a.Name)
		}
		values := make(map[string]bool, len(a.Values))
		for _, v := range a.Values {
			if values[v] {
				return config.Errorf(config.KindInvalidMatrix, job, "matrix axis %q repeats value %q", a.Name, v)
			}
			values[v] = true
		}
	}
	return nil
}

// Combinations returns the Cartesian product of the axes in axis order, the
// last axis varying fastest. A nil matrix yields one empty combination.
func Combinations(m *config.Matrix) []map[string]string {
	combos := []map[string]string{{}}
	if m == nil {
		return combos
	}
	for _, axis := range m.Axes {
		next := make([]map[string]string, 0, len(combos)*len(axis.Values))
		for _, c := range combos {
			for _, v := range axis.Values {
				combo := make(map[string]string, len(c)+1)
				for k, cv := range c {
					combo[k] = cv
				}
				combo[axis.Name] = v
				next = append(next, combo)
			}
		}
		combos = next
	}
	return combos
}

// Expand turns a job definition into its rendered instances.
func Expand(job *config.Job, lookups map[string]map[string]string, run trigger.Run) ([]Instance, error) {
	if err := Validate(job.Name, job.Matrix); err != nil {
		return nil, err
	}

	scope := gate.Scope{Needs: job.NeedNames()}
	if job.Matrix != nil {
		for _, a := range job.Matrix.Axes {
			scope.Axes = append(scope.Axes, a.Name)
		}
	}
	ifExpr := gate.Compile(job.If, scope)
	stepGates := make([]gate.Expr, len(job.Steps))
	for i, st := range job.Steps {
		stepGates[i] = gate.Compile(st.If, scope)
	}

	combos := Combinations(job.Matrix)
	instances := make([]Instance, 0, len(combos))
	for i, values := range combos {
		inst := Instance{Index: i, Values: values}
		if job.Matrix == nil {
			inst.Index = nodeid.NoIndex
			inst.Values = nil
		}
		subject := inst.Address(job.Name).String()
		ctx := Scope{Matrix: values, Lookups: lookups, Run: run}.EvalContext()

		env, err := RenderEnv(job.Env, ctx)
		if err != nil {
			return nil, config.Wrap(config.KindUnresolvedRef, subject, err)
		}
		inst.Spec = jobrun.Spec{
			RunsOn:  job.RunsOn,
			Env:     env,
			Secrets: job.Secrets,
			Timeout: job.Timeout,
			If:      ifExpr,
			Steps:   make([]jobrun.StepSpec, 0, len(job.Steps)),
		}

		for si, st := range job.Steps {
			stepSubject := fmt.Sprintf("%s step %q", subject, st.Name)
			spec := jobrun.StepSpec{
				Name:            st.Name,
				Uses:            st.Uses,
				If:              stepGates[si],
				Secrets:         st.Secrets,
				Timeout:         st.Timeout,
				Retries:         st.Retries,
				ContinueOnError: st.ContinueOnError,
			}
			if spec.Run, err = RenderString(st.Run, ctx); err != nil {
				return nil, config.Wrap(config.KindUnresolvedRef, stepSubject, err)
			}
			if spec.Env, err = RenderEnv(st.Env, ctx); err != nil {
				return nil, config.Wrap(config.KindUnresolvedRef, stepSubject, err)
			}
			if spec.With, err = RenderValues(st.With, ctx); err != nil {
				return nil, config.Wrap(config.KindUnresolvedRef, stepSubject, err)
			}
			inst.Spec.Steps = append(inst.Spec.Steps, spec)
		}
		instances = append(instances, inst)
	}
	return instances, nil
}
