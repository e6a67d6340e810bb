package app

import (
	"github.com/specialistvlad/gridci/internal/planner"
)

// PlanView is the printable form of a compiled plan.
type PlanView struct {
	Workflow string        `json:"workflow" yaml:"workflow"`
	RunID    string        `json:"run_id" yaml:"run_id"`
	Jobs     []PlanJobView `json:"jobs" yaml:"jobs"`
}

// PlanJobView is one JobRun of a PlanView.
type PlanJobView struct {
	ID         string            `json:"id" yaml:"id"`
	Needs      []NeedView        `json:"needs,omitempty" yaml:"needs,omitempty"`
	Matrix     map[string]string `json:"matrix,omitempty" yaml:"matrix,omitempty"`
	Steps      []string          `json:"steps,omitempty" yaml:"steps,omitempty"`
	Aggregator bool              `json:"aggregator,omitempty" yaml:"aggregator,omitempty"`
}

// NeedView is one needs edge.
type NeedView struct {
	Job       string `json:"job" yaml:"job"`
	Policy    string `json:"policy" yaml:"policy"`
	OnSkipped string `json:"on_skipped" yaml:"on_skipped"`
}

// NewPlanView lists the plan's JobRuns in plan order.
func NewPlanView(p *planner.Plan) PlanView {
	v := PlanView{Workflow: p.Workflow, RunID: p.Run.ID}
	for _, name := range p.Order {
		job := p.Jobs[name]
		var needs []NeedView
		for _, n := range job.Needs {
			needs = append(needs, NeedView{Job: n.Job, Policy: n.Policy.String(), OnSkipped: n.OnSkipped.String()})
		}
		for _, inst := range job.Instances {
			jv := PlanJobView{ID: inst.ID.String(), Needs: needs, Matrix: inst.Matrix, Aggregator: job.Aggregator}
			for _, s := range inst.Spec.Steps {
				jv.Steps = append(jv.Steps, s.Name)
			}
			v.Jobs = append(v.Jobs, jv)
		}
	}
	return v
}
