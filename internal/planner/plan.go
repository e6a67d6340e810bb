package planner

import (
	"github.com/specialistvlad/gridci/internal/config"
	"github.com/specialistvlad/gridci/internal/graph"
	"github.com/specialistvlad/gridci/internal/jobrun"
	"github.com/specialistvlad/gridci/internal/nodeid"
	"github.com/specialistvlad/gridci/internal/trigger"
)

// AggregatorJob is the reserved name of the synthetic merge-gate job.
const AggregatorJob = "_aggregate"

// Plan is a compiled, ready-to-schedule workflow run.
type Plan struct {
	Workflow          string
	Run               trigger.Run
	Env               map[string]string
	ProtectedBranches []string
	Graph             *graph.Graph
	// Order lists job names, aggregator last, dependencies first.
	Order []string
	Jobs  map[string]*Job
}

// Job groups the instances of one job definition.
type Job struct {
	Name       string
	Needs      []config.Need
	Instances  []*jobrun.JobRun
	Aggregator bool
}

// Aggregator returns the merge-gate JobRun.
func (p *Plan) Aggregator() *jobrun.JobRun {
	return p.Jobs[AggregatorJob].Instances[0]
}

// Runs returns every JobRun in plan order.
func (p *Plan) Runs() []*jobrun.JobRun {
	var out []*jobrun.JobRun
	for _, name := range p.Order {
		out = append(out, p.Jobs[name].Instances...)
	}
	return out
}

// Lookup returns the JobRun with the given address.
func (p *Plan) Lookup(addr nodeid.Address) (*jobrun.JobRun, bool) {
	job, ok := p.Jobs[addr.Job]
	if !ok {
		return nil, false
	}
	for _, r := range job.Instances {
		if r.ID == addr {
			return r, true
		}
	}
	return nil, false
}

// Snapshots returns a point-in-time copy of every JobRun in plan order.
func (p *Plan) Snapshots() []jobrun.Snapshot {
	runs := p.Runs()
	out := make([]jobrun.Snapshot, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.Snapshot())
	}
	return out
}
