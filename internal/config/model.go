package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/gridci/internal/trigger"
)

// Workflow is the unified representation of one definition document.
type Workflow struct {
	Name string
	// On lists the trigger events the workflow accepts. Empty accepts all.
	On []trigger.Event
	// Env is the workflow-level environment layer.
	Env map[string]hcl.Expression
	// Lookups are named axis-value to derived-value tables, exposed to
	// templates as lookup.<name>[value].
	Lookups map[string]map[string]string
	// Required lists the jobs the aggregator depends on. Empty means every job.
	Required []string
	// ProtectedBranches gates floating tag promotion.
	ProtectedBranches []string
	// Jobs keeps declaration order.
	Jobs []*Job
}

// Job returns the job definition with the given name.
func (w *Workflow) Job(name string) (*Job, bool) {
	for _, j := range w.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return nil, false
}

// Accepts reports whether the workflow runs for the given event.
func (w *Workflow) Accepts(e trigger.Event) bool {
	if len(w.On) == 0 {
		return true
	}
	for _, on := range w.On {
		if on == e {
			return true
		}
	}
	return false
}

// Job is the format-agnostic representation of a `job` block.
type Job struct {
	Name    string
	RunsOn  string
	Needs   []Need
	Matrix  *Matrix
	If      hcl.Expression
	Env     map[string]hcl.Expression
	Secrets []string
	Timeout time.Duration
	Steps   []*Step
}

// NeedNames returns the names of the jobs this job depends on.
func (j *Job) NeedNames() []string {
	names := make([]string, 0, len(j.Needs))
	for _, n := range j.Needs {
		names = append(names, n.Job)
	}
	return names
}

// Need is a single `needs` edge.
type Need struct {
	Job       string
	Policy    JoinPolicy
	OnSkipped SkipPolicy
}

// Step is the format-agnostic representation of a `step` block. Exactly one of
// Run and Uses is set.
type Step struct {
	Name            string
	Run             hcl.Expression
	Uses            string
	With            map[string]hcl.Expression
	If              hcl.Expression
	Env             map[string]hcl.Expression
	Secrets         []string
	Timeout         time.Duration
	Retries         int
	ContinueOnError bool
}

// Matrix holds the ordered axes of a parametric job.
type Matrix struct {
	Axes []Axis
}

// Size returns the number of instances the matrix expands to.
func (m *Matrix) Size() int {
	if m == nil {
		return 1
	}
	n := 1
	for _, a := range m.Axes {
		n *= len(a.Values)
	}
	return n
}

// Axis is a named, ordered list of values.
type Axis struct {
	Name   string
	Values []string
}

// JoinPolicy derives a needs edge's satisfaction from the full instance set of
// the needed job.
type JoinPolicy int

const (
	// AllSucceeded requires every instance to succeed.
	AllSucceeded JoinPolicy = iota
	// AnySucceeded requires at least one instance to succeed.
	AnySucceeded
)

func (p JoinPolicy) String() string {
	if p == AnySucceeded {
		return "any_succeeded"
	}
	return "all_succeeded"
}

// ParseJoinPolicy parses a policy name. The empty string is AllSucceeded.
func ParseJoinPolicy(s string) (JoinPolicy, error) {
	switch strings.ToLower(s) {
	case "", "all_succeeded":
		return AllSucceeded, nil
	case "any_succeeded":
		return AnySucceeded, nil
	}
	return AllSucceeded, fmt.Errorf("unknown join policy %q", s)
}

// SkipPolicy decides whether a dependency skipped by its own gate satisfies
// the edge. A dependency skipped because of an upstream failure never does.
type SkipPolicy int

const (
	// SkipSatisfies treats gate-skipped instances as satisfying the edge.
	SkipSatisfies SkipPolicy = iota
	// SkipBlocks treats gate-skipped instances as not satisfying the edge.
	SkipBlocks
)

func (p SkipPolicy) String() string {
	if p == SkipBlocks {
		return "block"
	}
	return "satisfy"
}

// ParseSkipPolicy parses a skip policy name. The empty string is SkipSatisfies.
func ParseSkipPolicy(s string) (SkipPolicy, error) {
	switch strings.ToLower(s) {
	case "", "satisfy":
		return SkipSatisfies, nil
	case "block":
		return SkipBlocks, nil
	}
	return SkipSatisfies, fmt.Errorf("unknown skip policy %q", s)
}

// ParseTimeout parses an optional duration attribute.
func ParseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("timeout cannot be negative: %s", s)
	}
	return d, nil
}
