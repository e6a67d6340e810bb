// Package jobrun holds the runtime instantiation of a job definition and its
// guarded status lifecycle.
package jobrun

import "github.com/specialistvlad/gridci/internal/gate"

// Status is the lifecycle state of a JobRun or a StepRun.
type Status string

const (
	Pending   Status = "pending"
	Ready     Status = "ready"
	Running   Status = "running"
	Succeeded Status = "succeeded"
	Failed    Status = "failed"
	Skipped   Status = "skipped"
	Cancelled Status = "cancelled"
	TimedOut  Status = "timed_out"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case Succeeded, Failed, Skipped, Cancelled, TimedOut:
		return true
	}
	return false
}

// Blocks reports whether the status counts as a failure for propagation.
// TimedOut is treated identically to Failed.
func (s Status) Blocks() bool {
	switch s {
	case Failed, Cancelled, TimedOut:
		return true
	}
	return false
}

// Result maps a terminal status onto the gate-visible result.
func (s Status) Result() gate.Result {
	switch s {
	case Succeeded:
		return gate.Success
	case Skipped:
		return gate.Skipped
	case Cancelled:
		return gate.Cancelled
	}
	return gate.Failure
}

// SkipReason records why a JobRun or StepRun was skipped.
type SkipReason string

const (
	NotSkipped SkipReason = ""
	// SkippedByGate means the instance's own gate evaluated to false.
	SkippedByGate SkipReason = "gate"
	// SkippedByUpstream means a needs edge was not satisfied.
	SkippedByUpstream SkipReason = "upstream"
	// SkippedByStepFailure means an earlier step in the same instance failed.
	SkippedByStepFailure SkipReason = "step_failure"
)
