package scheduler

import (
	"fmt"

	"github.com/specialistvlad/gridci/internal/config"
	"github.com/specialistvlad/gridci/internal/gate"
	"github.com/specialistvlad/gridci/internal/jobrun"
)

// satisfied reports whether a needs edge holds over the dependency's full
// instance set. Every run must be terminal. The string explains a failure.
func satisfied(need config.Need, runs []*jobrun.JobRun) (bool, string) {
	counts := make(map[jobrun.Status]int)
	gateSkipped := 0
	for _, r := range runs {
		st := r.Status()
		counts[st]++
		if st == jobrun.Skipped && r.SkipReason() == jobrun.SkippedByGate {
			gateSkipped++
		}
	}
	skipOK := need.OnSkipped == config.SkipSatisfies
	upstreamSkipped := counts[jobrun.Skipped] - gateSkipped

	switch need.Policy {
	case config.AnySucceeded:
		if counts[jobrun.Succeeded] > 0 {
			return true, ""
		}
		if skipOK && gateSkipped == len(runs) {
			return true, ""
		}
		return false, "no instance succeeded"
	default:
		for _, st := range []jobrun.Status{jobrun.Failed, jobrun.TimedOut, jobrun.Cancelled} {
			if n := counts[st]; n > 0 {
				return false, fmt.Sprintf("%d of %d %s", n, len(runs), st)
			}
		}
		if upstreamSkipped > 0 {
			return false, fmt.Sprintf("%d of %d skipped upstream", upstreamSkipped, len(runs))
		}
		if gateSkipped > 0 && !skipOK {
			return false, fmt.Sprintf("%d of %d skipped", gateSkipped, len(runs))
		}
		return true, ""
	}
}

// aggregate folds a job's instance set into the single result gates see.
func aggregate(runs []*jobrun.JobRun) gate.Result {
	skipped := 0
	cancelled := false
	for _, r := range runs {
		switch r.Status() {
		case jobrun.Failed, jobrun.TimedOut:
			return gate.Failure
		case jobrun.Cancelled:
			cancelled = true
		case jobrun.Skipped:
			skipped++
		}
	}
	if cancelled {
		return gate.Cancelled
	}
	if skipped == len(runs) {
		return gate.Skipped
	}
	return gate.Success
}

// UnsatisfiedError fails the aggregator when a required job did not succeed.
type UnsatisfiedError struct {
	Jobs []string
}

func (e *UnsatisfiedError) Error() string {
	return fmt.Sprintf("required jobs did not succeed: %v", e.Jobs)
}
