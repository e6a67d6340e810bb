// Package notify streams live run status to subscribers.
//
// A Notifier is a scheduler.Recorder that turns every JobRun transition into
// a `job_status` event and the run's start and outcome into `run_status`
// events. Events go to an Emitter; the production Emitter is a socket.io
// client connection.
package notify

import (
	"context"
	"time"

	"github.com/specialistvlad/gridci/internal/jobrun"
	"github.com/specialistvlad/gridci/internal/planner"
	"github.com/specialistvlad/gridci/internal/scheduler"
	"github.com/specialistvlad/gridci/internal/trigger"
)

// Event names.
const (
	JobStatusEvent = "job_status"
	RunStatusEvent = "run_status"
)

// Emitter publishes one event. Implementations must be safe for concurrent
// use and must not block on slow subscribers.
type Emitter interface {
	Emit(event string, payload any)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(string, any) {}

// Multi fans an event out to several emitters.
type Multi []Emitter

func (m Multi) Emit(event string, payload any) {
	for _, e := range m {
		e.Emit(event, payload)
	}
}

// JobStatus is the payload of a job_status event.
type JobStatus struct {
	RunID      string            `json:"run_id"`
	Job        string            `json:"job"`
	JobRun     string            `json:"job_run"`
	Matrix     map[string]string `json:"matrix,omitempty"`
	Status     jobrun.Status     `json:"status"`
	SkipReason jobrun.SkipReason `json:"skip_reason,omitempty"`
	Error      string            `json:"error,omitempty"`
	Time       time.Time         `json:"time"`
}

// RunStatus is the payload of a run_status event.
type RunStatus struct {
	RunID      string        `json:"run_id"`
	Workflow   string        `json:"workflow"`
	Event      trigger.Event `json:"event"`
	Ref        string        `json:"ref"`
	SHA        string        `json:"sha"`
	Repository string        `json:"repository"`
	Status     jobrun.Status `json:"status"`
	// Counts is the number of JobRuns per status, aggregator included.
	Counts map[jobrun.Status]int `json:"counts,omitempty"`
	Time   time.Time             `json:"time"`
}

// Notifier converts scheduler transitions into events.
type Notifier struct {
	emitter Emitter
	now     func() time.Time
}

var _ scheduler.Recorder = (*Notifier)(nil)

// New creates a notifier. A nil emitter means Nop.
func New(e Emitter) *Notifier {
	if e == nil {
		e = Nop{}
	}
	return &Notifier{emitter: e, now: time.Now}
}

func runStatus(run trigger.Run, workflow string, status jobrun.Status, jobs []jobrun.Snapshot, at time.Time) RunStatus {
	counts := make(map[jobrun.Status]int)
	for _, j := range jobs {
		counts[j.Status]++
	}
	return RunStatus{
		RunID:      run.ID,
		Workflow:   workflow,
		Event:      run.Event,
		Ref:        run.Ref,
		SHA:        run.SHA,
		Repository: run.Repository,
		Status:     status,
		Counts:     counts,
		Time:       at,
	}
}

func (n *Notifier) RunStarted(_ context.Context, plan *planner.Plan) {
	n.emitter.Emit(RunStatusEvent, runStatus(plan.Run, plan.Workflow, jobrun.Running, plan.Snapshots(), n.now()))
}

func (n *Notifier) JobUpdated(_ context.Context, run trigger.Run, job jobrun.Snapshot) {
	n.emitter.Emit(JobStatusEvent, JobStatus{
		RunID:      run.ID,
		Job:        job.Job,
		JobRun:     job.ID,
		Matrix:     job.Matrix,
		Status:     job.Status,
		SkipReason: job.SkipReason,
		Error:      job.Error,
		Time:       n.now(),
	})
}

func (n *Notifier) RunFinished(_ context.Context, res *scheduler.Result) {
	n.emitter.Emit(RunStatusEvent, runStatus(res.Run, res.Workflow, res.Outcome, res.Jobs, res.Finished))
}
