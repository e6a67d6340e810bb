package jobrun

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/specialistvlad/gridci/internal/nodeid"
)

var (
	// ErrTimedOut marks an instance or step whose deadline expired.
	ErrTimedOut = errors.New("timed out")
	// ErrInvalidTransition is returned for a lifecycle transition that is not
	// allowed from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// StepRun is the recorded outcome of one step of an instance.
type StepRun struct {
	Name       string     `json:"name"`
	Status     Status     `json:"status"`
	SkipReason SkipReason `json:"skip_reason,omitempty"`
	Attempts   int        `json:"attempts"`
	Log        string     `json:"log,omitempty"`
	Error      string     `json:"error,omitempty"`
	Started    time.Time  `json:"started,omitempty"`
	Finished   time.Time  `json:"finished,omitempty"`
}

// JobRun is one instance of a job definition. It is created at compile time
// and mutated only through its transition methods.
type JobRun struct {
	ID     nodeid.Address
	Matrix map[string]string
	Spec   Spec
	// Aggregator marks the synthetic merge-gate job.
	Aggregator bool

	mu       sync.Mutex
	status   Status
	reason   SkipReason
	err      error
	started  time.Time
	finished time.Time
	steps    []StepRun
}

// New creates a pending JobRun.
func New(id nodeid.Address, matrix map[string]string, spec Spec) *JobRun {
	return &JobRun{ID: id, Matrix: matrix, Spec: spec, status: Pending}
}

// Job returns the name of the job definition this run instantiates.
func (r *JobRun) Job() string {
	return r.ID.Job
}

// Status returns the current status.
func (r *JobRun) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// SkipReason returns why the run was skipped, if it was.
func (r *JobRun) SkipReason() SkipReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}

// Err returns the error that made the run fail, if any.
func (r *JobRun) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *JobRun) transition(from []Status, to Status) error {
	for _, s := range from {
		if r.status == s {
			r.status = to
			return nil
		}
	}
	return fmt.Errorf("%w for %s: %s -> %s", ErrInvalidTransition, r.ID, r.status, to)
}

// MarkReady moves a pending run to ready.
func (r *JobRun) MarkReady() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transition([]Status{Pending}, Ready)
}

// MarkRunning moves a ready run to running.
func (r *JobRun) MarkRunning(now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transition([]Status{Ready}, Running); err != nil {
		return err
	}
	r.started = now
	return nil
}

// Finish records the outcome of a running instance. The status must be one
// of Succeeded, Failed, TimedOut or Cancelled.
func (r *JobRun) Finish(status Status, err error, steps []StepRun, now time.Time) error {
	switch status {
	case Succeeded, Failed, TimedOut, Cancelled:
	default:
		return fmt.Errorf("%w for %s: cannot finish as %s", ErrInvalidTransition, r.ID, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if terr := r.transition([]Status{Running}, status); terr != nil {
		return terr
	}
	r.err = err
	r.steps = steps
	r.finished = now
	return nil
}

// Skip moves a run that has not started to skipped.
func (r *JobRun) Skip(reason SkipReason, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transition([]Status{Pending, Ready}, Skipped); err != nil {
		return err
	}
	r.reason = reason
	r.finished = now
	return nil
}

// Fail moves a run that has not started straight to failed, e.g. when its
// gate cannot be evaluated.
func (r *JobRun) Fail(err error, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if terr := r.transition([]Status{Pending, Ready}, Failed); terr != nil {
		return terr
	}
	r.err = err
	r.finished = now
	return nil
}

// Cancel moves any non-terminal run to cancelled. It reports whether the
// status changed.
func (r *JobRun) Cancel(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.IsTerminal() {
		return false
	}
	r.status = Cancelled
	r.finished = now
	return true
}

// Snapshot is a point-in-time copy of a JobRun, safe to serialize.
type Snapshot struct {
	ID         string            `json:"id"`
	Job        string            `json:"job"`
	Matrix     map[string]string `json:"matrix,omitempty"`
	Aggregator bool              `json:"aggregator,omitempty"`
	Status     Status            `json:"status"`
	SkipReason SkipReason        `json:"skip_reason,omitempty"`
	Error      string            `json:"error,omitempty"`
	Started    time.Time         `json:"started,omitempty"`
	Finished   time.Time         `json:"finished,omitempty"`
	Steps      []StepRun         `json:"steps,omitempty"`
}

// Snapshot returns a copy of the run's current state.
func (r *JobRun) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{
		ID:         r.ID.String(),
		Job:        r.ID.Job,
		Matrix:     maps.Clone(r.Matrix),
		Aggregator: r.Aggregator,
		Status:     r.status,
		SkipReason: r.reason,
		Started:    r.started,
		Finished:   r.finished,
		Steps:      append([]StepRun(nil), r.steps...),
	}
	if r.err != nil {
		s.Error = r.err.Error()
	}
	return s
}
