// Package runstore defines persistence for workflow runs and their JobRuns.
//
// The store is written through a scheduler.Recorder, so every transition the
// scheduler makes is persisted as it happens, and read by the status server.
package runstore

import (
	"context"
	"errors"
	"time"

	"github.com/specialistvlad/gridci/internal/jobrun"
	"github.com/specialistvlad/gridci/internal/trigger"
)

// ErrNotFound is returned for an unknown run.
var ErrNotFound = errors.New("run not found")

// Run is the persisted header of a workflow run.
type Run struct {
	ID         string        `json:"id"`
	Workflow   string        `json:"workflow"`
	Event      trigger.Event `json:"event"`
	Ref        string        `json:"ref"`
	SHA        string        `json:"sha"`
	Repository string        `json:"repository"`
	Attempt    int           `json:"attempt"`
	// Status is running until the run finishes, then the aggregator's status.
	Status   jobrun.Status `json:"status"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished,omitempty"`
}

// Store persists runs. Implementations must be safe for concurrent use.
type Store interface {
	// SaveRun creates or replaces a run together with its JobRuns, in order.
	SaveRun(ctx context.Context, run Run, jobs []jobrun.Snapshot) error
	// SaveJob replaces one JobRun's snapshot.
	SaveJob(ctx context.Context, runID string, job jobrun.Snapshot) error
	FinishRun(ctx context.Context, runID string, status jobrun.Status, finished time.Time) error

	Run(ctx context.Context, id string) (*Run, error)
	// Runs returns the most recently started runs first.
	Runs(ctx context.Context, limit int) ([]Run, error)
	// Jobs returns a run's JobRuns in plan order.
	Jobs(ctx context.Context, runID string) ([]jobrun.Snapshot, error)
}
