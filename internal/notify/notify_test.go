package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/gridci/internal/jobrun"
	"github.com/specialistvlad/gridci/internal/planner"
	"github.com/specialistvlad/gridci/internal/scheduler"
	"github.com/specialistvlad/gridci/internal/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	name    string
	payload any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []event
}

func (r *recordingEmitter) Emit(name string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{name: name, payload: payload})
}

func TestNotifier(t *testing.T) {
	ctx := context.Background()
	run, err := trigger.NewRun(trigger.Push, "refs/heads/main", "0123456789abcdef", "acme/widget", 1)
	require.NoError(t, err)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a, b := &recordingEmitter{}, &recordingEmitter{}
	n := New(Multi{a, b, Nop{}})
	n.now = func() time.Time { return at }

	n.RunStarted(ctx, &planner.Plan{Workflow: "ci", Run: run})
	n.JobUpdated(ctx, run, jobrun.Snapshot{ID: "build[1]", Job: "build", Matrix: map[string]string{"platform": "linux/arm64"}, Status: jobrun.Failed, Error: "exit 1"})
	n.RunFinished(ctx, &scheduler.Result{
		Run:      run,
		Workflow: "ci",
		Outcome:  jobrun.Failed,
		Jobs:     []jobrun.Snapshot{{Status: jobrun.Failed}, {Status: jobrun.Succeeded}, {Status: jobrun.Failed}},
		Finished: at,
	})

	assert.Equal(t, a.events, b.events)
	require.Len(t, a.events, 3)

	assert.Equal(t, RunStatusEvent, a.events[0].name)
	assert.Equal(t, jobrun.Running, a.events[0].payload.(RunStatus).Status)

	assert.Equal(t, JobStatusEvent, a.events[1].name)
	assert.Equal(t, JobStatus{
		RunID:  run.ID,
		Job:    "build",
		JobRun: "build[1]",
		Matrix: map[string]string{"platform": "linux/arm64"},
		Status: jobrun.Failed,
		Error:  "exit 1",
		Time:   at,
	}, a.events[1].payload)

	final := a.events[2].payload.(RunStatus)
	assert.Equal(t, jobrun.Failed, final.Status)
	assert.Equal(t, map[jobrun.Status]int{jobrun.Failed: 2, jobrun.Succeeded: 1}, final.Counts)
}

func TestNew_NilEmitter(t *testing.T) {
	n := New(nil)
	assert.NotPanics(t, func() {
		n.JobUpdated(context.Background(), trigger.Run{}, jobrun.Snapshot{})
	})
}

func TestToJSONObject(t *testing.T) {
	obj := toJSONObject(JobStatus{RunID: "r", JobRun: "lint", Status: jobrun.Succeeded})
	m, ok := obj.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "lint", m["job_run"])
	assert.Equal(t, "succeeded", m["status"])
	assert.NotContains(t, m, "matrix")
}

func TestDial_InvalidURL(t *testing.T) {
	_, err := Dial(context.Background(), SocketConfig{URL: "not a url"})
	assert.Error(t, err)
}
