package runstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/gridci/internal/hclload"
	"github.com/specialistvlad/gridci/internal/jobrun"
	"github.com/specialistvlad/gridci/internal/planner"
	"github.com/specialistvlad/gridci/internal/runstore"
	"github.com/specialistvlad/gridci/internal/runstore/memstore"
	"github.com/specialistvlad/gridci/internal/scheduler"
	"github.com/specialistvlad/gridci/internal/step"
	"github.com/specialistvlad/gridci/internal/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const workflow = `
job "lint" {
  step "vet" { run = "go vet ./..." }
}

job "test" {
  needs = ["lint"]
  step "unit" { run = "go test ./..." }
}
`

func TestRecorder_PersistsRun(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ci.hcl")
	require.NoError(t, os.WriteFile(path, []byte(workflow), 0o644))
	wf, err := hclload.NewLoader().Load(ctx, path)
	require.NoError(t, err)
	run, err := trigger.NewRun(trigger.Push, "refs/heads/main", "0123456789abcdef", "acme/widget", 1)
	require.NoError(t, err)
	plan, err := planner.Compile(ctx, wf, run)
	require.NoError(t, err)

	store := memstore.New()
	runner := scheduler.RunnerFunc(func(_ context.Context, req step.Request) step.Outcome {
		if req.JobRun.Job() == "test" {
			return step.Outcome{Status: jobrun.Failed, Err: &step.Failure{Step: "unit", Err: assert.AnError}}
		}
		return step.Outcome{Status: jobrun.Succeeded}
	})
	res, err := scheduler.New(runner, scheduler.WithRecorder(runstore.NewRecorder(store))).Run(ctx, plan)
	require.NoError(t, err)
	assert.False(t, res.Succeeded())

	saved, err := store.Run(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, jobrun.Failed, saved.Status)
	assert.Equal(t, "acme/widget", saved.Repository)
	assert.False(t, saved.Finished.IsZero())

	jobs, err := store.Jobs(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	statuses := map[string]jobrun.Status{}
	for _, j := range jobs {
		statuses[j.ID] = j.Status
	}
	assert.Equal(t, map[string]jobrun.Status{
		"lint":                jobrun.Succeeded,
		"test":                jobrun.Failed,
		planner.AggregatorJob: jobrun.Failed,
	}, statuses)
	assert.Equal(t, planner.AggregatorJob, jobs[2].ID)
}
