package pgstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/gridci/internal/jobrun"
	"github.com/specialistvlad/gridci/internal/postgres"
	"github.com/specialistvlad/gridci/internal/runstore"
	"github.com/specialistvlad/gridci/internal/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("GRIDCI_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("GRIDCI_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := postgres.Open(ctx, postgres.DefaultConfig(url))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := New(db)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestStore_Lifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	id := uuid.NewString()
	start := time.Now().UTC().Truncate(time.Millisecond)

	run := runstore.Run{ID: id, Workflow: "ci", Event: trigger.Push, Ref: "refs/heads/main", SHA: "abc", Repository: "acme/widget", Attempt: 1, Status: jobrun.Running, Started: start}
	require.NoError(t, s.SaveRun(ctx, run, []jobrun.Snapshot{
		{ID: "lint", Job: "lint", Status: jobrun.Pending},
		{ID: "_aggregate", Job: "_aggregate", Aggregator: true, Status: jobrun.Pending},
	}))
	require.NoError(t, s.SaveJob(ctx, id, jobrun.Snapshot{ID: "lint", Job: "lint", Status: jobrun.Failed, Error: "exit 1"}))
	require.NoError(t, s.FinishRun(ctx, id, jobrun.Failed, start.Add(time.Second)))

	got, err := s.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, jobrun.Failed, got.Status)
	assert.True(t, got.Started.Equal(start))

	jobs, err := s.Jobs(ctx, id)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "lint", jobs[0].ID)
	assert.Equal(t, "exit 1", jobs[0].Error)
	assert.True(t, jobs[1].Aggregator)

	runs, err := s.Runs(ctx, 1000)
	require.NoError(t, err)
	assert.NotEmpty(t, runs)
}

func TestStore_NotFound(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	_, err := s.Run(ctx, uuid.NewString())
	assert.ErrorIs(t, err, runstore.ErrNotFound)
	assert.ErrorIs(t, s.FinishRun(ctx, uuid.NewString(), jobrun.Failed, time.Now()), runstore.ErrNotFound)
}
