package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/gridci/internal/jobrun"
	"github.com/specialistvlad/gridci/internal/runstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, runstore.Run{ID: "r1", Status: jobrun.Running, Started: start}, []jobrun.Snapshot{
		{ID: "lint", Status: jobrun.Pending},
		{ID: "build[0]", Status: jobrun.Pending},
		{ID: "_aggregate", Status: jobrun.Pending},
	}))
	require.NoError(t, s.SaveJob(ctx, "r1", jobrun.Snapshot{ID: "build[0]", Status: jobrun.Running}))
	require.NoError(t, s.FinishRun(ctx, "r1", jobrun.Succeeded, start.Add(time.Minute)))

	run, err := s.Run(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, jobrun.Succeeded, run.Status)
	assert.Equal(t, start.Add(time.Minute), run.Finished)

	jobs, err := s.Jobs(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "build[0]", jobs[1].ID)
	assert.Equal(t, jobrun.Running, jobs[1].Status)
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.Run(ctx, "missing")
	assert.ErrorIs(t, err, runstore.ErrNotFound)
	assert.ErrorIs(t, s.SaveJob(ctx, "missing", jobrun.Snapshot{ID: "x"}), runstore.ErrNotFound)
	assert.ErrorIs(t, s.FinishRun(ctx, "missing", jobrun.Failed, time.Now()), runstore.ErrNotFound)
	_, err = s.Jobs(ctx, "missing")
	assert.ErrorIs(t, err, runstore.ErrNotFound)
}

func TestStore_RunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new", "mid"} {
		offset := map[string]time.Duration{"old": 0, "mid": time.Hour, "new": 2 * time.Hour}[id]
		require.NoError(t, s.SaveRun(ctx, runstore.Run{ID: id, Attempt: i, Started: base.Add(offset)}, nil))
	}

	runs, err := s.Runs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "mid", runs[1].ID)
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.SaveRun(ctx, runstore.Run{ID: "r"}, nil))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.SaveJob(ctx, "r", jobrun.Snapshot{ID: string(rune('a' + i%26)), Status: jobrun.Succeeded})
		}(i)
	}
	wg.Wait()

	jobs, err := s.Jobs(ctx, "r")
	require.NoError(t, err)
	assert.Len(t, jobs, 26)
}
