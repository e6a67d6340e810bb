package jobrun

import (
	"errors"
	"testing"
	"time"

	"github.com/specialistvlad/gridci/internal/gate"
	"github.com/specialistvlad/gridci/internal/nodeid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusPredicates(t *testing.T) {
	testCases := []struct {
		status   Status
		terminal bool
		blocks   bool
		result   gate.Result
	}{
		{Pending, false, false, gate.Failure},
		{Ready, false, false, gate.Failure},
		{Running, false, false, gate.Failure},
		{Succeeded, true, false, gate.Success},
		{Failed, true, true, gate.Failure},
		{Skipped, true, false, gate.Skipped},
		{Cancelled, true, true, gate.Cancelled},
		{TimedOut, true, true, gate.Failure},
	}
	for _, tc := range testCases {
		t.Run(string(tc.status), func(t *testing.T) {
			assert.Equal(t, tc.terminal, tc.status.IsTerminal())
			assert.Equal(t, tc.blocks, tc.status.Blocks())
			if tc.terminal {
				assert.Equal(t, tc.result, tc.status.Result())
			}
		})
	}
}

func TestJobRun_HappyPath(t *testing.T) {
	now := time.Unix(1700000000, 0)
	r := New(nodeid.NewIndexed("build", 1), map[string]string{"platform": "arm64"}, Spec{})
	assert.Equal(t, "build", r.Job())
	assert.Equal(t, Pending, r.Status())

	require.NoError(t, r.MarkReady())
	require.NoError(t, r.MarkRunning(now))
	steps := []StepRun{{Name: "compile", Status: Succeeded, Attempts: 1}}
	require.NoError(t, r.Finish(Succeeded, nil, steps, now.Add(time.Minute)))

	snap := r.Snapshot()
	assert.Equal(t, "build[1]", snap.ID)
	assert.Equal(t, Succeeded, snap.Status)
	assert.Equal(t, now, snap.Started)
	assert.Equal(t, now.Add(time.Minute), snap.Finished)
	assert.Equal(t, steps, snap.Steps)
	assert.False(t, r.Cancel(now), "terminal runs cannot be cancelled")
}

func TestJobRun_InvalidTransitions(t *testing.T) {
	now := time.Now()
	r := New(nodeid.New("lint"), nil, Spec{})

	assert.ErrorIs(t, r.MarkRunning(now), ErrInvalidTransition)
	assert.ErrorIs(t, r.Finish(Succeeded, nil, nil, now), ErrInvalidTransition)

	require.NoError(t, r.MarkReady())
	require.NoError(t, r.MarkRunning(now))
	assert.ErrorIs(t, r.Skip(SkippedByGate, now), ErrInvalidTransition)
	assert.ErrorIs(t, r.Finish(Skipped, nil, nil, now), ErrInvalidTransition)
}

func TestJobRun_SkipFailCancel(t *testing.T) {
	now := time.Now()

	skipped := New(nodeid.New("deploy"), nil, Spec{})
	require.NoError(t, skipped.Skip(SkippedByUpstream, now))
	assert.Equal(t, SkippedByUpstream, skipped.SkipReason())

	failed := New(nodeid.New("deploy"), nil, Spec{})
	cause := errors.New("bad gate")
	require.NoError(t, failed.Fail(cause, now))
	assert.Equal(t, Failed, failed.Status())
	assert.Equal(t, cause, failed.Err())
	assert.Equal(t, "bad gate", failed.Snapshot().Error)

	cancelled := New(nodeid.New("deploy"), nil, Spec{})
	require.NoError(t, cancelled.MarkReady())
	require.NoError(t, cancelled.MarkRunning(now))
	assert.True(t, cancelled.Cancel(now))
	assert.Equal(t, Cancelled, cancelled.Status())
	assert.ErrorIs(t, cancelled.Finish(Succeeded, nil, nil, now), ErrInvalidTransition)
}
