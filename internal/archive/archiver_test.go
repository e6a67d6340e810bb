package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/specialistvlad/gridci/internal/jobrun"
	"github.com/specialistvlad/gridci/internal/scheduler"
	"github.com/specialistvlad/gridci/internal/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	objects map[string]string
	types   map[string]string
	err     error
}

func (m *memStore) Put(_ context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	if m.err != nil {
		return m.err
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(b)) != size {
		return errors.New("size mismatch")
	}
	if m.objects == nil {
		m.objects = map[string]string{}
		m.types = map[string]string{}
	}
	m.objects[bucket+"/"+key] = string(b)
	m.types[bucket+"/"+key] = contentType
	return nil
}

func result() *scheduler.Result {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &scheduler.Result{
		Run:      trigger.Run{ID: "run-1", Event: trigger.Push, Ref: "refs/heads/main", SHA: "abc"},
		Workflow: "ci",
		Outcome:  jobrun.Failed,
		Started:  start,
		Finished: start.Add(time.Minute),
		Jobs: []jobrun.Snapshot{
			{ID: "build[1]", Job: "build", Status: jobrun.Failed, Steps: []jobrun.StepRun{
				{Name: "compile", Status: jobrun.Succeeded, Log: "ok\n"},
				{Name: "push image", Status: jobrun.Failed, Log: "denied\n"},
				{Name: "notify", Status: jobrun.Skipped},
			}},
		},
	}
}

func TestArchive(t *testing.T) {
	store := &memStore{}
	res := result()
	require.NoError(t, NewArchiver(store, "ci-runs", "/archive/").Archive(context.Background(), res))

	assert.Equal(t, "ok\n", store.objects["ci-runs/archive/run-1/build_1/01-compile.log"])
	assert.Equal(t, "denied\n", store.objects["ci-runs/archive/run-1/build_1/02-push_image.log"])
	assert.Len(t, store.objects, 3)
	assert.Equal(t, "application/json", store.types["ci-runs/archive/run-1/summary.json"])

	var got summary
	require.NoError(t, json.Unmarshal([]byte(store.objects["ci-runs/archive/run-1/summary.json"]), &got))
	assert.Equal(t, jobrun.Failed, got.Outcome)
	assert.Equal(t, "2026-03-01T10:00:00Z", got.Started)
	require.Len(t, got.Jobs, 1)
	assert.Empty(t, got.Jobs[0].Steps[0].Log, "logs are stored separately")

	assert.Equal(t, "ok\n", res.Jobs[0].Steps[0].Log, "the result is not modified")
}

func TestArchive_StoreError(t *testing.T) {
	store := &memStore{err: errors.New("bucket missing")}
	err := NewArchiver(store, "b", "").Archive(context.Background(), result())
	assert.ErrorContains(t, err, "bucket missing")
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{Endpoint: "localhost:9000", Bucket: "b", AccessKey: "a", SecretKey: "s"}.Validate())
	assert.Error(t, Config{Bucket: "b", AccessKey: "a", SecretKey: "s"}.Validate())
	assert.Error(t, Config{Endpoint: "e", AccessKey: "a", SecretKey: "s"}.Validate())
	assert.Error(t, Config{Endpoint: "e", Bucket: "b"}.Validate())
}
