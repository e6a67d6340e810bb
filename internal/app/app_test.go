package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/gridci/internal/config"
	"github.com/specialistvlad/gridci/internal/jobrun"
	"github.com/specialistvlad/gridci/internal/planner"
	"github.com/specialistvlad/gridci/internal/publish"
	"github.com/specialistvlad/gridci/internal/registry"
	"github.com/specialistvlad/gridci/internal/runstore"
	"github.com/specialistvlad/gridci/internal/secrets"
	"github.com/specialistvlad/gridci/internal/step"
	"github.com/specialistvlad/gridci/internal/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// commandLog records every script and fails those containing "exit 1".
type commandLog struct {
	mu      sync.Mutex
	scripts []string
}

func (c *commandLog) RunCommand(_ context.Context, cmd step.Command) error {
	c.mu.Lock()
	c.scripts = append(c.scripts, cmd.Script)
	c.mu.Unlock()
	fmt.Fprintln(cmd.Stdout, "ran:", cmd.Script)
	if strings.Contains(cmd.Script, "exit 1") {
		return errors.New("exit status 1")
	}
	return nil
}

const releaseHCL = `
workflow "release" {
  required           = ["lint", "publish"]
  protected_branches = ["main"]
}

job "lint" {
  step "vet" { run = "go vet ./..." }
}

job "build" {
  needs   = ["lint"]
  secrets = ["REGISTRY_TOKEN"]
  matrix {
    axis "platform" { values = ["linux/amd64", "linux/arm64"] }
  }
  step "push" {
    uses = "gridci/build-push@v1"
    with = {
      repository = "ghcr.io/acme/widget"
    }
  }
}

job "publish" {
  needs = ["build"]
  step "manifest" {
    uses = "gridci/manifest@v1"
    with = {
      repository = "ghcr.io/acme/widget"
      platforms  = ["linux/amd64", "linux/arm64"]
    }
  }
}
`

type fixture struct {
	app    *App
	images *registry.Memory
	cmds   *commandLog
	logs   *SafeBuffer
}

func setup(t *testing.T, definition string, store secrets.Store) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ci.hcl")
	require.NoError(t, os.WriteFile(path, []byte(definition), 0o644))

	cfg, err := NewConfig(Config{
		DefinitionPath: path,
		Ref:            "refs/heads/main",
		SHA:            "0123456789abcdef0123",
		Repository:     "acme/widget",
		LogLevel:       "debug",
	})
	require.NoError(t, err)

	f := &fixture{images: registry.NewMemory(), cmds: &commandLog{}, logs: &SafeBuffer{}}
	f.app, err = NewApp(context.Background(), f.logs, cfg,
		WithCommandRunner(f.cmds),
		WithSecretStore(store),
		WithImageBackend(f.images, f.images),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.app.Close())
		if os.Getenv("GRIDCI_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), f.logs.String())
		}
	})
	return f
}

func TestNewConfig(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "defaults", cfg: Config{DefinitionPath: "ci.hcl"}},
		{name: "missing path", cfg: Config{}, wantErr: "definition path"},
		{name: "bad format", cfg: Config{DefinitionPath: "ci.hcl", LogFormat: "xml"}, wantErr: "log format"},
		{name: "bad level", cfg: Config{DefinitionPath: "ci.hcl", LogLevel: "trace"}, wantErr: "log level"},
		{name: "bad capacity", cfg: Config{DefinitionPath: "ci.hcl", Capacity: -1}, wantErr: "capacity"},
		{name: "bad backend", cfg: Config{DefinitionPath: "ci.hcl", RegistryBackend: "quay"}, wantErr: "registry backend"},
		{name: "bad port", cfg: Config{DefinitionPath: "ci.hcl", StatusPort: 70000}, wantErr: "status port"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := NewConfig(tc.cfg)
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "text", cfg.LogFormat)
			assert.Equal(t, "info", cfg.LogLevel)
			assert.Equal(t, BackendMemory, cfg.RegistryBackend)
			assert.Equal(t, "push", cfg.Event)
		})
	}
}

func TestConfig_Trigger(t *testing.T) {
	cfg := &Config{Event: "pull_request", Ref: "refs/pull/7/merge", SHA: "abc", Repository: "acme/widget"}
	run, err := cfg.Trigger()
	require.NoError(t, err)
	assert.Equal(t, trigger.PullRequest, run.Event)
	assert.Equal(t, 1, run.Attempt)

	_, err = (&Config{Event: "tag", Ref: "r", SHA: "s"}).Trigger()
	assert.Error(t, err)
}

func TestRun_ReleasePipeline(t *testing.T) {
	f := setup(t, releaseHCL, secrets.MapStore{"REGISTRY_TOKEN": "s3cr3t"})
	run, err := f.app.config.Trigger()
	require.NoError(t, err)

	res, err := f.app.Run(context.Background(), run)
	require.NoError(t, err)
	require.True(t, res.Succeeded(), f.logs.String())
	assert.Equal(t, []string{"go vet ./..."}, f.cmds.scripts)

	tags := f.images.Tags()
	manifest := registry.Ref{Repository: "ghcr.io/acme/widget", Tag: publish.RunTag(run)}
	latest := registry.Ref{Repository: "ghcr.io/acme/widget", Tag: publish.DefaultFloatingTag}
	require.Contains(t, tags, manifest)
	assert.Equal(t, tags[manifest], tags[latest])

	saved, err := f.app.Store().Run(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, jobrun.Succeeded, saved.Status)
	jobs, err := f.app.Store().Jobs(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Len(t, jobs, 5)
	assert.NotContains(t, f.logs.String(), "s3cr3t")
}

func TestRun_MissingSecretFailsRun(t *testing.T) {
	f := setup(t, releaseHCL, secrets.MapStore{})
	run, err := f.app.config.Trigger()
	require.NoError(t, err)

	res, err := f.app.Run(context.Background(), run)
	require.NoError(t, err)
	assert.False(t, res.Succeeded())
	assert.Empty(t, f.images.Writes(), "nothing is pushed without credentials")

	byID := map[string]jobrun.Status{}
	for _, j := range res.Jobs {
		byID[j.ID] = j.Status
	}
	assert.Equal(t, jobrun.Succeeded, byID["lint"])
	assert.Equal(t, jobrun.Failed, byID["build[0]"])
	assert.Equal(t, jobrun.Skipped, byID["publish"])
	assert.Equal(t, jobrun.Failed, byID[planner.AggregatorJob])
}

func TestRun_DefinitionError(t *testing.T) {
	f := setup(t, `
job "a" {
  needs = ["b"]
  step "s" { run = "true" }
}
job "b" {
  needs = ["a"]
  step "s" { run = "true" }
}
`, secrets.MapStore{})
	run, err := f.app.config.Trigger()
	require.NoError(t, err)

	_, err = f.app.Run(context.Background(), run)
	var defErr *config.DefinitionError
	require.ErrorAs(t, err, &defErr)
	assert.Equal(t, config.KindCycle, defErr.Kind)
	assert.Empty(t, f.cmds.scripts, "zero jobs run on a definition error")
}

func TestRun_UnknownActionIsDefinitionError(t *testing.T) {
	f := setup(t, `
job "a" {
  step "s" { uses = "acme/nope@v1" }
}
`, secrets.MapStore{})
	run, err := f.app.config.Trigger()
	require.NoError(t, err)
	_, err = f.app.Plan(context.Background(), run)
	var defErr *config.DefinitionError
	assert.ErrorAs(t, err, &defErr)
}

func TestNewPlanView(t *testing.T) {
	f := setup(t, releaseHCL, secrets.MapStore{})
	run, err := f.app.config.Trigger()
	require.NoError(t, err)
	plan, err := f.app.Plan(context.Background(), run)
	require.NoError(t, err)

	v := NewPlanView(plan)
	var ids []string
	for _, j := range v.Jobs {
		ids = append(ids, j.ID)
	}
	if diff := cmp.Diff([]string{"lint", "build[0]", "build[1]", "publish", planner.AggregatorJob}, ids); diff != "" {
		t.Errorf("plan order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, map[string]string{"platform": "linux/arm64"}, v.Jobs[2].Matrix)
	assert.Equal(t, []NeedView{{Job: "lint", Policy: "all_succeeded", OnSkipped: "satisfy"}}, v.Jobs[1].Needs)
	assert.True(t, v.Jobs[4].Aggregator)
}

const hookHCL = `
job "lint" {
  step "vet" { run = "go vet ./..." }
}
`

func TestHandler(t *testing.T) {
	f := setup(t, hookHCL, secrets.MapStore{})
	srv := httptest.NewServer(f.app.Handler(context.Background()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK\n", string(body))

	payload := `{"ref":"refs/heads/main","sha":"fedcba9876543210","repository":"acme/widget"}`
	resp, err = http.Post(srv.URL+"/hooks/push", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	var accepted map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	runID := accepted["run_id"]
	require.NotEmpty(t, runID)

	f.app.Wait()

	resp, err = http.Get(srv.URL + "/runs/" + runID)
	require.NoError(t, err)
	var view RunView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, jobrun.Succeeded, view.Run.Status)
	assert.Len(t, view.Jobs, 2)

	resp, err = http.Get(srv.URL + "/runs")
	require.NoError(t, err)
	var runs []runstore.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	resp.Body.Close()
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)

	testCases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{name: "unknown run", method: http.MethodGet, path: "/runs/nope", status: http.StatusNotFound},
		{name: "bad limit", method: http.MethodGet, path: "/runs?limit=x", status: http.StatusBadRequest},
		{name: "unknown event", method: http.MethodPost, path: "/hooks/tag", body: payload, status: http.StatusNotFound},
		{name: "bad payload", method: http.MethodPost, path: "/hooks/push", body: "{", status: http.StatusBadRequest},
		{name: "missing sha", method: http.MethodPost, path: "/hooks/push", body: `{"ref":"refs/heads/main"}`, status: http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, srv.URL+tc.path, strings.NewReader(tc.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
