// Package testutil runs whole workflow definitions through the application
// for the integration tests.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/specialistvlad/gridci/internal/app"
	"github.com/specialistvlad/gridci/internal/jobrun"
	"github.com/specialistvlad/gridci/internal/registry"
	"github.com/specialistvlad/gridci/internal/scheduler"
	"github.com/specialistvlad/gridci/internal/secrets"
	"github.com/specialistvlad/gridci/internal/trigger"
	"github.com/stretchr/testify/require"
)

// DefaultSHA is the commit every harness run builds unless overridden.
const DefaultSHA = "0123456789abcdef0123456789abcdef01234567"

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Options configure one harness run. The zero value runs a push to main.
type Options struct {
	Ctx     context.Context
	Ref     string
	SHA     string
	Attempt int
	// Capacity bounds concurrently running job runs.
	Capacity int
	Secrets  map[string]string
	// Images is shared between runs to test re-runs. A fresh registry is
	// used when nil.
	Images *registry.Memory
	// Commands answers every raw command step.
	Commands *CommandRecorder
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput string
	Run       trigger.Run
	Result    *scheduler.Result
	Err       error
	App       *app.App
	Images    *registry.Memory
	Commands  *CommandRecorder
}

// RunIntegrationTest writes files into a temporary definition directory and
// runs it once through the application.
func RunIntegrationTest(t *testing.T, files map[string]string, opts Options) *HarnessResult {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	if opts.Ctx == nil {
		opts.Ctx = context.Background()
	}
	if opts.Ref == "" {
		opts.Ref = "refs/heads/main"
	}
	if opts.SHA == "" {
		opts.SHA = DefaultSHA
	}
	if opts.Images == nil {
		opts.Images = registry.NewMemory()
	}
	if opts.Commands == nil {
		opts.Commands = &CommandRecorder{}
	}

	cfg, err := app.NewConfig(app.Config{
		DefinitionPath: dir,
		Ref:            opts.Ref,
		SHA:            opts.SHA,
		Repository:     "acme/widget",
		Attempt:        opts.Attempt,
		LogLevel:       "debug",
		Capacity:       opts.Capacity,
	})
	require.NoError(t, err)

	logBuffer := &SafeBuffer{}
	testApp, err := app.NewApp(opts.Ctx, logBuffer, cfg,
		app.WithCommandRunner(opts.Commands),
		app.WithSecretStore(secrets.MapStore(opts.Secrets)),
		app.WithImageBackend(opts.Images, opts.Images),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testApp.Close() })

	run, err := cfg.Trigger()
	require.NoError(t, err)
	res, runErr := testApp.Run(opts.Ctx, run)

	if os.Getenv("GRIDCI_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Run:       run,
		Result:    res,
		Err:       runErr,
		App:       testApp,
		Images:    opts.Images,
		Commands:  opts.Commands,
	}
}

// Statuses maps every job run ID, e.g. "build[1]", to its terminal status.
func (r *HarnessResult) Statuses(t *testing.T) map[string]jobrun.Status {
	t.Helper()
	require.NotNil(t, r.Result, "run did not produce a result: %v", r.Err)
	out := make(map[string]jobrun.Status, len(r.Result.Jobs))
	for _, j := range r.Result.Jobs {
		out[j.ID] = j.Status
	}
	return out
}

// Job returns the snapshot of one job run.
func (r *HarnessResult) Job(t *testing.T, id string) jobrun.Snapshot {
	t.Helper()
	require.NotNil(t, r.Result, "run did not produce a result: %v", r.Err)
	for _, j := range r.Result.Jobs {
		if j.ID == id {
			return j
		}
	}
	require.FailNow(t, "no such job run", id)
	return jobrun.Snapshot{}
}
