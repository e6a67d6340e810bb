package step

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/specialistvlad/gridci/internal/jobrun"
	"github.com/specialistvlad/gridci/internal/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessEnv_WithholdsCredentials(t *testing.T) {
	t.Setenv("GRIDCI_SECRET_DEPLOY_TOKEN", "hunter2-secret")
	t.Setenv("GRIDCI_DATABASE_URL", "postgres://ci:pw@db/ci")
	t.Setenv("ACME_SECRET_NPM_TOKEN", "npm-secret")
	t.Setenv("BUILD_MODE", "release")

	env := ProcessEnv("ACME_SECRET_", "")

	assert.Equal(t, "release", env["BUILD_MODE"])
	for _, k := range []string{"GRIDCI_SECRET_DEPLOY_TOKEN", "GRIDCI_DATABASE_URL", "ACME_SECRET_NPM_TOKEN"} {
		assert.NotContains(t, env, k)
	}
}

// dumpEnv prints the command's environment, like `printenv`.
func dumpEnv(_ context.Context, c Command) error {
	_, err := io.WriteString(c.Stdout, strings.Join(c.Env, "\n")+"\n")
	return err
}

func TestExecute_UndeclaredSecretsNeverReachTheStep(t *testing.T) {
	t.Setenv("ACME_SECRET_DEPLOY_TOKEN", "hunter2-secret")
	t.Setenv("ACME_SECRET_NPM_TOKEN", "npm-secret")

	runner := &scriptedRunner{scripts: map[string]scriptFunc{"printenv": dumpEnv}}
	ex := newExecutor(runner, secrets.EnvStore{Prefix: "ACME_SECRET_"})
	ex.ProcessEnv = ProcessEnv("ACME_SECRET_")

	out := ex.Execute(context.Background(), request(jobrun.Spec{
		Steps: []jobrun.StepSpec{
			{Name: "undeclared", Run: "printenv"},
			{Name: "declared", Run: "printenv", Secrets: []string{"DEPLOY_TOKEN"}},
		},
	}))
	require.NoError(t, out.Err)
	require.Len(t, out.Steps, 2)

	for _, s := range out.Steps {
		assert.NotContains(t, s.Log, "hunter2-secret", s.Name)
		assert.NotContains(t, s.Log, "npm-secret", s.Name)
		assert.NotContains(t, s.Log, "ACME_SECRET_", s.Name)
	}
	assert.NotContains(t, out.Steps[0].Log, "DEPLOY_TOKEN")
	assert.Contains(t, out.Steps[1].Log, "DEPLOY_TOKEN=***")

	require.Len(t, runner.calls, 2)
	assert.Contains(t, runner.calls[1].Env, "DEPLOY_TOKEN=hunter2-secret")
	assert.NotContains(t, runner.calls[0].Env, "DEPLOY_TOKEN=hunter2-secret")
}
