package matrix

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/gridci/internal/config"
	"github.com/specialistvlad/gridci/internal/nodeid"
	"github.com/specialistvlad/gridci/internal/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func tmpl(t *testing.T, src string) hcl.Expression {
	t.Helper()
	expr, diags := hclsyntax.ParseTemplate([]byte(src), "test.hcl", hcl.Pos{Line: 1, Column: 1})
	require.False(t, diags.HasErrors(), diags.Error())
	return expr
}

func expr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	e, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.Pos{Line: 1, Column: 1})
	require.False(t, diags.HasErrors(), diags.Error())
	return e
}

func testRun(t *testing.T) trigger.Run {
	t.Helper()
	run, err := trigger.NewRun(trigger.Push, "refs/heads/main", "abcdef0123456789abcd", "acme/widget", 1)
	require.NoError(t, err)
	return run
}

var archLookup = map[string]map[string]string{
	"arch": {"amd64": "x86_64", "arm64": "aarch64"},
}

func TestCombinations(t *testing.T) {
	m := &config.Matrix{Axes: []config.Axis{
		{Name: "platform", Values: []string{"amd64", "arm64"}},
		{Name: "go", Values: []string{"1.24", "1.25"}},
	}}
	want := []map[string]string{
		{"platform": "amd64", "go": "1.24"},
		{"platform": "amd64", "go": "1.25"},
		{"platform": "arm64", "go": "1.24"},
		{"platform": "arm64", "go": "1.25"},
	}
	if diff := cmp.Diff(want, Combinations(m)); diff != "" {
		t.Errorf("Combinations() mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, Combinations(nil), 1)
}

func TestExpand_ProductSize(t *testing.T) {
	testCases := []struct {
		name  string
		sizes []int
	}{
		{name: "single axis", sizes: []int{2}},
		{name: "two axes", sizes: []int{2, 3}},
		{name: "three axes", sizes: []int{3, 1, 4}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := &config.Matrix{}
			want := 1
			for i, n := range tc.sizes {
				axis := config.Axis{Name: string(rune('a' + i))}
				for v := 0; v < n; v++ {
					axis.Values = append(axis.Values, string(rune('p'+v)))
				}
				m.Axes = append(m.Axes, axis)
				want *= n
			}
			instances, err := Expand(&config.Job{Name: "build", Matrix: m}, nil, testRun(t))
			require.NoError(t, err)
			require.Len(t, instances, want)
			for i, inst := range instances {
				assert.Equal(t, i, inst.Index)
			}
		})
	}
}

func TestExpand_RendersTemplates(t *testing.T) {
	job := &config.Job{
		Name:   "build",
		RunsOn: "ubuntu-latest",
		Matrix: &config.Matrix{Axes: []config.Axis{{Name: "platform", Values: []string{"amd64", "arm64"}}}},
		Env: map[string]hcl.Expression{
			"ARCH": tmpl(t, "${lookup.arch[matrix.platform]}"),
		},
		Steps: []*config.Step{
			{Name: "compile", Run: tmpl(t, "make build GOARCH=${matrix.platform} REV=${run.short_sha}")},
			{
				Name: "push",
				Uses: "gridci/build-push@v1",
				With: map[string]hcl.Expression{
					"platform": tmpl(t, "linux/${matrix.platform}"),
					"push":     expr(t, "true"),
				},
				If: expr(t, `ref_name == "main"`),
			},
		},
	}

	instances, err := Expand(job, archLookup, testRun(t))
	require.NoError(t, err)
	require.Len(t, instances, 2)

	arm := instances[1]
	assert.Equal(t, nodeid.NewIndexed("build", 1), arm.Address("build"))
	assert.Equal(t, map[string]string{"platform": "arm64"}, arm.Values)
	assert.Equal(t, map[string]string{"ARCH": "aarch64"}, arm.Spec.Env)
	assert.Equal(t, "ubuntu-latest", arm.Spec.RunsOn)
	require.Len(t, arm.Spec.Steps, 2)
	assert.Equal(t, "make build GOARCH=arm64 REV=abcdef012345", arm.Spec.Steps[0].Run)
	assert.Equal(t, cty.StringVal("linux/arm64"), arm.Spec.Steps[1].With["platform"])
	assert.Equal(t, cty.True, arm.Spec.Steps[1].With["push"])
	assert.NotNil(t, arm.Spec.Steps[1].If)
	assert.Nil(t, arm.Spec.If)
}

func TestExpand_NoMatrix(t *testing.T) {
	job := &config.Job{Name: "lint", Steps: []*config.Step{{Name: "vet", Run: tmpl(t, "go vet ./...")}}}
	instances, err := Expand(job, nil, testRun(t))
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, nodeid.New("lint"), instances[0].Address("lint"))
	assert.Nil(t, instances[0].Values)
}

func TestExpand_MissingLookupValue(t *testing.T) {
	job := &config.Job{
		Name:   "build",
		Matrix: &config.Matrix{Axes: []config.Axis{{Name: "platform", Values: []string{"amd64", "riscv64"}}}},
		Steps:  []*config.Step{{Name: "compile", Run: tmpl(t, "arch=${lookup.arch[matrix.platform]}")}},
	}
	_, err := Expand(job, archLookup, testRun(t))
	var defErr *config.DefinitionError
	require.True(t, errors.As(err, &defErr), "got %v", err)
	assert.Equal(t, config.KindUnresolvedRef, defErr.Kind)
	assert.Contains(t, defErr.Subject, "build[1]")
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name string
		m    *config.Matrix
	}{
		{name: "no axes", m: &config.Matrix{}},
		{name: "unnamed axis", m: &config.Matrix{Axes: []config.Axis{{Values: []string{"a"}}}}},
		{name: "empty axis", m: &config.Matrix{Axes: []config.Axis{{Name: "os"}}}},
		{name: "duplicate axis", m: &config.Matrix{Axes: []config.Axis{
			{Name: "os", Values: []string{"linux"}},
			{Name: "os", Values: []string{"darwin"}},
		}}},
		{name: "duplicate value", m: &config.Matrix{Axes: []config.Axis{{Name: "os", Values: []string{"linux", "linux"}}}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate("build", tc.m)
			var defErr *config.DefinitionError
			require.True(t, errors.As(err, &defErr))
			assert.Equal(t, config.KindInvalidMatrix, defErr.Kind)
		})
	}
	assert.NoError(t, Validate("build", nil))
}

func TestRenderString_Functions(t *testing.T) {
	ctx := Scope{Matrix: map[string]string{"platform": "arm64"}, Run: testRun(t)}.EvalContext()
	got, err := RenderString(tmpl(t, `${upper(matrix.platform)}-${replace(run.repository, "/", "-")}`), ctx)
	require.NoError(t, err)
	assert.Equal(t, "ARM64-acme-widget", got)
}
