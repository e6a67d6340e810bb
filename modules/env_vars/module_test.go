package env_vars

import (
	"bytes"
	"context"
	"testing"

	"github.com/specialistvlad/gridci/internal/actions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func list(values ...string) cty.Value {
	vals := make([]cty.Value, len(values))
	for i, v := range values {
		vals[i] = cty.StringVal(v)
	}
	return cty.ListVal(vals)
}

func TestOnRunEnvVars(t *testing.T) {
	testCases := []struct {
		name    string
		with    map[string]cty.Value
		out     string
		wantErr string
	}{
		{
			name: "all present",
			with: map[string]cty.Value{"require": list("GOOS"), "show": list("GOOS", "NOPE")},
			out:  "GOOS=linux\nNOPE is unset\n",
		},
		{
			name:    "missing",
			with:    map[string]cty.Value{"require": list("REGISTRY", "EMPTY", "GOOS")},
			wantErr: "EMPTY, REGISTRY",
		},
	}

	r := actions.New()
	r.RegisterModules(&Module{})
	def, err := r.Lookup(Ref)
	require.NoError(t, err)

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			inputs, err := def.Bind(tc.with)
			require.NoError(t, err)
			var out bytes.Buffer
			err = def.Handler(context.Background(), &actions.Invocation{
				Inputs: inputs,
				Env:    map[string]string{"GOOS": "linux", "EMPTY": ""},
				Stdout: &out,
			})
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.out, out.String())
		})
	}
}
