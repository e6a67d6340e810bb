package matrix

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/gridci/internal/trigger"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Scope is the set of values templates are rendered against.
type Scope struct {
	Matrix  map[string]string
	Lookups map[string]map[string]string
	Run     trigger.Run
}

var functions = map[string]function.Function{
	"upper":      stdlib.UpperFunc,
	"lower":      stdlib.LowerFunc,
	"replace":    stdlib.ReplaceFunc,
	"format":     stdlib.FormatFunc,
	"join":       stdlib.JoinFunc,
	"trimprefix": stdlib.TrimPrefixFunc,
	"trimsuffix": stdlib.TrimSuffixFunc,
}

// EvalContext builds the HCL evaluation context for the scope.
func (s Scope) EvalContext() *hcl.EvalContext {
	lookups := make(map[string]cty.Value, len(s.Lookups))
	for name, table := range s.Lookups {
		lookups[name] = stringMap(table)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"matrix": stringObject(s.Matrix),
			"lookup": cty.ObjectVal(lookups),
			"run": cty.ObjectVal(map[string]cty.Value{
				"id":         cty.StringVal(s.Run.ID),
				"event":      cty.StringVal(string(s.Run.Event)),
				"ref":        cty.StringVal(s.Run.Ref),
				"ref_name":   cty.StringVal(s.Run.RefName()),
				"sha":        cty.StringVal(s.Run.SHA),
				"short_sha":  cty.StringVal(s.Run.ShortSHA()),
				"repository": cty.StringVal(s.Run.Repository),
				"attempt":    cty.NumberIntVal(int64(s.Run.Attempt)),
			}),
		},
		Functions: functions,
	}
}

func stringObject(m map[string]string) cty.Value {
	attrs := make(map[string]cty.Value, len(m))
	for k, v := range m {
		attrs[k] = cty.StringVal(v)
	}
	return cty.ObjectVal(attrs)
}

func stringMap(m map[string]string) cty.Value {
	if len(m) == 0 {
		return cty.MapValEmpty(cty.String)
	}
	vals := make(map[string]cty.Value, len(m))
	for k, v := range m {
		vals[k] = cty.StringVal(v)
	}
	return cty.MapVal(vals)
}

// RenderString evaluates a template expression to a string. A nil expression
// renders as the empty string.
func RenderString(expr hcl.Expression, ctx *hcl.EvalContext) (string, error) {
	if expr == nil {
		return "", nil
	}
	v, diags := expr.Value(ctx)
	if diags.HasErrors() {
		return "", diags
	}
	if v.IsNull() {
		return "", nil
	}
	if !v.IsWhollyKnown() {
		return "", fmt.Errorf("template did not produce a known value")
	}
	s, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", fmt.Errorf("template must produce a string: %w", err)
	}
	return s.AsString(), nil
}

// RenderEnv renders every value of an environment layer.
func RenderEnv(env map[string]hcl.Expression, ctx *hcl.EvalContext) (map[string]string, error) {
	if len(env) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(env))
	for _, k := range sortedKeys(env) {
		v, err := RenderString(env[k], ctx)
		if err != nil {
			return nil, fmt.Errorf("env %s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// RenderValues evaluates action inputs, keeping their cty types.
func RenderValues(with map[string]hcl.Expression, ctx *hcl.EvalContext) (map[string]cty.Value, error) {
	if len(with) == 0 {
		return nil, nil
	}
	out := make(map[string]cty.Value, len(with))
	for _, k := range sortedKeys(with) {
		v, diags := with[k].Value(ctx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("input %s: %w", k, diags)
		}
		out[k] = v
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
