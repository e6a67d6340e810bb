package actions

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/specialistvlad/gridci/internal/nodeid"
	"github.com/specialistvlad/gridci/internal/secrets"
	"github.com/specialistvlad/gridci/internal/trigger"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Handler executes one action invocation. A returned error fails the step.
type Handler func(ctx context.Context, inv *Invocation) error

// Definition describes a reusable action.
type Definition struct {
	Ref         string
	Description string
	Inputs      map[string]Input
	Handler     Handler
}

// Input declares one typed action input.
type Input struct {
	Type     cty.Type
	Required bool
	// Default applies when the input is omitted. A null default means none.
	Default cty.Value
}

// Bind converts the provided values to the declared input types.
func (d *Definition) Bind(values map[string]cty.Value) (map[string]cty.Value, error) {
	var errs []string
	bound := make(map[string]cty.Value, len(d.Inputs))

	for name := range values {
		if _, ok := d.Inputs[name]; !ok {
			errs = append(errs, fmt.Sprintf("unknown input %q", name))
		}
	}
	for name, in := range d.Inputs {
		v, ok := values[name]
		if !ok || v.IsNull() {
			if in.Required {
				errs = append(errs, fmt.Sprintf("missing required input %q", name))
				continue
			}
			if !in.Default.IsNull() {
				bound[name] = in.Default
			}
			continue
		}
		converted, err := convert.Convert(v, in.Type)
		if err != nil {
			errs = append(errs, fmt.Sprintf("input %q: %s", name, err))
			continue
		}
		bound[name] = converted
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return nil, fmt.Errorf("action %s: %s", d.Ref, strings.Join(errs, "; "))
	}
	return bound, nil
}

// Invocation carries everything a handler may use. Inputs are already bound.
type Invocation struct {
	Run     trigger.Run
	Job     nodeid.Address
	Step    string
	Matrix  map[string]string
	Inputs  map[string]cty.Value
	Env     map[string]string
	Secrets secrets.Set
	Stdout  io.Writer
	Stderr  io.Writer

	// ProtectedBranches are the workflow's protected refs.
	ProtectedBranches []string
}

// Has reports whether an input has a value.
func (inv *Invocation) Has(name string) bool {
	v, ok := inv.Inputs[name]
	return ok && !v.IsNull()
}

// String decodes a string input.
func (inv *Invocation) String(name string) (string, error) {
	var s string
	return s, inv.decode(name, &s)
}

// Bool decodes a bool input.
func (inv *Invocation) Bool(name string) (bool, error) {
	var b bool
	return b, inv.decode(name, &b)
}

// Int decodes a number input.
func (inv *Invocation) Int(name string) (int, error) {
	var n int
	return n, inv.decode(name, &n)
}

// Strings decodes a list input.
func (inv *Invocation) Strings(name string) ([]string, error) {
	var list []string
	return list, inv.decode(name, &list)
}

// StringMap decodes a map input.
func (inv *Invocation) StringMap(name string) (map[string]string, error) {
	var m map[string]string
	return m, inv.decode(name, &m)
}

func (inv *Invocation) decode(name string, target any) error {
	v, ok := inv.Inputs[name]
	if !ok || v.IsNull() {
		return fmt.Errorf("input %q is not set", name)
	}
	if err := gocty.FromCtyValue(v, target); err != nil {
		return fmt.Errorf("input %q: %w", name, err)
	}
	return nil
}
