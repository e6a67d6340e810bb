package env_vars

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/specialistvlad/gridci/internal/actions"
	"github.com/zclconf/go-cty/cty"
)

// Ref is the reference steps use to invoke this action.
const Ref = "gridci/env@v1"

// Module implements the actions.Module interface for this package.
type Module struct{}

var _ actions.Module = (*Module)(nil)

// OnRunEnvVars fails the step when any required variable is unset or empty
// in the step's merged environment, then lists the requested variables.
// Secret values never reach the output; the redactor masks them anyway.
func OnRunEnvVars(_ context.Context, inv *actions.Invocation) error {
	var required, show []string
	var err error
	if inv.Has("require") {
		if required, err = inv.Strings("require"); err != nil {
			return err
		}
	}
	if inv.Has("show") {
		if show, err = inv.Strings("show"); err != nil {
			return err
		}
	}

	var missing []string
	for _, name := range required {
		if inv.Env[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	sort.Strings(show)
	for _, name := range show {
		v, ok := inv.Env[name]
		if !ok {
			fmt.Fprintf(inv.Stdout, "%s is unset\n", name)
			continue
		}
		fmt.Fprintf(inv.Stdout, "%s=%s\n", name, v)
	}
	return nil
}

// Register registers the action.
func (m *Module) Register(r *actions.Registry) {
	r.Register(&actions.Definition{
		Ref:         Ref,
		Description: "Checks required environment variables and prints selected ones.",
		Inputs: map[string]actions.Input{
			"require": {Type: cty.List(cty.String)},
			"show":    {Type: cty.List(cty.String)},
		},
		Handler: OnRunEnvVars,
	})
}
