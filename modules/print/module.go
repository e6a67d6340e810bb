package print

import (
	"context"
	"fmt"
	"sort"

	"github.com/specialistvlad/gridci/internal/actions"
	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// Ref is the reference steps use to invoke this action.
const Ref = "gridci/print@v1"

// Module implements the actions.Module interface for this package.
type Module struct{}

var _ actions.Module = (*Module)(nil)

// OnRunPrint writes the message and every value, sorted by key, to the
// step's output.
func OnRunPrint(ctx context.Context, inv *actions.Invocation) error {
	ctxlog.FromContext(ctx).Debug("Printing input.", "step", inv.Step)

	if inv.Has("message") {
		msg, err := inv.String("message")
		if err != nil {
			return err
		}
		fmt.Fprintln(inv.Stdout, msg)
	}
	if !inv.Has("value") {
		return nil
	}
	values, err := inv.StringMap("value")
	if err != nil {
		return err
	}

	// Sort keys for consistent output
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(inv.Stdout, "%s = %q\n", k, values[k])
	}
	return nil
}

// Register registers the action.
func (m *Module) Register(r *actions.Registry) {
	r.Register(&actions.Definition{
		Ref:         Ref,
		Description: "Prints a message and a map of values.",
		Inputs: map[string]actions.Input{
			"message": {Type: cty.String},
			"value":   {Type: cty.Map(cty.String)},
		},
		Handler: OnRunPrint,
	})
}
