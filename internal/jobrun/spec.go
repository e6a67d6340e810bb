package jobrun

import (
	"time"

	"github.com/specialistvlad/gridci/internal/gate"
	"github.com/zclconf/go-cty/cty"
)

// Spec is the fully rendered, immutable description of one job instance. All
// matrix, lookup and run substitutions have already been applied.
type Spec struct {
	RunsOn  string
	Env     map[string]string
	Secrets []string
	Timeout time.Duration
	If      gate.Expr
	Steps   []StepSpec
}

// StepSpec is a rendered step. Exactly one of Run and Uses is set.
type StepSpec struct {
	Name            string
	Run             string
	Uses            string
	With            map[string]cty.Value
	If              gate.Expr
	Env             map[string]string
	Secrets         []string
	Timeout         time.Duration
	Retries         int
	ContinueOnError bool
}
