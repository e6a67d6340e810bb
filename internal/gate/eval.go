package gate

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/gridci/internal/trigger"
)

// Result is the aggregated terminal outcome of an upstream job as seen by
// `needs.<job>.result`.
type Result string

const (
	Success   Result = "success"
	Failure   Result = "failure"
	Skipped   Result = "skipped"
	Cancelled Result = "cancelled"
)

// Context is the strongly-typed evaluation context of a gate.
type Context struct {
	Run    trigger.Run
	Matrix map[string]string
	Needs  map[string]Result
}

// EvaluationError reports a malformed gate or one that could not be evaluated.
// It fails the owning job or step; it never aborts the whole run.
type EvaluationError struct {
	Expr   string
	Detail string
}

func (e *EvaluationError) Error() string {
	if e.Expr == "" {
		return "condition evaluation error: " + e.Detail
	}
	return fmt.Sprintf("condition evaluation error in %q: %s", e.Expr, e.Detail)
}

func evalErrorf(e Expr, format string, args ...any) *EvaluationError {
	src := ""
	if e != nil {
		src = e.String()
	}
	return &EvaluationError{Expr: src, Detail: fmt.Sprintf(format, args...)}
}

// Eval evaluates a gate. A nil gate holds. The result must be a bool.
func Eval(e Expr, c Context) (bool, error) {
	if e == nil {
		return true, nil
	}
	v, err := e.eval(&c)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, evalErrorf(e, "gate must evaluate to a bool, got %s", typeName(v))
	}
	return b, nil
}

func (l Literal) eval(*Context) (any, error) { return l.Value, nil }

func (i Invalid) eval(*Context) (any, error) { return nil, i.Err }

func (r Ref) eval(c *Context) (any, error) {
	switch r.Path[0] {
	case "event":
		if len(r.Path) == 1 {
			return string(c.Run.Event), nil
		}
	case "ref":
		if len(r.Path) == 1 {
			return c.Run.Ref, nil
		}
	case "ref_name":
		if len(r.Path) == 1 {
			return c.Run.RefName(), nil
		}
	case "sha":
		if len(r.Path) == 1 {
			return c.Run.SHA, nil
		}
	case "short_sha":
		if len(r.Path) == 1 {
			return c.Run.ShortSHA(), nil
		}
	case "repository":
		if len(r.Path) == 1 {
			return c.Run.Repository, nil
		}
	case "matrix":
		if len(r.Path) == 2 {
			v, ok := c.Matrix[r.Path[1]]
			if !ok {
				return nil, evalErrorf(r, "unknown matrix axis %q", r.Path[1])
			}
			return v, nil
		}
	case "needs":
		if len(r.Path) == 3 && r.Path[2] == "result" {
			v, ok := c.Needs[r.Path[1]]
			if !ok {
				return nil, evalErrorf(r, "job %q is not a resolved dependency", r.Path[1])
			}
			return string(v), nil
		}
	}
	return nil, evalErrorf(r, "unknown reference")
}

func (e Eq) eval(c *Context) (any, error) {
	return equal(e, e.L, e.R, c)
}

func (e Ne) eval(c *Context) (any, error) {
	v, err := equal(e, e.L, e.R, c)
	if err != nil {
		return nil, err
	}
	return !v, nil
}

func equal(self, l, r Expr, c *Context) (bool, error) {
	lv, err := l.eval(c)
	if err != nil {
		return false, err
	}
	rv, err := r.eval(c)
	if err != nil {
		return false, err
	}
	if typeName(lv) != typeName(rv) {
		return false, evalErrorf(self, "cannot compare %s with %s", typeName(lv), typeName(rv))
	}
	return lv == rv, nil
}

func (e And) eval(c *Context) (any, error) {
	l, err := evalBool(e.L, c)
	if err != nil || !l {
		return false, err
	}
	return evalBool(e.R, c)
}

func (e Or) eval(c *Context) (any, error) {
	l, err := evalBool(e.L, c)
	if err != nil || l {
		return l, err
	}
	return evalBool(e.R, c)
}

func (e Not) eval(c *Context) (any, error) {
	v, err := evalBool(e.X, c)
	if err != nil {
		return nil, err
	}
	return !v, nil
}

func (e Call) eval(c *Context) (any, error) {
	fn, ok := functions[e.Name]
	if !ok {
		return nil, evalErrorf(e, "unknown function %q", e.Name)
	}
	if len(e.Args) != 2 {
		return nil, evalErrorf(e, "%s expects 2 arguments, got %d", e.Name, len(e.Args))
	}
	args := make([]string, 2)
	for i, a := range e.Args {
		v, err := a.eval(c)
		if err != nil {
			return nil, err
		}
		s, ok := v.(string)
		if !ok {
			return nil, evalErrorf(e, "%s expects string arguments, got %s", e.Name, typeName(v))
		}
		args[i] = s
	}
	return fn(args[0], args[1]), nil
}

var functions = map[string]func(s, arg string) bool{
	"startswith": strings.HasPrefix,
	"endswith":   strings.HasSuffix,
	"contains":   strings.Contains,
}

func evalBool(e Expr, c *Context) (bool, error) {
	v, err := e.eval(c)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, evalErrorf(e, "expected bool operand, got %s", typeName(v))
	}
	return b, nil
}

func typeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	}
	return fmt.Sprintf("%T", v)
}
