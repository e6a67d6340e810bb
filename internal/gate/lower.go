package gate

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// Parse parses gate source text written in HCL expression syntax.
func Parse(src string) (Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	expr, diags := hclsyntax.ParseExpression([]byte(src), "gate", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, &EvaluationError{Expr: src, Detail: diags.Error()}
	}
	return FromHCL(expr)
}

// FromHCL lowers a parsed HCL expression into a gate. A nil or null
// expression yields a nil gate.
func FromHCL(expr hcl.Expression) (Expr, error) {
	if expr == nil {
		return nil, nil
	}
	if _, ok := expr.(hclsyntax.Expression); !ok {
		return fromStatic(expr)
	}
	return lower(expr.(hclsyntax.Expression))
}

// fromStatic handles expressions not produced by the native syntax parser,
// such as the placeholder gohcl supplies for an absent attribute.
func fromStatic(expr hcl.Expression) (Expr, error) {
	v, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, &EvaluationError{Detail: diags.Error()}
	}
	if v.IsNull() {
		return nil, nil
	}
	return literal(v)
}

func lower(expr hclsyntax.Expression) (Expr, error) {
	switch e := expr.(type) {
	case *hclsyntax.LiteralValueExpr:
		return literal(e.Val)

	case *hclsyntax.TemplateExpr:
		var sb strings.Builder
		for _, part := range e.Parts {
			lit, ok := part.(*hclsyntax.LiteralValueExpr)
			if !ok || lit.Val.Type() != cty.String {
				return nil, unsupported(e, "string interpolation is not allowed in gates")
			}
			sb.WriteString(lit.Val.AsString())
		}
		return Literal{Value: sb.String()}, nil

	case *hclsyntax.TemplateWrapExpr:
		return lower(e.Wrapped)

	case *hclsyntax.ParenthesesExpr:
		return lower(e.Expression)

	case *hclsyntax.ScopeTraversalExpr:
		path, err := traversalPath(e.Traversal)
		if err != nil {
			return nil, unsupported(e, err.Error())
		}
		return Ref{Path: path}, nil

	case *hclsyntax.BinaryOpExpr:
		l, err := lower(e.LHS)
		if err != nil {
			return nil, err
		}
		r, err := lower(e.RHS)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case hclsyntax.OpEqual:
			return Eq{L: l, R: r}, nil
		case hclsyntax.OpNotEqual:
			return Ne{L: l, R: r}, nil
		case hclsyntax.OpLogicalAnd:
			return And{L: l, R: r}, nil
		case hclsyntax.OpLogicalOr:
			return Or{L: l, R: r}, nil
		}
		return nil, unsupported(e, "only ==, !=, && and || operators are allowed")

	case *hclsyntax.UnaryOpExpr:
		if e.Op != hclsyntax.OpLogicalNot {
			return nil, unsupported(e, "only the ! unary operator is allowed")
		}
		x, err := lower(e.Val)
		if err != nil {
			return nil, err
		}
		return Not{X: x}, nil

	case *hclsyntax.FunctionCallExpr:
		if _, ok := functions[e.Name]; !ok {
			return nil, unsupported(e, fmt.Sprintf("unknown function %q", e.Name))
		}
		call := Call{Name: e.Name}
		for _, a := range e.Args {
			arg, err := lower(a)
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
		}
		if len(call.Args) != 2 {
			return nil, unsupported(e, fmt.Sprintf("%s expects 2 arguments", e.Name))
		}
		return call, nil
	}
	return nil, unsupported(expr, fmt.Sprintf("unsupported expression %T", expr))
}

func literal(v cty.Value) (Expr, error) {
	if !v.IsKnown() || v.IsNull() {
		return nil, &EvaluationError{Detail: "gate literals must be known, non-null values"}
	}
	switch v.Type() {
	case cty.String:
		return Literal{Value: v.AsString()}, nil
	case cty.Bool:
		return Literal{Value: v.True()}, nil
	}
	return nil, &EvaluationError{Detail: fmt.Sprintf("unsupported literal of type %s", v.Type().FriendlyName())}
}

func traversalPath(t hcl.Traversal) ([]string, error) {
	path := make([]string, 0, len(t))
	for _, step := range t {
		switch s := step.(type) {
		case hcl.TraverseRoot:
			path = append(path, s.Name)
		case hcl.TraverseAttr:
			path = append(path, s.Name)
		case hcl.TraverseIndex:
			if s.Key.Type() != cty.String {
				return nil, fmt.Errorf("only string index keys are allowed")
			}
			path = append(path, s.Key.AsString())
		default:
			return nil, fmt.Errorf("unsupported traversal step %T", step)
		}
	}
	return path, nil
}

func unsupported(expr hcl.Expression, detail string) *EvaluationError {
	rng := expr.Range()
	return &EvaluationError{Expr: string(rng.SliceBytes(nil)), Detail: fmt.Sprintf("%s (%s)", detail, rng.String())}
}

// Scope lists the names a gate is allowed to reference.
type Scope struct {
	Axes  []string
	Needs []string
}

// Check verifies every reference in the gate resolves within scope.
func Check(e Expr, scope Scope) error {
	if e == nil {
		return nil
	}
	var err error
	walk(e, func(n Expr) {
		if err != nil {
			return
		}
		ref, ok := n.(Ref)
		if !ok {
			return
		}
		switch ref.Path[0] {
		case "event", "ref", "ref_name", "sha", "short_sha", "repository":
			if len(ref.Path) != 1 {
				err = evalErrorf(ref, "%s has no attributes", ref.Path[0])
			}
		case "matrix":
			if len(ref.Path) != 2 || !slices.Contains(scope.Axes, ref.Path[1]) {
				err = evalErrorf(ref, "unknown matrix axis")
			}
		case "needs":
			if len(ref.Path) != 3 || ref.Path[2] != "result" {
				err = evalErrorf(ref, "expected needs.<job>.result")
			} else if !slices.Contains(scope.Needs, ref.Path[1]) {
				err = evalErrorf(ref, "job %q is not listed in needs", ref.Path[1])
			}
		default:
			err = evalErrorf(ref, "unknown reference")
		}
	})
	return err
}

func walk(e Expr, fn func(Expr)) {
	fn(e)
	switch n := e.(type) {
	case Eq:
		walk(n.L, fn)
		walk(n.R, fn)
	case Ne:
		walk(n.L, fn)
		walk(n.R, fn)
	case And:
		walk(n.L, fn)
		walk(n.R, fn)
	case Or:
		walk(n.L, fn)
		walk(n.R, fn)
	case Not:
		walk(n.X, fn)
	case Call:
		for _, a := range n.Args {
			walk(a, fn)
		}
	}
}

// Compile lowers expr and checks it against scope. A gate that fails either
// step comes back as Invalid, so the error surfaces when the owning job or
// step is evaluated instead of aborting the plan.
func Compile(expr hcl.Expression, scope Scope) Expr {
	e, err := FromHCL(expr)
	if err == nil {
		err = Check(e, scope)
	}
	if err == nil {
		return e
	}
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		evalErr = &EvaluationError{Detail: err.Error()}
	}
	return Invalid{Err: evalErr}
}
