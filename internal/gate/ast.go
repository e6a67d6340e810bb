package gate

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is a node of a gate expression.
type Expr interface {
	eval(c *Context) (any, error)
	String() string
}

// Literal is a string or bool constant.
type Literal struct {
	Value any
}

// Ref reads a value from the evaluation context, e.g. [matrix platform].
type Ref struct {
	Path []string
}

// Eq is true when both sides evaluate to equal values of the same type.
type Eq struct{ L, R Expr }

// Ne is the negation of Eq.
type Ne struct{ L, R Expr }

// And is a short-circuiting conjunction.
type And struct{ L, R Expr }

// Or is a short-circuiting disjunction.
type Or struct{ L, R Expr }

// Not negates a bool operand.
type Not struct{ X Expr }

// Call applies a built-in string predicate.
type Call struct {
	Name string
	Args []Expr
}

// Invalid stands in for a gate that could not be lowered or checked. It
// fails whenever it is evaluated, so only the owning job or step fails.
type Invalid struct {
	Err *EvaluationError
}

func (l Literal) String() string {
	if s, ok := l.Value.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprint(l.Value)
}

func (r Ref) String() string { return strings.Join(r.Path, ".") }
func (e Eq) String() string  { return e.L.String() + " == " + e.R.String() }
func (e Ne) String() string  { return e.L.String() + " != " + e.R.String() }
func (e And) String() string { return group(e.L) + " && " + group(e.R) }
func (e Or) String() string  { return group(e.L) + " || " + group(e.R) }
func (e Not) String() string { return "!" + group(e.X) }

func (i Invalid) String() string { return i.Err.Expr }

func (c Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return c.Name + "(" + strings.Join(args, ", ") + ")"
}

func group(e Expr) string {
	switch e.(type) {
	case And, Or, Eq, Ne:
		return "(" + e.String() + ")"
	}
	return e.String()
}

// Protected builds the gate that holds when the run's ref is one of the
// branches. It compares full refs, so a tag or pull request named like a
// protected branch never holds. With no branches it never holds.
func Protected(branches []string) Expr {
	var expr Expr
	for _, b := range branches {
		if !strings.HasPrefix(b, "refs/heads/") {
			b = "refs/heads/" + b
		}
		eq := Eq{L: Ref{Path: []string{"ref"}}, R: Literal{Value: b}}
		if expr == nil {
			expr = eq
			continue
		}
		expr = Or{L: expr, R: eq}
	}
	if expr == nil {
		return Literal{Value: false}
	}
	return expr
}
