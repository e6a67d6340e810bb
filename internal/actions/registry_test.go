package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func noop(context.Context, *Invocation) error { return nil }

type testModule struct{}

func (testModule) Register(r *Registry) {
	r.Register(&Definition{
		Ref: "acme/greet@v1",
		Inputs: map[string]Input{
			"name":  {Type: cty.String, Required: true},
			"times": {Type: cty.Number, Default: cty.NumberIntVal(1)},
			"tags":  {Type: cty.List(cty.String)},
		},
		Handler: noop,
	})
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := New()
	r.RegisterModules(testModule{})

	def, err := r.Lookup("acme/greet@v1")
	require.NoError(t, err)
	assert.Equal(t, "acme/greet@v1", def.Ref)
	assert.Equal(t, []string{"acme/greet@v1"}, r.Refs())

	_, err = r.Lookup("acme/greet@v2")
	assert.True(t, errors.Is(err, ErrUnknownAction))
}

func TestRegistry_Panics(t *testing.T) {
	r := New()
	r.RegisterModules(testModule{})
	assert.Panics(t, func() { r.RegisterModules(testModule{}) }, "duplicate registration")
	assert.Panics(t, func() { r.Register(&Definition{Ref: "no-version", Handler: noop}) })
	assert.Panics(t, func() { r.Register(&Definition{Ref: "acme/x@v1"}) })
}

func TestDefinition_Bind(t *testing.T) {
	r := New()
	r.RegisterModules(testModule{})
	def, err := r.Lookup("acme/greet@v1")
	require.NoError(t, err)

	bound, err := def.Bind(map[string]cty.Value{
		"name": cty.StringVal("gridci"),
		"tags": cty.TupleVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")}),
	})
	require.NoError(t, err)
	assert.Equal(t, cty.StringVal("gridci"), bound["name"])
	assert.True(t, bound["times"].RawEquals(cty.NumberIntVal(1)))
	assert.Equal(t, cty.List(cty.String), bound["tags"].Type())

	// Numbers convert to strings.
	bound, err = def.Bind(map[string]cty.Value{"name": cty.NumberIntVal(7)})
	require.NoError(t, err)
	assert.Equal(t, cty.StringVal("7"), bound["name"])

	_, err = def.Bind(map[string]cty.Value{"times": cty.NumberIntVal(2)})
	assert.ErrorContains(t, err, `missing required input "name"`)

	_, err = def.Bind(map[string]cty.Value{"name": cty.StringVal("x"), "colour": cty.StringVal("red")})
	assert.ErrorContains(t, err, `unknown input "colour"`)

	_, err = def.Bind(map[string]cty.Value{"name": cty.StringVal("x"), "times": cty.StringVal("many")})
	assert.ErrorContains(t, err, `input "times"`)

	assert.NoError(t, r.Check("acme/greet@v1", map[string]cty.Value{"name": cty.StringVal("x")}))
	assert.ErrorIs(t, r.Check("acme/missing@v1", nil), ErrUnknownAction)
}

func TestInvocation_Decoders(t *testing.T) {
	inv := &Invocation{Inputs: map[string]cty.Value{
		"s":    cty.StringVal("hello"),
		"b":    cty.True,
		"n":    cty.NumberIntVal(3),
		"list": cty.ListVal([]cty.Value{cty.StringVal("a")}),
		"map":  cty.MapVal(map[string]cty.Value{"k": cty.StringVal("v")}),
		"null": cty.NullVal(cty.String),
	}}

	s, err := inv.String("s")
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	b, err := inv.Bool("b")
	require.NoError(t, err)
	assert.True(t, b)

	n, err := inv.Int("n")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	list, err := inv.Strings("list")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, list)

	m, err := inv.StringMap("map")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "v"}, m)

	assert.False(t, inv.Has("null"))
	_, err = inv.String("null")
	assert.Error(t, err)
	_, err = inv.Bool("s")
	assert.Error(t, err)
}
