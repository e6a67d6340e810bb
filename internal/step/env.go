package step

import (
	"maps"
	"os"
	"slices"
	"strings"
)

// Env is an immutable, merged environment.
type Env struct {
	vars map[string]string
}

// MergeEnv merges layers in order; later layers win.
func MergeEnv(layers ...map[string]string) Env {
	vars := make(map[string]string)
	for _, l := range layers {
		maps.Copy(vars, l)
	}
	return Env{vars: vars}
}

// ReservedPrefix marks the orchestrator's own variables (credentials, DSNs)
// that steps never see.
const ReservedPrefix = "GRIDCI_"

// ProcessEnv captures the current process environment as a layer, without
// ReservedPrefix variables or any variable starting with one of withheld.
// Secrets reach a step only through the broker when it declares them.
func ProcessEnv(withheld ...string) map[string]string {
	prefixes := []string{ReservedPrefix}
	for _, p := range withheld {
		if p != "" {
			prefixes = append(prefixes, p)
		}
	}

	env := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || slices.ContainsFunc(prefixes, func(p string) bool { return strings.HasPrefix(k, p) }) {
			continue
		}
		env[k] = v
	}
	return env
}

// Get returns one variable.
func (e Env) Get(key string) (string, bool) {
	v, ok := e.vars[key]
	return v, ok
}

// Map returns a copy of the variables.
func (e Env) Map() map[string]string {
	return maps.Clone(e.vars)
}

// Environ returns the variables as sorted KEY=value pairs.
func (e Env) Environ() []string {
	out := make([]string, 0, len(e.vars))
	for _, k := range slices.Sorted(maps.Keys(e.vars)) {
		out = append(out, k+"="+e.vars[k])
	}
	return out
}
