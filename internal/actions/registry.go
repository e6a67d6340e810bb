package actions

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"

	"github.com/zclconf/go-cty/cty"
)

// ErrUnknownAction is returned for a reference with no registered handler.
var ErrUnknownAction = errors.New("unknown action")

// refRegex matches `owner/name@version`.
var refRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*/[a-z0-9][a-z0-9_.-]*@v[0-9]+(\.[0-9]+){0,2}$`)

// Module is the interface that all built-in modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds all the registered actions for a single application instance.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]*Definition
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{actions: make(map[string]*Definition)}
}

// RegisterModules lets every module register its actions.
func (r *Registry) RegisterModules(modules ...Module) {
	for _, m := range modules {
		m.Register(r)
	}
}

// Register adds an action definition.
func (r *Registry) Register(def *Definition) {
	if !refRegex.MatchString(def.Ref) {
		panic(fmt.Sprintf("invalid action reference '%s': expected owner/name@vN", def.Ref))
	}
	if def.Handler == nil {
		panic(fmt.Sprintf("action '%s' has no handler", def.Ref))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[def.Ref]; exists {
		panic(fmt.Sprintf("action with reference '%s' already registered", def.Ref))
	}
	slog.Debug("Registering action.", "ref", def.Ref)
	r.actions[def.Ref] = def
}

// Lookup returns the definition registered under ref.
func (r *Registry) Lookup(ref string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.actions[ref]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownAction, ref)
	}
	return def, nil
}

// Check verifies that ref is registered and that inputs bind to its declared
// inputs.
func (r *Registry) Check(ref string, inputs map[string]cty.Value) error {
	def, err := r.Lookup(ref)
	if err != nil {
		return err
	}
	_, err = def.Bind(inputs)
	return err
}

// Refs returns every registered reference, sorted.
func (r *Registry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]string, 0, len(r.actions))
	for ref := range r.actions {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}
