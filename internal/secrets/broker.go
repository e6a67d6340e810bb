package secrets

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/specialistvlad/gridci/internal/ctxlog"
)

// MissingError is the CredentialMissing failure.
type MissingError struct {
	Names []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("credential missing: %s", strings.Join(e.Names, ", "))
}

// Broker resolves secrets on demand. It never caches values between calls.
type Broker struct {
	store Store
}

// NewBroker creates a broker over store.
func NewBroker(store Store) *Broker {
	return &Broker{store: store}
}

// Resolve looks up every name. If any is missing or empty the result is a
// *MissingError naming all of them, and no values are returned.
func (b *Broker) Resolve(ctx context.Context, names []string) (Set, error) {
	logger := ctxlog.FromContext(ctx)
	values := make(map[string]string, len(names))
	var missing []string

	for _, name := range names {
		if _, done := values[name]; done {
			continue
		}
		v, ok, err := b.store.Lookup(ctx, name)
		if err != nil {
			return Set{}, fmt.Errorf("failed to resolve secret %s: %w", name, err)
		}
		if !ok || v == "" {
			missing = append(missing, name)
			continue
		}
		values[name] = v
	}

	if len(missing) > 0 {
		logger.Warn("Required secrets are unavailable.", "missing", missing)
		return Set{}, &MissingError{Names: missing}
	}
	logger.Debug("Secrets resolved.", "names", names)
	return Set{values: values}, nil
}

// Set is a resolved group of secret values.
type Set struct {
	values map[string]string
}

// Get returns a resolved value.
func (s Set) Get(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Names returns the resolved names, sorted.
func (s Set) Names() []string {
	return slices.Sorted(maps.Keys(s.values))
}

// Values returns every resolved value, for redaction.
func (s Set) Values() []string {
	out := make([]string, 0, len(s.values))
	for _, n := range s.Names() {
		out = append(out, s.values[n])
	}
	return out
}

// Env exposes the secrets as environment variables named after them.
func (s Set) Env() map[string]string {
	return maps.Clone(s.values)
}

// Merge returns a set holding both groups; other wins on conflicts.
func (s Set) Merge(other Set) Set {
	merged := make(map[string]string, len(s.values)+len(other.values))
	maps.Copy(merged, s.values)
	maps.Copy(merged, other.values)
	return Set{values: merged}
}

// Len returns the number of resolved secrets.
func (s Set) Len() int {
	return len(s.values)
}

// String never prints values.
func (s Set) String() string {
	return fmt.Sprintf("secrets%v", s.Names())
}
