package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store is an external source of secret values.
type Store interface {
	// Lookup returns the value of name. A missing secret is reported with
	// ok == false, not an error.
	Lookup(ctx context.Context, name string) (value string, ok bool, err error)
}

// EnvStore reads secrets from process environment variables named
// Prefix + name.
type EnvStore struct {
	Prefix string
}

func (s EnvStore) Lookup(_ context.Context, name string) (string, bool, error) {
	v, ok := os.LookupEnv(s.Prefix + name)
	return v, ok, nil
}

// DirStore reads each secret from a file named after it, the layout used by
// mounted secret volumes. A single trailing newline is trimmed.
type DirStore struct {
	Dir string
}

func (s DirStore) Lookup(_ context.Context, name string) (string, bool, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", false, fmt.Errorf("invalid secret name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read secret %s: %w", name, err)
	}
	v := strings.TrimSuffix(string(data), "\n")
	return strings.TrimSuffix(v, "\r"), true, nil
}

// MapStore is an in-memory store.
type MapStore map[string]string

func (s MapStore) Lookup(_ context.Context, name string) (string, bool, error) {
	v, ok := s[name]
	return v, ok, nil
}

// Chain consults each store in order; the first store holding a value wins.
type Chain []Store

func (c Chain) Lookup(ctx context.Context, name string) (string, bool, error) {
	for _, s := range c {
		v, ok, err := s.Lookup(ctx, name)
		if err != nil {
			return "", false, err
		}
		if ok {
			return v, true, nil
		}
	}
	return "", false, nil
}
