// Package ledger records every write-once image tag in Postgres. A registry
// that allows tag overwrites still cannot move an immutable tag published
// through the ledger, and a re-run finds its earlier tags without rebuilding.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/postgres"
	"github.com/specialistvlad/gridci/internal/registry"
)

// Store persists tag claims.
type Store interface {
	Lookup(ctx context.Context, ref registry.Ref) (registry.Digest, bool, error)
	// Claim binds ref to d. Claiming an existing binding with the same digest
	// succeeds; a different digest is registry.ErrImmutableTag.
	Claim(ctx context.Context, ref registry.Ref, d registry.Digest, runID string) error
}

const schema = `
CREATE TABLE IF NOT EXISTS image_tags (
	ref        TEXT PRIMARY KEY,
	digest     TEXT NOT NULL,
	run_id     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// SQLStore is a Store over database/sql.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the ledger table.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate image_tags: %w", err)
	}
	return nil
}

func (s *SQLStore) Lookup(ctx context.Context, ref registry.Ref) (registry.Digest, bool, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM image_tags WHERE ref = $1`, ref.String()).Scan(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup %s: %w", ref, err)
	}
	return registry.Digest(d), true, nil
}

func (s *SQLStore) Claim(ctx context.Context, ref registry.Ref, d registry.Digest, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO image_tags (ref, digest, run_id) VALUES ($1, $2, $3)`,
		ref.String(), string(d), runID)
	if err == nil {
		return nil
	}
	if !postgres.IsUniqueViolation(err) {
		return fmt.Errorf("claim %s: %w", ref, err)
	}
	have, _, lerr := s.Lookup(ctx, ref)
	if lerr != nil {
		return lerr
	}
	if have != d {
		return fmt.Errorf("%w: %s is recorded as %s", registry.ErrImmutableTag, ref, have)
	}
	return nil
}

// Registry decorates a registry so every write-once tag is claimed in the
// ledger.
type Registry struct {
	inner   registry.Registry
	builder registry.Builder
	store   Store
	runID   string
}

// New wraps inner and builder. runID is recorded with every claim.
func New(inner registry.Registry, builder registry.Builder, store Store, runID string) *Registry {
	return &Registry{inner: inner, builder: builder, store: store, runID: runID}
}

// Build returns the recorded image when the tag is already claimed, without
// building again.
func (r *Registry) Build(ctx context.Context, req registry.BuildRequest) (registry.Descriptor, error) {
	d, ok, err := r.store.Lookup(ctx, req.Ref)
	if err != nil {
		return registry.Descriptor{}, err
	}
	if ok {
		ctxlog.FromContext(ctx).Info("Tag already recorded; skipping build.", "ref", req.Ref.String(), "digest", d)
		return registry.Descriptor{Ref: req.Ref, Digest: d, MediaType: registry.MediaTypeImage, Platform: req.Platform}, nil
	}
	desc, err := r.builder.Build(ctx, req)
	if err != nil {
		return registry.Descriptor{}, err
	}
	if err := r.store.Claim(ctx, req.Ref, desc.Digest, r.runID); err != nil {
		return registry.Descriptor{}, err
	}
	return desc, nil
}

func (r *Registry) Resolve(ctx context.Context, ref registry.Ref) (registry.Digest, error) {
	return r.inner.Resolve(ctx, ref)
}

func (r *Registry) Inspect(ctx context.Context, ref registry.Ref) (*registry.Manifest, error) {
	return r.inner.Inspect(ctx, ref)
}

// PushManifestList checks the ledger first. A recorded tag is never pushed
// again: it is returned when the registry still holds the same children under
// the recorded digest, and refused otherwise.
func (r *Registry) PushManifestList(ctx context.Context, ref registry.Ref, children []registry.Descriptor) (registry.Digest, error) {
	if have, ok, err := r.store.Lookup(ctx, ref); err != nil {
		return "", err
	} else if ok {
		m, err := r.inner.Inspect(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("%s is recorded as %s: %w", ref, have, err)
		}
		if m.Digest != have || !sameChildren(m.Manifests, children) {
			return "", fmt.Errorf("%w: %s is recorded as %s", registry.ErrImmutableTag, ref, have)
		}
		return have, nil
	}
	d, err := r.inner.PushManifestList(ctx, ref, children)
	if err != nil {
		return "", err
	}
	return d, r.store.Claim(ctx, ref, d, r.runID)
}

// Tag is not recorded: floating tags are mutable.
func (r *Registry) Tag(ctx context.Context, src registry.Ref, d registry.Digest, dst registry.Ref) error {
	return r.inner.Tag(ctx, src, d, dst)
}

func (r *Registry) Copy(ctx context.Context, src, dst registry.Ref) (registry.Digest, error) {
	if have, ok, err := r.store.Lookup(ctx, dst); err != nil {
		return "", err
	} else if ok {
		want, err := r.inner.Resolve(ctx, src)
		if err != nil {
			return "", err
		}
		if want != have {
			return "", fmt.Errorf("%w: %s is recorded as %s", registry.ErrImmutableTag, dst, have)
		}
	}
	d, err := r.inner.Copy(ctx, src, dst)
	if err != nil {
		return "", err
	}
	return d, r.store.Claim(ctx, dst, d, r.runID)
}

func sameChildren(have, want []registry.Descriptor) bool {
	if len(have) != len(want) {
		return false
	}
	set := make(map[registry.Digest]bool, len(have))
	for _, h := range have {
		set[h.Digest] = true
	}
	for _, w := range want {
		if !set[w.Digest] {
			return false
		}
	}
	return true
}
