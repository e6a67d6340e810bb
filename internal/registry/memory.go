package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/specialistvlad/gridci/internal/ctxlog"
)

// Memory is an in-process Registry and Builder. Digests are derived from
// content so identical inputs always produce identical digests.
type Memory struct {
	mu      sync.RWMutex
	objects map[Digest]*Manifest
	tags    map[Ref]Digest
	writes  []Write
}

// Write records one successful write that changed registry state.
type Write struct {
	Op     string
	Ref    Ref
	Digest Digest
}

// NewMemory creates an empty registry.
func NewMemory() *Memory {
	return &Memory{
		objects: make(map[Digest]*Manifest),
		tags:    make(map[Ref]Digest),
	}
}

func digestOf(v any) Digest {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("registry: digest input is not serializable: %v", err))
	}
	sum := sha256.Sum256(b)
	return Digest("sha256:" + hex.EncodeToString(sum[:]))
}

// Build stores a synthetic image whose digest covers every build input
// except the destination tag.
func (m *Memory) Build(ctx context.Context, req BuildRequest) (Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return Descriptor{}, err
	}
	d := digestOf(struct {
		Context    string
		Dockerfile string
		Platform   Platform
		BuildArgs  [][2]string
		Labels     [][2]string
	}{req.Context, req.Dockerfile, req.Platform, sortedPairs(req.BuildArgs), sortedPairs(req.Labels)})

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bindOnce(req.Ref, d); err != nil {
		return Descriptor{}, err
	}
	m.objects[d] = &Manifest{Digest: d, MediaType: MediaTypeImage, Platform: req.Platform}
	ctxlog.FromContext(ctx).Debug("Image pushed.", "ref", req.Ref.String(), "digest", d)
	return Descriptor{Ref: req.Ref, Digest: d, MediaType: MediaTypeImage, Platform: req.Platform}, nil
}

func (m *Memory) Resolve(_ context.Context, ref Ref) (Digest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.tags[ref]
	if !ok {
		return "", fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	return d, nil
}

func (m *Memory) PushManifestList(ctx context.Context, ref Ref, children []Descriptor) (Digest, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]Descriptor, 0, len(children))
	for _, c := range children {
		obj, ok := m.objects[c.Digest]
		if !ok {
			return "", fmt.Errorf("child %s: %w", c.Ref.At(c.Digest), ErrNotFound)
		}
		entries = append(entries, Descriptor{Ref: c.Ref, Digest: c.Digest, MediaType: obj.MediaType, Platform: obj.Platform})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Platform.String() < entries[j].Platform.String()
	})

	type entry struct {
		Digest   Digest
		Platform Platform
	}
	content := make([]entry, len(entries))
	for i, e := range entries {
		content[i] = entry{e.Digest, e.Platform}
	}
	d := digestOf(content)

	if err := m.bindOnce(ref, d); err != nil {
		return "", err
	}
	m.objects[d] = &Manifest{Digest: d, MediaType: MediaTypeIndex, Manifests: entries}
	ctxlog.FromContext(ctx).Debug("Manifest list pushed.", "ref", ref.String(), "digest", d, "platforms", len(entries))
	return d, nil
}

func (m *Memory) Inspect(_ context.Context, ref Ref) (*Manifest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.tags[ref]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	obj := *m.objects[d]
	obj.Manifests = slices.Clone(obj.Manifests)
	return &obj, nil
}

func (m *Memory) Tag(ctx context.Context, src Ref, d Digest, dst Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[d]; !ok {
		return fmt.Errorf("%s: %w", src.At(d), ErrNotFound)
	}
	if m.tags[dst] == d {
		return nil
	}
	m.tags[dst] = d
	m.writes = append(m.writes, Write{Op: "tag", Ref: dst, Digest: d})
	return nil
}

func (m *Memory) Copy(ctx context.Context, src Ref, dst Ref) (Digest, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.tags[src]
	if !ok {
		return "", fmt.Errorf("%s: %w", src, ErrNotFound)
	}
	if err := m.bindOnce(dst, d); err != nil {
		return "", err
	}
	return d, nil
}

// bindOnce binds a write-once tag. Callers hold m.mu.
func (m *Memory) bindOnce(ref Ref, d Digest) error {
	if have, ok := m.tags[ref]; ok {
		if have != d {
			return immutable(ref, have, d)
		}
		return nil
	}
	m.tags[ref] = d
	m.writes = append(m.writes, Write{Op: "push", Ref: ref, Digest: d})
	return nil
}

// Tags returns every tag in the registry with its digest.
func (m *Memory) Tags() map[Ref]Digest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.tags)
}

// Writes returns the state-changing writes in order. Idempotent re-writes are
// not recorded.
func (m *Memory) Writes() []Write {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.writes)
}

func sortedPairs(m map[string]string) [][2]string {
	out := make([][2]string, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, [2]string{k, m[k]})
	}
	return out
}
