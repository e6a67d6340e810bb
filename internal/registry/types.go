package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a reference does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrImmutableTag is returned when a write-once tag would change digest.
	ErrImmutableTag = errors.New("tag is immutable")
)

// Media types of the pushed objects.
const (
	MediaTypeImage = "application/vnd.oci.image.manifest.v1+json"
	MediaTypeIndex = "application/vnd.oci.image.index.v1+json"
)

// Digest is a content digest, e.g. "sha256:ab12...".
type Digest string

// Ref is a tag reference, e.g. ghcr.io/acme/widget:run-1234-amd64.
type Ref struct {
	Repository string
	Tag        string
}

func (r Ref) String() string {
	return r.Repository + ":" + r.Tag
}

// At returns the digest-pinned form of the reference's repository.
func (r Ref) At(d Digest) string {
	return r.Repository + "@" + string(d)
}

// ParseRef parses `repository:tag`. The tag separator is the last colon
// after the last slash, so registry ports are preserved.
func ParseRef(s string) (Ref, error) {
	slash := strings.LastIndex(s, "/")
	colon := strings.LastIndex(s, ":")
	if colon <= slash || colon == len(s)-1 || colon == 0 {
		return Ref{}, fmt.Errorf("invalid image reference %q: expected repository:tag", s)
	}
	return Ref{Repository: s[:colon], Tag: s[colon+1:]}, nil
}

// Platform identifies one target of a multi-architecture image.
type Platform struct {
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	Variant      string `json:"variant,omitempty"`
}

func (p Platform) String() string {
	s := p.OS + "/" + p.Architecture
	if p.Variant != "" {
		s += "/" + p.Variant
	}
	return s
}

// ParsePlatform parses `os/arch[/variant]`. A bare architecture means linux.
func ParsePlatform(s string) (Platform, error) {
	parts := strings.Split(s, "/")
	switch len(parts) {
	case 1:
		if parts[0] == "" {
			break
		}
		return Platform{OS: "linux", Architecture: parts[0]}, nil
	case 2:
		return Platform{OS: parts[0], Architecture: parts[1]}, nil
	case 3:
		return Platform{OS: parts[0], Architecture: parts[1], Variant: parts[2]}, nil
	}
	return Platform{}, fmt.Errorf("invalid platform %q", s)
}

// Descriptor points at one pushed object.
type Descriptor struct {
	Ref       Ref
	Digest    Digest
	MediaType string
	Platform  Platform
}

// Manifest is the inspected form of a pushed object. Manifests is set for a
// manifest list.
type Manifest struct {
	Digest    Digest
	MediaType string
	Platform  Platform
	Manifests []Descriptor
}

// Platforms returns the platforms a manifest list references.
func (m *Manifest) Platforms() []Platform {
	out := make([]Platform, 0, len(m.Manifests))
	for _, d := range m.Manifests {
		out = append(out, d.Platform)
	}
	return out
}

// Registry is the push/pull surface of an image registry.
type Registry interface {
	// Resolve returns the digest a reference currently points at.
	Resolve(ctx context.Context, ref Ref) (Digest, error)
	// PushManifestList writes a write-once manifest list over children.
	PushManifestList(ctx context.Context, ref Ref, children []Descriptor) (Digest, error)
	// Inspect reads back a pushed object.
	Inspect(ctx context.Context, ref Ref) (*Manifest, error)
	// Tag points dst at digest d of src's repository. It is the only
	// mutating write and is used for floating tags.
	Tag(ctx context.Context, src Ref, d Digest, dst Ref) error
	// Copy writes src's current content under the write-once tag dst,
	// possibly in another registry.
	Copy(ctx context.Context, src Ref, dst Ref) (Digest, error)
}

// BuildRequest describes one platform image build.
type BuildRequest struct {
	Context    string
	Dockerfile string
	Platform   Platform
	Ref        Ref
	BuildArgs  map[string]string
	Labels     map[string]string
}

// Builder builds and pushes a platform image under a write-once tag.
type Builder interface {
	Build(ctx context.Context, req BuildRequest) (Descriptor, error)
}

func immutable(ref Ref, have, want Digest) error {
	return fmt.Errorf("%w: %s points at %s, refusing %s", ErrImmutableTag, ref, have, want)
}
