package publish

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/gate"
	"github.com/specialistvlad/gridci/internal/registry"
	"github.com/specialistvlad/gridci/internal/trigger"
)

// VerificationError is PublishVerificationFailed: the pushed manifest list
// does not match the intended platform set.
type VerificationError struct {
	Ref    registry.Ref
	Detail string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("publish verification failed for %s: %s", e.Ref, e.Detail)
}

// PlatformBuild is one platform instance's build.
type PlatformBuild struct {
	Run        trigger.Run
	Repository string
	Platform   registry.Platform
	Context    string
	Dockerfile string
	BuildArgs  map[string]string
}

// BuildPlatform builds and pushes one platform image under its immutable tag.
func BuildPlatform(ctx context.Context, b registry.Builder, pb PlatformBuild) (registry.Descriptor, error) {
	ref := registry.Ref{Repository: pb.Repository, Tag: PlatformTag(pb.Run, pb.Platform)}
	logger := ctxlog.FromContext(ctx).With("ref", ref.String())
	logger.Info("Building platform image.", "platform", pb.Platform.String())

	desc, err := b.Build(ctx, registry.BuildRequest{
		Context:    pb.Context,
		Dockerfile: pb.Dockerfile,
		Platform:   pb.Platform,
		Ref:        ref,
		BuildArgs:  pb.BuildArgs,
		Labels: map[string]string{
			"org.opencontainers.image.revision": pb.Run.SHA,
			"org.opencontainers.image.source":   pb.Run.Repository,
		},
	})
	if err != nil {
		return registry.Descriptor{}, fmt.Errorf("failed to build %s: %w", ref, err)
	}
	logger.Info("Platform image pushed.", "digest", desc.Digest)
	return desc, nil
}

// Request describes the publish of one run's manifest list.
type Request struct {
	Run        trigger.Run
	Repository string
	Platforms  []registry.Platform
	// FloatingTag defaults to DefaultFloatingTag.
	FloatingTag       string
	ProtectedBranches []string
	// Mirrors are secondary repositories, e.g. docker.io/acme/widget.
	Mirrors []string
}

// Result reports what was published.
type Result struct {
	Manifest  registry.Ref
	Digest    registry.Digest
	Children  []registry.Descriptor
	Mirrors   []registry.Ref
	Promoted  bool
	Floating  []registry.Ref
	Platforms []registry.Platform
}

// Publish composes, verifies, mirrors and promotes the run's manifest list.
// The platform images must already be pushed by BuildPlatform.
func Publish(ctx context.Context, reg registry.Registry, req Request) (*Result, error) {
	if len(req.Platforms) == 0 {
		return nil, fmt.Errorf("publish %s: no platforms", req.Repository)
	}
	manifest := registry.Ref{Repository: req.Repository, Tag: RunTag(req.Run)}
	logger := ctxlog.FromContext(ctx).With("manifest", manifest.String())
	res := &Result{Manifest: manifest, Platforms: req.Platforms}

	for _, p := range req.Platforms {
		child := registry.Ref{Repository: req.Repository, Tag: PlatformTag(req.Run, p)}
		d, err := reg.Resolve(ctx, child)
		if err != nil {
			return nil, fmt.Errorf("platform image %s is not published: %w", child, err)
		}
		res.Children = append(res.Children, registry.Descriptor{Ref: child, Digest: d, Platform: p})
	}

	d, err := reg.PushManifestList(ctx, manifest, res.Children)
	if err != nil {
		return nil, fmt.Errorf("failed to push manifest list %s: %w", manifest, err)
	}
	res.Digest = d
	logger.Info("Manifest list pushed.", "digest", d)

	if err := verify(ctx, reg, manifest, d, res.Children); err != nil {
		logger.Error("Manifest verification failed; promotion halted.", "error", err)
		return res, err
	}
	logger.Info("Manifest list verified.", "platforms", len(res.Children))

	for _, repo := range req.Mirrors {
		dst := registry.Ref{Repository: repo, Tag: manifest.Tag}
		md, err := reg.Copy(ctx, manifest, dst)
		if err != nil {
			return res, fmt.Errorf("failed to mirror %s to %s: %w", manifest, dst, err)
		}
		if md != d {
			return res, &VerificationError{Ref: dst, Detail: fmt.Sprintf("mirror digest %s differs from %s", md, d)}
		}
		res.Mirrors = append(res.Mirrors, dst)
		logger.Info("Manifest list mirrored.", "mirror", dst.String())
	}

	promote, err := gate.Eval(gate.Protected(req.ProtectedBranches), gate.Context{Run: req.Run})
	if err != nil {
		return res, err
	}
	if !promote {
		logger.Info("Ref is not protected; floating tag left unchanged.", "ref", req.Run.RefName())
		return res, nil
	}
	// A run cancelled before this point must not move the pointer.
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("promotion aborted: %w", err)
	}

	floating := req.FloatingTag
	if floating == "" {
		floating = DefaultFloatingTag
	}
	repos := append([]string{req.Repository}, req.Mirrors...)
	for _, repo := range repos {
		src := registry.Ref{Repository: repo, Tag: manifest.Tag}
		dst := registry.Ref{Repository: repo, Tag: floating}
		if err := reg.Tag(ctx, src, d, dst); err != nil {
			return res, fmt.Errorf("failed to promote %s: %w", dst, err)
		}
		res.Floating = append(res.Floating, dst)
		logger.Info("Floating tag promoted.", "tag", dst.String(), "digest", d)
	}
	res.Promoted = true
	return res, nil
}

// verify inspects the pushed list and checks it references exactly the
// intended children.
func verify(ctx context.Context, reg registry.Registry, ref registry.Ref, want registry.Digest, children []registry.Descriptor) error {
	m, err := reg.Inspect(ctx, ref)
	if err != nil {
		return &VerificationError{Ref: ref, Detail: fmt.Sprintf("inspect failed: %v", err)}
	}
	if m.Digest != want {
		return &VerificationError{Ref: ref, Detail: fmt.Sprintf("digest %s, pushed %s", m.Digest, want)}
	}

	expected := make(map[string]registry.Digest, len(children))
	for _, c := range children {
		expected[c.Platform.String()] = c.Digest
	}
	got := make(map[string]registry.Digest, len(m.Manifests))
	for _, c := range m.Manifests {
		got[c.Platform.String()] = c.Digest
	}

	var problems []string
	for p, d := range expected {
		switch have, ok := got[p]; {
		case !ok:
			problems = append(problems, "missing "+p)
		case have != d:
			problems = append(problems, fmt.Sprintf("%s is %s, expected %s", p, have, d))
		}
	}
	for p := range got {
		if _, ok := expected[p]; !ok {
			problems = append(problems, "unexpected "+p)
		}
	}
	if len(problems) > 0 {
		slices.Sort(problems)
		return &VerificationError{Ref: ref, Detail: strings.Join(problems, "; ")}
	}
	return nil
}
