package registry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/specialistvlad/gridci/internal/ctxlog"
)

// Commander runs an external program and returns its standard output.
type Commander interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecCommander runs programs with os/exec.
type ExecCommander struct{}

func (ExecCommander) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Docker is a Registry and Builder backed by the docker buildx CLI. Write-once
// tags are enforced client-side by resolving the tag before every write.
type Docker struct {
	Cmd Commander
	// Binary defaults to "docker".
	Binary string
}

// NewDocker returns a Docker registry using the local docker CLI.
func NewDocker() *Docker {
	return &Docker{Cmd: ExecCommander{}}
}

func (d *Docker) run(ctx context.Context, args ...string) ([]byte, error) {
	bin := d.Binary
	if bin == "" {
		bin = "docker"
	}
	ctxlog.FromContext(ctx).Debug("Running docker.", "args", args)
	out, err := d.Cmd.Output(ctx, bin, args...)
	if err != nil && isNotFound(err) {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return out, err
}

// isNotFound reports whether the registry answered that a reference does not
// exist. A missing docker binary is a broken backend, not a missing tag.
func isNotFound(err error) bool {
	if errors.Is(err, exec.ErrNotFound) {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "command not found") || strings.Contains(msg, "executable file not found") {
		return false
	}
	return strings.Contains(msg, "manifest unknown") || strings.Contains(msg, ": not found")
}

// rawIndex is the subset of an OCI index or image manifest that is read back.
type rawIndex struct {
	MediaType string `json:"mediaType"`
	Manifests []struct {
		MediaType string   `json:"mediaType"`
		Digest    Digest   `json:"digest"`
		Platform  Platform `json:"platform"`
	} `json:"manifests"`
}

func (d *Docker) Build(ctx context.Context, req BuildRequest) (Descriptor, error) {
	if existing, err := d.Resolve(ctx, req.Ref); err == nil {
		ctxlog.FromContext(ctx).Info("Image tag already exists; reusing it.", "ref", req.Ref.String(), "digest", existing)
		return Descriptor{Ref: req.Ref, Digest: existing, MediaType: MediaTypeImage, Platform: req.Platform}, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Descriptor{}, err
	}

	meta, err := os.CreateTemp("", "gridci-build-*.json")
	if err != nil {
		return Descriptor{}, fmt.Errorf("failed to create metadata file: %w", err)
	}
	metaPath := meta.Name()
	_ = meta.Close()
	defer os.Remove(metaPath)

	args := []string{"buildx", "build",
		"--platform", req.Platform.String(),
		"--tag", req.Ref.String(),
		"--provenance=false",
		"--metadata-file", metaPath,
		"--push",
	}
	if req.Dockerfile != "" {
		args = append(args, "--file", req.Dockerfile)
	}
	for _, k := range slices.Sorted(maps.Keys(req.BuildArgs)) {
		args = append(args, "--build-arg", k+"="+req.BuildArgs[k])
	}
	for _, k := range slices.Sorted(maps.Keys(req.Labels)) {
		args = append(args, "--label", k+"="+req.Labels[k])
	}
	buildCtx := req.Context
	if buildCtx == "" {
		buildCtx = "."
	}
	args = append(args, filepath.Clean(buildCtx))

	if _, err := d.run(ctx, args...); err != nil {
		return Descriptor{}, fmt.Errorf("failed to build %s: %w", req.Ref, err)
	}
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return Descriptor{}, fmt.Errorf("failed to read build metadata: %w", err)
	}
	var md struct {
		Digest Digest `json:"containerimage.digest"`
	}
	if err := json.Unmarshal(raw, &md); err != nil || md.Digest == "" {
		return Descriptor{}, fmt.Errorf("build metadata for %s has no image digest", req.Ref)
	}
	return Descriptor{Ref: req.Ref, Digest: md.Digest, MediaType: MediaTypeImage, Platform: req.Platform}, nil
}

func (d *Docker) Resolve(ctx context.Context, ref Ref) (Digest, error) {
	raw, err := d.run(ctx, "buildx", "imagetools", "inspect", "--raw", ref.String())
	if err != nil {
		return "", err
	}
	return rawDigest(raw), nil
}

func rawDigest(raw []byte) Digest {
	sum := sha256.Sum256(raw)
	return Digest("sha256:" + hex.EncodeToString(sum[:]))
}

func (d *Docker) Inspect(ctx context.Context, ref Ref) (*Manifest, error) {
	raw, err := d.run(ctx, "buildx", "imagetools", "inspect", "--raw", ref.String())
	if err != nil {
		return nil, err
	}
	var idx rawIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("failed to decode manifest for %s: %w", ref, err)
	}
	m := &Manifest{Digest: rawDigest(raw), MediaType: idx.MediaType}
	for _, c := range idx.Manifests {
		m.Manifests = append(m.Manifests, Descriptor{
			Ref:       Ref{Repository: ref.Repository},
			Digest:    c.Digest,
			MediaType: c.MediaType,
			Platform:  c.Platform,
		})
	}
	return m, nil
}

func (d *Docker) PushManifestList(ctx context.Context, ref Ref, children []Descriptor) (Digest, error) {
	if existing, err := d.Inspect(ctx, ref); err == nil {
		if sameChildren(existing.Manifests, children) {
			return existing.Digest, nil
		}
		return "", immutable(ref, existing.Digest, "a different manifest list")
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	args := []string{"buildx", "imagetools", "create", "--tag", ref.String()}
	for _, c := range children {
		args = append(args, c.Ref.At(c.Digest))
	}
	if _, err := d.run(ctx, args...); err != nil {
		return "", fmt.Errorf("failed to push manifest list %s: %w", ref, err)
	}
	return d.Resolve(ctx, ref)
}

func sameChildren(have, want []Descriptor) bool {
	if len(have) != len(want) {
		return false
	}
	set := make(map[Digest]bool, len(have))
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

func (d *Docker) Tag(ctx context.Context, src Ref, digest Digest, dst Ref) error {
	if _, err := d.run(ctx, "buildx", "imagetools", "create", "--tag", dst.String(), src.At(digest)); err != nil {
		return fmt.Errorf("failed to tag %s as %s: %w", src.At(digest), dst, err)
	}
	return nil
}

func (d *Docker) Copy(ctx context.Context, src Ref, dst Ref) (Digest, error) {
	want, err := d.Resolve(ctx, src)
	if err != nil {
		return "", err
	}
	if have, err := d.Resolve(ctx, dst); err == nil {
		if have != want {
			return "", immutable(dst, have, want)
		}
		return have, nil
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	if _, err := d.run(ctx, "buildx", "imagetools", "create", "--tag", dst.String(), src.At(want)); err != nil {
		return "", fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return want, nil
}
