package publish

import (
	"context"
	"testing"

	"github.com/specialistvlad/gridci/internal/registry"
	"github.com/specialistvlad/gridci/internal/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const repo = "ghcr.io/acme/widget"

var platforms = []registry.Platform{
	{OS: "linux", Architecture: "amd64"},
	{OS: "linux", Architecture: "arm64"},
}

func newRun(t *testing.T, ref string) trigger.Run {
	t.Helper()
	run, err := trigger.NewRun(trigger.Push, ref, "0123456789abcdef0123", "acme/widget", 1)
	require.NoError(t, err)
	return run
}

func buildAll(t *testing.T, b registry.Builder, run trigger.Run) {
	t.Helper()
	for _, p := range platforms {
		_, err := BuildPlatform(context.Background(), b, PlatformBuild{Run: run, Repository: repo, Platform: p, Context: "."})
		require.NoError(t, err)
	}
}

func request(run trigger.Run) Request {
	return Request{Run: run, Repository: repo, Platforms: platforms, ProtectedBranches: []string{"main"}}
}

func TestTags(t *testing.T) {
	run := newRun(t, "refs/heads/main")
	assert.Regexp(t, `^0123456789ab-[0-9a-f]{8}$`, RunTag(run))
	assert.Equal(t, RunTag(run)+"-arm64", PlatformTag(run, registry.Platform{OS: "linux", Architecture: "arm64"}))
	assert.Equal(t, RunTag(run)+"-arm-v7", PlatformTag(run, registry.Platform{OS: "linux", Architecture: "arm", Variant: "v7"}))
	assert.Equal(t, RunTag(run)+"-windows-amd64", PlatformTag(run, registry.Platform{OS: "windows", Architecture: "amd64"}))
}

func TestPublish_ProtectedBranch(t *testing.T) {
	ctx := context.Background()
	mem := registry.NewMemory()
	run := newRun(t, "refs/heads/main")
	buildAll(t, mem, run)

	res, err := Publish(ctx, mem, request(run))
	require.NoError(t, err)

	assert.True(t, res.Promoted)
	tags := mem.Tags()
	assert.Len(t, tags, 4, "two platform tags, one manifest tag, one floating tag")
	latest := registry.Ref{Repository: repo, Tag: "latest"}
	assert.Equal(t, res.Digest, tags[latest])
	assert.Equal(t, res.Digest, tags[res.Manifest])

	writes := mem.Writes()
	require.Len(t, writes, 4)
	assert.Equal(t, registry.Write{Op: "tag", Ref: latest, Digest: res.Digest}, writes[3], "the floating tag is written last")
}

func TestPublish_UnprotectedBranchDoesNotPromote(t *testing.T) {
	mem := registry.NewMemory()
	run := newRun(t, "refs/heads/feature/x")
	buildAll(t, mem, run)

	res, err := Publish(context.Background(), mem, request(run))
	require.NoError(t, err)
	assert.False(t, res.Promoted)
	_, ok := mem.Tags()[registry.Ref{Repository: repo, Tag: "latest"}]
	assert.False(t, ok)
}

func TestPublish_TagNamedLikeProtectedBranchDoesNotPromote(t *testing.T) {
	mem := registry.NewMemory()
	run := newRun(t, "refs/tags/main")
	buildAll(t, mem, run)

	res, err := Publish(context.Background(), mem, request(run))
	require.NoError(t, err)
	assert.False(t, res.Promoted)
	assert.Empty(t, res.Floating)
	assert.NotContains(t, mem.Tags(), registry.Ref{Repository: repo, Tag: "latest"})
}

func TestPublish_IdenticalRerunIsIdempotent(t *testing.T) {
	mem := registry.NewMemory()
	run := newRun(t, "refs/heads/main")
	buildAll(t, mem, run)
	first, err := Publish(context.Background(), mem, request(run))
	require.NoError(t, err)
	before := mem.Writes()

	again := newRun(t, "refs/heads/main")
	buildAll(t, mem, again)
	second, err := Publish(context.Background(), mem, request(again))
	require.NoError(t, err)

	assert.Equal(t, first.Manifest, second.Manifest)
	assert.Equal(t, first.Digest, second.Digest)
	assert.Equal(t, before, mem.Writes(), "no new irreversible writes")
}

func TestPublish_MissingPlatformImage(t *testing.T) {
	mem := registry.NewMemory()
	run := newRun(t, "refs/heads/main")
	_, err := BuildPlatform(context.Background(), mem, PlatformBuild{Run: run, Repository: repo, Platform: platforms[0]})
	require.NoError(t, err)

	_, err = Publish(context.Background(), mem, request(run))
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.Len(t, mem.Tags(), 1, "no manifest or floating tag")
}

// lyingRegistry reports a manifest list that lost a platform.
type lyingRegistry struct {
	*registry.Memory
}

func (l lyingRegistry) Inspect(ctx context.Context, ref registry.Ref) (*registry.Manifest, error) {
	m, err := l.Memory.Inspect(ctx, ref)
	if err != nil {
		return nil, err
	}
	m.Manifests = m.Manifests[:1]
	return m, nil
}

func TestPublish_VerificationFailureHaltsPromotion(t *testing.T) {
	mem := registry.NewMemory()
	run := newRun(t, "refs/heads/main")
	buildAll(t, mem, run)

	req := request(run)
	req.Mirrors = []string{"docker.io/acme/widget"}
	res, err := Publish(context.Background(), lyingRegistry{mem}, req)

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Detail, "missing linux/arm64")
	assert.False(t, res.Promoted)
	assert.Empty(t, res.Mirrors)

	tags := mem.Tags()
	assert.Len(t, tags, 3, "immutable tags stay published")
	_, ok := tags[registry.Ref{Repository: repo, Tag: "latest"}]
	assert.False(t, ok)
}

func TestPublish_Mirrors(t *testing.T) {
	mem := registry.NewMemory()
	run := newRun(t, "refs/heads/main")
	buildAll(t, mem, run)

	req := request(run)
	req.Mirrors = []string{"docker.io/acme/widget"}
	req.FloatingTag = "stable"
	res, err := Publish(context.Background(), mem, req)
	require.NoError(t, err)

	mirror := registry.Ref{Repository: "docker.io/acme/widget", Tag: RunTag(run)}
	assert.Equal(t, []registry.Ref{mirror}, res.Mirrors)
	tags := mem.Tags()
	assert.Equal(t, res.Digest, tags[mirror])
	assert.Equal(t, res.Digest, tags[registry.Ref{Repository: "docker.io/acme/widget", Tag: "stable"}])
	assert.Equal(t, res.Digest, tags[registry.Ref{Repository: repo, Tag: "stable"}])
}

// cancellingRegistry cancels the run as soon as a mirror copy completes.
type cancellingRegistry struct {
	*registry.Memory
	cancel context.CancelFunc
}

func (c cancellingRegistry) Copy(ctx context.Context, src, dst registry.Ref) (registry.Digest, error) {
	d, err := c.Memory.Copy(ctx, src, dst)
	c.cancel()
	return d, err
}

func TestPublish_CancellationBeforePromotion(t *testing.T) {
	mem := registry.NewMemory()
	run := newRun(t, "refs/heads/main")
	buildAll(t, mem, run)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := request(run)
	req.Mirrors = []string{"docker.io/acme/widget"}
	res, err := Publish(ctx, cancellingRegistry{Memory: mem, cancel: cancel}, req)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Promoted)
	for ref := range mem.Tags() {
		assert.NotEqual(t, "latest", ref.Tag)
	}
}
