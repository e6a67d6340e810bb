package publish

import (
	"strings"

	"github.com/specialistvlad/gridci/internal/registry"
	"github.com/specialistvlad/gridci/internal/trigger"
)

// DefaultFloatingTag is the mutable pointer promoted on protected refs.
const DefaultFloatingTag = "latest"

// RunTag is the immutable run-scoped tag. It depends only on the run's
// deterministic identity, so an identical re-run reproduces it.
func RunTag(run trigger.Run) string {
	id := strings.ReplaceAll(run.ID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return run.ShortSHA() + "-" + id
}

// PlatformTag is the immutable tag of one platform image of the run.
func PlatformTag(run trigger.Run, p registry.Platform) string {
	return RunTag(run) + "-" + platformSlug(p)
}

func platformSlug(p registry.Platform) string {
	parts := []string{p.Architecture}
	if p.OS != "linux" {
		parts = append([]string{p.OS}, parts...)
	}
	if p.Variant != "" {
		parts = append(parts, p.Variant)
	}
	return strings.Join(parts, "-")
}
