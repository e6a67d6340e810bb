// Package image provides the multi-platform image actions: building one
// platform image per matrix instance, and composing and promoting the
// manifest list once every platform has been pushed.
package image

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/gridci/internal/actions"
	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/publish"
	"github.com/specialistvlad/gridci/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

const (
	BuildPushRef = "gridci/build-push@v1"
	ManifestRef  = "gridci/manifest@v1"
)

// Module registers the image actions against one builder and registry.
type Module struct {
	Builder  registry.Builder
	Registry registry.Registry
}

var _ actions.Module = (*Module)(nil)

// platformOf reads the platform input, falling back to the instance's
// `platform` matrix axis.
func platformOf(inv *actions.Invocation) (registry.Platform, error) {
	raw := inv.Matrix["platform"]
	if inv.Has("platform") {
		s, err := inv.String("platform")
		if err != nil {
			return registry.Platform{}, err
		}
		raw = s
	}
	if raw == "" {
		return registry.Platform{}, errors.New("no platform input and no platform matrix axis")
	}
	return registry.ParsePlatform(raw)
}

func (m *Module) buildPush(ctx context.Context, inv *actions.Invocation) error {
	if m.Builder == nil {
		return errors.New("no image builder configured")
	}
	pb := publish.PlatformBuild{Run: inv.Run}
	var err error
	if pb.Repository, err = inv.String("repository"); err != nil {
		return err
	}
	if pb.Platform, err = platformOf(inv); err != nil {
		return err
	}
	if pb.Context, err = inv.String("context"); err != nil {
		return err
	}
	if inv.Has("dockerfile") {
		if pb.Dockerfile, err = inv.String("dockerfile"); err != nil {
			return err
		}
	}
	if inv.Has("build_args") {
		if pb.BuildArgs, err = inv.StringMap("build_args"); err != nil {
			return err
		}
	}

	desc, err := publish.BuildPlatform(ctx, m.Builder, pb)
	if err != nil {
		return err
	}
	fmt.Fprintf(inv.Stdout, "pushed %s (%s) %s\n", desc.Ref, pb.Platform, desc.Digest)
	return nil
}

func (m *Module) manifest(ctx context.Context, inv *actions.Invocation) error {
	if m.Registry == nil {
		return errors.New("no image registry configured")
	}
	req := publish.Request{Run: inv.Run, ProtectedBranches: inv.ProtectedBranches}
	var err error
	if req.Repository, err = inv.String("repository"); err != nil {
		return err
	}
	raw, err := inv.Strings("platforms")
	if err != nil {
		return err
	}
	for _, s := range raw {
		p, err := registry.ParsePlatform(s)
		if err != nil {
			return err
		}
		req.Platforms = append(req.Platforms, p)
	}
	if req.FloatingTag, err = inv.String("floating_tag"); err != nil {
		return err
	}
	if inv.Has("mirrors") {
		if req.Mirrors, err = inv.Strings("mirrors"); err != nil {
			return err
		}
	}
	if inv.Has("protected_branches") {
		if req.ProtectedBranches, err = inv.Strings("protected_branches"); err != nil {
			return err
		}
	}

	res, err := publish.Publish(ctx, m.Registry, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(inv.Stdout, "manifest %s %s\n", res.Manifest, res.Digest)
	for _, ref := range res.Mirrors {
		fmt.Fprintf(inv.Stdout, "mirrored %s\n", ref)
	}
	for _, ref := range res.Floating {
		fmt.Fprintf(inv.Stdout, "promoted %s\n", ref)
	}
	if !res.Promoted {
		ctxlog.FromContext(ctx).Info("Floating tag not promoted.", "manifest", res.Manifest.String())
	}
	return nil
}

// Register registers both actions.
func (m *Module) Register(r *actions.Registry) {
	r.Register(&actions.Definition{
		Ref:         BuildPushRef,
		Description: "Builds and pushes one platform image under its immutable per-run tag.",
		Inputs: map[string]actions.Input{
			"repository": {Type: cty.String, Required: true},
			"platform":   {Type: cty.String},
			"context":    {Type: cty.String, Default: cty.StringVal(".")},
			"dockerfile": {Type: cty.String},
			"build_args": {Type: cty.Map(cty.String)},
		},
		Handler: m.buildPush,
	})
	r.Register(&actions.Definition{
		Ref:         ManifestRef,
		Description: "Composes, verifies and mirrors the run's manifest list, then promotes the floating tag on protected refs.",
		Inputs: map[string]actions.Input{
			"repository":         {Type: cty.String, Required: true},
			"platforms":          {Type: cty.List(cty.String), Required: true},
			"floating_tag":       {Type: cty.String, Default: cty.StringVal(publish.DefaultFloatingTag)},
			"mirrors":            {Type: cty.List(cty.String)},
			"protected_branches": {Type: cty.List(cty.String)},
		},
		Handler: m.manifest,
	})
}
