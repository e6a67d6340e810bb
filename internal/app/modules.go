package app

import (
	"github.com/specialistvlad/gridci/internal/actions"
	"github.com/specialistvlad/gridci/internal/registry"
	"github.com/specialistvlad/gridci/internal/registry/ledger"
	"github.com/specialistvlad/gridci/modules/env_vars"
	"github.com/specialistvlad/gridci/modules/http_request"
	"github.com/specialistvlad/gridci/modules/image"
	"github.com/specialistvlad/gridci/modules/print"
	"github.com/specialistvlad/gridci/modules/s3"
)

// actionsFor builds the action registry for one run. Image writes go through
// the tag ledger when a database is configured, attributed to runID.
func (a *App) actionsFor(runID string) *actions.Registry {
	var (
		builder registry.Builder  = a.builder
		images  registry.Registry = a.images
	)
	if a.tags != nil {
		l := ledger.New(a.images, a.builder, a.tags, runID)
		builder, images = l, l
	}

	r := actions.New()
	r.RegisterModules(
		&env_vars.Module{},
		&print.Module{},
		&http_request.Module{},
		&s3.Module{Store: a.objects, Bucket: a.config.Archive.Bucket},
		&image.Module{Builder: builder, Registry: images},
	)
	return r
}
