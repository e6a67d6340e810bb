package hclload

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/gridci/internal/config"
	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/fsutil"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL definition loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses path, a file or a directory of .hcl files, into a workflow.
func (l *Loader) Load(ctx context.Context, path string) (*config.Workflow, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	files, err := fsutil.ExpandPath(path, ".hcl")
	if err != nil {
		return nil, config.Wrap(config.KindInvalidDoc, path, err)
	}
	if len(files) == 0 {
		return nil, config.Errorf(config.KindInvalidDoc, path, "no .hcl files found")
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	wf := &config.Workflow{
		Name:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Lookups: make(map[string]map[string]string),
	}
	parser := hclparse.NewParser()
	seenWorkflow := false

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, config.Wrap(config.KindInvalidDoc, file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, config.Wrap(config.KindInvalidDoc, file, diags)
		}

		for _, w := range root.Workflows {
			if seenWorkflow {
				return nil, config.Errorf(config.KindDuplicate, file, "more than one workflow block")
			}
			seenWorkflow = true
			if err := l.translateWorkflow(w, wf); err != nil {
				return nil, err
			}
		}
		for _, lk := range root.Lookups {
			if _, dup := wf.Lookups[lk.Name]; dup {
				return nil, config.Errorf(config.KindDuplicate, "lookup "+lk.Name, "lookup table declared twice")
			}
			wf.Lookups[lk.Name] = lk.Values
		}
		for _, j := range root.Jobs {
			job, err := l.translateJob(ctx, j)
			if err != nil {
				return nil, err
			}
			wf.Jobs = append(wf.Jobs, job)
		}
	}

	logger.Debug("HCL loading complete.", "workflow", wf.Name, "jobs", len(wf.Jobs), "lookups", len(wf.Lookups))
	return wf, nil
}

var _ config.Loader = (*Loader)(nil)

func subject(parts ...string) string {
	return strings.Join(parts, " ")
}
