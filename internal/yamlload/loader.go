// Package yamlload is the YAML implementation of config.Loader. Documents use
// a GitHub-style layout and are validated against an embedded JSON schema
// before translation. String values are parsed as HCL templates and `if`
// values as HCL expressions, so both definition formats share one evaluation
// path. A gate may optionally be wrapped in `${{ ... }}`.
package yamlload

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/gridci/internal/config"
	"github.com/specialistvlad/gridci/internal/ctxlog"
	"gopkg.in/yaml.v3"
)

// Loader is the YAML-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new YAML definition loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ config.Loader = (*Loader)(nil)

// Load reads a single YAML definition file.
func (l *Loader) Load(ctx context.Context, path string) (*config.Workflow, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("YAML loader started.", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, config.Wrap(config.KindInvalidDoc, path, err)
	}
	if err := validate(data); err != nil {
		return nil, config.Wrap(config.KindInvalidDoc, path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, config.Wrap(config.KindInvalidDoc, path, err)
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	wf, err := translate(path, &doc)
	if err != nil {
		return nil, err
	}
	logger.Debug("YAML loading complete.", "workflow", wf.Name, "jobs", len(wf.Jobs))
	return wf, nil
}
