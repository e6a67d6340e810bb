// Package loader selects the definition loader for a path.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/gridci/internal/config"
	"github.com/specialistvlad/gridci/internal/hclload"
	"github.com/specialistvlad/gridci/internal/yamlload"
)

// ForPath returns the loader for path: YAML for .yaml/.yml files, HCL for
// .hcl files and directories.
func ForPath(path string) (config.Loader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, config.Wrap(config.KindInvalidDoc, path, err)
	}
	if info.IsDir() {
		return hclload.NewLoader(), nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		return hclload.NewLoader(), nil
	case ".yaml", ".yml":
		return yamlload.NewLoader(), nil
	}
	return nil, config.Wrap(config.KindInvalidDoc, path, fmt.Errorf("unsupported definition format %q", filepath.Ext(path)))
}
