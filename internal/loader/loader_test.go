package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/gridci/internal/hclload"
	"github.com/specialistvlad/gridci/internal/yamlload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForPath(t *testing.T) {
	dir := t.TempDir()
	touch := func(name string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, nil, 0o644))
		return p
	}

	l, err := ForPath(touch("ci.yml"))
	require.NoError(t, err)
	assert.IsType(t, &yamlload.Loader{}, l)

	l, err = ForPath(touch("ci.HCL"))
	require.NoError(t, err)
	assert.IsType(t, &hclload.Loader{}, l)

	l, err = ForPath(dir)
	require.NoError(t, err)
	assert.IsType(t, &hclload.Loader{}, l)

	_, err = ForPath(touch("ci.json"))
	assert.Error(t, err)

	_, err = ForPath(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
