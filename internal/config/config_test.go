package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "DOORS Project", cfg.Project.Name)
	assert.Equal(t, "AT", cfg.Links.TestCode)
	assert.Equal(t, []string{"**/requirements.csv"}, cfg.Discovery.Requirements)
	assert.Equal(t, 8, cfg.Render.Workers)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
project:
  name: ProjX
  exports: /data/exports
links:
  test_code: TC
  strict_ids: true
render:
  workers: 0
`), 0644))

	t.Setenv("DOORSLIGHT_OUTPUT", "/tmp/site")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "ProjX", cfg.Project.Name)
	assert.Equal(t, "/data/exports", cfg.Project.Exports)
	assert.Equal(t, "/tmp/site", cfg.Project.Output)
	assert.Equal(t, "TC", cfg.Links.TestCode)
	assert.True(t, cfg.Links.StrictIDs)
	assert.Equal(t, 8, cfg.Render.Workers, "non-positive workers fall back to default")
	assert.Equal(t, filepath.Join("/data/exports", "hierarchy.yaml"), cfg.HierarchyPath())
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("project: [unterminated"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadHierarchy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hierarchy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
modules:
  - name: System
    abbrev: SYS
    level: System
    requirements_module: SYS Requirements
    tests_module: SYS Tests
  - name: Power
    abbrev: PWR
    level: Subsystem
    requirements_module: PWR Requirements
    tests_module: PWR Tests
    parent_abbrev: SYS
  - name: Power v2
    abbrev: PWR
    level: Subsystem
    requirements_module: PWR Requirements
    tests_module: PWR Tests
`), 0644))

	h, err := LoadHierarchy(path)
	require.NoError(t, err)
	require.Len(t, h.Modules, 2)

	assert.Equal(t, "SYS", h.Modules[0].Abbrev)
	pwr, ok := h.Lookup("PWR")
	require.True(t, ok)
	assert.Equal(t, "Power v2", pwr.Name)

	_, ok = h.Lookup("CMP")
	assert.False(t, ok)
}

func TestLoadHierarchy_BlankAbbrev(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hierarchy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("modules:\n  - name: X\n"), 0644))

	_, err := LoadHierarchy(path)
	assert.ErrorContains(t, err, "has no abbrev")
}
