package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Project struct {
		Name      string `yaml:"name"`
		Exports   string `yaml:"exports"`   // root holding per-module CSV exports
		Hierarchy string `yaml:"hierarchy"` // relative to Exports unless absolute
		Output    string `yaml:"output"`
		Database  string `yaml:"database"`
	} `yaml:"project"`
	Links struct {
		TestCode  string `yaml:"test_code"`
		StrictIDs bool   `yaml:"strict_ids"`
	} `yaml:"links"`
	Discovery struct {
		Requirements []string `yaml:"requirements"`
		Tests        []string `yaml:"tests"`
	} `yaml:"discovery"`
	Render struct {
		Workers  int `yaml:"workers"`
		Truncate int `yaml:"truncate"`
	} `yaml:"render"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	var cfg Config
	cfg.Project.Name = "DOORS Project"
	cfg.Project.Exports = "exports"
	cfg.Project.Hierarchy = "hierarchy.yaml"
	cfg.Project.Output = "site"
	cfg.Project.Database = "doorslight.db"
	cfg.Links.TestCode = "AT"
	cfg.Discovery.Requirements = []string{"**/requirements.csv"}
	cfg.Discovery.Tests = []string{"**/tests.csv"}
	cfg.Render.Workers = 8
	cfg.Render.Truncate = 200
	return &cfg
}

// LoadConfig reads path on top of the defaults. A missing file is not an
// error; invalid YAML is.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	cfg := Default()

	// 2. Load YAML config
	file, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, err
		}
	}

	// 3. Override with Environment Variables if present
	if v := os.Getenv("DOORSLIGHT_PROJECT_NAME"); v != "" {
		cfg.Project.Name = v
	}
	if v := os.Getenv("DOORSLIGHT_EXPORTS"); v != "" {
		cfg.Project.Exports = v
	}
	if v := os.Getenv("DOORSLIGHT_OUTPUT"); v != "" {
		cfg.Project.Output = v
	}
	if v := os.Getenv("DOORSLIGHT_DB"); v != "" {
		cfg.Project.Database = v
	}
	if v := os.Getenv("DOORSLIGHT_TEST_CODE"); v != "" {
		cfg.Links.TestCode = v
	}

	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	def := Default()
	if strings.TrimSpace(c.Links.TestCode) == "" {
		c.Links.TestCode = def.Links.TestCode
	}
	if len(c.Discovery.Requirements) == 0 {
		c.Discovery.Requirements = def.Discovery.Requirements
	}
	if len(c.Discovery.Tests) == 0 {
		c.Discovery.Tests = def.Discovery.Tests
	}
	if c.Render.Workers <= 0 {
		c.Render.Workers = def.Render.Workers
	}
	if c.Render.Truncate <= 0 {
		c.Render.Truncate = def.Render.Truncate
	}
}

// HierarchyPath resolves the hierarchy file against the exports root.
func (c *Config) HierarchyPath() string {
	h := c.Project.Hierarchy
	if h == "" {
		h = "hierarchy.yaml"
	}
	if filepath.IsAbs(h) {
		return h
	}
	return filepath.Join(c.Project.Exports, h)
}
