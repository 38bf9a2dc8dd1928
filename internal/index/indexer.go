package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"doorslight/internal/config"
	"doorslight/internal/crawler"
	"doorslight/internal/graph"

	"go.uber.org/zap"
)

// Dataset is a complete, loaded snapshot of one project's exports.
type Dataset struct {
	Project      string              `json:"project"`
	Modules      []config.ModuleInfo `json:"modules"`
	Requirements []graph.Requirement `json:"requirements"`
	Tests        []graph.TestCase    `json:"tests"`
}

// Hierarchy wraps the dataset's module list.
func (d *Dataset) Hierarchy() *config.Hierarchy {
	return &config.Hierarchy{Modules: d.Modules}
}

// Project is a dataset whose traceability graph has been built.
type Project struct {
	Name      string
	Hierarchy *config.Hierarchy
	Graph     *graph.Graph
}

// Indexer orchestrates loading exports and building the traceability graph.
type Indexer struct {
	crawler *crawler.Crawler
	opts    []graph.Option
	logger  *zap.Logger
}

// NewIndexer creates a new indexer. opts are passed to graph.Build.
func NewIndexer(c *crawler.Crawler, logger *zap.Logger, opts ...graph.Option) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		crawler: c,
		opts:    append([]graph.Option{graph.WithLogger(logger)}, opts...),
		logger:  logger,
	}
}

// Load reads the hierarchy file and every CSV under root. A missing
// hierarchy file leaves the module list empty.
func (i *Indexer) Load(root, hierarchyPath, projectName string) (*Dataset, error) {
	ds := &Dataset{Project: projectName}

	h, err := config.LoadHierarchy(hierarchyPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		i.logger.Warn("hierarchy file not found, levels will be empty", zap.String("path", hierarchyPath))
	case err != nil:
		return nil, err
	default:
		ds.Modules = h.Modules
	}

	err = i.crawler.ScanExports(root,
		func(r graph.Requirement) { ds.Requirements = append(ds.Requirements, r) },
		func(t graph.TestCase) { ds.Tests = append(ds.Tests, t) },
	)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	i.logger.Info("dataset loaded",
		zap.Int("modules", len(ds.Modules)),
		zap.Int("requirements", len(ds.Requirements)),
		zap.Int("tests", len(ds.Tests)))
	return ds, nil
}

// Build resolves links after all entities are loaded.
func (i *Indexer) Build(ds *Dataset) (*Project, error) {
	g, err := graph.Build(ds.Requirements, ds.Tests, i.opts...)
	if err != nil {
		return nil, fmt.Errorf("build failed: %w", err)
	}
	return &Project{
		Name:      ds.Project,
		Hierarchy: ds.Hierarchy(),
		Graph:     g,
	}, nil
}

// BuildProject loads root and builds its graph in one step.
func (i *Indexer) BuildProject(root, hierarchyPath, projectName string) (*Dataset, *Project, error) {
	ds, err := i.Load(root, hierarchyPath, projectName)
	if err != nil {
		return nil, nil, err
	}
	p, err := i.Build(ds)
	if err != nil {
		return nil, nil, err
	}
	return ds, p, nil
}

// SaveDataset writes the dataset to a JSON file.
func SaveDataset(ds *Dataset, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(ds); err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}
	return nil
}

// LoadDataset reads a dataset written by SaveDataset. The file is validated
// against the dataset schema before decoding.
func LoadDataset(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	if err := ValidateDataset(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var ds Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}
	return &ds, nil
}
