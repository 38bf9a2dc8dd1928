package crawler

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"doorslight/internal/graph"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

// Patterns are doublestar globs, relative to the exports root, that select
// requirement and test CSV files.
type Patterns struct {
	Requirements []string
	Tests        []string
}

// DefaultPatterns matches the per-module file names DOORS exports produce.
func DefaultPatterns() Patterns {
	return Patterns{
		Requirements: []string{"**/requirements.csv"},
		Tests:        []string{"**/tests.csv"},
	}
}

// Crawler scans an exports tree for module CSV files.
type Crawler struct {
	patterns   Patterns
	classifier graph.Classifier
	ignored    []string
	logger     *zap.Logger
}

// NewCrawler creates a new crawler instance.
func NewCrawler(patterns Patterns, classifier graph.Classifier, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		patterns:   patterns,
		classifier: classifier,
		ignored:    []string{".git", "node_modules", "site"},
		logger:     logger,
	}
}

// Discover returns the sorted requirement and test files under root.
func (c *Crawler) Discover(root string) (reqFiles, testFiles []string, err error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, err
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("exports root %s is not a directory", root)
	}

	fsys := os.DirFS(root)
	reqFiles, err = c.glob(fsys, root, c.patterns.Requirements)
	if err != nil {
		return nil, nil, err
	}
	testFiles, err = c.glob(fsys, root, c.patterns.Tests)
	if err != nil {
		return nil, nil, err
	}
	return reqFiles, testFiles, nil
}

func (c *Crawler) glob(fsys fs.FS, root string, patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range patterns {
		// Match case-insensitively on the file name, as exports come from Windows hosts.
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithCaseInsensitive(), doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if c.isIgnored(m) || seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, filepath.Join(root, filepath.FromSlash(m)))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (c *Crawler) isIgnored(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		for _, ign := range c.ignored {
			if part == ign {
				return true
			}
		}
	}
	return false
}

// ScanExports reads every discovered CSV and streams the parsed records back.
// Requirement files are all read before test files.
func (c *Crawler) ScanExports(root string, onRequirement func(graph.Requirement), onTest func(graph.TestCase)) error {
	reqFiles, testFiles, err := c.Discover(root)
	if err != nil {
		return err
	}

	for _, path := range reqFiles {
		rows, err := ReadRows(path)
		if err != nil {
			return err
		}
		n := 0
		for _, row := range rows {
			r, ok, err := RequirementFromRow(row)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			n++
			onRequirement(r)
		}
		c.logger.Debug("read requirements", zap.String("file", path), zap.Int("count", n))
	}

	for _, path := range testFiles {
		rows, err := ReadRows(path)
		if err != nil {
			return err
		}
		n := 0
		for _, row := range rows {
			tc, ok, err := TestFromRow(row, c.classifier)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			n++
			onTest(tc)
		}
		c.logger.Debug("read tests", zap.String("file", path), zap.Int("count", n))
	}

	return nil
}
