package index

import (
	"os"
	"path/filepath"
	"testing"

	"doorslight/internal/crawler"
	"doorslight/internal/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExports(t *testing.T, root string) {
	t.Helper()
	files := map[string]string{
		"hierarchy.yaml": "modules:\n  - {name: System, abbrev: SYS, level: System}\n  - {name: Power, abbrev: PWR, level: Subsystem, parent_abbrev: SYS}\n",
		// Parent file sorts before child file; resolution must still see PWR-SRS-001.
		"a/requirements.csv": "ExternalID,Heading,OutgoingLinks\nSYS-SRS-001,Top,PWR-SRS-001;SYS-AT-001\n",
		"b/requirements.csv": "ExternalID,Heading,OutgoingLinks\nPWR-SRS-001,Child,PWR-AT-001\n",
		"b/tests.csv":        "ExternalID,TestResult\nPWR-AT-001,Fail\nSYS-AT-001,Pass\n",
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func newTestIndexer(opts ...graph.Option) *Indexer {
	c := crawler.NewCrawler(crawler.DefaultPatterns(), graph.NewClassifier(""), nil)
	return NewIndexer(c, nil, opts...)
}

func TestIndexer_BuildProject(t *testing.T) {
	root := t.TempDir()
	writeExports(t, root)

	ds, p, err := newTestIndexer().BuildProject(root, filepath.Join(root, "hierarchy.yaml"), "ProjX")
	require.NoError(t, err)

	assert.Len(t, ds.Modules, 2)
	assert.Len(t, ds.Requirements, 2)
	assert.Len(t, ds.Tests, 2)

	assert.Equal(t, "ProjX", p.Name)
	mod, ok := p.Hierarchy.Lookup("PWR")
	require.True(t, ok)
	assert.Equal(t, "SYS", mod.ParentAbbrev)

	assert.Equal(t, []string{"PWR-SRS-001"}, p.Graph.Children("SYS-SRS-001"), "cross-file link resolved")
	r := p.Graph.Rollup("SYS-SRS-001")
	assert.Equal(t, graph.StatusAnyFail, r.Label)
	assert.Equal(t, []string{"SYS-AT-001", "PWR-AT-001"}, r.TestIDs)
}

func TestIndexer_MissingHierarchy(t *testing.T) {
	root := t.TempDir()
	writeExports(t, root)

	ds, err := newTestIndexer().Load(root, filepath.Join(root, "absent.yaml"), "ProjX")
	require.NoError(t, err)
	assert.Empty(t, ds.Modules)
	assert.Len(t, ds.Requirements, 2)
}

func TestIndexer_StrictBuild(t *testing.T) {
	ds := &Dataset{Requirements: []graph.Requirement{{ID: "SYS-SRS-001", Outgoing: []string{"nonsense"}}}}

	_, err := newTestIndexer().Build(ds)
	require.NoError(t, err)

	_, err = newTestIndexer(graph.WithStrictIDs()).Build(ds)
	assert.ErrorIs(t, err, graph.ErrInvalidIdentifier)
}

func TestSaveLoadDataset(t *testing.T) {
	root := t.TempDir()
	writeExports(t, root)
	ds, err := newTestIndexer().Load(root, filepath.Join(root, "hierarchy.yaml"), "ProjX")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "dataset.json")
	require.NoError(t, SaveDataset(ds, path))

	loaded, err := LoadDataset(path)
	require.NoError(t, err)
	assert.Equal(t, ds, loaded)
}

func TestLoadDataset_SchemaValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"empty snapshot", `{"project":"P","modules":null,"requirements":null,"tests":null}`, ""},
		{"blank requirement id", `{"project":"P","requirements":[{"id":""}],"tests":[]}`, "schema validation failed"},
		{"outgoing not a list", `{"project":"P","requirements":[{"id":"SYS-SRS-001","outgoing":"SYS-SRS-002"}],"tests":[]}`, "schema validation failed"},
		{"test without result", `{"project":"P","requirements":[],"tests":[{"id":"SYS-AT-001"}]}`, "schema validation failed"},
		{"missing tests", `{"project":"P","requirements":[]}`, "schema validation failed"},
		{"truncated", `{"project":"P","requirements":[`, "failed to decode dataset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "dataset.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			ds, err := LoadDataset(path)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "P", ds.Project)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
			assert.Nil(t, ds)
		})
	}
}
