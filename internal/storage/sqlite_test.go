package storage

import (
	"context"
	"path/filepath"
	"testing"

	"doorslight/internal/config"
	"doorslight/internal/graph"
	"doorslight/internal/index"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDataset() *index.Dataset {
	return &index.Dataset{
		Project: "ProjX",
		Modules: []config.ModuleInfo{
			{Name: "System", Abbrev: "SYS", Level: "System"},
			{Name: "Power", Abbrev: "PWR", Level: "Subsystem", ParentAbbrev: "SYS"},
		},
		Requirements: []graph.Requirement{
			{ID: "SYS-SRS-001", Module: "SYS", TypeCode: "SRS", Counter: "001", Heading: "Top",
				Outgoing: []string{"PWR-SRS-001", "SYS-AT-001"}},
			{ID: "PWR-SRS-001", Module: "PWR", TypeCode: "SRS", Counter: "001", Heading: "Child",
				Incoming: []string{"SYS-SRS-001"}},
		},
		Tests: []graph.TestCase{
			{ID: "SYS-AT-001", Module: "SYS", Counter: "001", Result: "Pass", Notes: "bench"},
		},
	}
}

func TestSQLiteStore_SaveDataset_SnapshotSync(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	// Initial snapshot
	require.NoError(t, store.SaveDataset(ctx, testDataset()))

	// New snapshot drops PWR and the test, adds a different requirement.
	next := &index.Dataset{
		Project: "ProjY",
		Modules: []config.ModuleInfo{{Name: "System", Abbrev: "SYS", Level: "System"}},
		Requirements: []graph.Requirement{
			{ID: "SYS-SRS-002", Module: "SYS", TypeCode: "SRS", Counter: "002"},
		},
	}
	require.NoError(t, store.SaveDataset(ctx, next))

	loaded, err := store.LoadDataset(ctx)
	require.NoError(t, err)

	assert.Equal(t, "ProjY", loaded.Project)
	assert.Len(t, loaded.Modules, 1)
	require.Len(t, loaded.Requirements, 1)
	assert.Equal(t, "SYS-SRS-002", loaded.Requirements[0].ID)
	assert.Empty(t, loaded.Tests)
}

func TestSQLiteStore_RoundTripBuildsSameGraph(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	ds := testDataset()
	require.NoError(t, store.SaveDataset(ctx, ds))

	loaded, err := store.LoadDataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, ds, loaded)

	g, err := graph.Build(loaded.Requirements, loaded.Tests)
	require.NoError(t, err)
	assert.Equal(t, []string{"PWR-SRS-001"}, g.Children("SYS-SRS-001"))
	assert.Equal(t, graph.StatusAllPass, g.Rollup("SYS-SRS-001").Label)
}

func TestSQLiteStore_GetRequirement(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	ds := testDataset()
	ds.Requirements = append(ds.Requirements, graph.Requirement{ID: "SYS-SRS-001", Heading: "Replacement"})
	require.NoError(t, store.SaveDataset(ctx, ds))

	r, err := store.GetRequirement(ctx, "SYS-SRS-001")
	require.NoError(t, err)
	assert.Equal(t, "Replacement", r.Heading, "last record wins")

	_, err = store.GetRequirement(ctx, "NOPE-SRS-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_EmptyDatabase(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()

	loaded, err := store.LoadDataset(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded.Project)
	assert.Empty(t, loaded.Requirements)
}
