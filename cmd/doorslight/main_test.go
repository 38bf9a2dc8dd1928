package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"doorslight/internal/graph"
	"doorslight/internal/retrieval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExports(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"hierarchy.yaml":       "modules:\n  - {name: System, abbrev: SYS, level: System}\n  - {name: Power, abbrev: PWR, level: Subsystem, parent_abbrev: SYS}\n",
		"SYS/requirements.csv": "ExternalID,Heading,OutgoingLinks\nSYS-SRS-001,Top,PWR-SRS-001\n",
		"PWR/requirements.csv": "ExternalID,Heading,OutgoingLinks\nPWR-SRS-001,Child,PWR-AT-001\n",
		"PWR/tests.csv":        "ExternalID,TestResult\nPWR-AT-001,Pass\n",
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func runCLI(t *testing.T, exports string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("DOORSLIGHT_EXPORTS", exports)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"-c", filepath.Join(t.TempDir(), "absent.yaml")}, args...))
	t.Cleanup(func() {
		dbPath, snapshotPath, projectName = "", "", ""
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err = rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRollupCommand_JSONOutputIsParseable(t *testing.T) {
	exports := writeExports(t)

	stdout, stderr, err := runCLI(t, exports, "rollup", "--json", "--from-db=false", "SYS-SRS-001")
	require.NoError(t, err)

	var got []struct {
		ID          string   `json:"id"`
		Descendants []string `json:"descendants"`
		Rollup      struct {
			Label   graph.Status   `json:"label"`
			Counts  map[string]int `json:"counts"`
			TestIDs []string       `json:"test_ids"`
		} `json:"rollup"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got), stdout)
	require.Len(t, got, 1)
	assert.Equal(t, "SYS-SRS-001", got[0].ID)
	assert.Equal(t, []string{"PWR-SRS-001"}, got[0].Descendants)
	assert.Equal(t, graph.StatusAllPass, got[0].Rollup.Label)
	assert.Equal(t, map[string]int{"Pass": 1}, got[0].Rollup.Counts)
	assert.Contains(t, stderr, "Loading exports")
}

func TestRollupCommand_FromJSONSnapshot(t *testing.T) {
	exports := writeExports(t)
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "dataset.json")

	_, _, err := runCLI(t, exports, "-d", filepath.Join(dir, "doorslight.db"), "scan", "--json", snapshot)
	require.NoError(t, err)
	require.FileExists(t, snapshot)

	// The exports are gone; only the snapshot can answer.
	empty := t.TempDir()
	stdout, _, err := runCLI(t, empty, "--snapshot", snapshot, "rollup", "--json", "--from-db=false", "PWR-SRS-001")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"label": "All Pass"`)

	require.NoError(t, os.WriteFile(snapshot, []byte(`{"project":"P","requirements":[{"id":""}],"tests":[]}`), 0644))
	_, _, err = runCLI(t, empty, "--snapshot", snapshot, "rollup", "--json", "--from-db=false", "PWR-SRS-001")
	assert.ErrorContains(t, err, "schema validation failed")
}

func TestRollupCommand_UnknownID(t *testing.T) {
	exports := writeExports(t)

	_, _, err := runCLI(t, exports, "rollup", "--json=false", "--from-db=false", "NOPE-SRS-001")
	assert.ErrorContains(t, err, "NOPE-SRS-001")
}

func TestImpactCommand_JSONOutputIsParseable(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	exports := writeExports(t)
	gitCmd := func(args ...string) {
		t.Helper()
		full := append([]string{"-C", exports, "-c", "user.name=doorslight", "-c", "user.email=doorslight@example.com", "-c", "commit.gpgsign=false"}, args...)
		out, err := exec.Command("git", full...).CombinedOutput()
		require.NoError(t, err, string(out))
	}
	gitCmd("init", "-q")
	gitCmd("add", ".")
	gitCmd("commit", "-q", "-m", "baseline")
	require.NoError(t, os.WriteFile(filepath.Join(exports, "PWR", "tests.csv"), []byte("ExternalID,TestResult\nPWR-AT-001,Fail\n"), 0644))

	stdout, stderr, err := runCLI(t, exports, "impact", "--json", "--max-hops=0", "HEAD")
	require.NoError(t, err)

	var imp retrieval.Impact
	require.NoError(t, json.Unmarshal([]byte(stdout), &imp), stdout)
	assert.Equal(t, []string{"PWR-AT-001"}, imp.ChangedTests)
	assert.Equal(t, []string{"PWR-SRS-001", "SYS-SRS-001"}, imp.Affected)
	assert.Contains(t, stderr, "changed export files")
}
