package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/refgraph/internal/analysis"
	"github.com/Benny93/refgraph/internal/graph"
)

func writeGraphDocument(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	err := os.WriteFile(path, []byte(content), 0o644)
	require.NoError(t, err)
	return path
}

func TestRunCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("AllScenarios", func(t *testing.T) {
		cmd := &RunCmd{NoPersist: true}
		err := cmd.Run()
		assert.NoError(t, err)
	})

	t.Run("SingleScenario", func(t *testing.T) {
		cmd := &RunCmd{Scenario: "parent-child-strong", NoPersist: true}
		err := cmd.Run()
		assert.NoError(t, err)
	})

	t.Run("UnknownScenario", func(t *testing.T) {
		cmd := &RunCmd{Scenario: "does-not-exist", NoPersist: true}
		err := cmd.Run()
		assert.ErrorContains(t, err, "unknown scenario")
	})
}

func TestClassifyCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("ValidDocument", func(t *testing.T) {
		path := writeGraphDocument(t, "pair.json", `{
			"name": "pair",
			"nodes": [
				{"id": "owner", "root": true},
				{"id": "resource"}
			],
			"edges": [
				{"from": "owner", "to": "resource", "kind": "strong"}
			]
		}`)

		cmd := &ClassifyCmd{File: path}
		err := cmd.Run()
		assert.NoError(t, err)
	})

	t.Run("InvalidDocument", func(t *testing.T) {
		path := writeGraphDocument(t, "bad.json", `{"nodes": []}`)

		cmd := &ClassifyCmd{File: path}
		err := cmd.Run()
		assert.Error(t, err)
	})

	t.Run("MissingFile", func(t *testing.T) {
		cmd := &ClassifyCmd{File: filepath.Join(t.TempDir(), "absent.json")}
		err := cmd.Run()
		assert.Error(t, err)
	})
}

func TestListCmd_Run(t *testing.T) {
	t.Parallel()

	cmd := &ListCmd{}
	err := cmd.Run()
	assert.NoError(t, err)
}

func TestDumpCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("Scenario", func(t *testing.T) {
		cmd := &DumpCmd{Target: "self-loop"}
		err := cmd.Run()
		assert.NoError(t, err)
	})

	t.Run("UnknownTarget", func(t *testing.T) {
		cmd := &DumpCmd{Target: "no-such-thing"}
		err := cmd.Run()
		assert.Error(t, err)
	})
}

func TestResolveGraph(t *testing.T) {
	t.Parallel()

	t.Run("ScenarioName", func(t *testing.T) {
		g, name, err := resolveGraph("person")
		require.NoError(t, err)
		assert.Equal(t, "person", name)
		assert.Greater(t, g.NodeCount(), 0)
	})

	t.Run("DocumentPath", func(t *testing.T) {
		path := writeGraphDocument(t, "custom.json", `{
			"name": "custom",
			"nodes": [{"id": "a", "root": true}]
		}`)

		g, name, err := resolveGraph(path)
		require.NoError(t, err)
		assert.Equal(t, "custom", name)
		assert.Equal(t, 1, g.NodeCount())
	})

	t.Run("NameFallsBackToFileName", func(t *testing.T) {
		path := writeGraphDocument(t, "unnamed.json", `{
			"nodes": [{"id": "a", "root": true}]
		}`)

		_, name, err := resolveGraph(path)
		require.NoError(t, err)
		assert.Equal(t, "unnamed", name)
	})

	t.Run("NeitherScenarioNorFile", func(t *testing.T) {
		_, _, err := resolveGraph("bogus-target")
		assert.ErrorContains(t, err, "neither a scenario")
	})
}

func TestPrintVerdict(t *testing.T) {
	t.Parallel()

	// Smoke test both branches.
	printVerdict("ok", analysis.Verdict{Kind: analysis.AllCollectible})
	printVerdict("bad", analysis.Verdict{
		Kind:        analysis.Leaked,
		LeakedNodes: []graph.NodeID{"a", "b"},
		Cycles:      [][]graph.NodeID{{"a", "b"}},
	})
}

func TestNewCLI(t *testing.T) {
	t.Parallel()

	cli := NewCLI()
	assert.NotNil(t, cli)
}
