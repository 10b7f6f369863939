package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/refgraph/internal/scenario"
	"github.com/Benny93/refgraph/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.MemoryBackend) {
	t.Helper()
	store := storage.NewMemoryBackend()
	return NewServer(store), store
}

func TestNewServer(t *testing.T) {
	t.Parallel()

	t.Run("CreatesServer", func(t *testing.T) {
		server, _ := newTestServer(t)

		assert.NotNil(t, server)
		assert.NotNil(t, server.storage)
	})
}

func TestServer_Tools(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	t.Run("ListTools", func(t *testing.T) {
		tools := server.ListTools()

		assert.NotEmpty(t, tools)
		assert.GreaterOrEqual(t, len(tools), 4)

		// Check expected tools exist
		toolNames := make(map[string]bool)
		for _, tool := range tools {
			toolNames[tool.Name] = true
		}

		expectedTools := []string{
			"refgraph_classify",
			"refgraph_scenarios",
			"refgraph_history",
			"refgraph_dump",
		}

		for _, expected := range expectedTools {
			assert.True(t, toolNames[expected], "Should have tool: %s", expected)
		}
	})

	t.Run("ToolDescriptions", func(t *testing.T) {
		tools := server.ListTools()

		for _, tool := range tools {
			assert.NotEmpty(t, tool.Description)
			assert.NotNil(t, tool.InputSchema)
		}
	})
}

func TestServer_HandleToolCalls(t *testing.T) {
	t.Parallel()

	server, store := newTestServer(t)
	ctx := context.Background()

	t.Run("ClassifyScenario", func(t *testing.T) {
		result, err := server.CallTool(ctx, "refgraph_classify", map[string]any{
			"name": "parent-child-strong",
		})
		assert.NoError(t, err)
		assert.Contains(t, result, "Leak detected")
		assert.Contains(t, result, "retain cycle")
	})

	t.Run("ClassifyCollectibleScenario", func(t *testing.T) {
		result, err := server.CallTool(ctx, "refgraph_classify", map[string]any{
			"name": "parent-child-weak",
		})
		assert.NoError(t, err)
		assert.Contains(t, result, "fully collectible")
	})

	t.Run("ClassifyPersistsRun", func(t *testing.T) {
		before := store.RunCount()
		_, err := server.CallTool(ctx, "refgraph_classify", map[string]any{
			"name": "self-loop",
		})
		assert.NoError(t, err)
		assert.Equal(t, before+1, store.RunCount())
	})

	t.Run("ClassifyMissingName", func(t *testing.T) {
		result, err := server.CallTool(ctx, "refgraph_classify", map[string]any{})
		assert.NoError(t, err)
		assert.Contains(t, result, "No scenario or snapshot name provided")
	})

	t.Run("ClassifyUnknownTarget", func(t *testing.T) {
		result, err := server.CallTool(ctx, "refgraph_classify", map[string]any{
			"name": "nothing-here",
		})
		assert.NoError(t, err)
		assert.Contains(t, result, "neither a built-in scenario nor a stored snapshot")
	})

	t.Run("ClassifySnapshot", func(t *testing.T) {
		doc := &scenario.Document{
			Name:  "stored",
			Nodes: []scenario.DocumentNode{{ID: "a"}, {ID: "b"}},
			Edges: []scenario.DocumentEdge{
				{From: "a", To: "b", Kind: "strong"},
				{From: "b", To: "a", Kind: "strong"},
			},
		}
		require.NoError(t, store.SaveSnapshot(ctx, "stored", doc))

		result, err := server.CallTool(ctx, "refgraph_classify", map[string]any{
			"name": "stored",
		})
		assert.NoError(t, err)
		assert.Contains(t, result, "Leak detected")
		assert.Contains(t, result, "a => b")
	})

	t.Run("Scenarios", func(t *testing.T) {
		result, err := server.CallTool(ctx, "refgraph_scenarios", map[string]any{})
		assert.NoError(t, err)
		assert.Contains(t, result, "person")
		assert.Contains(t, result, "parent-child-strong")
	})

	t.Run("History", func(t *testing.T) {
		require.NoError(t, store.SaveRun(ctx, &storage.RunRecord{
			Scenario: "person",
			Verdict:  "all_collectible",
		}))

		result, err := server.CallTool(ctx, "refgraph_history", map[string]any{})
		assert.NoError(t, err)
		assert.Contains(t, result, "Run History")
		assert.Contains(t, result, "person")
	})

	t.Run("Dump", func(t *testing.T) {
		result, err := server.CallTool(ctx, "refgraph_dump", map[string]any{
			"name": "self-loop",
		})
		assert.NoError(t, err)
		assert.Contains(t, result, "narcissist")
	})

	t.Run("UnknownTool", func(t *testing.T) {
		result, err := server.CallTool(ctx, "unknown_tool", map[string]any{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown tool")
		assert.Empty(t, result)
	})
}

func TestServer_Resources(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	t.Run("ListResources", func(t *testing.T) {
		resources := server.ListResources()

		assert.NotEmpty(t, resources)
		assert.GreaterOrEqual(t, len(resources), 3)

		// Check expected resources exist
		resourceURIs := make(map[string]bool)
		for _, res := range resources {
			resourceURIs[res.URI] = true
		}

		expectedResources := []string{
			"refgraph://overview",
			"refgraph://scenarios",
			"refgraph://schema",
		}

		for _, expected := range expectedResources {
			assert.True(t, resourceURIs[expected], "Should have resource: %s", expected)
		}
	})

	t.Run("ResourceMetadata", func(t *testing.T) {
		resources := server.ListResources()

		for _, res := range resources {
			assert.NotEmpty(t, res.Name)
			assert.NotEmpty(t, res.Description)
			assert.NotEmpty(t, res.MimeType)
		}
	})
}

func TestServer_HandleResourceReads(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	ctx := context.Background()

	t.Run("ReadOverview", func(t *testing.T) {
		content, err := server.ReadResource(ctx, "refgraph://overview")
		assert.NoError(t, err)
		assert.Contains(t, content, "Recorded runs")
	})

	t.Run("ReadScenarios", func(t *testing.T) {
		content, err := server.ReadResource(ctx, "refgraph://scenarios")
		assert.NoError(t, err)
		assert.Contains(t, content, "Built-in Scenarios")
	})

	t.Run("ReadSchema", func(t *testing.T) {
		content, err := server.ReadResource(ctx, "refgraph://schema")
		assert.NoError(t, err)
		assert.Contains(t, content, "strong")
		assert.Contains(t, content, "weak")
	})

	t.Run("ReadUnknownResource", func(t *testing.T) {
		content, err := server.ReadResource(ctx, "refgraph://unknown")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown resource")
		assert.Empty(t, content)
	})
}

func TestServer_HandleRequest(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	ctx := context.Background()

	t.Run("Initialize", func(t *testing.T) {
		resp := server.handleRequest(ctx, map[string]any{
			"method": "initialize",
			"id":     float64(1),
		})

		assert.Equal(t, "2.0", resp["jsonrpc"])
		result, ok := resp["result"].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, result, "serverInfo")
	})

	t.Run("ToolsList", func(t *testing.T) {
		resp := server.handleRequest(ctx, map[string]any{
			"method": "tools/list",
			"id":     float64(2),
		})

		result, ok := resp["result"].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, result, "tools")
	})

	t.Run("ToolsCall", func(t *testing.T) {
		resp := server.handleRequest(ctx, map[string]any{
			"method": "tools/call",
			"id":     float64(3),
			"params": map[string]any{
				"name":      "refgraph_scenarios",
				"arguments": map[string]any{},
			},
		})

		result, ok := resp["result"].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, result, "content")
	})

	t.Run("ToolsCallMissingParams", func(t *testing.T) {
		resp := server.handleRequest(ctx, map[string]any{
			"method": "tools/call",
			"id":     float64(4),
		})

		assert.Contains(t, resp, "error")
	})

	t.Run("UnknownMethod", func(t *testing.T) {
		resp := server.handleRequest(ctx, map[string]any{
			"method": "bogus/method",
			"id":     float64(5),
		})

		errObj, ok := resp["error"].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, errObj["message"], "Method not found")
	})
}

func TestServer_Run(t *testing.T) {
	t.Parallel()

	t.Run("NilStreams", func(t *testing.T) {
		server, _ := newTestServer(t)
		err := server.Run(context.Background(), nil, nil)
		assert.Error(t, err)
	})

	t.Run("RespondsOnStdio", func(t *testing.T) {
		server, _ := newTestServer(t)

		in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}` + "\n")
		var out bytes.Buffer

		err := server.Run(context.Background(), in, &out)
		assert.NoError(t, err)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
		assert.Equal(t, "2.0", resp["jsonrpc"])
		assert.Contains(t, resp, "result")
	})

	t.Run("SkipsMalformedLines", func(t *testing.T) {
		server, _ := newTestServer(t)

		in := strings.NewReader("not json\n")
		var out bytes.Buffer

		err := server.Run(context.Background(), in, &out)
		assert.NoError(t, err)
		assert.Empty(t, out.String())
	})
}
