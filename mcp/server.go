// Package mcp provides the MCP (Model Context Protocol) server for refgraph.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Benny93/refgraph/internal/analysis"
	"github.com/Benny93/refgraph/internal/graph"
	"github.com/Benny93/refgraph/internal/scenario"
	"github.com/Benny93/refgraph/internal/storage"
)

// Server represents the MCP server.
type Server struct {
	storage Store
	server  *mcp.Server
}

// Store defines the storage surface the server needs.
type Store interface {
	ListRuns(ctx context.Context, scenarioName string, limit int) ([]*storage.RunRecord, error)
	RunCount() int
	SaveRun(ctx context.Context, rec *storage.RunRecord) error
	GetSnapshot(ctx context.Context, name string) (*scenario.Document, error)
	ListSnapshots(ctx context.Context) ([]string, error)
	Close() error
}

// Tool represents an MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Resource represents an MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// NewServer creates a new MCP server.
func NewServer(store Store) *Server {
	s := &Server{
		storage: store,
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "refgraph",
		Version: "0.1.0",
	}, nil)

	return s
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []Tool {
	return []Tool{
		{
			Name:        "refgraph_classify",
			Description: "Classify a built-in scenario or stored snapshot: is the graph fully collectible after root release, or does it leak through a retain cycle?",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"name": {Type: "string", Description: "Scenario or snapshot name"},
				},
				Required: []string{"name"},
			},
		},
		{
			Name:        "refgraph_scenarios",
			Description: "List the built-in retain-cycle scenarios with their expected verdicts.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{},
			},
		},
		{
			Name:        "refgraph_history",
			Description: "Show persisted classification runs, newest first.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"scenario": {Type: "string", Description: "Filter by scenario name"},
					"limit":    {Type: "integer", Description: "Maximum number of results"},
				},
			},
		},
		{
			Name:        "refgraph_dump",
			Description: "Print the nodes, ownership edges, and roots of a scenario or snapshot.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"name": {Type: "string", Description: "Scenario or snapshot name"},
				},
				Required: []string{"name"},
			},
		},
	}
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         "refgraph://overview",
			Name:        "Store Overview",
			Description: "High-level statistics about the local run history",
			MimeType:    "text/plain",
		},
		{
			URI:         "refgraph://scenarios",
			Name:        "Scenario Catalog",
			Description: "The built-in retain-cycle scenarios and their expected verdicts",
			MimeType:    "text/plain",
		},
		{
			URI:         "refgraph://schema",
			Name:        "Graph Document Schema",
			Description: "Description of the JSON ownership-graph document format",
			MimeType:    "text/plain",
		},
	}
}

// CallTool executes a tool with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "refgraph_classify":
		target, _ := args["name"].(string)
		return s.handleClassify(ctx, target)
	case "refgraph_scenarios":
		return handleScenarios(), nil
	case "refgraph_history":
		scenarioName, _ := args["scenario"].(string)
		limit, _ := args["limit"].(float64)
		if limit == 0 {
			limit = 20
		}
		return s.handleHistory(ctx, scenarioName, int(limit))
	case "refgraph_dump":
		target, _ := args["name"].(string)
		return s.handleDump(ctx, target)
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "refgraph://overview":
		return s.getOverview(ctx), nil
	case "refgraph://scenarios":
		return handleScenarios(), nil
	case "refgraph://schema":
		return getSchema(), nil
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

// Run starts the MCP server with stdio transport.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if stdin == nil || stdout == nil {
		return fmt.Errorf("stdin and stdout must not be nil")
	}

	reader := bufio.NewReader(stdin)
	encoder := json.NewEncoder(stdout)
	// Note: Do NOT use SetIndent - MCP protocol requires compact JSON (one line per message)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var req map[string]any
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}

		resp := s.handleRequest(ctx, req)
		if err := encoder.Encode(resp); err != nil {
			return err
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req map[string]any) map[string]any {
	method, _ := req["method"].(string)
	id := req["id"]

	switch method {
	case "initialize":
		return s.handleInitialize(id)
	case "tools/list":
		return s.handleToolsList(id)
	case "tools/call":
		return s.handleToolsCall(ctx, id, req)
	case "resources/list":
		return s.handleResourcesList(id)
	case "resources/read":
		return s.handleResourcesRead(ctx, id, req)
	default:
		return errorResponse(id, -32601, "Method not found: "+method)
	}
}

func (s *Server) handleInitialize(id any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo": map[string]any{
				"name":    "refgraph",
				"version": "0.1.0",
			},
			"capabilities": map[string]any{
				"tools": map[string]any{
					"listChanged": false,
				},
				"resources": map[string]any{
					"listChanged": false,
				},
			},
		},
	}
}

func (s *Server) handleToolsList(id any) map[string]any {
	tools := s.ListTools()
	toolList := make([]map[string]any, len(tools))
	for i, tool := range tools {
		schema, _ := json.Marshal(tool.InputSchema)
		var schemaMap map[string]any
		json.Unmarshal(schema, &schemaMap)

		toolList[i] = map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": schemaMap,
		}
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"tools": toolList,
		},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	name, _ := params["name"].(string)
	args, _ := params["arguments"].(map[string]any)

	result, err := s.CallTool(ctx, name, args)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"content": []map[string]any{
				{
					"type": "text",
					"text": result,
				},
			},
		},
	}
}

func (s *Server) handleResourcesList(id any) map[string]any {
	resources := s.ListResources()
	resourceList := make([]map[string]any, len(resources))
	for i, res := range resources {
		resourceList[i] = map[string]any{
			"uri":         res.URI,
			"name":        res.Name,
			"description": res.Description,
			"mimeType":    res.MimeType,
		}
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"resources": resourceList,
		},
	}
}

func (s *Server) handleResourcesRead(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	uri, _ := params["uri"].(string)

	content, err := s.ReadResource(ctx, uri)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"contents": []map[string]any{
				{
					"uri":      uri,
					"mimeType": "text/plain",
					"text":     content,
				},
			},
		},
	}
}

// Tool Handlers

func (s *Server) handleClassify(ctx context.Context, target string) (string, error) {
	if target == "" {
		return "No scenario or snapshot name provided", nil
	}

	g, name, err := s.resolveGraph(ctx, target)
	if err != nil {
		return "", err
	}
	if g == nil {
		return fmt.Sprintf("'%s' is neither a built-in scenario nor a stored snapshot.", target), nil
	}

	verdict, err := analysis.Classify(g)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Classification: %s\n\n", name)
	if verdict.Kind == analysis.AllCollectible {
		sb.WriteString("All nodes outside the root set are unreachable: the graph is fully collectible.\n")
	} else {
		fmt.Fprintf(&sb, "Leak detected: %d nodes stay reachable with no external root.\n\n", len(verdict.LeakedNodes))
		for _, cycle := range verdict.Cycles {
			ids := make([]string, len(cycle))
			for i, cid := range cycle {
				ids[i] = string(cid)
			}
			fmt.Fprintf(&sb, "- retain cycle: %s\n", strings.Join(ids, " => "))
		}
	}

	if s.storage != nil {
		rec := storage.NewRunRecord(name, verdict, g.NodeCount(), g.EdgeCount())
		_ = s.storage.SaveRun(ctx, rec)
	}

	return sb.String(), nil
}

// resolveGraph builds a graph from a scenario name or stored snapshot.
// Returns a nil graph when neither exists.
func (s *Server) resolveGraph(ctx context.Context, target string) (*graph.Graph, string, error) {
	if sc, ok := scenario.Get(target); ok {
		return sc.Build(), sc.Name, nil
	}

	if s.storage == nil {
		return nil, "", nil
	}

	doc, err := s.storage.GetSnapshot(ctx, target)
	if err != nil {
		return nil, "", err
	}
	if doc == nil {
		return nil, "", nil
	}
	if doc.Name == "" {
		doc.Name = target
	}

	g, err := doc.BuildGraph()
	if err != nil {
		return nil, "", err
	}
	return g, doc.Name, nil
}

func handleScenarios() string {
	var sb strings.Builder
	sb.WriteString("## Built-in Scenarios\n\n")
	for _, sc := range scenario.All() {
		expected := "collectible"
		if sc.Expected == analysis.Leaked {
			expected = "leaks"
		}
		fmt.Fprintf(&sb, "- **%s** (%s): %s\n", sc.Name, expected, sc.Description)
	}
	return sb.String()
}

func (s *Server) handleHistory(ctx context.Context, scenarioName string, limit int) (string, error) {
	runs, err := s.storage.ListRuns(ctx, scenarioName, limit)
	if err != nil {
		return "", err
	}

	if len(runs) == 0 {
		return "No runs recorded yet. Run `refgraph run` or the refgraph_classify tool first.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Run History (%d)\n\n", len(runs))
	for _, rec := range runs {
		fmt.Fprintf(&sb, "- %s  %s: %s", rec.RanAt.Format("2006-01-02 15:04:05"), rec.Scenario, rec.Verdict)
		if len(rec.LeakedNodes) > 0 {
			fmt.Fprintf(&sb, " (%d leaked)", len(rec.LeakedNodes))
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func (s *Server) handleDump(ctx context.Context, target string) (string, error) {
	if target == "" {
		return "No scenario or snapshot name provided", nil
	}

	g, name, err := s.resolveGraph(ctx, target)
	if err != nil {
		return "", err
	}
	if g == nil {
		return fmt.Sprintf("'%s' is neither a built-in scenario nor a stored snapshot.", target), nil
	}

	g.Reachable()

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", name)
	g.Dump(&sb)
	return sb.String(), nil
}

func (s *Server) getOverview(ctx context.Context) string {
	var sb strings.Builder
	sb.WriteString("# Refgraph Store Overview\n\n")
	fmt.Fprintf(&sb, "Recorded runs: %d\n", s.storage.RunCount())

	snapshots, err := s.storage.ListSnapshots(ctx)
	if err == nil {
		fmt.Fprintf(&sb, "Stored snapshots: %d\n", len(snapshots))
		for _, name := range snapshots {
			fmt.Fprintf(&sb, "- %s\n", name)
		}
	}

	fmt.Fprintf(&sb, "Built-in scenarios: %d\n", len(scenario.All()))
	return sb.String()
}

func getSchema() string {
	return `# Refgraph Graph Document Schema

A graph document is a JSON object describing an ownership graph:

{
  "name": "optional document name",
  "nodes": [
    {"id": "parent", "label": "Parent", "root": true},
    {"id": "child"}
  ],
  "edges": [
    {"from": "parent", "to": "child", "kind": "strong"},
    {"from": "child", "to": "parent", "kind": "weak"}
  ]
}

- "kind" is "strong" or "weak" and defaults to "strong".
- "root": true marks a node as externally held; reachability is computed
  from roots over strong edges only.
- Weak edges never keep a node alive; a strong cycle with no path from a
  root is reported as a leak.`
}

// Helper functions

func errorResponse(id any, code int, message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
}
