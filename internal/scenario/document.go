package scenario

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Benny93/refgraph/internal/graph"
)

// Document is the JSON representation of an ownership graph, used to
// classify user-defined graphs from the CLI and watch mode.
type Document struct {
	// Name labels the document in reports. Defaults to the file name.
	Name string `json:"name,omitempty"`

	// Nodes lists every object/closure in the graph.
	Nodes []DocumentNode `json:"nodes"`

	// Edges lists the ownership relations between nodes.
	Edges []DocumentEdge `json:"edges"`
}

// DocumentNode is one node entry in a graph document.
type DocumentNode struct {
	// ID is the document-scoped node identifier.
	ID string `json:"id"`

	// Label is an optional human-readable name; defaults to ID.
	Label string `json:"label,omitempty"`

	// Root marks the node as externally held.
	Root bool `json:"root,omitempty"`
}

// DocumentEdge is one edge entry in a graph document.
type DocumentEdge struct {
	From string `json:"from"`
	To   string `json:"to"`

	// Kind is "strong" or "weak". Defaults to "strong".
	Kind string `json:"kind,omitempty"`
}

// LoadDocument reads and parses a graph document from disk.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing document %s: %w", path, err)
	}

	return &doc, nil
}

// BuildGraph validates the document and constructs the ownership graph it
// describes. Edge endpoints must name declared nodes; unknown edge kinds
// and duplicate node IDs are rejected.
func (d *Document) BuildGraph() (*graph.Graph, error) {
	if len(d.Nodes) == 0 {
		return nil, fmt.Errorf("document %q has no nodes", d.Name)
	}

	g := graph.New()
	seen := make(map[string]bool, len(d.Nodes))

	for _, n := range d.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("document %q: node with empty id", d.Name)
		}
		if seen[n.ID] {
			return nil, fmt.Errorf("document %q: duplicate node id %q", d.Name, n.ID)
		}
		seen[n.ID] = true

		label := n.Label
		if label == "" {
			label = n.ID
		}
		g.AddNodeWithID(graph.NodeID(n.ID), label)
		if n.Root {
			if err := g.SetRoot(graph.NodeID(n.ID), true); err != nil {
				return nil, err
			}
		}
	}

	for _, e := range d.Edges {
		kind := graph.EdgeKind(e.Kind)
		if e.Kind == "" {
			kind = graph.Strong
		}
		if !kind.Valid() {
			return nil, fmt.Errorf("document %q: edge %s -> %s has unknown kind %q", d.Name, e.From, e.To, e.Kind)
		}
		if err := g.AddEdge(graph.NodeID(e.From), graph.NodeID(e.To), kind); err != nil {
			return nil, fmt.Errorf("document %q: %w", d.Name, err)
		}
	}

	return g, nil
}
