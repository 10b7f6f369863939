// Package graph provides the in-memory ownership graph for refgraph.
//
// It provides a lightweight, map-backed graph that stores nodes and
// ownership edges with O(1) lookups by ID. Adjacency indexes on outgoing
// and incoming edges keep traversal proportional to the result set rather
// than the total graph size.
package graph

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// Graph is a mutable directed graph of objects/closures and the ownership
// edges between them, plus the current root set.
//
// Nodes are keyed by their ID; at most one edge exists per (from, to) pair.
// Mutations and queries are guarded by a RWMutex so a graph can be shared
// with diagnostic readers, but the model itself is defined single-threaded:
// no operation blocks or suspends.
type Graph struct {
	mu    sync.RWMutex
	seq   int
	nodes map[NodeID]*Node
	roots map[NodeID]struct{}

	// Adjacency indexes, kept in sync by add/remove helpers.
	outgoing map[NodeID]map[NodeID]EdgeKind
	incoming map[NodeID]map[NodeID]EdgeKind
}

// New creates a new empty ownership graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[NodeID]*Node),
		roots:    make(map[NodeID]struct{}),
		outgoing: make(map[NodeID]map[NodeID]EdgeKind),
		incoming: make(map[NodeID]map[NodeID]EdgeKind),
	}
}

// GenerateID creates a deterministic node ID from a label and an
// allocation sequence number. Format: {label}#{sequence}
func GenerateID(label string, seq int) NodeID {
	return NodeID(fmt.Sprintf("%s#%d", label, seq))
}

// AddNode allocates a new node with the given label and returns its ID.
// New nodes are not roots and have no edges.
func (g *Graph) AddNode(label string) NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	id := GenerateID(label, g.seq)
	g.nodes[id] = &Node{ID: id, Label: label, State: StateAllocated}
	return id
}

// AddNodeWithID registers a node under a caller-chosen ID, replacing any
// node that already uses it. Used when building graphs from documents.
func (g *Graph) AddNodeWithID(id NodeID, label string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[id] = &Node{ID: id, Label: label, State: StateAllocated}
}

// GetNode returns the node with the given ID, or nil if it does not exist.
func (g *Graph) GetNode(id NodeID) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, targets := range g.outgoing {
		n += len(targets)
	}
	return n
}

// AddEdge records an ownership edge from one node to another.
//
// Adding an identical edge again is a no-op. Re-adding an existing edge
// with a different kind fails with ErrConflictingEdge and keeps the
// original. Unknown endpoints fail with ErrInvalidReference.
func (g *Graph) AddEdge(from, to NodeID, kind EdgeKind) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !kind.Valid() {
		return fmt.Errorf("adding edge %s -> %s: unknown kind %q", from, to, kind)
	}
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("adding edge %s -> %s: %w", from, to, ErrInvalidReference)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("adding edge %s -> %s: %w", from, to, ErrInvalidReference)
	}

	if existing, ok := g.outgoing[from][to]; ok {
		if existing == kind {
			return nil
		}
		return fmt.Errorf("adding edge %s -> %s as %s: %w", from, to, kind, ErrConflictingEdge)
	}

	if g.outgoing[from] == nil {
		g.outgoing[from] = make(map[NodeID]EdgeKind)
	}
	g.outgoing[from][to] = kind

	if g.incoming[to] == nil {
		g.incoming[to] = make(map[NodeID]EdgeKind)
	}
	g.incoming[to][from] = kind

	return nil
}

// RemoveEdge deletes the edge between two nodes, simulating a property
// being set to nil. Fails with ErrEdgeNotFound if no such edge exists.
func (g *Graph) RemoveEdge(from, to NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.outgoing[from][to]; !ok {
		return fmt.Errorf("removing edge %s -> %s: %w", from, to, ErrEdgeNotFound)
	}

	delete(g.outgoing[from], to)
	delete(g.incoming[to], from)
	return nil
}

// SetRoot marks a node as externally held (a caller-visible variable) or
// releases it. Fails with ErrNodeNotFound for unknown nodes.
func (g *Graph) SetRoot(id NodeID, isRoot bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("setting root %s: %w", id, ErrNodeNotFound)
	}

	if isRoot {
		g.roots[id] = struct{}{}
	} else {
		delete(g.roots, id)
	}
	return nil
}

// ClearRoots releases every root, simulating all external variables going
// out of scope at once.
func (g *Graph) ClearRoots() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roots = make(map[NodeID]struct{})
}

// Roots returns the current root set.
func (g *Graph) Roots() map[NodeID]struct{} {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[NodeID]struct{}, len(g.roots))
	for id := range g.roots {
		out[id] = struct{}{}
	}
	return out
}

// IsRoot reports whether the node is currently in the root set.
func (g *Graph) IsRoot(id NodeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.roots[id]
	return ok
}

// Outgoing returns edges originating from the given node.
// If kind is provided, only edges of that kind are returned.
func (g *Graph) Outgoing(id NodeID, kind ...EdgeKind) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return collectEdges(g.outgoing[id], func(other NodeID, k EdgeKind) Edge {
		return Edge{From: id, To: other, Kind: k}
	}, kind...)
}

// Incoming returns edges targeting the given node.
// If kind is provided, only edges of that kind are returned.
func (g *Graph) Incoming(id NodeID, kind ...EdgeKind) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return collectEdges(g.incoming[id], func(other NodeID, k EdgeKind) Edge {
		return Edge{From: other, To: id, Kind: k}
	}, kind...)
}

func collectEdges(adj map[NodeID]EdgeKind, mk func(NodeID, EdgeKind) Edge, kind ...EdgeKind) []Edge {
	if len(adj) == 0 {
		return nil
	}

	result := make([]Edge, 0, len(adj))
	for other, k := range adj {
		if len(kind) > 0 && k != kind[0] {
			continue
		}
		result = append(result, mk(other, k))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].From != result[j].From {
			return result[i].From < result[j].From
		}
		return result[i].To < result[j].To
	})
	return result
}

// Edges returns every edge in the graph, ordered by (from, to).
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var result []Edge
	for from, targets := range g.outgoing {
		for to, k := range targets {
			result = append(result, Edge{From: from, To: to, Kind: k})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].From != result[j].From {
			return result[i].From < result[j].From
		}
		return result[i].To < result[j].To
	})
	return result
}

// Nodes returns every node, ordered by ID.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Reachable computes the set of nodes reachable from the root set via
// strong edges only. Weak edges never extend reachability. The traversal
// is a pure query; only node diagnostic states are refreshed.
func (g *Graph) Reachable() map[NodeID]struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reachableLocked()
}

// reachableLocked is the BFS core. Must be called with the lock held.
func (g *Graph) reachableLocked() map[NodeID]struct{} {
	reached := make(map[NodeID]struct{}, len(g.roots))
	queue := make([]NodeID, 0, len(g.roots))

	for id := range g.roots {
		if _, ok := g.nodes[id]; !ok {
			continue
		}
		reached[id] = struct{}{}
		queue = append(queue, id)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for target, kind := range g.outgoing[id] {
			if kind != Strong {
				continue
			}
			if _, seen := reached[target]; seen {
				continue
			}
			reached[target] = struct{}{}
			queue = append(queue, target)
		}
	}

	for id, n := range g.nodes {
		if _, ok := reached[id]; ok {
			n.State = StateReachable
		} else {
			n.State = StateUnreachable
		}
	}

	return reached
}

// Collect simulates naive reference-counting deallocation: nodes that are
// not roots and have no surviving strong owner are freed, their outgoing
// references released, and the trimming repeats until a fixed point. Freed
// nodes are removed from the graph with their edges and returned ordered
// by ID. Collection only happens through this call, and nodes sustained by
// a strong cycle are never freed here: they stay in the graph, stuck
// unreachable, which is exactly the leak the classifier reports.
func (g *Graph) Collect() []*Node {
	g.mu.Lock()
	defer g.mu.Unlock()

	refs := make(map[NodeID]int, len(g.nodes))
	for id := range g.nodes {
		refs[id] = 0
	}
	for _, targets := range g.outgoing {
		for to, kind := range targets {
			if kind == Strong {
				refs[to]++
			}
		}
	}

	var queue []NodeID
	for id := range g.nodes {
		if _, isRoot := g.roots[id]; !isRoot && refs[id] == 0 {
			queue = append(queue, id)
		}
	}

	var collected []*Node
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		n, ok := g.nodes[id]
		if !ok {
			continue
		}
		n.State = StateCollected
		collected = append(collected, n)

		// Release this node's strong references before removing it.
		for to, kind := range g.outgoing[id] {
			if kind != Strong {
				continue
			}
			refs[to]--
			if _, isRoot := g.roots[to]; isRoot || refs[to] > 0 {
				continue
			}
			if _, alive := g.nodes[to]; alive {
				queue = append(queue, to)
			}
		}

		delete(g.nodes, id)
		delete(g.roots, id)
		g.cascadeEdgesLocked(id)
	}

	g.reachableLocked()

	sort.Slice(collected, func(i, j int) bool { return collected[i].ID < collected[j].ID })
	return collected
}

// cascadeEdgesLocked removes all edges where the node is source or target.
// Must be called with the write lock held.
func (g *Graph) cascadeEdgesLocked(id NodeID) {
	for target := range g.outgoing[id] {
		delete(g.incoming[target], id)
	}
	delete(g.outgoing, id)

	for source := range g.incoming[id] {
		delete(g.outgoing[source], id)
	}
	delete(g.incoming, id)
}

// CheckConsistency verifies that every edge endpoint references a node
// present in the graph. Returns ErrInconsistentGraph on violation; this
// should not occur unless the graph was mutated outside its API.
func (g *Graph) CheckConsistency() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for from, targets := range g.outgoing {
		if _, ok := g.nodes[from]; !ok && len(targets) > 0 {
			return fmt.Errorf("edge source %s missing: %w", from, ErrInconsistentGraph)
		}
		for to := range targets {
			if _, ok := g.nodes[to]; !ok {
				return fmt.Errorf("edge target %s missing: %w", to, ErrInconsistentGraph)
			}
		}
	}
	return nil
}

// Dump writes a textual listing of nodes, edges, and roots for debugging.
func (g *Graph) Dump(w io.Writer) {
	nodes := g.Nodes()
	edges := g.Edges()
	roots := g.Roots()

	fmt.Fprintf(w, "nodes (%d):\n", len(nodes))
	for _, n := range nodes {
		marker := " "
		if _, ok := roots[n.ID]; ok {
			marker = "*"
		}
		fmt.Fprintf(w, "  %s %s [%s]\n", marker, n.ID, n.State)
	}

	fmt.Fprintf(w, "edges (%d):\n", len(edges))
	for _, e := range edges {
		arrow := "==>"
		if e.Kind == Weak {
			arrow = "-->"
		}
		fmt.Fprintf(w, "    %s %s %s (%s)\n", e.From, arrow, e.To, e.Kind)
	}
}
