// Package analysis implements collectibility classification and leak
// diagnostics over ownership graphs.
//
// Classification compares two liveness notions. Tracing liveness is what a
// collector would compute: the set reachable from roots over strong edges.
// Reference-counting liveness is what naive retain/release actually keeps
// alive: a node survives while it is a root or while any surviving node
// strongly owns it, so strong cycles sustain themselves with no root at
// all. Every node alive under reference counting but unreachable from any
// root is a leak, and the sustaining cycles are recovered with Tarjan's
// strongly connected components algorithm on the strong-edge subgraph.
package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Benny93/refgraph/internal/graph"
)

// VerdictKind is the overall classification result.
type VerdictKind string

const (
	// AllCollectible means reference counting reclaims everything tracing
	// would: no node survives without a path from a root.
	AllCollectible VerdictKind = "all_collectible"
	// Leaked means at least one node stays alive solely through a strong
	// cycle with no path from any root.
	Leaked VerdictKind = "leaked"
)

// Verdict is the result of classifying a graph.
type Verdict struct {
	// Kind is the overall result.
	Kind VerdictKind

	// LeakedNodes holds every node kept alive without a path from a root,
	// ordered by ID. Empty when Kind is AllCollectible.
	LeakedNodes []graph.NodeID

	// Cycles holds the strong-edge cycles sustaining the leak: each is a
	// strongly connected component of size >= 2, or a self-loop, with its
	// members ordered by ID. Empty when Kind is AllCollectible.
	Cycles [][]graph.NodeID
}

// String renders the verdict for diagnostics.
func (v Verdict) String() string {
	if v.Kind == AllCollectible {
		return "all collectible"
	}

	parts := make([]string, 0, len(v.Cycles))
	for _, cycle := range v.Cycles {
		ids := make([]string, len(cycle))
		for i, id := range cycle {
			ids[i] = string(id)
		}
		parts = append(parts, "{"+strings.Join(ids, ", ")+"}")
	}
	return fmt.Sprintf("leaked %d nodes, cycles: %s", len(v.LeakedNodes), strings.Join(parts, " "))
}

// Classify inspects the graph's current state and reports whether
// reference counting would reclaim everything outside the root-reachable
// set. The caller is expected to have already released the roots it wanted
// to release; Classify never mutates the root set. Weak edges are ignored
// throughout.
func Classify(g *graph.Graph) (Verdict, error) {
	if err := g.CheckConsistency(); err != nil {
		return Verdict{}, fmt.Errorf("classifying: %w", err)
	}

	reached := g.Reachable()
	alive := refCountAlive(g)

	var leaked []graph.NodeID
	for id := range alive {
		if _, ok := reached[id]; !ok {
			leaked = append(leaked, id)
		}
	}

	if len(leaked) == 0 {
		return Verdict{Kind: AllCollectible}, nil
	}
	sort.Slice(leaked, func(i, j int) bool { return leaked[i] < leaked[j] })

	leakedSet := make(map[graph.NodeID]struct{}, len(leaked))
	for _, id := range leaked {
		leakedSet[id] = struct{}{}
	}

	// Recover the sustaining cycles: strong SCCs of size >= 2 and strong
	// self-loops whose members leaked. Members of one SCC reach each other,
	// so a component is either fully leaked or fully reachable.
	var cycles [][]graph.NodeID
	for _, component := range StrongComponents(g) {
		if !isCycle(g, component) {
			continue
		}
		if _, ok := leakedSet[component[0]]; !ok {
			continue
		}
		sorted := append([]graph.NodeID(nil), component...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		cycles = append(cycles, sorted)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })

	return Verdict{Kind: Leaked, LeakedNodes: leaked, Cycles: cycles}, nil
}

// refCountAlive simulates naive reference counting: nodes with no root and
// no surviving strong owner are freed, their strong references released,
// and the trimming repeats until a fixed point. What survives is the
// root-reachable set plus everything sustained by strong cycles.
func refCountAlive(g *graph.Graph) map[graph.NodeID]struct{} {
	roots := g.Roots()

	alive := make(map[graph.NodeID]struct{})
	refs := make(map[graph.NodeID]int)
	for _, n := range g.Nodes() {
		alive[n.ID] = struct{}{}
		refs[n.ID] = len(g.Incoming(n.ID, graph.Strong))
	}

	var queue []graph.NodeID
	for id := range alive {
		if _, isRoot := roots[id]; !isRoot && refs[id] == 0 {
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := alive[id]; !ok {
			continue
		}
		delete(alive, id)

		for _, e := range g.Outgoing(id, graph.Strong) {
			if _, ok := alive[e.To]; !ok {
				continue
			}
			refs[e.To]--
			if _, isRoot := roots[e.To]; !isRoot && refs[e.To] == 0 {
				queue = append(queue, e.To)
			}
		}
	}

	return alive
}

func isCycle(g *graph.Graph, component []graph.NodeID) bool {
	if len(component) >= 2 {
		return true
	}
	// Single node: only a cycle if it strongly owns itself.
	id := component[0]
	for _, e := range g.Outgoing(id, graph.Strong) {
		if e.To == id {
			return true
		}
	}
	return false
}

// StrongComponents computes the strongly connected components of the
// strong-edge subgraph using Tarjan's algorithm. Every node appears in
// exactly one component; single nodes without a self-loop form trivial
// components of size 1.
func StrongComponents(g *graph.Graph) [][]graph.NodeID {
	index := 0
	indexes := make(map[graph.NodeID]int)
	lowlink := make(map[graph.NodeID]int)
	onStack := make(map[graph.NodeID]bool)
	var stack []graph.NodeID
	var components [][]graph.NodeID

	var connect func(v graph.NodeID)
	connect = func(v graph.NodeID) {
		indexes[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, e := range g.Outgoing(v, graph.Strong) {
			w := e.To
			if _, seen := indexes[w]; !seen {
				connect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indexes[w] < lowlink[v] {
					lowlink[v] = indexes[w]
				}
			}
		}

		if lowlink[v] == indexes[v] {
			var component []graph.NodeID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			components = append(components, component)
		}
	}

	for _, n := range g.Nodes() {
		if _, seen := indexes[n.ID]; !seen {
			connect(n.ID)
		}
	}

	return components
}
