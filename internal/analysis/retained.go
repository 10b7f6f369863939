package analysis

import (
	"sort"

	"github.com/Benny93/refgraph/internal/graph"
)

// Retained computes the set of nodes that would become collectible if the
// given root were released, leaving all other roots in place. It is the
// difference between the current reachable set and the reachable set with
// the root removed: exactly the nodes the root is solely keeping alive.
// Returns nil if the node is not currently a root.
func Retained(g *graph.Graph, root graph.NodeID) []graph.NodeID {
	if !g.IsRoot(root) {
		return nil
	}

	before := g.Reachable()

	// Temporarily drop the root, recompute, restore.
	if err := g.SetRoot(root, false); err != nil {
		return nil
	}
	after := g.Reachable()
	_ = g.SetRoot(root, true)
	g.Reachable() // restore diagnostic states

	var retained []graph.NodeID
	for id := range before {
		if _, still := after[id]; !still {
			retained = append(retained, id)
		}
	}
	sort.Slice(retained, func(i, j int) bool { return retained[i] < retained[j] })
	return retained
}
