package analysis

import "github.com/Benny93/refgraph/internal/graph"

// Path is a sequence of node IDs from a target back to a root.
type Path struct {
	IDs []graph.NodeID
}

// PathsToRoots finds up to maxPaths ownership paths from a node back to the
// root set, walking incoming strong edges breadth-first. Each path avoids
// revisiting its own nodes, so cyclic ownership does not loop the search.
// A node with no strong path to any root gets no paths: that is exactly the
// collectible case.
func PathsToRoots(g *graph.Graph, from graph.NodeID, maxPaths int) []Path {
	if maxPaths <= 0 || g.GetNode(from) == nil {
		return nil
	}

	roots := g.Roots()
	if _, ok := roots[from]; ok {
		return []Path{{IDs: []graph.NodeID{from}}}
	}

	type searchNode struct {
		id   graph.NodeID
		path []graph.NodeID
	}

	var result []Path
	queue := []searchNode{{id: from, path: []graph.NodeID{from}}}

	for len(queue) > 0 && len(result) < maxPaths {
		node := queue[0]
		queue = queue[1:]

		for _, e := range g.Incoming(node.id, graph.Strong) {
			referrer := e.From

			inPath := false
			for _, id := range node.path {
				if id == referrer {
					inPath = true
					break
				}
			}
			if inPath {
				continue
			}

			newPath := make([]graph.NodeID, len(node.path)+1)
			copy(newPath, node.path)
			newPath[len(node.path)] = referrer

			if _, ok := roots[referrer]; ok {
				result = append(result, Path{IDs: newPath})
				if len(result) >= maxPaths {
					break
				}
			} else {
				queue = append(queue, searchNode{id: referrer, path: newPath})
			}
		}
	}

	return result
}
