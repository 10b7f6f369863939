// Package graph provides the ownership graph data model for refgraph.
//
// It defines nodes (allocated objects and closures), directed ownership
// edges between them (strong or weak), and the root set of externally
// held references from which reachability is computed.
package graph

import "errors"

// NodeID uniquely identifies a node within a graph.
type NodeID string

// EdgeKind is the ownership strength of an edge.
type EdgeKind string

const (
	// Strong edges keep their target reachable as long as the source is.
	Strong EdgeKind = "strong"
	// Weak edges allow lookup but never sustain reachability.
	Weak EdgeKind = "weak"
)

// Valid reports whether k is a known edge kind.
func (k EdgeKind) Valid() bool {
	return k == Strong || k == Weak
}

// LifeState is the diagnostic lifecycle state of a node.
type LifeState string

const (
	StateAllocated   LifeState = "allocated"
	StateReachable   LifeState = "reachable"
	StateUnreachable LifeState = "unreachable"
	StateCollected   LifeState = "collected"
)

// Node represents one allocated object or closure instance.
type Node struct {
	// ID is the unique identifier for the node.
	// Format: {label}#{sequence}
	ID NodeID

	// Label is a human-readable name for diagnostics (e.g. "parent").
	Label string

	// State is the diagnostic lifecycle state. It is updated by
	// Reachable/Collect and never drives classification.
	State LifeState
}

// Edge represents a directed ownership relation between two nodes.
type Edge struct {
	// From is the ID of the owning node.
	From NodeID

	// To is the ID of the owned node.
	To NodeID

	// Kind is the ownership strength.
	Kind EdgeKind
}

// Errors returned by graph operations. Every failure leaves the graph
// unchanged.
var (
	// ErrInvalidReference indicates an edge endpoint that is not in the graph.
	ErrInvalidReference = errors.New("edge references unknown node")

	// ErrNodeNotFound indicates a lookup or root change for an unknown node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrEdgeNotFound indicates removal of an edge that does not exist.
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrConflictingEdge indicates re-adding an existing edge with a
	// different kind. The original edge is kept.
	ErrConflictingEdge = errors.New("edge already exists with different kind")

	// ErrInconsistentGraph indicates an internal invariant violation:
	// an edge endpoint that is not present in the node set.
	ErrInconsistentGraph = errors.New("graph state is inconsistent")
)
