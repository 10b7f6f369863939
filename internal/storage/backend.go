// Package storage provides the persistence backend interface for refgraph.
//
// It defines the Backend contract that all storage implementations must
// satisfy, along with the record types shared across backends. Backends
// persist classification run history and named graph snapshots.
package storage

import (
	"context"
	"time"

	"github.com/Benny93/refgraph/internal/analysis"
	"github.com/Benny93/refgraph/internal/scenario"
)

// RunRecord is one persisted classification result.
type RunRecord struct {
	// ID is the unique record identifier, assigned by the backend.
	ID string `json:"id"`

	// Scenario is the scenario name or document name that was classified.
	Scenario string `json:"scenario"`

	// Verdict is the classification outcome ("all_collectible" or "leaked").
	Verdict string `json:"verdict"`

	// LeakedNodes lists the IDs of leaked nodes, if any.
	LeakedNodes []string `json:"leaked_nodes,omitempty"`

	// Cycles lists the strong-edge cycles sustaining the leak, if any.
	Cycles [][]string `json:"cycles,omitempty"`

	// Nodes and Edges are the graph size at classification time.
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`

	// RanAt is the classification timestamp.
	RanAt time.Time `json:"ran_at"`
}

// NewRunRecord builds a RunRecord from a classification verdict.
func NewRunRecord(name string, verdict analysis.Verdict, nodes, edges int) *RunRecord {
	rec := &RunRecord{
		Scenario: name,
		Verdict:  string(verdict.Kind),
		Nodes:    nodes,
		Edges:    edges,
	}
	for _, id := range verdict.LeakedNodes {
		rec.LeakedNodes = append(rec.LeakedNodes, string(id))
	}
	for _, cycle := range verdict.Cycles {
		ids := make([]string, len(cycle))
		for i, id := range cycle {
			ids[i] = string(id)
		}
		rec.Cycles = append(rec.Cycles, ids)
	}
	return rec
}

// Backend defines the interface for storage implementations.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// Initialize opens or creates the backend at the given path.
	// If readOnly is true, the backend is opened in read-only mode.
	Initialize(path string, readOnly bool) error

	// Close releases all resources held by the backend.
	Close() error

	// SaveRun persists a classification result. The backend assigns the
	// record ID.
	SaveRun(ctx context.Context, rec *RunRecord) error

	// ListRuns returns persisted runs, newest first. An empty scenario
	// matches all scenarios; limit <= 0 means no limit.
	ListRuns(ctx context.Context, scenarioName string, limit int) ([]*RunRecord, error)

	// RunCount returns the number of persisted runs.
	RunCount() int

	// SaveSnapshot persists a graph document under a name.
	SaveSnapshot(ctx context.Context, name string, doc *scenario.Document) error

	// GetSnapshot returns a persisted graph document, or nil if absent.
	GetSnapshot(ctx context.Context, name string) (*scenario.Document, error)

	// ListSnapshots returns the names of all persisted snapshots.
	ListSnapshots(ctx context.Context) ([]string, error)

	// DeleteAll removes every run and snapshot.
	DeleteAll(ctx context.Context) error
}
