// Package storage provides the storage backend for refgraph.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Benny93/refgraph/internal/scenario"
)

// MemoryBackend is an in-memory implementation of Backend for testing.
type MemoryBackend struct {
	mu        sync.RWMutex
	runs      []*RunRecord
	snapshots map[string]*scenario.Document
	seq       int
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		snapshots: make(map[string]*scenario.Document),
	}
}

// Initialize implements Backend.
func (m *MemoryBackend) Initialize(path string, readOnly bool) error {
	return nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = nil
	m.snapshots = nil
	return nil
}

// SaveRun implements Backend.
func (m *MemoryBackend) SaveRun(ctx context.Context, rec *RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.RanAt.IsZero() {
		rec.RanAt = time.Now().UTC()
	}
	m.seq++
	rec.ID = fmt.Sprintf("%d:%s", m.seq, rec.Scenario)
	m.runs = append(m.runs, rec)
	return nil
}

// ListRuns implements Backend.
func (m *MemoryBackend) ListRuns(ctx context.Context, scenarioName string, limit int) ([]*RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var runs []*RunRecord
	for i := len(m.runs) - 1; i >= 0; i-- {
		rec := m.runs[i]
		if scenarioName != "" && rec.Scenario != scenarioName {
			continue
		}
		runs = append(runs, rec)
		if limit > 0 && len(runs) >= limit {
			break
		}
	}
	return runs, nil
}

// RunCount implements Backend.
func (m *MemoryBackend) RunCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}

// SaveSnapshot implements Backend.
func (m *MemoryBackend) SaveSnapshot(ctx context.Context, name string, doc *scenario.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[name] = doc
	return nil
}

// GetSnapshot implements Backend.
func (m *MemoryBackend) GetSnapshot(ctx context.Context, name string) (*scenario.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshots[name], nil
}

// ListSnapshots implements Backend.
func (m *MemoryBackend) ListSnapshots(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.snapshots))
	for name := range m.snapshots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteAll implements Backend.
func (m *MemoryBackend) DeleteAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = nil
	m.snapshots = make(map[string]*scenario.Document)
	return nil
}
