// Package storage provides the storage backend for refgraph.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/Benny93/refgraph/internal/scenario"
)

// Key prefixes for different data types
const (
	prefixRun      = "run:"  // classification run records
	prefixSnapshot = "snap:" // graph snapshots
)

// BadgerBackend is a BadgerDB-backed storage implementation.
type BadgerBackend struct {
	db          *badger.DB
	initialized bool
	mu          sync.RWMutex
	runCount    int
}

// NewBadgerBackend creates a new BadgerDB backend.
func NewBadgerBackend() *BadgerBackend {
	return &BadgerBackend{}
}

// Initialize opens or creates the BadgerDB database at the given path.
func (b *BadgerBackend) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithNumMemtables(5).
		WithLoggingLevel(badger.ERROR) // Suppress INFO/WARNING logs

	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	var err error
	b.db, err = badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w", err)
	}

	b.initialized = true
	b.countRunsFromDB()

	return nil
}

// countRunsFromDB recounts persisted runs. Must be called with the lock held.
func (b *BadgerBackend) countRunsFromDB() {
	b.runCount = 0

	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixRun)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		b.runCount++
	}
}

// Close releases all resources held by the backend.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil
	b.initialized = false
	return err
}

// runKey builds a run key ordered by timestamp so iteration is
// chronological.
func runKey(ranAt time.Time, scenarioName string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixRun, ranAt.UnixNano(), scenarioName))
}

func snapshotKey(name string) []byte {
	return []byte(prefixSnapshot + name)
}

// SaveRun persists a classification result.
func (b *BadgerBackend) SaveRun(ctx context.Context, rec *RunRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rec.RanAt.IsZero() {
		rec.RanAt = time.Now().UTC()
	}
	key := runKey(rec.RanAt, rec.Scenario)
	rec.ID = string(key[len(prefixRun):])

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}

	b.runCount++
	return nil
}

// ListRuns returns persisted runs, newest first.
func (b *BadgerBackend) ListRuns(ctx context.Context, scenarioName string, limit int) ([]*RunRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var runs []*RunRecord
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixRun)
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek past the end of the prefix range.
		seek := append([]byte(prefixRun), 0xFF)
		for it.Seek(seek); it.Valid(); it.Next() {
			var rec RunRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			if scenarioName != "" && rec.Scenario != scenarioName {
				continue
			}
			runs = append(runs, &rec)
			if limit > 0 && len(runs) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

// RunCount returns the number of persisted runs.
func (b *BadgerBackend) RunCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.runCount
}

// SaveSnapshot persists a graph document under a name.
func (b *BadgerBackend) SaveSnapshot(ctx context.Context, name string, doc *scenario.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(name), data)
	})
	if err != nil {
		return fmt.Errorf("saving snapshot %s: %w", name, err)
	}
	return nil
}

// GetSnapshot returns a persisted graph document, or nil if absent.
func (b *BadgerBackend) GetSnapshot(ctx context.Context, name string) (*scenario.Document, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var doc *scenario.Document
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(name))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			doc = &scenario.Document{}
			return json.Unmarshal(val, doc)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", name, err)
	}

	return doc, nil
}

// ListSnapshots returns the names of all persisted snapshots.
func (b *BadgerBackend) ListSnapshots(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var names []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixSnapshot)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			names = append(names, strings.TrimPrefix(key, prefixSnapshot))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	sort.Strings(names)
	return names, nil
}

// DeleteAll removes every run and snapshot.
func (b *BadgerBackend) DeleteAll(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("dropping data: %w", err)
	}
	b.runCount = 0
	return nil
}
