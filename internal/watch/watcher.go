// Package watch provides live reclassification of graph documents.
//
// It monitors a directory of .json ownership-graph documents and re-runs
// the classifier whenever a document changes, batching rapid sequences of
// filesystem events before processing.
package watch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Benny93/refgraph/internal/analysis"
	"github.com/Benny93/refgraph/internal/scenario"
	"github.com/Benny93/refgraph/internal/storage"
)

// batchDelay is the quiet period before a batch of changes is processed.
const batchDelay = 500 * time.Millisecond

// Dir monitors a directory of graph documents and reclassifies documents
// as they change. Results are written to out and persisted to store when
// store is non-nil. Blocks until the context is cancelled.
func Dir(ctx context.Context, dir string, store storage.Backend, out io.Writer) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("accessing %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	// Batch changed files so editors that write in multiple events trigger
	// a single reclassification.
	changed := make(map[string]bool)
	batchTimer := time.NewTimer(batchDelay)
	batchTimer.Stop()

	fmt.Fprintf(out, "Watching %s for graph documents (Ctrl+C to stop)\n", dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isDocument(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			changed[event.Name] = true
			batchTimer.Reset(batchDelay)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)

		case <-batchTimer.C:
			for path := range changed {
				if err := classifyDocument(ctx, path, store, out); err != nil {
					fmt.Fprintf(os.Stderr, "Error classifying %s: %v\n", path, err)
				}
			}
			changed = make(map[string]bool)
		}
	}
}

// isDocument reports whether a path looks like a graph document.
func isDocument(path string) bool {
	return strings.HasSuffix(path, ".json")
}

// classifyDocument loads, classifies, reports, and optionally persists one
// document.
func classifyDocument(ctx context.Context, path string, store storage.Backend, out io.Writer) error {
	doc, err := scenario.LoadDocument(path)
	if err != nil {
		return err
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), ".json")
	}

	g, err := doc.BuildGraph()
	if err != nil {
		return err
	}

	verdict, err := analysis.Classify(g)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s: %s\n", doc.Name, verdict)

	if store == nil {
		return nil
	}

	rec := storage.NewRunRecord(doc.Name, verdict, g.NodeCount(), g.EdgeCount())
	return store.SaveRun(ctx, rec)
}
