// Package cmd provides CLI command implementations for refgraph.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/Benny93/refgraph/internal/analysis"
	"github.com/Benny93/refgraph/internal/graph"
	"github.com/Benny93/refgraph/internal/scenario"
	"github.com/Benny93/refgraph/internal/storage"
	"github.com/Benny93/refgraph/internal/watch"
	"github.com/Benny93/refgraph/mcp"
)

// Version is set at build time via ldflags.
var Version = "dev"

// dataDirName is the per-directory data directory holding the Badger store.
const dataDirName = ".refgraph"

// openStorage opens the Badger store under the current directory, creating
// it if needed.
func openStorage(readOnly bool) (storage.Backend, error) {
	dataDir, err := filepath.Abs(dataDirName)
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dataDir, err)
	}

	store := storage.NewBadgerBackend()
	if err := store.Initialize(filepath.Join(dataDir, "badger"), readOnly); err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return store, nil
}

// printVerdict renders one classification result with color.
func printVerdict(name string, verdict analysis.Verdict) {
	if verdict.Kind == analysis.AllCollectible {
		color.Green("✓ %s: all collectible", name)
		return
	}

	color.Red("✗ %s: leaked %d nodes", name, len(verdict.LeakedNodes))
	for _, cycle := range verdict.Cycles {
		ids := make([]string, len(cycle))
		for i, id := range cycle {
			ids[i] = string(id)
		}
		fmt.Printf("    cycle: %s\n", strings.Join(ids, " => "))
	}
}

// RunCmd runs built-in scenarios and persists the results.
type RunCmd struct {
	Scenario  string `arg:"" optional:"" help:"Scenario name (default: all)"`
	NoPersist bool   `help:"Skip writing results to the local store"`
}

// Run executes the run command.
func (c *RunCmd) Run() error {
	ctx := context.Background()

	var scenarios []scenario.Scenario
	if c.Scenario != "" {
		s, ok := scenario.Get(c.Scenario)
		if !ok {
			return fmt.Errorf("unknown scenario %q (try: refgraph list)", c.Scenario)
		}
		scenarios = []scenario.Scenario{s}
	} else {
		scenarios = scenario.All()
	}

	var store storage.Backend
	if !c.NoPersist {
		var err error
		store, err = openStorage(false)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
	}

	leaks := 0
	for _, s := range scenarios {
		g := s.Build()
		verdict, err := analysis.Classify(g)
		if err != nil {
			return fmt.Errorf("classifying %s: %w", s.Name, err)
		}

		printVerdict(s.Name, verdict)
		if verdict.Kind == analysis.Leaked {
			leaks++
		}
		if verdict.Kind != s.Expected {
			color.Yellow("  warning: expected %s, got %s", s.Expected, verdict.Kind)
		}

		if store != nil {
			rec := storage.NewRunRecord(s.Name, verdict, g.NodeCount(), g.EdgeCount())
			if err := store.SaveRun(ctx, rec); err != nil {
				return fmt.Errorf("saving run: %w", err)
			}
		}
	}

	fmt.Printf("\n%d scenarios, %d leaking\n", len(scenarios), leaks)
	return nil
}

// ClassifyCmd classifies a graph document from disk.
type ClassifyCmd struct {
	File    string `arg:"" help:"Path to a JSON graph document"`
	Persist bool   `help:"Write the result to the local store"`
}

// Run executes the classify command.
func (c *ClassifyCmd) Run() error {
	ctx := context.Background()

	doc, err := scenario.LoadDocument(c.File)
	if err != nil {
		return err
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(c.File), ".json")
	}

	g, err := doc.BuildGraph()
	if err != nil {
		return err
	}

	verdict, err := analysis.Classify(g)
	if err != nil {
		return err
	}

	printVerdict(doc.Name, verdict)

	if !c.Persist {
		return nil
	}

	store, err := openStorage(false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.SaveSnapshot(ctx, doc.Name, doc); err != nil {
		return err
	}
	rec := storage.NewRunRecord(doc.Name, verdict, g.NodeCount(), g.EdgeCount())
	return store.SaveRun(ctx, rec)
}

// ListCmd lists the built-in scenarios.
type ListCmd struct{}

// Run executes the list command.
func (c *ListCmd) Run() error {
	fmt.Println("## Built-in Scenarios")
	fmt.Println()
	for _, s := range scenario.All() {
		marker := color.GreenString("collectible")
		if s.Expected == analysis.Leaked {
			marker = color.RedString("leaks")
		}
		fmt.Printf("%-24s %s\n", s.Name, marker)
		fmt.Printf("    %s\n", s.Description)
	}
	return nil
}

// HistoryCmd shows persisted classification runs.
type HistoryCmd struct {
	Scenario string `arg:"" optional:"" help:"Filter by scenario name"`
	Limit    int    `short:"n" default:"20" help:"Maximum results"`
}

// Run executes the history command.
func (c *HistoryCmd) Run() error {
	ctx := context.Background()

	store, err := openStorage(false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(ctx, c.Scenario, c.Limit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded. Use `refgraph run` first.")
		return nil
	}

	for _, rec := range runs {
		when := rec.RanAt.Format("2006-01-02 15:04:05")
		if rec.Verdict == string(analysis.Leaked) {
			color.Red("%s  %-24s leaked %d of %d nodes", when, rec.Scenario, len(rec.LeakedNodes), rec.Nodes)
		} else {
			color.Green("%s  %-24s all collectible (%d nodes)", when, rec.Scenario, rec.Nodes)
		}
	}
	return nil
}

// DumpCmd prints the node/edge/root listing of a scenario or document.
type DumpCmd struct {
	Target string `arg:"" help:"Scenario name or path to a JSON graph document"`
}

// Run executes the dump command.
func (c *DumpCmd) Run() error {
	g, name, err := resolveGraph(c.Target)
	if err != nil {
		return err
	}

	// Refresh diagnostic states before printing.
	g.Reachable()

	fmt.Printf("## %s\n", name)
	g.Dump(os.Stdout)

	verdict, err := analysis.Classify(g)
	if err != nil {
		return err
	}
	fmt.Printf("verdict: %s\n", verdict)
	return nil
}

// resolveGraph builds a graph from a scenario name or a document path.
func resolveGraph(target string) (*graph.Graph, string, error) {
	if s, ok := scenario.Get(target); ok {
		return s.Build(), s.Name, nil
	}

	doc, err := scenario.LoadDocument(target)
	if err != nil {
		return nil, "", fmt.Errorf("%q is neither a scenario nor a readable document: %w", target, err)
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(target), ".json")
	}

	built, err := doc.BuildGraph()
	if err != nil {
		return nil, "", err
	}
	return built, doc.Name, nil
}

// WatchCmd reclassifies graph documents in a directory as they change.
type WatchCmd struct {
	Dir       string `arg:"" optional:"" default:"." help:"Directory of JSON graph documents"`
	NoPersist bool   `help:"Skip writing results to the local store"`
}

// Run executes the watch command.
func (c *WatchCmd) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var store storage.Backend
	if !c.NoPersist {
		var err error
		store, err = openStorage(false)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
	}

	err := watch.Dir(ctx, c.Dir, store, os.Stdout)
	if err == context.Canceled {
		return nil
	}
	return err
}

// MCPCmd starts the MCP server on stdio.
type MCPCmd struct{}

// Run executes the mcp command.
func (c *MCPCmd) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStorage(false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	server := mcp.NewServer(store)
	err = server.Run(ctx, os.Stdin, os.Stdout)
	if err == context.Canceled {
		return nil
	}
	return err
}

// CleanCmd deletes the local run history and snapshots.
type CleanCmd struct{}

// Run executes the clean command.
func (c *CleanCmd) Run() error {
	ctx := context.Background()

	store, err := openStorage(false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.DeleteAll(ctx); err != nil {
		return err
	}
	color.Green("✓ Local store cleared")
	return nil
}

// CLI is the root Kong command structure.
type CLI struct {
	Version kong.VersionFlag `help:"Show version information"`

	// Commands
	Run      RunCmd      `cmd:"" help:"Run built-in retain-cycle scenarios"`
	Classify ClassifyCmd `cmd:"" help:"Classify a JSON graph document"`
	List     ListCmd     `cmd:"" help:"List built-in scenarios"`
	History  HistoryCmd  `cmd:"" help:"Show persisted classification runs"`
	Dump     DumpCmd     `cmd:"" help:"Print nodes, edges, and roots of a graph"`
	Watch    WatchCmd    `cmd:"" help:"Reclassify graph documents on change"`
	MCP      MCPCmd      `cmd:"" help:"Start MCP server (stdio transport)"`
	Clean    CleanCmd    `cmd:"" help:"Delete local run history"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	kongCtx := kong.Parse(c,
		kong.Name("refgraph"),
		kong.Description("Ownership-graph analyzer for retain cycle detection"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)

	return kongCtx.Run()
}
