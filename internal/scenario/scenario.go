// Package scenario provides named ownership-graph constructions that
// reproduce classic retain-cycle patterns: parent/child ownership, closure
// self-capture, capture-list rewrites, and multi-node object/holder/closure
// cycles.
//
// Each scenario builds a graph, simulates the external variables going out
// of scope, and records the verdict a correct classifier must produce. The
// original material's dynamic dispatch over example classes is re-expressed
// here as a registry of tagged constructions.
package scenario

import (
	"fmt"
	"sort"

	"github.com/Benny93/refgraph/internal/analysis"
	"github.com/Benny93/refgraph/internal/graph"
)

// Scenario is one named graph construction.
type Scenario struct {
	// Name is the registry key (e.g. "parent-child-strong").
	Name string

	// Description explains the ownership pattern being demonstrated.
	Description string

	// Expected is the verdict a correct classifier produces after Build.
	Expected analysis.VerdictKind

	// Build constructs the graph and releases the roots the scenario's
	// "code" would let go out of scope.
	Build func() *graph.Graph
}

var registry = map[string]Scenario{}

// register adds a scenario to the registry. Panics on duplicate names;
// registration happens only from init.
func register(s Scenario) {
	if _, ok := registry[s.Name]; ok {
		panic(fmt.Sprintf("scenario %q registered twice", s.Name))
	}
	registry[s.Name] = s
}

// Get returns the scenario with the given name.
func Get(name string) (Scenario, bool) {
	s, ok := registry[name]
	return s, ok
}

// All returns every registered scenario, ordered by name.
func All() []Scenario {
	out := make([]Scenario, 0, len(registry))
	for _, s := range registry {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func init() {
	register(Scenario{
		Name:        "person",
		Description: "A single object held by one variable; releasing the variable makes it collectible.",
		Expected:    analysis.AllCollectible,
		Build: func() *graph.Graph {
			g := graph.New()
			person := g.AddNode("person")
			must(g.SetRoot(person, true))
			must(g.SetRoot(person, false))
			return g
		},
	})

	register(Scenario{
		Name:        "parent-child-strong",
		Description: "Parent and child strongly own each other; releasing the variables leaks both.",
		Expected:    analysis.Leaked,
		Build: func() *graph.Graph {
			g := graph.New()
			parent := g.AddNode("parent")
			child := g.AddNode("child")
			must(g.SetRoot(parent, true))
			must(g.AddEdge(parent, child, graph.Strong))
			must(g.AddEdge(child, parent, graph.Strong))
			must(g.SetRoot(parent, false))
			return g
		},
	})

	register(Scenario{
		Name:        "parent-child-weak",
		Description: "Child's back-reference to parent is weak; releasing the parent variable collects both.",
		Expected:    analysis.AllCollectible,
		Build: func() *graph.Graph {
			g := graph.New()
			parent := g.AddNode("parent")
			child := g.AddNode("child")
			must(g.SetRoot(parent, true))
			must(g.AddEdge(parent, child, graph.Strong))
			must(g.AddEdge(child, parent, graph.Weak))
			must(g.SetRoot(parent, false))
			return g
		},
	})

	register(Scenario{
		Name:        "closure-strong-capture",
		Description: "An object stores a handler closure that strongly captures the object back.",
		Expected:    analysis.Leaked,
		Build: func() *graph.Graph {
			g := graph.New()
			obj := g.AddNode("greeter")
			handler := g.AddNode("handler")
			must(g.SetRoot(obj, true))
			must(g.AddEdge(obj, handler, graph.Strong))
			must(g.AddEdge(handler, obj, graph.Strong))
			must(g.SetRoot(obj, false))
			return g
		},
	})

	register(Scenario{
		Name:        "closure-weak-capture",
		Description: "Capture-list rewrite: the handler captures the object weakly, breaking the cycle.",
		Expected:    analysis.AllCollectible,
		Build: func() *graph.Graph {
			g := graph.New()
			obj := g.AddNode("greeter")
			handler := g.AddNode("handler")
			must(g.SetRoot(obj, true))
			must(g.AddEdge(obj, handler, graph.Strong))
			must(g.AddEdge(handler, obj, graph.Weak))
			must(g.SetRoot(obj, false))
			return g
		},
	})

	register(Scenario{
		Name:        "greeter-holder-closure",
		Description: "Three-node strong cycle: greeter owns holder, holder owns closure, closure captures greeter.",
		Expected:    analysis.Leaked,
		Build: func() *graph.Graph {
			g := graph.New()
			greeter := g.AddNode("greeter")
			holder := g.AddNode("holder")
			closure := g.AddNode("closure")
			must(g.SetRoot(greeter, true))
			must(g.AddEdge(greeter, holder, graph.Strong))
			must(g.AddEdge(holder, closure, graph.Strong))
			must(g.AddEdge(closure, greeter, graph.Strong))
			must(g.SetRoot(greeter, false))
			return g
		},
	})

	register(Scenario{
		Name:        "self-loop",
		Description: "A node strongly owns itself; with no external root it leaks as a single-node cycle.",
		Expected:    analysis.Leaked,
		Build: func() *graph.Graph {
			g := graph.New()
			obj := g.AddNode("narcissist")
			must(g.SetRoot(obj, true))
			must(g.AddEdge(obj, obj, graph.Strong))
			must(g.SetRoot(obj, false))
			return g
		},
	})

	register(Scenario{
		Name: "async-handler",
		Description: "A background completion handler holds its target only weakly; once the caller's " +
			"variable is cleared after dispatch, everything is collectible.",
		Expected: analysis.AllCollectible,
		Build: func() *graph.Graph {
			g := graph.New()
			obj := g.AddNode("fetcher")
			handler := g.AddNode("completion")
			must(g.SetRoot(obj, true))
			// Handler is scheduled: the queue holds it while pending.
			must(g.SetRoot(handler, true))
			must(g.AddEdge(obj, handler, graph.Strong))
			must(g.AddEdge(handler, obj, graph.Weak))
			// Handler fires and the queue drops it, then the caller's
			// variable goes out of scope.
			must(g.SetRoot(handler, false))
			must(g.SetRoot(obj, false))
			return g
		},
	})
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
