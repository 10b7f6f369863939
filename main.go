// Refgraph - Ownership-graph analyzer for retain cycle detection.
//
// Refgraph models objects and closures as nodes with strong/weak ownership
// edges, classifies graphs as collectible or leaking after their roots are
// released, and ships the classic retain-cycle scenarios as built-ins.
package main

import (
	"fmt"
	"os"

	"github.com/Benny93/refgraph/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
