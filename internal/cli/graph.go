package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chicago-crimes/crimectl/internal/config"
	"github.com/chicago-crimes/crimectl/internal/engine"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Output the step dependency graph in DOT format",
	Long: `Generates a visual representation of the step dependency graph in
Graphviz DOT format. Pipe the output to 'dot' to generate an image:

  crimectl graph | dot -Tpng > graph.png`,
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	// Stdout carries only the DOT document so the command stays pipeable.
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	graph, err := engine.BuildGraph(engine.DefaultSteps(cfg))
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}

	fmt.Println("digraph crimectl {")
	fmt.Println("  rankdir = \"BT\";")
	fmt.Println("  node [shape = rect];")
	fmt.Println()

	for _, name := range graph.Order() {
		step, _ := graph.Step(name)
		fmt.Printf("  %q [label=\"%s\\n(%s)\"];\n", name, name, step.Descriptor.Kind)
	}
	fmt.Println()

	for _, name := range graph.Order() {
		for _, dep := range graph.Dependencies(name) {
			fmt.Printf("  %q -> %q;\n", name, dep)
		}
	}

	fmt.Println("}")
	return nil
}
