package engine

import (
	"fmt"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

// Graph holds the dependency structure of a step chain. Steps execute in
// their declared order; the graph proves that order is consistent and
// answers which upstream steps a single step needs.
type Graph struct {
	steps map[string]*pipeline.Step
	names []string            // declared order
	edges map[string][]string // step -> steps it depends on
	rev   map[string][]string // step -> steps that depend on it
}

// BuildGraph constructs and validates the dependency graph for steps.
// Edges come from explicit DependsOn entries and from ref:// properties.
// A cycle, an unknown dependency, or a declared order that runs a step
// before one of its dependencies is an error.
func BuildGraph(steps []*pipeline.Step) (*Graph, error) {
	g := &Graph{
		steps: make(map[string]*pipeline.Step, len(steps)),
		edges: make(map[string][]string),
		rev:   make(map[string][]string),
	}

	for _, s := range steps {
		if _, exists := g.steps[s.Name]; exists {
			return nil, fmt.Errorf("duplicate step name %q", s.Name)
		}
		g.steps[s.Name] = s
		g.names = append(g.names, s.Name)
	}

	for _, s := range steps {
		seen := make(map[string]bool)

		for _, dep := range s.DependsOn {
			if _, ok := g.steps[dep]; !ok {
				return nil, fmt.Errorf("step %q depends on unknown step %q", s.Name, dep)
			}
			if dep == s.Name {
				return nil, fmt.Errorf("step %q depends on itself", s.Name)
			}
			if !seen[dep] {
				seen[dep] = true
				g.edges[s.Name] = append(g.edges[s.Name], dep)
			}
		}

		// Implicit edges from ref://step/attr properties.
		for _, ref := range pipeline.ExtractRefs(s.Descriptor.Properties) {
			dep, _, ok := pipeline.ParseRef(ref)
			if !ok {
				return nil, fmt.Errorf("step %q carries malformed reference %q", s.Name, ref)
			}
			if _, known := g.steps[dep]; !known {
				return nil, fmt.Errorf("step %q references unknown step %q", s.Name, dep)
			}
			if dep == s.Name {
				return nil, fmt.Errorf("step %q references itself", s.Name)
			}
			if !seen[dep] {
				seen[dep] = true
				g.edges[s.Name] = append(g.edges[s.Name], dep)
			}
		}
	}

	for name, deps := range g.edges {
		for _, dep := range deps {
			g.rev[dep] = append(g.rev[dep], name)
		}
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	if err := g.checkDeclaredOrder(); err != nil {
		return nil, err
	}
	return g, nil
}

// Order returns step names in their declared, validated execution order.
func (g *Graph) Order() []string {
	return g.names
}

// Step returns the step registered under name.
func (g *Graph) Step(name string) (*pipeline.Step, bool) {
	s, ok := g.steps[name]
	return s, ok
}

// Dependencies returns the direct dependencies of a step.
func (g *Graph) Dependencies(name string) []string {
	return g.edges[name]
}

// Dependents returns the steps that depend directly on name.
func (g *Graph) Dependents(name string) []string {
	return g.rev[name]
}

// TransitiveDeps returns every upstream step name needs, in declared
// execution order.
func (g *Graph) TransitiveDeps(name string) ([]string, error) {
	if _, ok := g.steps[name]; !ok {
		return nil, fmt.Errorf("unknown step %q", name)
	}

	needed := make(map[string]bool)
	var visit func(string)
	visit = func(n string) {
		for _, dep := range g.edges[n] {
			if !needed[dep] {
				needed[dep] = true
				visit(dep)
			}
		}
	}
	visit(name)

	var deps []string
	for _, n := range g.names {
		if needed[n] {
			deps = append(deps, n)
		}
	}
	return deps, nil
}

// checkAcyclic runs Kahn's algorithm; leftover nodes mean a cycle.
func (g *Graph) checkAcyclic() error {
	inDegree := make(map[string]int, len(g.names))
	for _, name := range g.names {
		inDegree[name] = len(g.edges[name])
	}

	var queue []string
	for _, name := range g.names {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	sorted := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted++

		for _, dependent := range g.rev[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if sorted != len(g.names) {
		return fmt.Errorf("dependency cycle detected in step graph")
	}
	return nil
}

// checkDeclaredOrder rejects a chain that lists a step before something
// it depends on. The runner trusts the declared order at execution time.
func (g *Graph) checkDeclaredOrder() error {
	position := make(map[string]int, len(g.names))
	for i, name := range g.names {
		position[name] = i
	}
	for _, name := range g.names {
		for _, dep := range g.edges[name] {
			if position[dep] > position[name] {
				return fmt.Errorf("step %q is declared before its dependency %q", name, dep)
			}
		}
	}
	return nil
}
