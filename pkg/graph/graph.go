// Package graph builds the validated sprint dependency DAG. Construction
// is all-or-nothing: on any unknown reference or cycle no graph is
// returned.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/marcusgoll/Spec-Flow-sub014/pkg/models"
)

// UnknownDependencyError reports a sprint declaring a dependency on an
// id that is not part of the plan.
type UnknownDependencyError struct {
	SprintID     string
	DependencyID string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("sprint %q depends on unknown sprint %q", e.SprintID, e.DependencyID)
}

// CyclicDependencyError reports a dependency cycle. Cycle holds the node
// sequence, starting and ending at the same sprint.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency detected: %s", strings.Join(e.Cycle, " -> "))
}

// Graph is a validated, acyclic sprint dependency graph. Node and
// dependency order is normalized (lexical) so traversals are
// deterministic across runs.
type Graph struct {
	nodes []string
	deps  map[string][]string
}

// Nodes returns all sprint ids in lexical order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.nodes...)
}

// Deps returns the declared dependencies of a sprint in lexical order.
func (g *Graph) Deps(id string) []string {
	return append([]string(nil), g.deps[id]...)
}

// Len returns the number of sprints in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// dfs colors for cycle detection.
type color uint8

const (
	white color = iota // unvisited
	gray               // on the current traversal stack
	black              // fully explored
)

// Build constructs the DAG from sprint declarations. It fails with
// *UnknownDependencyError if a declaration references an id outside the
// input set, and with *CyclicDependencyError if the dependency relation
// contains a cycle.
func Build(decls []models.SprintDecl) (*Graph, error) {
	if len(decls) == 0 {
		return nil, errors.New("no sprint declarations given")
	}

	deps := make(map[string][]string, len(decls))
	nodes := make([]string, 0, len(decls))
	for _, d := range decls {
		if d.ID == "" {
			return nil, errors.New("sprint declaration with empty id")
		}
		if _, dup := deps[d.ID]; dup {
			return nil, errors.Errorf("duplicate sprint id %q in plan", d.ID)
		}
		ds := append([]string(nil), d.DependsOn...)
		sort.Strings(ds)
		deps[d.ID] = ds
		nodes = append(nodes, d.ID)
	}
	sort.Strings(nodes)

	for _, id := range nodes {
		for _, dep := range deps[id] {
			if _, ok := deps[dep]; !ok {
				return nil, &UnknownDependencyError{SprintID: id, DependencyID: dep}
			}
			if dep == id {
				return nil, &CyclicDependencyError{Cycle: []string{id, id}}
			}
		}
	}

	colors := make(map[string]color, len(nodes))
	var stack []string

	// Depth-first walk along dependency edges. Hitting a gray node means
	// the edge closes a cycle; the cycle is the stack suffix from that
	// node onward.
	var visit func(id string) *CyclicDependencyError
	visit = func(id string) *CyclicDependencyError {
		colors[id] = gray
		stack = append(stack, id)
		for _, dep := range deps[id] {
			switch colors[dep] {
			case gray:
				start := 0
				for i, n := range stack {
					if n == dep {
						start = i
						break
					}
				}
				cycle := append([]string(nil), stack[start:]...)
				cycle = append(cycle, dep)
				return &CyclicDependencyError{Cycle: cycle}
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		colors[id] = black
		stack = stack[:len(stack)-1]
		return nil
	}

	for _, id := range nodes {
		if colors[id] == white {
			if err := visit(id); err != nil {
				return nil, err
			}
		}
	}

	return &Graph{nodes: nodes, deps: deps}, nil
}
