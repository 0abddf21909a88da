// Package scheduler partitions a validated sprint DAG into execution
// layers: layer i holds exactly the sprints whose dependencies all live
// in layers 0..i-1, so every sprint lands in the earliest layer its
// dependencies allow and same-layer sprints are safe to run in parallel.
package scheduler

import (
	"sort"

	"github.com/marcusgoll/Spec-Flow-sub014/pkg/graph"
)

// Schedule holds the layered execution plan. Both the layer order and
// the intra-layer sprint order are deterministic for a given graph:
// sprints within a layer are sorted lexically by id, which keeps
// repeated scheduling runs identical and makes resume plans stable.
type Schedule struct {
	layers [][]string
	index  map[string]int
}

// Layers returns the ordered execution layers.
func (s *Schedule) Layers() [][]string {
	out := make([][]string, len(s.layers))
	for i, l := range s.layers {
		out[i] = append([]string(nil), l...)
	}
	return out
}

// LayerIndex returns the layer a sprint was assigned to, or -1 if the
// sprint is unknown.
func (s *Schedule) LayerIndex(id string) int {
	if i, ok := s.index[id]; ok {
		return i
	}
	return -1
}

// Plan computes the longest-path layering of the graph: sprints without
// dependencies sit at layer 0, every other sprint at one past the
// deepest of its dependencies. Equivalent to Kahn's algorithm with
// indegree tracking, processed breadth-first.
func Plan(g *graph.Graph) *Schedule {
	nodes := g.Nodes()

	remaining := make(map[string]int, len(nodes)) // unassigned dependency count
	dependents := make(map[string][]string, len(nodes))
	for _, id := range nodes {
		deps := g.Deps(id)
		remaining[id] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	index := make(map[string]int, len(nodes))
	queue := make([]string, 0, len(nodes))
	for _, id := range nodes {
		if remaining[id] == 0 {
			index[id] = 0
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		for _, next := range dependents[curr] {
			if index[curr]+1 > index[next] {
				index[next] = index[curr] + 1
			}
			remaining[next]--
			if remaining[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	depth := 0
	for _, layer := range index {
		if layer+1 > depth {
			depth = layer + 1
		}
	}
	layers := make([][]string, depth)
	for _, id := range nodes {
		layers[index[id]] = append(layers[index[id]], id)
	}
	for _, layer := range layers {
		sort.Strings(layer)
	}

	return &Schedule{layers: layers, index: index}
}
