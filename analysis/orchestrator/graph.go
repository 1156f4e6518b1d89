// Package orchestrator schedules analysis agents over their dependency graph
// and collects per-agent results. It implements Kahn's algorithm twice: once
// at construction to reject cycles, and dynamically during execution to
// dispatch agents as their dependencies succeed.
package orchestrator

import (
	"fmt"
	"sort"
)

// ConfigurationError reports an invalid orchestrator setup: unknown
// dependencies, duplicate agents, or a cyclic graph. It is a startup error
// and never occurs mid-run.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "orchestrator configuration: " + e.Reason
}

// Graph is an immutable agent dependency graph. Edges point from an agent to
// the agents it depends on.
type Graph struct {
	nodes []string            // sorted for deterministic iteration
	deps  map[string][]string // agent -> its dependencies
}

// NewGraph validates the dependency map and returns the graph. Every
// dependency must name another node, and the graph must be acyclic.
func NewGraph(deps map[string][]string) (*Graph, error) {
	g := &Graph{
		nodes: make([]string, 0, len(deps)),
		deps:  make(map[string][]string, len(deps)),
	}
	for node, nodeDeps := range deps {
		g.nodes = append(g.nodes, node)
		g.deps[node] = append([]string(nil), nodeDeps...)
	}
	sort.Strings(g.nodes)

	for node, nodeDeps := range g.deps {
		for _, dep := range nodeDeps {
			if _, ok := g.deps[dep]; !ok {
				return nil, &ConfigurationError{
					Reason: fmt.Sprintf("agent %q depends on unknown agent %q", node, dep),
				}
			}
			if dep == node {
				return nil, &ConfigurationError{
					Reason: fmt.Sprintf("agent %q depends on itself", node),
				}
			}
		}
	}

	// Kahn's algorithm: if peeling zero-in-degree nodes cannot consume the
	// whole graph, the remainder is a cycle.
	inDegree := make(map[string]int, len(g.nodes))
	downstream := make(map[string][]string, len(g.nodes))
	for node, nodeDeps := range g.deps {
		inDegree[node] = len(nodeDeps)
		for _, dep := range nodeDeps {
			downstream[dep] = append(downstream[dep], node)
		}
	}
	queue := make([]string, 0, len(g.nodes))
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}
	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range downstream[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited != len(g.nodes) {
		return nil, &ConfigurationError{Reason: "dependency graph contains a cycle"}
	}

	return g, nil
}

// Nodes returns all agent IDs in sorted order.
func (g *Graph) Nodes() []string {
	return g.nodes
}

// Dependencies returns the declared dependencies of an agent.
func (g *Graph) Dependencies(id string) []string {
	return g.deps[id]
}

// ReadySet returns, in sorted order, the agents not yet marked succeeded
// whose dependencies have all succeeded. The caller is responsible for
// filtering out agents it has already launched.
func (g *Graph) ReadySet(succeeded map[string]bool) []string {
	var ready []string
	for _, node := range g.nodes {
		if succeeded[node] {
			continue
		}
		ok := true
		for _, dep := range g.deps[node] {
			if !succeeded[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, node)
		}
	}
	return ready
}
