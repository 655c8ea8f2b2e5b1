// Copyright 2026, Square, Inc.

// Package graph implements the container dependency graph: a DAG of named
// build nodes with topological ordering, maximal-parallelism grouping, and
// cycle detection.
package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Node is one buildable container in the graph. Identity is by Name alone.
type Node struct {
	Name      string            // unique build key
	Category  byte              // proto.CATEGORY_* const
	DependsOn []string          // names this node builds on top of
	Metadata  map[string]string // opaque; the graph never inspects it
}

// CycleError is returned when the graph cannot be ordered. Remaining names
// every node that could not be placed, not just one, so the whole cycle (and
// everything downstream of it) is visible in the error.
type CycleError struct {
	Remaining []string
}

func (e CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected involving: %s", strings.Join(e.Remaining, ", "))
}

// Graph is a DAG of build nodes. Nodes can be added in any order; edges to
// not-yet-added (or never-added) dependency names are tolerated and treated
// as already-satisfied external artifacts. The DAG invariant is only checked
// when an ordering is computed.
//
// Graph is not safe for concurrent mutation; the orchestrator builds it once
// up front and only reads it afterwards.
type Graph struct {
	nodes map[string]*Node    // node name -> node
	edges map[string][]string // dep name -> names that depend on it
}

// NewGraph returns an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: map[string]*Node{},
		edges: map[string][]string{},
	}
}

// AddNode inserts a node. Adding a name that already exists replaces the
// previous node; its old forward edges are discarded along with it.
func (g *Graph) AddNode(name string, category byte, dependsOn []string, metadata map[string]string) {
	if old, ok := g.nodes[name]; ok {
		for _, dep := range old.DependsOn {
			g.removeEdge(dep, name)
		}
	}
	node := &Node{
		Name:      name,
		Category:  category,
		DependsOn: append([]string{}, dependsOn...),
		Metadata:  metadata,
	}
	g.nodes[name] = node
	for _, dep := range node.DependsOn {
		g.edges[dep] = append(g.edges[dep], name)
	}
}

// Node returns the node for name, or nil if it was never added.
func (g *Graph) Node(name string) *Node {
	return g.nodes[name]
}

// Nodes returns all node names, sorted.
func (g *Graph) Nodes() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// BuildOrder computes a topological order: every dependency precedes its
// dependents. Dependencies on names that are not nodes in the graph
// contribute nothing to in-degree (they're external, assumed satisfied).
// Returns a CycleError naming the full unresolved remainder if the graph
// has a cycle.
func (g *Graph) BuildOrder() ([]string, error) {
	inDegree := map[string]int{}
	for name := range g.nodes {
		inDegree[name] = 0
	}
	for _, node := range g.nodes {
		for _, dep := range node.DependsOn {
			if _, known := inDegree[dep]; known {
				inDegree[node.Name]++
			}
		}
	}

	// Seed the queue sorted so the order is deterministic.
	queue := []string{}
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	order := []string{}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		next := append([]string{}, g.edges[current]...)
		sort.Strings(next)
		for _, dependent := range next {
			if _, known := inDegree[dependent]; !known {
				continue // edge recorded before the node was added, then replaced away
			}
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(g.nodes) {
		placed := map[string]bool{}
		for _, name := range order {
			placed[name] = true
		}
		remaining := []string{}
		for name := range g.nodes {
			if !placed[name] {
				remaining = append(remaining, name)
			}
		}
		sort.Strings(remaining)
		return nil, CycleError{Remaining: remaining}
	}

	return order, nil
}

// ParallelGroups partitions the nodes into an ordered list of groups. Group k
// holds every node whose declared dependencies all lie in groups 0..k-1, so
// each group is safe to build concurrently once all earlier groups finished.
// Names within a group are sorted for deterministic display. Returns the same
// CycleError as BuildOrder when no progress can be made while nodes remain.
func (g *Graph) ParallelGroups() ([][]string, error) {
	remaining := map[string]bool{}
	for name := range g.nodes {
		remaining[name] = true
	}

	groups := [][]string{}
	for len(remaining) > 0 {
		group := []string{}
		for name := range remaining {
			ready := true
			for _, dep := range g.nodes[name].DependsOn {
				if remaining[dep] {
					ready = false
					break
				}
			}
			if ready {
				group = append(group, name)
			}
		}

		if len(group) == 0 {
			names := []string{}
			for name := range remaining {
				names = append(names, name)
			}
			sort.Strings(names)
			return nil, CycleError{Remaining: names}
		}

		sort.Strings(group)
		groups = append(groups, group)
		for _, name := range group {
			delete(remaining, name)
		}
	}

	return groups, nil
}

// Dependencies returns the names name depends on, sorted. With recursive, the
// full transitive closure via BFS; name itself is never included. Safe to
// call on a graph that hasn't been validated: already-visited nodes are
// skipped, so even a cyclic graph can't loop forever.
func (g *Graph) Dependencies(name string, recursive bool) []string {
	node, ok := g.nodes[name]
	if !ok {
		return []string{}
	}
	if !recursive {
		return sortedUnique(node.DependsOn)
	}

	visited := map[string]bool{}
	queue := []string{name}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		if n, ok := g.nodes[current]; ok {
			for _, dep := range n.DependsOn {
				if !visited[dep] {
					queue = append(queue, dep)
				}
			}
		}
	}
	delete(visited, name)
	return sortedKeys(visited)
}

// Dependents returns the names that depend on name, sorted. Same recursion
// and safety semantics as Dependencies.
func (g *Graph) Dependents(name string, recursive bool) []string {
	if _, ok := g.nodes[name]; !ok {
		return []string{}
	}
	if !recursive {
		return sortedUnique(g.edges[name])
	}

	visited := map[string]bool{}
	queue := []string{name}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		for _, dependent := range g.edges[current] {
			if !visited[dependent] {
				queue = append(queue, dependent)
			}
		}
	}
	delete(visited, name)
	return sortedKeys(visited)
}

// --------------------------------------------------------------------------

func (g *Graph) removeEdge(from, to string) {
	list := g.edges[from]
	for i, name := range list {
		if name == to {
			g.edges[from] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func sortedUnique(names []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, name := range names {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
