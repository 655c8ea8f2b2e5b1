// Copyright 2026, Square, Inc.

package graph

import (
	"strings"
	"testing"

	"github.com/go-test/deep"

	"github.com/square/hpcbuild/proto"
)

// base -> layer1, layer2; layer1 -> project. The canonical pipeline shape.
func pipelineGraph() *Graph {
	g := NewGraph()
	g.AddNode("project", proto.CATEGORY_PROJECT, []string{"layer1"}, nil)
	g.AddNode("layer1", proto.CATEGORY_LAYER, []string{"base"}, nil)
	g.AddNode("layer2", proto.CATEGORY_LAYER, []string{"base"}, nil)
	g.AddNode("base", proto.CATEGORY_BASE, nil, nil)
	return g
}

func TestBuildOrder(t *testing.T) {
	g := pipelineGraph()

	order, err := g.BuildOrder()
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != 4 {
		t.Fatalf("got %d nodes in order, expected 4", len(order))
	}

	// Every edge dep -> name must satisfy index(dep) < index(name).
	index := map[string]int{}
	for i, name := range order {
		index[name] = i
	}
	for _, name := range g.Nodes() {
		for _, dep := range g.Node(name).DependsOn {
			if index[dep] >= index[name] {
				t.Errorf("%s (index %d) ordered before its dependency %s (index %d)",
					name, index[name], dep, index[dep])
			}
		}
	}
}

func TestBuildOrderUnknownDependency(t *testing.T) {
	// Depending on a name that was never added is not an error: the dep is
	// treated as an externally managed artifact with no in-degree cost.
	g := NewGraph()
	g.AddNode("solver", proto.CATEGORY_PROJECT, []string{"prebuilt-toolchain"}, nil)

	order, err := g.BuildOrder()
	if err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(order, []string{"solver"}); diff != nil {
		t.Error(diff)
	}
}

func TestParallelGroups(t *testing.T) {
	g := pipelineGraph()

	groups, err := g.ParallelGroups()
	if err != nil {
		t.Fatal(err)
	}

	expected := [][]string{
		{"base"},
		{"layer1", "layer2"},
		{"project"},
	}
	if diff := deep.Equal(groups, expected); diff != nil {
		t.Error(diff)
	}
}

func TestParallelGroupsDepthNotPredecessorCount(t *testing.T) {
	// A node goes in the first group after all its deps, even when its deps
	// sit in different groups.
	g := NewGraph()
	g.AddNode("a", proto.CATEGORY_BASE, nil, nil)
	g.AddNode("b", proto.CATEGORY_LAYER, []string{"a"}, nil)
	g.AddNode("c", proto.CATEGORY_PROJECT, []string{"a", "b"}, nil)

	groups, err := g.ParallelGroups()
	if err != nil {
		t.Fatal(err)
	}
	expected := [][]string{{"a"}, {"b"}, {"c"}}
	if diff := deep.Equal(groups, expected); diff != nil {
		t.Error(diff)
	}

	// Group index of every node must be strictly greater than the max group
	// index of its dependencies.
	groupOf := map[string]int{}
	for i, group := range groups {
		for _, name := range group {
			groupOf[name] = i
		}
	}
	for _, name := range g.Nodes() {
		for _, dep := range g.Node(name).DependsOn {
			if groupOf[name] <= groupOf[dep] {
				t.Errorf("%s in group %d, dependency %s in group %d", name, groupOf[name], dep, groupOf[dep])
			}
		}
	}
}

func TestCycleDetection(t *testing.T) {
	g := NewGraph()
	g.AddNode("ok", proto.CATEGORY_BASE, nil, nil)
	g.AddNode("x", proto.CATEGORY_LAYER, []string{"z"}, nil)
	g.AddNode("y", proto.CATEGORY_LAYER, []string{"x"}, nil)
	g.AddNode("z", proto.CATEGORY_LAYER, []string{"y"}, nil)
	g.AddNode("downstream", proto.CATEGORY_PROJECT, []string{"z"}, nil)

	_, err := g.BuildOrder()
	if err == nil {
		t.Fatal("expected CycleError, got nil")
	}
	cycleErr, ok := err.(CycleError)
	if !ok {
		t.Fatalf("expected CycleError, got %T: %s", err, err)
	}
	// Every unresolvable node is named: the cycle members and everything
	// downstream of them.
	expected := []string{"downstream", "x", "y", "z"}
	if diff := deep.Equal(cycleErr.Remaining, expected); diff != nil {
		t.Error(diff)
	}

	// ParallelGroups reports the same failure.
	_, err = g.ParallelGroups()
	if err == nil {
		t.Fatal("expected CycleError from ParallelGroups, got nil")
	}
	cycleErr, ok = err.(CycleError)
	if !ok {
		t.Fatalf("expected CycleError, got %T: %s", err, err)
	}
	if diff := deep.Equal(cycleErr.Remaining, expected); diff != nil {
		t.Error(diff)
	}
}

func TestSelfCycle(t *testing.T) {
	g := NewGraph()
	g.AddNode("narcissus", proto.CATEGORY_BASE, []string{"narcissus"}, nil)

	_, err := g.BuildOrder()
	if err == nil {
		t.Fatal("expected CycleError for self-dependency, got nil")
	}
}

func TestDependencies(t *testing.T) {
	g := pipelineGraph()

	if diff := deep.Equal(g.Dependencies("project", false), []string{"layer1"}); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(g.Dependencies("project", true), []string{"base", "layer1"}); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(g.Dependencies("base", true), []string{}); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(g.Dependencies("not-a-node", true), []string{}); diff != nil {
		t.Error(diff)
	}
}

func TestDependents(t *testing.T) {
	g := pipelineGraph()

	if diff := deep.Equal(g.Dependents("base", false), []string{"layer1", "layer2"}); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(g.Dependents("base", true), []string{"layer1", "layer2", "project"}); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(g.Dependents("project", true), []string{}); diff != nil {
		t.Error(diff)
	}
}

func TestRecursiveLookupsSafeOnCycle(t *testing.T) {
	// The recursive lookups must terminate even on an invalid (cyclic) graph;
	// they are callable before the graph is validated.
	g := NewGraph()
	g.AddNode("x", proto.CATEGORY_LAYER, []string{"y"}, nil)
	g.AddNode("y", proto.CATEGORY_LAYER, []string{"x"}, nil)

	if diff := deep.Equal(g.Dependencies("x", true), []string{"y"}); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(g.Dependents("x", true), []string{"y"}); diff != nil {
		t.Error(diff)
	}
}

func TestAddNodeReplaces(t *testing.T) {
	g := NewGraph()
	g.AddNode("base", proto.CATEGORY_BASE, nil, nil)
	g.AddNode("app", proto.CATEGORY_PROJECT, []string{"base"}, nil)

	// Re-adding app with different deps drops the old edge.
	g.AddNode("app", proto.CATEGORY_PROJECT, nil, nil)

	if diff := deep.Equal(g.Dependents("base", false), []string{}); diff != nil {
		t.Error(diff)
	}
	if g.Len() != 2 {
		t.Errorf("got %d nodes, expected 2", g.Len())
	}
}

func TestToDot(t *testing.T) {
	g := pipelineGraph()

	dot := g.ToDot(map[string]bool{"layer2": true})
	if !strings.Contains(dot, `"base" -> "layer1";`) {
		t.Errorf("missing edge base -> layer1 in dot output:\n%s", dot)
	}
	if !strings.Contains(dot, "(cached)") {
		t.Errorf("cache hit not highlighted in dot output:\n%s", dot)
	}
	if !strings.Contains(dot, "lightblue") {
		t.Errorf("base category color missing in dot output:\n%s", dot)
	}
}
