// Copyright 2026, Square, Inc.

package graph

import (
	"fmt"
	"io/ioutil"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/square/hpcbuild/proto"
)

// ToDot renders the graph in DOT format. Copy and paste output into
// http://www.webgraphviz.com/ or run it through dot -Tsvg. Nodes named in
// cacheHits are drawn gray with a "(cached)" label.
func (g *Graph) ToDot(cacheHits map[string]bool) string {
	var b strings.Builder
	b.WriteString("digraph ContainerBuildDAG {\n")
	b.WriteString("    rankdir=TB;\n")
	b.WriteString("    node [shape=box, style=rounded];\n\n")

	for _, name := range g.Nodes() {
		node := g.nodes[name]

		var color string
		switch node.Category {
		case proto.CATEGORY_BASE:
			color = "lightblue"
		case proto.CATEGORY_LAYER:
			color = "lightgreen"
		default:
			color = "lightyellow"
		}

		style := "filled,rounded"
		label := name
		if cacheHits[name] {
			style = "filled,rounded,bold"
			color = "lightgray"
			label += "\\n(cached)"
		}

		fmt.Fprintf(&b, "    %q [label=\"%s\", fillcolor=%s, style=%q];\n", name, label, color, style)
	}
	b.WriteString("\n")

	for _, name := range g.Nodes() {
		deps := append([]string{}, g.nodes[name].DependsOn...)
		sort.Strings(deps)
		for _, dep := range deps {
			fmt.Fprintf(&b, "    %q -> %q;\n", dep, name)
		}
	}

	b.WriteString("}\n")
	return b.String()
}

// WriteDot exports the graph to a DOT file.
func (g *Graph) WriteDot(outputPath string, cacheHits map[string]bool) error {
	if err := ioutil.WriteFile(outputPath, []byte(g.ToDot(cacheHits)), 0644); err != nil {
		return err
	}
	log.Infof("exported dependency graph to %s", outputPath)
	return nil
}
