// Copyright 2026, Square, Inc.

package cmd

import (
	"fmt"

	"github.com/square/hpcbuild/hpcb/app"
)

type Graph struct {
	ctx app.Context
	// --
	outputFile string
}

func NewGraph(ctx app.Context) *Graph {
	return &Graph{
		ctx: ctx,
	}
}

func (c *Graph) Prepare() error {
	if len(c.ctx.Command.Args) > 0 {
		c.outputFile = c.ctx.Command.Args[0]
	}
	return nil
}

func (c *Graph) Run() error {
	g := c.ctx.Orchestrator.Graph()

	// Mark current cache hits so the rendering shows what a run would skip.
	cacheHits := map[string]bool{}
	for _, name := range c.ctx.Cache.Statistics().Names {
		cacheHits[name] = true
	}

	if c.outputFile != "" {
		return g.WriteDot(c.outputFile, cacheHits)
	}
	fmt.Fprint(c.ctx.Out, g.ToDot(cacheHits))
	return nil
}

func (c *Graph) Cmd() string {
	return "graph"
}

func (c *Graph) Help() string {
	return "Usage: hpcb graph [file.dot]\n\n" +
		"Print the container dependency graph in DOT format, or write it\n" +
		"to a file. Cached containers are drawn gray.\n"
}
