// Copyright 2026, Square, Inc.

package cmd

import (
	"fmt"

	"github.com/square/hpcbuild/hpcb/app"
	"github.com/square/hpcbuild/proto"
	"github.com/square/hpcbuild/report"
)

type Report struct {
	ctx app.Context
	// --
	targets []string
}

func NewReport(ctx app.Context) *Report {
	return &Report{
		ctx: ctx,
	}
}

func (c *Report) Prepare() error {
	c.targets = c.ctx.Command.Args
	return nil
}

func (c *Report) Run() error {
	g := c.ctx.Orchestrator.Graph()

	targets := c.targets
	if len(targets) == 0 {
		targets = g.Nodes()
	}

	reports := []proto.ContainerReport{}
	for _, name := range targets {
		node := g.Node(name)
		if node == nil {
			return fmt.Errorf("unknown container %s", name)
		}
		imageFile := c.ctx.Builder.OutputPath(name, node.Category)
		r := c.ctx.Reporter.Generate(name, imageFile, report.All())
		file, err := c.ctx.Reporter.Write(r)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.ctx.Out, "%s -> %s\n", name, file)
		reports = append(reports, r)
	}

	summary, err := c.ctx.Reporter.Summarize(reports)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.ctx.Out, "summary -> %s\n", summary)
	return nil
}

func (c *Report) Cmd() string {
	return "report"
}

func (c *Report) Help() string {
	return "Usage: hpcb report [name ...]\n\n" +
		"Run smoke tests, a security scan, and size analysis on the named\n" +
		"built containers (default: all) and write JSON reports plus a\n" +
		"summary index.\n"
}
