// Copyright 2026, Square, Inc.

package cmd

import (
	"fmt"
	"sort"

	"github.com/square/hpcbuild/hpcb/app"
	"github.com/square/hpcbuild/report"
)

type Scan struct {
	ctx app.Context
	// --
	targets []string
}

func NewScan(ctx app.Context) *Scan {
	return &Scan{
		ctx: ctx,
	}
}

func (c *Scan) Prepare() error {
	c.targets = c.ctx.Command.Args
	return nil
}

func (c *Scan) Run() error {
	g := c.ctx.Orchestrator.Graph()

	targets := c.targets
	if len(targets) == 0 {
		targets = g.Nodes()
	}

	for _, name := range targets {
		node := g.Node(name)
		if node == nil {
			return fmt.Errorf("unknown container %s", name)
		}
		imageFile := c.ctx.Builder.OutputPath(name, node.Category)
		r := c.ctx.Reporter.Generate(name, imageFile, report.Options{Security: true})

		if r.Security == nil || r.Security.Err != "" {
			errMsg := "no scan result"
			if r.Security != nil {
				errMsg = r.Security.Err
			}
			fmt.Fprintf(c.ctx.Out, "%s: scan failed: %s\n", name, errMsg)
			continue
		}

		severities := make([]string, 0, len(r.Security.SeverityCounts))
		for severity := range r.Security.SeverityCounts {
			severities = append(severities, severity)
		}
		sort.Strings(severities)

		fmt.Fprintf(c.ctx.Out, "%s: %d vulnerabilities", name, len(r.Security.Vulnerabilities))
		for _, severity := range severities {
			fmt.Fprintf(c.ctx.Out, " %s=%d", severity, r.Security.SeverityCounts[severity])
		}
		fmt.Fprintln(c.ctx.Out)
	}
	return nil
}

func (c *Scan) Cmd() string {
	return "scan"
}

func (c *Scan) Help() string {
	return "Usage: hpcb scan [name ...]\n\n" +
		"Run the vulnerability scanner on the named built containers\n" +
		"(default: all) and print severity counts.\n"
}
