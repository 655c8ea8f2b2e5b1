// Copyright 2026, Square, Inc.

package cmd

import (
	"fmt"
	"sort"

	"github.com/square/hpcbuild/hpcb/app"
	"github.com/square/hpcbuild/proto"
)

type Build struct {
	ctx app.Context
	// --
	targets []string
}

func NewBuild(ctx app.Context) *Build {
	return &Build{
		ctx: ctx,
	}
}

func (c *Build) Prepare() error {
	c.targets = c.ctx.Command.Args
	if c.ctx.Options.Force {
		c.ctx.Builder.Force(c.targets)
	}
	return nil
}

func (c *Build) Run() error {
	status, err := c.ctx.Orchestrator.Run(c.targets)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.ctx.Out, "run %s: %s (built=%d skipped=%d failed=%d)\n",
		status.RunId, proto.StateName[status.State], status.Built, status.Skipped, status.Failed)

	results := append([]proto.BuildResult{}, status.Results...)
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	for _, r := range results {
		marker := "ok"
		if r.Skipped {
			marker = "skip"
		} else if !r.Success {
			marker = "FAIL"
		}
		fmt.Fprintf(c.ctx.Out, "  %-4s %s (%s)\n", marker, r.Name, r.Reason)
		if r.Error != "" {
			fmt.Fprintf(c.ctx.Out, "       %s\n", r.Error)
		}
	}

	if status.State != proto.STATE_COMPLETE {
		return fmt.Errorf("build finished with state %s", proto.StateName[status.State])
	}
	return nil
}

func (c *Build) Cmd() string {
	if len(c.targets) > 0 {
		return "build " + fmt.Sprint(c.targets)
	}
	return "build"
}

func (c *Build) Help() string {
	return "Usage: hpcb build [name ...]\n\n" +
		"Build the named containers and everything they depend on.\n" +
		"With no names, build every container in the configuration.\n" +
		"--force rebuilds even when the cache says nothing changed.\n"
}
