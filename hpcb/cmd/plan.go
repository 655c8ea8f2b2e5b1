// Copyright 2026, Square, Inc.

package cmd

import (
	"fmt"

	"github.com/square/hpcbuild/hpcb/app"
	"github.com/square/hpcbuild/proto"
)

type Plan struct {
	ctx app.Context
	// --
	targets []string
}

func NewPlan(ctx app.Context) *Plan {
	return &Plan{
		ctx: ctx,
	}
}

func (c *Plan) Prepare() error {
	c.targets = c.ctx.Command.Args
	return nil
}

func (c *Plan) Run() error {
	plan, err := c.ctx.Orchestrator.DryRun(c.targets)
	if err != nil {
		return err
	}
	for i, group := range plan.Groups {
		fmt.Fprintf(c.ctx.Out, "group %d:\n", i+1)
		for _, name := range group {
			fmt.Fprintf(c.ctx.Out, "  %s (%s)\n", name, proto.CategoryName[plan.Categories[name]])
		}
	}
	return nil
}

func (c *Plan) Cmd() string {
	return "plan"
}

func (c *Plan) Help() string {
	return "Usage: hpcb plan [name ...]\n\n" +
		"Print the build groups a run would execute, in order, without\n" +
		"building anything. Containers in one group build concurrently.\n"
}
