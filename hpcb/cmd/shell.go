// Copyright 2026, Square, Inc.

package cmd

import (
	"github.com/square/hpcbuild/hpcb/app"
	"github.com/square/hpcbuild/shell"
)

type ShellCmd struct {
	ctx app.Context
}

func NewShellCmd(ctx app.Context) *ShellCmd {
	return &ShellCmd{
		ctx: ctx,
	}
}

func (c *ShellCmd) Prepare() error {
	return nil
}

func (c *ShellCmd) Run() error {
	s := shell.NewShell(c.ctx.BuildConfig, c.ctx.Orchestrator, c.ctx.Builder, c.ctx.Cache)
	return s.Run(c.ctx.In, c.ctx.Out)
}

func (c *ShellCmd) Cmd() string {
	return "shell"
}

func (c *ShellCmd) Help() string {
	return "Usage: hpcb shell\n\n" +
		"Start the interactive shell. Commands can be piped, e.g.\n" +
		"\"plan | build\".\n"
}
