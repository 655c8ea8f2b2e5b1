// Copyright 2026, Square, Inc.

package cmd

import (
	"fmt"

	"github.com/square/hpcbuild/hpcb/app"
)

type CacheCmd struct {
	ctx app.Context
	// --
	sub   string
	names []string
}

func NewCacheCmd(ctx app.Context) *CacheCmd {
	return &CacheCmd{
		ctx: ctx,
	}
}

func (c *CacheCmd) Prepare() error {
	args := c.ctx.Command.Args
	c.sub = "stats"
	if len(args) > 0 {
		c.sub = args[0]
		c.names = args[1:]
	}
	switch c.sub {
	case "stats", "clear":
	case "drop":
		if len(c.names) == 0 {
			return fmt.Errorf("Usage: hpcb cache drop <name> ...")
		}
	default:
		return fmt.Errorf("unknown cache subcommand %s (stats, clear, drop)", c.sub)
	}
	return nil
}

func (c *CacheCmd) Run() error {
	switch c.sub {
	case "stats":
		stats := c.ctx.Cache.Statistics()
		fmt.Fprintf(c.ctx.Out, "%d entries in %s\n", stats.TotalEntries, stats.Dir)
		for _, name := range stats.Names {
			fmt.Fprintf(c.ctx.Out, "  %s\n", name)
		}
	case "clear":
		if err := c.ctx.Cache.InvalidateAll(); err != nil {
			return err
		}
		fmt.Fprintln(c.ctx.Out, "cache cleared")
	case "drop":
		for _, name := range c.names {
			if err := c.ctx.Cache.Invalidate(name); err != nil {
				return err
			}
			fmt.Fprintf(c.ctx.Out, "dropped %s\n", name)
		}
	}
	return nil
}

func (c *CacheCmd) Cmd() string {
	return "cache " + c.sub
}

func (c *CacheCmd) Help() string {
	return "Usage: hpcb cache [stats|clear|drop <name> ...]\n\n" +
		"stats lists cache entries (the default). clear removes every\n" +
		"entry. drop removes the entries for the named containers, forcing\n" +
		"their next build.\n"
}
