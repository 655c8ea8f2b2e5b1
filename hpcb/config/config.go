// Copyright 2026, Square, Inc.

// Package config handles hpcb's command line: options, env vars, and the
// command with its args. The build configuration itself (containers, cache,
// pull) is a separate file handled by the top-level config package.
package config

import (
	"fmt"
	"os"

	"github.com/alexflint/go-arg"
)

const (
	DEFAULT_CONFIG_FILE = "hpcbuild.yaml"
)

// Options represents typical command line options: --config, --debug, etc.
type Options struct {
	Config  string `arg:"env" help:"build configuration file"`
	Debug   bool   `help:"debug logging"`
	Force   bool   `arg:"-f" help:"rebuild even on cache hit"`
	Help    bool
	NoCache bool `arg:"--no-cache" help:"disable the build cache for this run"`
	NoPull  bool `arg:"--no-pull" help:"never pull images from the registry"`
	Version bool
	Workers uint `arg:"env" help:"parallel build workers (0 = auto)"`
}

// Command represents a command (build, plan, etc.) and its values.
type Command struct {
	Cmd  string   `arg:"positional"`
	Args []string `arg:"positional"`
}

// CommandLine represents options (--config, etc.) and commands (build, etc.).
// The caller is expected to copy and use the embedded structs separately, like:
//
//   var o config.Options = cmdLine.Options
//   var c config.Command = cmdLine.Command
type CommandLine struct {
	Options
	Command
}

// ParseCommandLine parses the command line and env vars. Command line options
// override env vars. Default options are used unless overridden.
func ParseCommandLine(def Options) CommandLine {
	var c CommandLine
	c.Options = def
	p, err := arg.NewParser(arg.Config{Program: "hpcb"}, &c)
	if err != nil {
		fmt.Printf("arg.NewParser: %s", err)
		os.Exit(1)
	}
	if err := p.Parse(os.Args[1:]); err != nil {
		switch err {
		case arg.ErrHelp:
			c.Help = true
		case arg.ErrVersion:
			c.Version = true
		default:
			fmt.Printf("Error parsing command line: %s\n", err)
			os.Exit(1)
		}
	}
	return c
}

// Help prints the command overview.
func Help() {
	fmt.Println(`Usage: hpcb [options] <command> [args]

Commands:
  build [name ...]     build containers and their dependencies (default: all)
  plan  [name ...]     show the build plan without building
  graph [file.dot]     print (or write) the dependency graph in DOT format
  cache [stats|clear|drop <name> ...]
                       inspect or invalidate the build cache
  report [name ...]    run smoke tests, security scan, and size analysis
  scan [name ...]      run only the security scan
  shell                start the interactive shell
  version              print version

Options:
  --config FILE        build configuration file (default: hpcbuild.yaml)
  --debug              debug logging
  -f, --force          rebuild even on cache hit
  --no-cache           disable the build cache for this run
  --no-pull            never pull images from the registry
  --workers N          parallel build workers (0 = auto)`)
}
