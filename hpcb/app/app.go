// Copyright 2026, Square, Inc.

// Package app provides app-wide data structs and functions for hpcb.
package app

import (
	"errors"
	"io"

	"github.com/square/hpcbuild/builder"
	"github.com/square/hpcbuild/cache"
	buildconfig "github.com/square/hpcbuild/config"
	"github.com/square/hpcbuild/history"
	"github.com/square/hpcbuild/hpcb/config"
	"github.com/square/hpcbuild/orchestrator"
	"github.com/square/hpcbuild/report"
)

var (
	ErrHelp = errors.New("print help")
)

// Context represents how to run hpcb. A context is passed to hpcb.Run().
// A default context is created in main.go. Wrapper code can integrate with
// hpcb by passing a custom context to hpcb.Run(). Integration is done
// primarily with hooks and factories.
type Context struct {
	// Set in main.go or by wrapper
	In        io.Reader // where to read user input (default: stdin)
	Out       io.Writer // where to print output (default: stdout)
	Hooks     Hooks     // for integration with other code
	Factories Factories // for integration with other code

	// Set automatically in hpcb.Run()
	Options      config.Options     // command line options (--config, etc.)
	Command      config.Command     // command and args ("build layer1", etc.)
	BuildConfig  buildconfig.Config // parsed build configuration file
	Orchestrator orchestrator.Orchestrator
	Builder      builder.Builder
	Cache        *cache.Cache
	Store        history.Store
	Reporter     report.Reporter
}

type Command interface {
	Prepare() error
	Run() error
	Cmd() string
	Help() string
}

type CommandFactory interface {
	Make(string, Context) (Command, error)
}

type Factories struct {
	Command CommandFactory
}

type Hooks struct {
	AfterParseOptions func(*config.Options)
}
