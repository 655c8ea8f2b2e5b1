// Copyright 2026, Square, Inc.

// Package hpcb provides a framework for integration with other programs.
// When using the standard hpcb bin, Run is called by hpcb/bin/main.go.
// Wrapper code can import this package and call Run with custom factories.
package hpcb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/square/hpcbuild/api"
	"github.com/square/hpcbuild/builder"
	"github.com/square/hpcbuild/cache"
	"github.com/square/hpcbuild/check"
	buildconfig "github.com/square/hpcbuild/config"
	"github.com/square/hpcbuild/history"
	"github.com/square/hpcbuild/hpcb/app"
	"github.com/square/hpcbuild/hpcb/cmd"
	"github.com/square/hpcbuild/hpcb/config"
	"github.com/square/hpcbuild/orchestrator"
	"github.com/square/hpcbuild/registry"
	"github.com/square/hpcbuild/report"
	"github.com/square/hpcbuild/runner"
	"github.com/square/hpcbuild/scan"
	"github.com/square/hpcbuild/size"
	"github.com/square/hpcbuild/xcmd"
)

const VERSION = "1.0.0"

// Run runs hpcb: parse the command line, load the build configuration, wire
// the build system, and execute the command.
func Run(ctx app.Context) error {
	// //////////////////////////////////////////////////////////////////////
	// Command line
	// //////////////////////////////////////////////////////////////////////
	cmdLine := config.ParseCommandLine(config.Options{Config: config.DEFAULT_CONFIG_FILE})
	var o config.Options = cmdLine.Options
	var c config.Command = cmdLine.Command

	if ctx.Hooks.AfterParseOptions != nil {
		ctx.Hooks.AfterParseOptions(&o)
	}
	ctx.Options = o
	ctx.Command = c

	if o.Debug {
		log.SetLevel(log.DebugLevel)
	}

	// //////////////////////////////////////////////////////////////////////
	// Help and version
	// //////////////////////////////////////////////////////////////////////
	if o.Help || c.Cmd == "" || c.Cmd == "help" {
		config.Help()
		if c.Cmd == "" && !o.Help {
			return app.ErrHelp
		}
		return nil
	}
	if o.Version || c.Cmd == "version" {
		fmt.Fprintf(ctx.Out, "hpcb v%s\n", VERSION)
		return nil
	}

	// //////////////////////////////////////////////////////////////////////
	// Build configuration
	// //////////////////////////////////////////////////////////////////////
	cfg := buildconfig.Default()
	if err := buildconfig.Load(o.Config, &cfg); err != nil {
		// The default config file is optional; a named one is not.
		if !os.IsNotExist(err) || o.Config != config.DEFAULT_CONFIG_FILE {
			return fmt.Errorf("cannot load config %s: %s", o.Config, err)
		}
		log.Debugf("no config file %s, using defaults", o.Config)
	}
	if o.Workers > 0 {
		cfg.Build.MaxWorkers = int(o.Workers)
	}
	if o.NoCache {
		cfg.Cache.Enabled = false
	}
	if o.NoPull {
		cfg.Pull.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %s", o.Config, err)
	}
	ctx.BuildConfig = cfg

	// //////////////////////////////////////////////////////////////////////
	// Build system wiring
	// //////////////////////////////////////////////////////////////////////
	execer := xcmd.NewExecer()

	buildCache, err := cache.NewCache(cfg.Cache.Dir)
	if err != nil {
		return err
	}
	ctx.Cache = buildCache

	timeout := time.Duration(cfg.Build.TimeoutSeconds) * time.Second
	reg := registry.NewRegistry(cfg.Pull, execer, timeout)
	ctx.Builder = builder.NewBuilder(cfg, buildCache, reg, execer)

	if cfg.History.DSN != "" {
		ctx.Store, err = history.NewSQLStore(cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("cannot open history store: %s", err)
		}
	} else {
		ctx.Store = history.NewMemoryStore()
	}

	ctx.Orchestrator = orchestrator.NewOrchestrator(cfg, ctx.Builder, runner.NewRunner(cfg.Build.MaxWorkers), ctx.Store)

	ctx.Reporter = report.NewReporter(
		filepath.Join(cfg.Build.ContainersDir, "reports"),
		check.NewChecker(execer),
		scan.NewScanner(execer),
		size.NewAnalyzer(execer),
	)

	// //////////////////////////////////////////////////////////////////////
	// Status API
	// //////////////////////////////////////////////////////////////////////
	if cfg.API.ListenAddress != "" {
		srv := api.NewAPI(ctx.Orchestrator, ctx.Store)
		go func() {
			if err := srv.Run(cfg.API.ListenAddress); err != nil {
				log.Errorf("api server: %s", err)
			}
		}()
		defer srv.Stop()
	}

	// //////////////////////////////////////////////////////////////////////
	// Command
	// //////////////////////////////////////////////////////////////////////
	cmdFactory := ctx.Factories.Command
	if cmdFactory == nil {
		cmdFactory = &cmd.DefaultFactory{}
	}

	command, err := cmdFactory.Make(c.Cmd, ctx)
	if err != nil {
		if err == cmd.ErrNotExist {
			return fmt.Errorf("unknown command: %s (run hpcb help)", c.Cmd)
		}
		return fmt.Errorf("cannot make %s command: %s", c.Cmd, err)
	}

	if err := command.Prepare(); err != nil {
		return err
	}
	return command.Run()
}
