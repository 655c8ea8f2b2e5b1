// Copyright 2026, Square, Inc.

package shell

import (
	"bufio"
	"fmt"
	"io"

	"github.com/square/hpcbuild/builder"
	"github.com/square/hpcbuild/cache"
	"github.com/square/hpcbuild/config"
	"github.com/square/hpcbuild/orchestrator"
)

const PROMPT = "hpcb> "

// Shell is the interactive console over a configured build system.
type Shell struct {
	cfg          config.Config
	orchestrator orchestrator.Orchestrator
	builder      builder.Builder
	cache        *cache.Cache
}

func NewShell(cfg config.Config, orch orchestrator.Orchestrator, bldr builder.Builder, buildCache *cache.Cache) *Shell {
	return &Shell{
		cfg:          cfg,
		orchestrator: orch,
		builder:      bldr,
		cache:        buildCache,
	}
}

// Run reads lines from in and executes them until exit or EOF. Command
// errors are printed, not fatal.
func (s *Shell) Run(in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "hpcbuild interactive shell (help for commands, exit to leave)")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, PROMPT)
		if !scanner.Scan() {
			break
		}

		output, err := s.RunLine(scanner.Text())
		if err == ErrExit {
			break
		}
		if err != nil {
			fmt.Fprintf(out, "error: %s\n", err)
			continue
		}
		if output != "" {
			fmt.Fprintln(out, output)
		}
	}

	fmt.Fprintln(out, "bye")
	return scanner.Err()
}

// RunLine parses and executes one line, threading each command's output into
// the next command's arguments.
func (s *Shell) RunLine(line string) (string, error) {
	pipeline, err := ParseLine(line)
	if err != nil {
		return "", err
	}

	output := ""
	pipedArgs := []string{}
	for i, cmd := range pipeline {
		if i > 0 {
			pipedArgs = pipeNames(output)
		}
		output, err = s.dispatch(cmd, pipedArgs)
		if err != nil {
			return "", err
		}
	}
	return output, nil
}
