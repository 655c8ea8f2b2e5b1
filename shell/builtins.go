// Copyright 2026, Square, Inc.

package shell

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/square/hpcbuild/proto"
)

// ErrExit signals a clean exit request from a builtin.
var ErrExit = errors.New("exit")

const helpText = `Commands:
  build [name ...] [force=true]   build containers (default: all)
  plan  [name ...]                show the build plan without building
  graph                           print the dependency graph in DOT format
  cache [stats|clear|drop <name>] inspect or invalidate the build cache
  frameworks                      list configured containers and frameworks
  status                          show the current or last run
  help                            this text
  exit                            leave the shell

Commands can be piped; the previous output's container names become
trailing arguments: plan | build`

// dispatch runs one command. pipedArgs are container names extracted from
// the previous command's output.
func (s *Shell) dispatch(cmd Command, pipedArgs []string) (string, error) {
	args := append(append([]string{}, cmd.Args...), pipedArgs...)

	switch cmd.Name {
	case "help":
		return helpText, nil
	case "exit", "quit":
		return "", ErrExit
	case "build":
		return s.build(args, cmd.Kwargs)
	case "plan":
		return s.plan(args)
	case "graph":
		return s.orchestrator.Graph().ToDot(nil), nil
	case "cache":
		return s.cacheCmd(args)
	case "frameworks":
		return s.frameworks(), nil
	case "status":
		return renderStatus(s.orchestrator.Status()), nil
	default:
		return "", fmt.Errorf("unknown command %s (try help)", cmd.Name)
	}
}

func (s *Shell) build(targets []string, kwargs map[string]string) (string, error) {
	if kwargs["force"] == "true" {
		s.builder.Force(targets)
	}
	status, err := s.orchestrator.Run(targets)
	if err != nil {
		return "", err
	}
	return renderStatus(status), nil
}

func (s *Shell) plan(targets []string) (string, error) {
	plan, err := s.orchestrator.DryRun(targets)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i, group := range plan.Groups {
		fmt.Fprintf(&b, "group %d:\n", i+1)
		for _, name := range group {
			fmt.Fprintf(&b, "  %s (%s)\n", name, proto.CategoryName[plan.Categories[name]])
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *Shell) cacheCmd(args []string) (string, error) {
	sub := "stats"
	if len(args) > 0 {
		sub = args[0]
	}
	switch sub {
	case "stats":
		stats := s.cache.Statistics()
		var b strings.Builder
		fmt.Fprintf(&b, "%d entries in %s\n", stats.TotalEntries, stats.Dir)
		for _, name := range stats.Names {
			fmt.Fprintf(&b, "  %s\n", name)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	case "clear":
		if err := s.cache.InvalidateAll(); err != nil {
			return "", err
		}
		return "cache cleared", nil
	case "drop":
		if len(args) < 2 {
			return "", fmt.Errorf("usage: cache drop <name>")
		}
		dropped := []string{}
		for _, name := range args[1:] {
			if err := s.cache.Invalidate(name); err != nil {
				return "", err
			}
			dropped = append(dropped, name)
		}
		return "dropped " + strings.Join(dropped, ", "), nil
	default:
		return "", fmt.Errorf("unknown cache subcommand %s", sub)
	}
}

// frameworks lists the configured basic containers with their framework
// stacks and the projects on top of them.
func (s *Shell) frameworks() string {
	var b strings.Builder

	names := make([]string, 0, len(s.cfg.Containers.Basic))
	for name := range s.cfg.Containers.Basic {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		bc := s.cfg.Containers.Basic[name]
		fmt.Fprintf(&b, "%s (base %s)\n", name, bc.BaseContainerName())
		for _, fw := range bc.Framework {
			fmt.Fprintf(&b, "  %s %s\n", fw.Definition, fw.Version)
		}
	}

	projects := make([]string, 0, len(s.cfg.Containers.Projects))
	for name := range s.cfg.Containers.Projects {
		projects = append(projects, name)
	}
	sort.Strings(projects)
	for _, name := range projects {
		p := s.cfg.Containers.Projects[name]
		fmt.Fprintf(&b, "%s (project on %s)\n", name, p.BaseContainer)
	}

	return strings.TrimRight(b.String(), "\n")
}

// renderStatus formats a run status for the console. Lines for built and
// failed containers start with the container name so the output pipes
// cleanly into another command.
func renderStatus(status proto.RunStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %s (built=%d skipped=%d failed=%d)\n",
		status.RunId, proto.StateName[status.State], status.Built, status.Skipped, status.Failed)

	results := append([]proto.BuildResult{}, status.Results...)
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	for _, r := range results {
		fmt.Fprintf(&b, "%s %s\n", r.Name, r.Reason)
	}
	return strings.TrimRight(b.String(), "\n")
}

// pipeNames extracts pipeable container names from command output: the first
// whitespace-separated field of each line that looks like a name line.
func pipeNames(output string) []string {
	names := []string{}
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		first := fields[0]
		// Skip headers, group markers, and count lines.
		if strings.HasSuffix(first, ":") || first == "run" || first == "group" || first == "dropped" {
			continue
		}
		if first[0] >= '0' && first[0] <= '9' {
			continue
		}
		names = append(names, first)
	}
	return names
}
