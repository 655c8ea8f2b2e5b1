// Copyright 2026, Square, Inc.

// Package mock provides mocks of the build system interfaces for tests.
package mock

import (
	"strings"
	"sync"

	"github.com/square/hpcbuild/xcmd"
)

// Execer is a mock xcmd.Execer. Responses are matched against the invoked
// command line ("name arg1 arg2 ...") by prefix, in order; the first match
// wins. Unmatched commands get DefaultResult. Every invocation is recorded
// in Calls.
type Execer struct {
	Responses     []ExecResponse
	DefaultResult xcmd.Result
	// --
	Calls []xcmd.Cmd
	mux   sync.Mutex
}

// ExecResponse is one scripted response.
type ExecResponse struct {
	Prefix string // matched against "name arg1 arg2 ..."
	Result xcmd.Result
}

func (e *Execer) Run(cmd xcmd.Cmd) xcmd.Result {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.Calls = append(e.Calls, cmd)

	line := cmd.Name
	if len(cmd.Args) > 0 {
		line += " " + strings.Join(cmd.Args, " ")
	}
	for _, r := range e.Responses {
		if strings.HasPrefix(line, r.Prefix) {
			return r.Result
		}
	}
	return e.DefaultResult
}

// CallLines returns every recorded invocation as a "name arg1 arg2 ..."
// string, in call order.
func (e *Execer) CallLines() []string {
	e.mux.Lock()
	defer e.mux.Unlock()
	lines := make([]string, 0, len(e.Calls))
	for _, c := range e.Calls {
		line := c.Name
		if len(c.Args) > 0 {
			line += " " + strings.Join(c.Args, " ")
		}
		lines = append(lines, line)
	}
	return lines
}
