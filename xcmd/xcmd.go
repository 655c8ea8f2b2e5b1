// Copyright 2026, Square, Inc.

// Package xcmd runs external commands synchronously with captured output and
// a timeout. Every external tool the build system touches (apptainer, the
// vulnerability scanner, du) goes through the Execer interface so tests can
// substitute a mock.
package xcmd

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Cmd describes one external command invocation.
type Cmd struct {
	Name string   // binary to execute
	Args []string // args to Name

	Dir string   // working directory ("" = inherit)
	Env []string // extra environment entries appended to os.Environ

	// Timeout kills the command when exceeded. 0 means no timeout.
	Timeout time.Duration

	// LogFile, when set, streams combined stdout+stderr to this file
	// instead of capturing it in the Result. Long builds log to a file so
	// output isn't held in memory.
	LogFile string
}

// Result is the outcome of one invocation. A non-zero Exit is not an error
// at this layer; Err is only set when the command could not be run at all
// (binary missing, log file unwritable).
type Result struct {
	Exit     int
	Stdout   string
	Stderr   string
	TimedOut bool
	Err      error
}

// Ok returns true when the command ran and exited zero.
func (r Result) Ok() bool {
	return r.Err == nil && r.Exit == 0 && !r.TimedOut
}

// An Execer runs external commands.
type Execer interface {
	Run(cmd Cmd) Result
}

type execer struct{}

// NewExecer returns the real Execer backed by os/exec.
func NewExecer() Execer {
	return execer{}
}

func (e execer) Run(c Cmd) Result {
	ctx := context.Background()
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	if c.LogFile != "" {
		logFile, err := os.Create(c.LogFile)
		if err != nil {
			return Result{Exit: -1, Err: err}
		}
		defer logFile.Close()
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	err := cmd.Run()

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		TimedOut: ctx.Err() == context.DeadlineExceeded,
	}

	if err == nil {
		return res
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		res.Exit = exitStatus(exitErr)
		return res
	}

	// Command never ran (binary missing, bad dir, etc).
	res.Exit = -1
	res.Err = err
	return res
}

func exitStatus(err *exec.ExitError) int {
	if status, ok := err.Sys().(syscall.WaitStatus); ok {
		return status.ExitStatus()
	}
	return 1
}
