// Copyright 2026, Square, Inc.

// Package check runs smoke tests inside built images: short commands that
// verify the image actually contains what its layers claim to install.
package check

import (
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/square/hpcbuild/proto"
	"github.com/square/hpcbuild/xcmd"
)

const CHECK_TIMEOUT = 2 * time.Minute

// Check is one smoke test: a shell command run inside the image, passing
// when it exits zero.
type Check struct {
	Name    string
	Command string
}

// DefaultChecks are run for every image.
var DefaultChecks = []Check{
	{Name: "shell", Command: "true"},
	{Name: "mpi", Command: "mpirun --version"},
}

// A Checker runs smoke tests.
type Checker interface {
	RunChecks(containerName, imageFile string, checks []Check) proto.CheckReport
}

type checker struct {
	execer xcmd.Execer
}

func NewChecker(execer xcmd.Execer) Checker {
	return &checker{execer: execer}
}

// RunChecks executes each check via apptainer exec. Nil checks selects
// DefaultChecks. Failures are recorded, never returned: a report with
// failing checks is still a complete report.
func (c *checker) RunChecks(containerName, imageFile string, checks []Check) proto.CheckReport {
	if checks == nil {
		checks = DefaultChecks
	}
	report := proto.CheckReport{ContainerName: containerName}

	for _, check := range checks {
		log.Debugf("%s: running check %s", containerName, check.Name)
		result := c.execer.Run(xcmd.Cmd{
			Name:    "apptainer",
			Args:    []string{"exec", imageFile, "sh", "-c", check.Command},
			Timeout: CHECK_TIMEOUT,
		})

		cr := proto.CheckResult{
			Name:    check.Name,
			Command: check.Command,
			Pass:    result.Ok(),
			Output:  strings.TrimSpace(result.Stdout),
		}
		if !cr.Pass {
			if result.Err != nil {
				cr.Error = result.Err.Error()
			} else if result.TimedOut {
				cr.Error = "check timed out"
			} else {
				cr.Error = strings.TrimSpace(result.Stderr)
			}
			report.Failed++
			log.Warnf("%s: check %s failed", containerName, check.Name)
		} else {
			report.Passed++
		}
		report.Results = append(report.Results, cr)
	}
	return report
}
