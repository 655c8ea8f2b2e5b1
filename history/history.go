// Copyright 2026, Square, Inc.

// Package history persists run outcomes so past builds can be inspected
// after the process exits. The memory store backs the status API within one
// process; the SQL store persists across processes.
package history

import (
	"github.com/square/hpcbuild/proto"
)

// A Store saves and retrieves run statuses.
type Store interface {
	// SaveRun persists one finished (or terminal) run.
	SaveRun(status proto.RunStatus) error

	// Runs returns up to limit runs, newest first. limit <= 0 means all.
	Runs(limit int) ([]proto.RunStatus, error)

	// Run returns one run by id. A missing id is an error.
	Run(runId string) (proto.RunStatus, error)
}
