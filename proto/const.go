// Copyright 2026, Square, Inc.

package proto

// Container categories. A build pipeline stacks them bottom-up:
// a BASE image (OS + MPI), zero or more LAYER images (frameworks), and
// a final PROJECT image.
const (
	CATEGORY_UNKNOWN byte = iota
	CATEGORY_BASE         // OS + MPI base image
	CATEGORY_LAYER        // framework layer stacked on a base
	CATEGORY_PROJECT      // final project image
)

var CategoryName = map[byte]string{
	CATEGORY_UNKNOWN: "UNKNOWN",
	CATEGORY_BASE:    "BASE",
	CATEGORY_LAYER:   "LAYER",
	CATEGORY_PROJECT: "PROJECT",
}

var CategoryValue = map[string]byte{
	"UNKNOWN": CATEGORY_UNKNOWN,
	"BASE":    CATEGORY_BASE,
	"LAYER":   CATEGORY_LAYER,
	"PROJECT": CATEGORY_PROJECT,
}

// Run states for one orchestrated run.
const (
	STATE_UNKNOWN byte = iota

	// Normal states, in order
	STATE_PENDING  // not started
	STATE_RUNNING  // executing groups
	STATE_COMPLETE // all groups finished

	// Error states, no order
	STATE_FAIL        // at least one build failed
	STATE_CYCLE_ERROR // graph could not be ordered, nothing was built
)

var StateName = map[byte]string{
	STATE_UNKNOWN:     "UNKNOWN",
	STATE_PENDING:     "PENDING",
	STATE_RUNNING:     "RUNNING",
	STATE_COMPLETE:    "COMPLETE",
	STATE_FAIL:        "FAIL",
	STATE_CYCLE_ERROR: "CYCLE_ERROR",
}

var StateValue = map[string]byte{
	"UNKNOWN":     STATE_UNKNOWN,
	"PENDING":     STATE_PENDING,
	"RUNNING":     STATE_RUNNING,
	"COMPLETE":    STATE_COMPLETE,
	"FAIL":        STATE_FAIL,
	"CYCLE_ERROR": STATE_CYCLE_ERROR,
}

// BuildResult reasons. Skip reasons and failure reasons share one namespace
// so results serialize uniformly; callers distinguish skipped-by-cache from
// skipped-by-failure through these values.
const (
	REASON_CACHE_HIT         = "cache_hit"
	REASON_NO_CACHE          = "no_cache"
	REASON_OUTPUT_MISSING    = "output_missing"
	REASON_CONTENT_CHANGED   = "content_changed"
	REASON_BUILD_COMPLETED   = "build_completed"
	REASON_BUILD_FAILED      = "build_failed"
	REASON_PREV_GROUP_FAILED = "previous_group_failed"

	// Prefixes for reasons that name the offending dependency,
	// e.g. "dependency_failed:openmpi-base".
	REASON_DEPENDENCY_FAILED_PREFIX = "dependency_failed:"
	REASON_WAITING_FOR_PREFIX       = "waiting_for:"
)

// Registry pull outcome reasons.
const (
	PULL_EXISTS   = "exists"        // output already on disk, nothing pulled
	PULL_PULLED   = "pulled"        // pulled from the registry
	PULL_FAILED   = "pull_failed"   // pull attempted and failed, build locally
	PULL_DISABLED = "pull_disabled" // pulling turned off, build locally
)
