// Copyright 2026, Square, Inc.

// Package proto provides data structures shared by the build system packages.
package proto

import (
	"fmt"
	"time"
)

// BuildResult is the outcome of one build task attempt. Results are
// append-only: the runner creates exactly one per task per execution attempt
// and never mutates it afterwards. Result order follows completion order, not
// submission order, so callers key by Name when order matters.
type BuildResult struct {
	Name    string `json:"name"`            // container the task builds
	Success bool   `json:"success"`         // build function returned true
	Skipped bool   `json:"skipped"`         // build function was never invoked
	Reason  string `json:"reason"`          // REASON_* const or prefixed reason
	Error   string `json:"error,omitempty"` // captured error text, if any
}

func (r BuildResult) String() string {
	if r.Skipped {
		return fmt.Sprintf("BuildResult(%s, skipped=%s)", r.Name, r.Reason)
	}
	if r.Success {
		return fmt.Sprintf("BuildResult(%s, success=true)", r.Name)
	}
	return fmt.Sprintf("BuildResult(%s, success=false, error=%s)", r.Name, r.Error)
}

// RunStatus is the aggregate outcome of one orchestrated run across the whole
// graph. While a run is executing it doubles as the live status snapshot.
type RunStatus struct {
	RunId       string        `json:"runId"`
	State       byte          `json:"state"` // STATE_* const
	Built       int           `json:"built"`
	Skipped     int           `json:"skipped"`
	Failed      int           `json:"failed"`
	FailedNames []string      `json:"failedNames,omitempty"`
	Results     []BuildResult `json:"results,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
	FinishedAt  time.Time     `json:"finishedAt"`
}

// CacheEntry records the inputs of one successful build, keyed by container
// name. Entries persist as one JSON record per name; field names match the
// on-disk layout.
type CacheEntry struct {
	ContainerName     string            `json:"container_name"`
	ContentHash       string            `json:"content_hash"`
	BuiltAt           string            `json:"built_at"` // RFC 3339
	DefinitionFile    string            `json:"definition_file"`
	BuildArgs         map[string]string `json:"build_args"`
	OutputFile        string            `json:"output_file"`
	BaseContainerHash string            `json:"base_container_hash,omitempty"`
}

// CheckResult is the outcome of one smoke test run inside a built image.
type CheckResult struct {
	Name    string `json:"name"`
	Command string `json:"command"`
	Pass    bool   `json:"pass"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CheckReport aggregates the smoke tests of one container.
type CheckReport struct {
	ContainerName string        `json:"container_name"`
	Results       []CheckResult `json:"results"`
	Passed        int           `json:"passed"`
	Failed        int           `json:"failed"`
}

// Vulnerability is one finding from the external scanner.
type Vulnerability struct {
	Id       string `json:"id"`
	Severity string `json:"severity"` // CRITICAL, HIGH, MEDIUM, LOW, UNKNOWN
	Package  string `json:"package"`
	Version  string `json:"version,omitempty"`
	FixedIn  string `json:"fixedIn,omitempty"`
}

// ScanReport is the parsed output of one vulnerability scan.
type ScanReport struct {
	ContainerName   string          `json:"container_name"`
	Scanner         string          `json:"scanner"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities,omitempty"`
	SeverityCounts  map[string]int  `json:"severityCounts"`
	Err             string          `json:"error,omitempty"`
}

// SectionSize is the measured size of one directory inside an image.
type SectionSize struct {
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

// SizeReport is the size breakdown of one built image.
type SizeReport struct {
	ContainerName string        `json:"container_name"`
	TotalBytes    int64         `json:"totalBytes"`
	Sections      []SectionSize `json:"sections,omitempty"`
}

// ContainerReport aggregates everything known about one built container.
// Nil sub-reports were not run.
type ContainerReport struct {
	ContainerName string       `json:"container_name"`
	ContainerPath string       `json:"container_path"`
	Generated     time.Time    `json:"report_generated"`
	BuildDate     *time.Time   `json:"build_date,omitempty"`
	Checks        *CheckReport `json:"tests,omitempty"`
	Security      *ScanReport  `json:"security,omitempty"`
	SizeAnalysis  *SizeReport  `json:"size_analysis,omitempty"`
}
