// Copyright 2026, Square, Inc.

// Package report assembles per-container reports (smoke tests, security
// scan, size analysis) and writes them as JSON files.
package report

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/square/hpcbuild/check"
	"github.com/square/hpcbuild/proto"
	"github.com/square/hpcbuild/scan"
	"github.com/square/hpcbuild/size"
)

// Options select which sub-reports to generate.
type Options struct {
	Checks   bool
	Security bool
	Size     bool
}

// All enables every sub-report.
func All() Options {
	return Options{Checks: true, Security: true, Size: true}
}

// A Reporter generates and persists container reports.
type Reporter interface {
	// Generate builds one container's report per the options.
	Generate(containerName, imageFile string, opts Options) proto.ContainerReport

	// Write persists a report to <dir>/<name>-report.json.
	Write(report proto.ContainerReport) (string, error)

	// Summarize writes an index of all given reports to <dir>/summary.json.
	Summarize(reports []proto.ContainerReport) (string, error)
}

type reporter struct {
	dir      string
	checker  check.Checker
	scanner  scan.Scanner
	analyzer size.Analyzer
}

func NewReporter(dir string, checker check.Checker, scanner scan.Scanner, analyzer size.Analyzer) Reporter {
	return &reporter{
		dir:      dir,
		checker:  checker,
		scanner:  scanner,
		analyzer: analyzer,
	}
}

func (r *reporter) Generate(containerName, imageFile string, opts Options) proto.ContainerReport {
	report := proto.ContainerReport{
		ContainerName: containerName,
		ContainerPath: imageFile,
		Generated:     time.Now().UTC(),
	}
	if info, err := os.Stat(imageFile); err == nil {
		mod := info.ModTime().UTC()
		report.BuildDate = &mod
	}

	if opts.Checks {
		checks := r.checker.RunChecks(containerName, imageFile, nil)
		report.Checks = &checks
	}
	if opts.Security {
		sec := r.scanner.Scan(containerName, imageFile)
		report.Security = &sec
	}
	if opts.Size {
		sz := r.analyzer.Analyze(containerName, imageFile, nil)
		report.SizeAnalysis = &sz
	}
	return report
}

func (r *reporter) Write(report proto.ContainerReport) (string, error) {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", err
	}
	file := filepath.Join(r.dir, report.ContainerName+"-report.json")
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	if err := ioutil.WriteFile(file, data, 0644); err != nil {
		return "", err
	}
	log.Infof("wrote report %s", file)
	return file, nil
}

// summaryLine is one container's row in the summary index.
type summaryLine struct {
	ContainerName string `json:"container_name"`
	ChecksPassed  int    `json:"checks_passed"`
	ChecksFailed  int    `json:"checks_failed"`
	Critical      int    `json:"critical_vulnerabilities"`
	High          int    `json:"high_vulnerabilities"`
	TotalBytes    int64  `json:"total_bytes"`
}

func (r *reporter) Summarize(reports []proto.ContainerReport) (string, error) {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", err
	}

	lines := make([]summaryLine, 0, len(reports))
	for _, report := range reports {
		line := summaryLine{ContainerName: report.ContainerName}
		if report.Checks != nil {
			line.ChecksPassed = report.Checks.Passed
			line.ChecksFailed = report.Checks.Failed
		}
		if report.Security != nil {
			line.Critical = report.Security.SeverityCounts["CRITICAL"]
			line.High = report.Security.SeverityCounts["HIGH"]
		}
		if report.SizeAnalysis != nil {
			line.TotalBytes = report.SizeAnalysis.TotalBytes
		}
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ContainerName < lines[j].ContainerName })

	summary := struct {
		Generated  time.Time     `json:"generated"`
		Containers []summaryLine `json:"containers"`
	}{
		Generated:  time.Now().UTC(),
		Containers: lines,
	}

	file := filepath.Join(r.dir, "summary.json")
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", err
	}
	if err := ioutil.WriteFile(file, data, 0644); err != nil {
		return "", err
	}
	return file, nil
}

// ReportFile returns the path a container's report would be written to.
func ReportFile(dir, containerName string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-report.json", containerName))
}
