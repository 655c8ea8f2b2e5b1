// Copyright 2026, Square, Inc.

// Package scan runs the trivy vulnerability scanner against built images and
// parses its JSON output into a ScanReport.
package scan

import (
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/square/hpcbuild/proto"
	"github.com/square/hpcbuild/xcmd"
)

const SCAN_TIMEOUT = 10 * time.Minute

// A Scanner scans one image file.
type Scanner interface {
	Scan(containerName, imageFile string) proto.ScanReport
}

type scanner struct {
	execer xcmd.Execer
}

func NewScanner(execer xcmd.Execer) Scanner {
	return &scanner{execer: execer}
}

// trivyOutput is the subset of trivy's JSON report we consume.
type trivyOutput struct {
	Results []struct {
		Vulnerabilities []struct {
			VulnerabilityID  string `json:"VulnerabilityID"`
			Severity         string `json:"Severity"`
			PkgName          string `json:"PkgName"`
			InstalledVersion string `json:"InstalledVersion"`
			FixedVersion     string `json:"FixedVersion"`
		} `json:"Vulnerabilities"`
	} `json:"Results"`
}

// Scan never returns an error; a scanner failure is recorded in the report's
// Err field so one unscannable image doesn't abort a multi-image report run.
func (s *scanner) Scan(containerName, imageFile string) proto.ScanReport {
	report := proto.ScanReport{
		ContainerName:  containerName,
		Scanner:        "trivy",
		SeverityCounts: map[string]int{},
	}

	log.Infof("scanning %s", containerName)
	result := s.execer.Run(xcmd.Cmd{
		Name:    "trivy",
		Args:    []string{"rootfs", "--format", "json", "--quiet", imageFile},
		Timeout: SCAN_TIMEOUT,
	})
	if !result.Ok() {
		report.Err = scanError(result)
		return report
	}

	var out trivyOutput
	if err := json.Unmarshal([]byte(result.Stdout), &out); err != nil {
		report.Err = fmt.Sprintf("cannot parse scanner output: %s", err)
		return report
	}

	for _, res := range out.Results {
		for _, v := range res.Vulnerabilities {
			severity := v.Severity
			if severity == "" {
				severity = "UNKNOWN"
			}
			report.Vulnerabilities = append(report.Vulnerabilities, proto.Vulnerability{
				Id:       v.VulnerabilityID,
				Severity: severity,
				Package:  v.PkgName,
				Version:  v.InstalledVersion,
				FixedIn:  v.FixedVersion,
			})
			report.SeverityCounts[severity]++
		}
	}
	return report
}

func scanError(result xcmd.Result) string {
	if result.Err != nil {
		return result.Err.Error()
	}
	if result.TimedOut {
		return "scan timed out"
	}
	return fmt.Sprintf("scanner exited %d: %s", result.Exit, result.Stderr)
}
