// Copyright 2026, Square, Inc.

// Package size measures built images: total file size plus a per-directory
// breakdown gathered by running du inside the image.
package size

import (
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/square/hpcbuild/proto"
	"github.com/square/hpcbuild/xcmd"
)

const MEASURE_TIMEOUT = 5 * time.Minute

// DefaultSections are the directories measured when the caller doesn't name
// any. They cover where frameworks and project payloads install.
var DefaultSections = []string{"/usr", "/opt", "/usr/local"}

// An Analyzer measures image sizes.
type Analyzer interface {
	Analyze(containerName, imageFile string, sections []string) proto.SizeReport
}

type analyzer struct {
	execer xcmd.Execer
}

func NewAnalyzer(execer xcmd.Execer) Analyzer {
	return &analyzer{execer: execer}
}

// Analyze stats the image file for the total and runs du -sb inside the
// image for each section. Sections that can't be measured (missing path,
// exec failure) are logged and omitted rather than failing the report.
func (a *analyzer) Analyze(containerName, imageFile string, sections []string) proto.SizeReport {
	report := proto.SizeReport{ContainerName: containerName}

	if info, err := os.Stat(imageFile); err == nil {
		report.TotalBytes = info.Size()
	} else {
		log.Warnf("cannot stat %s: %s", imageFile, err)
	}

	if len(sections) == 0 {
		sections = DefaultSections
	}
	for _, path := range sections {
		result := a.execer.Run(xcmd.Cmd{
			Name:    "apptainer",
			Args:    []string{"exec", imageFile, "du", "-sb", path},
			Timeout: MEASURE_TIMEOUT,
		})
		if !result.Ok() {
			log.Warnf("%s: cannot measure %s", containerName, path)
			continue
		}
		bytes, ok := parseDu(result.Stdout)
		if !ok {
			log.Warnf("%s: unparseable du output for %s: %q", containerName, path, result.Stdout)
			continue
		}
		report.Sections = append(report.Sections, proto.SectionSize{Path: path, Bytes: bytes})
	}
	return report
}

// parseDu extracts the byte count from "du -sb" output ("12345\t/usr").
func parseDu(out string) (int64, bool) {
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) < 1 {
		return 0, false
	}
	n, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
