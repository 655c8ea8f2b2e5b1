// Copyright 2026, Square, Inc.

// Package registry pulls and pushes built images against a remote OCI or
// library registry via the apptainer CLI.
package registry

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/square/hpcbuild/config"
	"github.com/square/hpcbuild/proto"
	"github.com/square/hpcbuild/retry"
	"github.com/square/hpcbuild/xcmd"
)

const (
	PULL_TRIES = 2
	PULL_WAIT  = 3 * time.Second
)

// PullOutcome reports what TryPull did. A failed pull is a normal outcome,
// not an error: the caller falls back to building locally.
type PullOutcome struct {
	Hit    bool   // output file exists after the call
	Reason string // proto.PULL_* const
}

// A Registry pulls and pushes images.
type Registry interface {
	// URL returns the registry reference for a container name and tag.
	URL(name, tag string) string

	// TryPull makes outputFile exist if it can: a no-op when the file is
	// already on disk, a registry pull when pulling is enabled, otherwise
	// nothing. The outcome says whether the file now exists and why.
	TryPull(name, outputFile string) PullOutcome

	// Push uploads an image under each of the given tags.
	Push(name, imageFile string, tags []string) error
}

type registry struct {
	cfg     config.Pull
	execer  xcmd.Execer
	timeout time.Duration
	// pull retry policy and fileExists are swapped in tests
	pullTries  int
	pullWait   time.Duration
	fileExists func(string) bool
}

// NewRegistry creates a Registry from the pull config. The protocol must be
// one of oras, docker, or library (config.Validate enforces this earlier).
func NewRegistry(cfg config.Pull, execer xcmd.Execer, timeout time.Duration) Registry {
	return &registry{
		cfg:        cfg,
		execer:     execer,
		timeout:    timeout,
		pullTries:  PULL_TRIES,
		pullWait:   PULL_WAIT,
		fileExists: fileExists,
	}
}

func (r *registry) URL(name, tag string) string {
	if tag == "" {
		tag = "latest"
	}
	return fmt.Sprintf("%s://%s/%s:%s", r.cfg.Protocol, r.cfg.Scope, name, tag)
}

func (r *registry) TryPull(name, outputFile string) PullOutcome {
	if r.fileExists(outputFile) {
		return PullOutcome{Hit: true, Reason: proto.PULL_EXISTS}
	}
	if !r.cfg.Enabled || r.cfg.Scope == "" {
		return PullOutcome{Reason: proto.PULL_DISABLED}
	}

	url := r.URL(name, "latest")
	log.Infof("pulling %s from %s", name, url)

	err := retry.Do(r.pullTries, r.pullWait,
		func() error {
			result := r.execer.Run(xcmd.Cmd{
				Name:    "apptainer",
				Args:    []string{"pull", outputFile, url},
				Timeout: r.timeout,
			})
			if !result.Ok() {
				return pullError(result)
			}
			return nil
		},
		func(err error, wait time.Duration) {
			log.Warnf("pull %s failed (%s), retrying in %s", name, err, wait)
		},
	)
	if err != nil {
		log.Warnf("could not pull %s: %s; will build locally", name, err)
		return PullOutcome{Reason: proto.PULL_FAILED}
	}
	return PullOutcome{Hit: true, Reason: proto.PULL_PULLED}
}

func (r *registry) Push(name, imageFile string, tags []string) error {
	if r.cfg.Scope == "" {
		return fmt.Errorf("cannot push %s: pull.scope not configured", name)
	}
	for _, tag := range tags {
		url := r.URL(name, tag)
		log.Infof("pushing %s to %s", name, url)
		result := r.execer.Run(xcmd.Cmd{
			Name:    "apptainer",
			Args:    []string{"push", imageFile, url},
			Timeout: r.timeout,
		})
		if !result.Ok() {
			return fmt.Errorf("push %s: %s", url, pullError(result))
		}
	}
	return nil
}

func pullError(result xcmd.Result) error {
	if result.Err != nil {
		return result.Err
	}
	if result.TimedOut {
		return fmt.Errorf("timed out")
	}
	return fmt.Errorf("exit %d: %s", result.Exit, result.Stderr)
}

func fileExists(file string) bool {
	_, err := os.Stat(file)
	return err == nil
}
