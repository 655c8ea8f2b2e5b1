// Copyright 2026, Square, Inc.

// Package runner executes batches of build tasks with bounded concurrency.
// The caller (the orchestrator) groups tasks so that no two tasks in one
// batch depend on each other; the runner provides the worker pool, the
// shared completed/failed bookkeeping, and the group-level fail-fast policy.
package runner

import (
	"fmt"
	"runtime"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/square/hpcbuild/proto"
)

// Task is one container build. Build blocks until the build finishes and
// returns whether it succeeded; a non-nil error is an abnormal failure
// (distinct from a clean false return) and is captured into the result.
type Task struct {
	Name      string
	DependsOn []string
	Metadata  map[string]string
	Build     func() (bool, error)
}

// A Runner executes build task batches. One Runner instance can serve many
// independent full-graph runs if Reset is called between them.
type Runner interface {
	// BuildParallel executes one batch of tasks in a bounded worker pool
	// and returns one result per task, in completion order. Errors and
	// panics inside tasks never escape; they come back as failed results.
	BuildParallel(tasks []Task) []proto.BuildResult

	// BuildSequentialGroups runs BuildParallel per group, in order. If a
	// group produces any non-skipped failure, every task in every later
	// group is recorded as skipped with reason previous_group_failed and
	// its build function is never invoked. This is deliberately coarse:
	// one failure halts all downstream groups even for nodes that did not
	// depend on the failed one.
	BuildSequentialGroups(groups [][]Task) []proto.BuildResult

	// Reset clears the completed/failed sets for a fresh run.
	Reset()
}

type runner struct {
	maxWorkers int
	// --
	completed map[string]bool // names that built successfully
	failed    map[string]bool // names that failed
	*sync.Mutex               // guards completed and failed
}

// NewRunner returns a Runner with the given worker pool size. maxWorkers <= 0
// selects the default, max(1, NumCPU-1): one core stays free for the
// controlling process and its I/O.
func NewRunner(maxWorkers int) Runner {
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU() - 1
		if maxWorkers < 1 {
			maxWorkers = 1
		}
	}
	log.Infof("parallel runner initialized with %d workers", maxWorkers)
	return &runner{
		maxWorkers: maxWorkers,
		completed:  map[string]bool{},
		failed:     map[string]bool{},
		Mutex:      &sync.Mutex{},
	}
}

func (r *runner) BuildParallel(tasks []Task) []proto.BuildResult {
	if len(tasks) == 0 {
		return []proto.BuildResult{}
	}

	resultChan := make(chan proto.BuildResult, len(tasks))
	sem := make(chan struct{}, r.maxWorkers)
	var wg sync.WaitGroup

	for _, task := range tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			resultChan <- r.executeTask(task)
		}(task)
	}

	wg.Wait()
	close(resultChan)

	// Completion order, not submission order. Callers key by Name.
	results := make([]proto.BuildResult, 0, len(tasks))
	for result := range resultChan {
		results = append(results, result)
	}
	return results
}

func (r *runner) BuildSequentialGroups(groups [][]Task) []proto.BuildResult {
	allResults := []proto.BuildResult{}

	for groupNo, group := range groups {
		log.Infof("building group %d/%d (%d containers)", groupNo+1, len(groups), len(group))

		groupResults := r.BuildParallel(group)
		allResults = append(allResults, groupResults...)

		failed := 0
		for _, result := range groupResults {
			if !result.Success && !result.Skipped {
				failed++
			}
		}
		if failed > 0 {
			log.Errorf("group %d had %d failures, stopping build", groupNo+1, failed)
			for _, laterGroup := range groups[groupNo+1:] {
				for _, task := range laterGroup {
					allResults = append(allResults, proto.BuildResult{
						Name:    task.Name,
						Skipped: true,
						Reason:  proto.REASON_PREV_GROUP_FAILED,
					})
				}
			}
			break
		}
	}

	return allResults
}

func (r *runner) Reset() {
	r.Lock()
	defer r.Unlock()
	r.completed = map[string]bool{}
	r.failed = map[string]bool{}
}

// --------------------------------------------------------------------------

// executeTask runs one task: readiness check, build, bookkeeping. Within a
// correctly formed batch the readiness check never trips (no intra-batch
// dependencies); it is the safety net for cross-batch misuse.
func (r *runner) executeTask(task Task) (result proto.BuildResult) {
	ready, reason := r.isReady(task)
	if !ready {
		log.Warnf("skipping %s: %s", task.Name, reason)
		return proto.BuildResult{
			Name:    task.Name,
			Skipped: true,
			Reason:  reason,
		}
	}

	// A panicking build function must not take down the worker pool; it
	// becomes a failed result like any other build error.
	defer func() {
		if p := recover(); p != nil {
			log.Errorf("panic building %s: %v", task.Name, p)
			r.markDone(task.Name, false)
			result = proto.BuildResult{
				Name:   task.Name,
				Reason: proto.REASON_BUILD_FAILED,
				Error:  fmt.Sprintf("panic: %v", p),
			}
		}
	}()

	log.Infof("building %s", task.Name)
	success, err := task.Build()
	r.markDone(task.Name, success && err == nil)

	if err != nil {
		log.Errorf("error building %s: %s", task.Name, err)
		return proto.BuildResult{
			Name:   task.Name,
			Reason: proto.REASON_BUILD_FAILED,
			Error:  err.Error(),
		}
	}

	reason = proto.REASON_BUILD_COMPLETED
	if !success {
		reason = proto.REASON_BUILD_FAILED
	}
	return proto.BuildResult{
		Name:    task.Name,
		Success: success,
		Reason:  reason,
	}
}

// isReady reports whether every dependency of the task finished
// successfully. Failed dependencies take precedence over unfinished ones in
// the reported reason. Reads take the same lock as writes so a worker never
// sees a torn view of the two sets.
func (r *runner) isReady(task Task) (bool, string) {
	r.Lock()
	defer r.Unlock()
	for _, dep := range task.DependsOn {
		if r.failed[dep] {
			return false, proto.REASON_DEPENDENCY_FAILED_PREFIX + dep
		}
	}
	for _, dep := range task.DependsOn {
		if !r.completed[dep] {
			return false, proto.REASON_WAITING_FOR_PREFIX + dep
		}
	}
	return true, "ready"
}

func (r *runner) markDone(name string, success bool) {
	r.Lock()
	defer r.Unlock()
	if success {
		r.completed[name] = true
	} else {
		r.failed[name] = true
	}
}

// FailedNames extracts the names of non-skipped failures from results,
// sorted for stable reporting.
func FailedNames(results []proto.BuildResult) []string {
	names := []string{}
	for _, result := range results {
		if !result.Success && !result.Skipped {
			names = append(names, result.Name)
		}
	}
	sort.Strings(names)
	return names
}
