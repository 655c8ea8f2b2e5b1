// Copyright 2026, Square, Inc.

// Package orchestrator drives a full build run: it derives the dependency
// graph from the config, orders it into parallel groups, hands the groups to
// the runner, and aggregates the results into a run status.
package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"

	"github.com/square/hpcbuild/builder"
	"github.com/square/hpcbuild/config"
	"github.com/square/hpcbuild/graph"
	"github.com/square/hpcbuild/history"
	"github.com/square/hpcbuild/matrix"
	"github.com/square/hpcbuild/proto"
	"github.com/square/hpcbuild/runner"
)

// Plan is a dry-run result: the groups a run would execute, in order, with
// each container's category.
type Plan struct {
	Groups     [][]string      `json:"groups"`
	Categories map[string]byte `json:"categories"`
}

// An Orchestrator executes build runs.
type Orchestrator interface {
	// Run builds the given targets and everything they depend on. No
	// targets means the whole graph. The returned status is also saved to
	// history. A cycle in the config is terminal: the run status is
	// CYCLE_ERROR and nothing was built.
	Run(targets []string) (proto.RunStatus, error)

	// DryRun returns the execution plan without building anything.
	DryRun(targets []string) (Plan, error)

	// Graph returns the full dependency graph derived from the config.
	Graph() *graph.Graph

	// Status returns a snapshot of the current (or last) run.
	Status() proto.RunStatus
}

type orchestrator struct {
	cfg     config.Config
	builder builder.Builder
	runner  runner.Runner
	store   history.Store
	// --
	status proto.RunStatus
	mux    *sync.Mutex // guards status
}

func NewOrchestrator(cfg config.Config, bldr builder.Builder, rnr runner.Runner, store history.Store) Orchestrator {
	return &orchestrator{
		cfg:     cfg,
		builder: bldr,
		runner:  rnr,
		store:   store,
		status:  proto.RunStatus{State: proto.STATE_PENDING},
		mux:     &sync.Mutex{},
	}
}

func (o *orchestrator) Graph() *graph.Graph {
	g := graph.NewGraph()

	for _, spec := range o.cfg.UniqueBases() {
		g.AddNode(spec.Name, proto.CATEGORY_BASE, nil, nil)
	}

	for name, bc := range o.cfg.Containers.Basic {
		g.AddNode(name, proto.CATEGORY_LAYER, []string{bc.BaseContainerName()}, nil)
	}

	for name, project := range o.cfg.Containers.Projects {
		for _, variant := range matrix.Variants(name, project.BuildArgs) {
			g.AddNode(variant.ContainerName(), proto.CATEGORY_PROJECT,
				[]string{project.BaseContainer},
				map[string]string{"project": name})
		}
	}

	return g
}

func (o *orchestrator) Run(targets []string) (proto.RunStatus, error) {
	runId := xid.New().String()
	log.Infof("starting run %s", runId)

	o.setStatus(proto.RunStatus{
		RunId:     runId,
		State:     proto.STATE_RUNNING,
		StartedAt: time.Now().UTC(),
	})

	g := o.Graph()
	g, err := o.narrow(g, targets)
	if err != nil {
		return o.finishRun(proto.STATE_FAIL, nil, err)
	}

	// Validate the ordering up front so a cycle aborts before anything
	// builds.
	if _, err := g.BuildOrder(); err != nil {
		log.Errorf("run %s: %s", runId, err)
		return o.finishRun(proto.STATE_CYCLE_ERROR, nil, err)
	}

	groups, err := g.ParallelGroups()
	if err != nil {
		log.Errorf("run %s: %s", runId, err)
		return o.finishRun(proto.STATE_CYCLE_ERROR, nil, err)
	}
	log.Infof("run %s: %d containers in %d groups", runId, g.Len(), len(groups))

	// Build reasons (cache_hit, pulled, build_completed) come back through
	// the builder, not the runner; collect them per name as tasks execute.
	reasons := map[string]string{}
	var reasonsMux sync.Mutex
	recordReason := func(name, reason string) {
		reasonsMux.Lock()
		reasons[name] = reason
		reasonsMux.Unlock()
	}

	o.runner.Reset()
	taskGroups := make([][]runner.Task, len(groups))
	for i, group := range groups {
		tasks := make([]runner.Task, 0, len(group))
		for _, name := range group {
			node := g.Node(name)
			task, err := o.makeTask(g, node, recordReason)
			if err != nil {
				return o.finishRun(proto.STATE_FAIL, nil, err)
			}
			tasks = append(tasks, task)
		}
		taskGroups[i] = tasks
	}

	results := o.runner.BuildSequentialGroups(taskGroups)

	// Successful results carry the runner's generic reason; replace it with
	// the builder's more specific one.
	for i, r := range results {
		if r.Success {
			reasonsMux.Lock()
			if reason, ok := reasons[r.Name]; ok {
				results[i].Reason = reason
			}
			reasonsMux.Unlock()
		}
	}

	state := proto.STATE_COMPLETE
	if len(runner.FailedNames(results)) > 0 {
		state = proto.STATE_FAIL
	}
	return o.finishRun(state, results, nil)
}

func (o *orchestrator) DryRun(targets []string) (Plan, error) {
	g, err := o.narrow(o.Graph(), targets)
	if err != nil {
		return Plan{}, err
	}
	groups, err := g.ParallelGroups()
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{
		Groups:     groups,
		Categories: map[string]byte{},
	}
	for _, name := range g.Nodes() {
		plan.Categories[name] = g.Node(name).Category
	}
	return plan, nil
}

func (o *orchestrator) Status() proto.RunStatus {
	o.mux.Lock()
	defer o.mux.Unlock()
	return o.status
}

// --------------------------------------------------------------------------

// narrow restricts the graph to the targets and their recursive
// dependencies. An unknown target is an error, not an empty run.
func (o *orchestrator) narrow(g *graph.Graph, targets []string) (*graph.Graph, error) {
	if len(targets) == 0 {
		return g, nil
	}

	keep := map[string]bool{}
	for _, target := range targets {
		if g.Node(target) == nil {
			return nil, fmt.Errorf("unknown container %s", target)
		}
		keep[target] = true
		for _, dep := range g.Dependencies(target, true) {
			keep[dep] = true
		}
	}

	sub := graph.NewGraph()
	for _, name := range g.Nodes() {
		if keep[name] {
			node := g.Node(name)
			sub.AddNode(node.Name, node.Category, node.DependsOn, node.Metadata)
		}
	}
	return sub, nil
}

// makeTask binds one graph node to its builder call. Task dependencies are
// filtered to names the graph actually contains so externally managed bases
// never trip the runner's readiness check.
func (o *orchestrator) makeTask(g *graph.Graph, node *graph.Node, recordReason func(name, reason string)) (runner.Task, error) {
	deps := []string{}
	for _, dep := range node.DependsOn {
		if g.Node(dep) != nil {
			deps = append(deps, dep)
		}
	}

	var build func() (bool, error)
	name := node.Name

	switch node.Category {
	case proto.CATEGORY_BASE:
		spec, ok := o.baseSpec(name)
		if !ok {
			return runner.Task{}, fmt.Errorf("no base spec for %s", name)
		}
		build = func() (bool, error) {
			outcome, err := o.builder.BuildBase(spec)
			recordReason(name, outcome.Reason)
			return outcome.Success, err
		}
	case proto.CATEGORY_LAYER:
		bc, ok := o.cfg.Containers.Basic[name]
		if !ok {
			return runner.Task{}, fmt.Errorf("no basic container config for %s", name)
		}
		build = func() (bool, error) {
			outcome, err := o.builder.BuildLayers(name, bc)
			recordReason(name, outcome.Reason)
			return outcome.Success, err
		}
	case proto.CATEGORY_PROJECT:
		projectName := node.Metadata["project"]
		project, ok := o.cfg.Containers.Projects[projectName]
		if !ok {
			return runner.Task{}, fmt.Errorf("no project config for %s", name)
		}
		variant, ok := o.variantFor(projectName, project, name)
		if !ok {
			return runner.Task{}, fmt.Errorf("no variant for %s", name)
		}
		build = func() (bool, error) {
			outcome, err := o.builder.BuildProject(variant, project)
			recordReason(name, outcome.Reason)
			return outcome.Success, err
		}
	default:
		return runner.Task{}, fmt.Errorf("unknown category %d for %s", node.Category, name)
	}

	return runner.Task{
		Name:      name,
		DependsOn: deps,
		Metadata:  node.Metadata,
		Build:     build,
	}, nil
}

func (o *orchestrator) baseSpec(name string) (config.BaseSpec, bool) {
	for _, spec := range o.cfg.UniqueBases() {
		if spec.Name == name {
			return spec, true
		}
	}
	return config.BaseSpec{}, false
}

func (o *orchestrator) variantFor(projectName string, project config.ProjectContainer, containerName string) (matrix.Variant, bool) {
	for _, variant := range matrix.Variants(projectName, project.BuildArgs) {
		if variant.ContainerName() == containerName {
			return variant, true
		}
	}
	return matrix.Variant{}, false
}

func (o *orchestrator) setStatus(status proto.RunStatus) {
	o.mux.Lock()
	defer o.mux.Unlock()
	o.status = status
}

// finishRun finalizes the run status, saves it to history, and returns it.
// runErr (a cycle, an unknown target) is returned to the caller after the
// status is recorded.
func (o *orchestrator) finishRun(state byte, results []proto.BuildResult, runErr error) (proto.RunStatus, error) {
	o.mux.Lock()
	status := o.status
	o.mux.Unlock()

	status.State = state
	status.FinishedAt = time.Now().UTC()
	status.Results = results
	status.FailedNames = runner.FailedNames(results)
	for _, r := range results {
		switch {
		case r.Skipped:
			status.Skipped++
		case r.Success:
			status.Built++
		default:
			status.Failed++
		}
	}

	o.setStatus(status)

	if o.store != nil {
		if err := o.store.SaveRun(status); err != nil {
			log.Errorf("cannot save run %s to history: %s", status.RunId, err)
		}
	}

	log.Infof("run %s finished: %s (built=%d skipped=%d failed=%d)",
		status.RunId, proto.StateName[status.State], status.Built, status.Skipped, status.Failed)
	return status, runErr
}
