// Copyright 2026, Square, Inc.

package shell

import (
	"bytes"
	"io/ioutil"
	"os"
	"strings"
	"testing"

	"github.com/go-test/deep"

	"github.com/square/hpcbuild/builder"
	"github.com/square/hpcbuild/cache"
	"github.com/square/hpcbuild/config"
	"github.com/square/hpcbuild/graph"
	"github.com/square/hpcbuild/matrix"
	"github.com/square/hpcbuild/orchestrator"
	"github.com/square/hpcbuild/proto"
)

type fakeOrchestrator struct {
	runTargets [][]string
}

func (o *fakeOrchestrator) Run(targets []string) (proto.RunStatus, error) {
	o.runTargets = append(o.runTargets, targets)
	return proto.RunStatus{
		RunId: "r1",
		State: proto.STATE_COMPLETE,
		Built: 2,
		Results: []proto.BuildResult{
			{Name: "base", Success: true, Reason: proto.REASON_BUILD_COMPLETED},
			{Name: "layer1", Success: true, Reason: proto.REASON_CACHE_HIT},
		},
	}, nil
}

func (o *fakeOrchestrator) DryRun(targets []string) (orchestrator.Plan, error) {
	return orchestrator.Plan{
		Groups: [][]string{{"base"}, {"layer1"}},
		Categories: map[string]byte{
			"base":   proto.CATEGORY_BASE,
			"layer1": proto.CATEGORY_LAYER,
		},
	}, nil
}

func (o *fakeOrchestrator) Graph() *graph.Graph {
	g := graph.NewGraph()
	g.AddNode("base", proto.CATEGORY_BASE, nil, nil)
	return g
}

func (o *fakeOrchestrator) Status() proto.RunStatus {
	return proto.RunStatus{RunId: "r1", State: proto.STATE_COMPLETE}
}

type fakeBuilder struct {
	forced [][]string
}

func (b *fakeBuilder) BuildBase(spec config.BaseSpec) (builder.Outcome, error) {
	return builder.Outcome{}, nil
}
func (b *fakeBuilder) BuildLayers(name string, bc config.BasicContainer) (builder.Outcome, error) {
	return builder.Outcome{}, nil
}
func (b *fakeBuilder) BuildProject(v matrix.Variant, p config.ProjectContainer) (builder.Outcome, error) {
	return builder.Outcome{}, nil
}
func (b *fakeBuilder) OutputPath(name string, category byte) string { return name + ".sif" }
func (b *fakeBuilder) LookupDef(defName string) (string, error)     { return defName + ".def", nil }
func (b *fakeBuilder) Force(names []string)                         { b.forced = append(b.forced, names) }

func testShell(t *testing.T) (*Shell, *fakeOrchestrator, *fakeBuilder, string) {
	dir, err := ioutil.TempDir("", "shell-test")
	if err != nil {
		t.Fatal(err)
	}
	buildCache, err := cache.NewCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Containers.Basic = map[string]config.BasicContainer{
		"layer1": {
			OS:  config.OS{Distro: "ubuntu", Version: "24.04"},
			MPI: config.MPI{Implementation: "openmpi", Version: "5.0.3"},
			Framework: config.FrameworkList{
				{Definition: "pytorch", Version: "2.3"},
			},
		},
	}
	cfg.Containers.Projects = map[string]config.ProjectContainer{
		"simulator": {BaseContainer: "layer1", Definition: "simulator"},
	}

	orch := &fakeOrchestrator{}
	bldr := &fakeBuilder{}
	return NewShell(cfg, orch, bldr, buildCache), orch, bldr, dir
}

func TestRunLineBuild(t *testing.T) {
	s, orch, _, dir := testShell(t)
	defer os.RemoveAll(dir)

	out, err := s.RunLine("build layer1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(orch.runTargets, [][]string{{"layer1"}}); diff != nil {
		t.Error(diff)
	}
	if !strings.Contains(out, "COMPLETE") || !strings.Contains(out, "cache_hit") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestRunLineBuildForce(t *testing.T) {
	s, _, bldr, dir := testShell(t)
	defer os.RemoveAll(dir)

	if _, err := s.RunLine("build layer1 force=true"); err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(bldr.forced, [][]string{{"layer1"}}); diff != nil {
		t.Error(diff)
	}
}

func TestRunLinePipePlanIntoBuild(t *testing.T) {
	s, orch, _, dir := testShell(t)
	defer os.RemoveAll(dir)

	if _, err := s.RunLine("plan | build"); err != nil {
		t.Fatal(err)
	}
	// The plan's container names become build targets.
	if diff := deep.Equal(orch.runTargets, [][]string{{"base", "layer1"}}); diff != nil {
		t.Error(diff)
	}
}

func TestRunLineCache(t *testing.T) {
	s, _, _, dir := testShell(t)
	defer os.RemoveAll(dir)

	s.cache.Update("layer1", "hash", "layer1.def", nil, "layer1.sif", "")

	out, err := s.RunLine("cache")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "1 entries") || !strings.Contains(out, "layer1") {
		t.Errorf("unexpected output: %q", out)
	}

	if _, err := s.RunLine("cache drop layer1"); err != nil {
		t.Fatal(err)
	}
	if out, _ = s.RunLine("cache"); !strings.Contains(out, "0 entries") {
		t.Errorf("unexpected output after drop: %q", out)
	}
}

func TestRunLineFrameworks(t *testing.T) {
	s, _, _, dir := testShell(t)
	defer os.RemoveAll(dir)

	out, err := s.RunLine("frameworks")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "layer1 (base ubuntu-24.04-openmpi-5.0.3)") {
		t.Errorf("unexpected output: %q", out)
	}
	if !strings.Contains(out, "pytorch 2.3") {
		t.Errorf("no framework line in output: %q", out)
	}
	if !strings.Contains(out, "simulator (project on layer1)") {
		t.Errorf("no project line in output: %q", out)
	}
}

func TestRunLineUnknownCommand(t *testing.T) {
	s, _, _, dir := testShell(t)
	defer os.RemoveAll(dir)

	if _, err := s.RunLine("frobnicate"); err == nil {
		t.Error("got nil error for unknown command, expected one")
	}
}

func TestRunExitAndErrors(t *testing.T) {
	s, _, _, dir := testShell(t)
	defer os.RemoveAll(dir)

	in := strings.NewReader("bogus\nstatus\nexit\n")
	var out bytes.Buffer
	if err := s.Run(in, &out); err != nil {
		t.Fatal(err)
	}
	text := out.String()
	// The bad command printed an error and the loop kept going.
	if !strings.Contains(text, "error:") || !strings.Contains(text, "COMPLETE") {
		t.Errorf("unexpected output: %q", text)
	}
	if !strings.Contains(text, "bye") {
		t.Errorf("no goodbye in output: %q", text)
	}
}
