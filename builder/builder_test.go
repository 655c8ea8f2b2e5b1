// Copyright 2026, Square, Inc.

package builder

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/square/hpcbuild/cache"
	"github.com/square/hpcbuild/config"
	"github.com/square/hpcbuild/matrix"
	"github.com/square/hpcbuild/proto"
	"github.com/square/hpcbuild/registry"
	"github.com/square/hpcbuild/test/mock"
	"github.com/square/hpcbuild/xcmd"
)

type testEnv struct {
	dir     string
	cfg     config.Config
	cache   *cache.Cache
	execer  *mock.Execer
	builder *builder
}

func setup(t *testing.T, pull config.Pull) *testEnv {
	dir, err := ioutil.TempDir("", "builder-test")
	if err != nil {
		t.Fatal(err)
	}

	defsDir := filepath.Join(dir, "defs")
	if err := os.MkdirAll(defsDir, 0755); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Pull = pull
	cfg.Cache.Dir = filepath.Join(dir, ".build-cache")
	cfg.Build.ContainersDir = filepath.Join(dir, "containers")
	cfg.Build.TimeoutSeconds = 60

	buildCache, err := cache.NewCache(cfg.Cache.Dir)
	if err != nil {
		t.Fatal(err)
	}

	execer := &mock.Execer{}
	reg := registry.NewRegistry(cfg.Pull, execer, time.Minute)
	b := NewBuilder(cfg, buildCache, reg, execer).(*builder)
	b.defsDir = defsDir

	return &testEnv{dir: dir, cfg: cfg, cache: buildCache, execer: execer, builder: b}
}

func (e *testEnv) cleanup() {
	os.RemoveAll(e.dir)
}

func (e *testEnv) writeDef(t *testing.T, dir, defName, content string) string {
	file := filepath.Join(dir, defName+".def")
	if err := ioutil.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return file
}

func (e *testEnv) touchOutput(t *testing.T, name string, category byte) {
	file := e.builder.OutputPath(name, category)
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(file, []byte("sif"), 0644); err != nil {
		t.Fatal(err)
	}
}

func baseSpec() config.BaseSpec {
	return config.BaseSpec{
		Name: "ubuntu-24.04-openmpi-5.0.3",
		OS:   config.OS{Distro: "ubuntu", Version: "24.04"},
		MPI:  config.MPI{Implementation: "openmpi", Version: "5.0.3"},
	}
}

func TestLookupDefExternalOverride(t *testing.T) {
	env := setup(t, config.Pull{Protocol: "oras"})
	defer env.cleanup()
	env.writeDef(t, env.builder.defsDir, "pytorch", "builtin")

	extra := filepath.Join(env.dir, "extra")
	if err := os.MkdirAll(extra, 0755); err != nil {
		t.Fatal(err)
	}
	env.writeDef(t, extra, "pytorch", "external")
	env.builder.cfg.Containers.ExtraDefs = extra

	file, err := env.builder.LookupDef("pytorch")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(file, extra) {
		t.Errorf("got %s, expected the external definition", file)
	}

	if _, err := env.builder.LookupDef("nonexistent"); err == nil {
		t.Error("got nil error for missing definition, expected one")
	}
}

func TestBuildBase(t *testing.T) {
	env := setup(t, config.Pull{Protocol: "oras"}) // pull disabled
	defer env.cleanup()
	env.writeDef(t, env.builder.defsDir, "base-openmpi", "Bootstrap: docker")

	outcome, err := env.builder.BuildBase(baseSpec())
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Success || outcome.Reason != proto.REASON_BUILD_COMPLETED {
		t.Errorf("unexpected outcome: %+v", outcome)
	}

	lines := env.execer.CallLines()
	if len(lines) != 1 {
		t.Fatalf("execer called %d times, expected 1", len(lines))
	}
	// Build args appear sorted by key.
	expect := "apptainer build --force" +
		" --build-arg DISTRO=ubuntu" +
		" --build-arg MPI_VERSION=5.0.3" +
		" --build-arg OS_VERSION=24.04 " +
		env.builder.OutputPath("ubuntu-24.04-openmpi-5.0.3", proto.CATEGORY_BASE) + " " +
		filepath.Join(env.builder.defsDir, "base-openmpi.def")
	if lines[0] != expect {
		t.Errorf("got command:\n%s\nexpected:\n%s", lines[0], expect)
	}

	// A successful build lands in the cache.
	entry, ok := env.cache.Entry("ubuntu-24.04-openmpi-5.0.3")
	if !ok {
		t.Fatal("no cache entry after successful build")
	}
	if entry.ContentHash != outcome.Hash {
		t.Errorf("cache hash %s != outcome hash %s", entry.ContentHash, outcome.Hash)
	}
}

func TestBuildBaseCacheHit(t *testing.T) {
	env := setup(t, config.Pull{Protocol: "oras"})
	defer env.cleanup()
	env.writeDef(t, env.builder.defsDir, "base-openmpi", "Bootstrap: docker")

	spec := baseSpec()
	if _, err := env.builder.BuildBase(spec); err != nil {
		t.Fatal(err)
	}
	// The mock build produces no file; create the output like a real one.
	env.touchOutput(t, spec.Name, proto.CATEGORY_BASE)

	outcome, err := env.builder.BuildBase(spec)
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Success || outcome.Reason != proto.REASON_CACHE_HIT {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
	if len(env.execer.Calls) != 1 {
		t.Errorf("execer called %d times, expected 1 (no second build)", len(env.execer.Calls))
	}
}

func TestBuildBaseContentChanged(t *testing.T) {
	env := setup(t, config.Pull{Protocol: "oras"})
	defer env.cleanup()
	defFile := env.writeDef(t, env.builder.defsDir, "base-openmpi", "Bootstrap: docker")

	spec := baseSpec()
	if _, err := env.builder.BuildBase(spec); err != nil {
		t.Fatal(err)
	}
	env.touchOutput(t, spec.Name, proto.CATEGORY_BASE)

	// Changing the definition file invalidates the fingerprint even though
	// the output exists.
	if err := ioutil.WriteFile(defFile, []byte("Bootstrap: docker\n# v2"), 0644); err != nil {
		t.Fatal(err)
	}
	outcome, err := env.builder.BuildBase(spec)
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Success || outcome.Reason != proto.REASON_BUILD_COMPLETED {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
	if len(env.execer.Calls) != 2 {
		t.Errorf("execer called %d times, expected 2", len(env.execer.Calls))
	}
}

func TestForceRebuild(t *testing.T) {
	env := setup(t, config.Pull{Protocol: "oras"})
	defer env.cleanup()
	env.writeDef(t, env.builder.defsDir, "base-openmpi", "Bootstrap: docker")

	spec := baseSpec()
	if _, err := env.builder.BuildBase(spec); err != nil {
		t.Fatal(err)
	}
	env.touchOutput(t, spec.Name, proto.CATEGORY_BASE)

	env.builder.Force([]string{spec.Name})
	outcome, err := env.builder.BuildBase(spec)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Reason != proto.REASON_BUILD_COMPLETED {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
	if len(env.execer.Calls) != 2 {
		t.Errorf("execer called %d times, expected 2", len(env.execer.Calls))
	}
}

func TestBuildFailure(t *testing.T) {
	env := setup(t, config.Pull{Protocol: "oras"})
	defer env.cleanup()
	env.writeDef(t, env.builder.defsDir, "base-openmpi", "Bootstrap: docker")
	env.execer.DefaultResult = xcmd.Result{Exit: 1}

	outcome, err := env.builder.BuildBase(baseSpec())
	if err == nil {
		t.Fatal("got nil error, expected one")
	}
	if outcome.Success || outcome.Reason != proto.REASON_BUILD_FAILED {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
	// A failed build leaves no cache entry.
	if _, ok := env.cache.Entry(baseSpec().Name); ok {
		t.Error("cache entry exists after failed build")
	}
}

func TestPullOnMissingOutput(t *testing.T) {
	env := setup(t, config.Pull{Enabled: true, Protocol: "oras", Scope: "ghcr.io/example"})
	defer env.cleanup()
	env.writeDef(t, env.builder.defsDir, "base-openmpi", "Bootstrap: docker")

	outcome, err := env.builder.BuildBase(baseSpec())
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Success || outcome.Reason != proto.PULL_PULLED {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
	lines := env.execer.CallLines()
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "apptainer pull") {
		t.Errorf("unexpected commands: %v", lines)
	}
	// A pull records a cache entry just like a local build.
	if _, ok := env.cache.Entry(baseSpec().Name); !ok {
		t.Error("no cache entry after pull")
	}
}

func TestBuildLayers(t *testing.T) {
	env := setup(t, config.Pull{Protocol: "oras"})
	defer env.cleanup()
	env.writeDef(t, env.builder.defsDir, "pytorch", "layer def")
	env.writeDef(t, env.builder.defsDir, "horovod", "layer def")

	bc := config.BasicContainer{
		OS:  config.OS{Distro: "ubuntu", Version: "24.04"},
		MPI: config.MPI{Implementation: "openmpi", Version: "5.0.3"},
		Framework: config.FrameworkList{
			{Definition: "pytorch", Version: "2.3"},
			{Definition: "horovod", Version: "0.28"},
		},
	}

	outcome, err := env.builder.BuildLayers("ml-stack", bc)
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Success || outcome.Name != "ml-stack" {
		t.Errorf("unexpected outcome: %+v", outcome)
	}

	lines := env.execer.CallLines()
	if len(lines) != 2 {
		t.Fatalf("execer called %d times, expected 2", len(lines))
	}
	// First layer builds the intermediate on top of the base image.
	basePath := env.builder.OutputPath("ubuntu-24.04-openmpi-5.0.3", proto.CATEGORY_BASE)
	layer1Path := env.builder.OutputPath("ml-stack-layer1", proto.CATEGORY_LAYER)
	if !strings.Contains(lines[0], "BASE_IMAGE="+basePath) || !strings.Contains(lines[0], layer1Path) {
		t.Errorf("unexpected layer 1 command: %s", lines[0])
	}
	// Second layer stacks on the intermediate and produces the final name.
	finalPath := env.builder.OutputPath("ml-stack", proto.CATEGORY_LAYER)
	if !strings.Contains(lines[1], "BASE_IMAGE="+layer1Path) || !strings.Contains(lines[1], finalPath) {
		t.Errorf("unexpected layer 2 command: %s", lines[1])
	}

	// Both layers have cache entries; the final one chains the
	// intermediate's hash.
	layer1, ok := env.cache.Entry("ml-stack-layer1")
	if !ok {
		t.Fatal("no cache entry for intermediate layer")
	}
	final, ok := env.cache.Entry("ml-stack")
	if !ok {
		t.Fatal("no cache entry for final layer")
	}
	if final.BaseContainerHash != layer1.ContentHash {
		t.Error("final layer does not chain the intermediate layer's hash")
	}
}

func TestBuildProject(t *testing.T) {
	env := setup(t, config.Pull{Protocol: "oras"})
	defer env.cleanup()
	env.writeDef(t, env.builder.defsDir, "simulator", "project def")

	os.Setenv("TEST_BUILD_TOKEN", "hunter2")
	defer os.Unsetenv("TEST_BUILD_TOKEN")

	project := config.ProjectContainer{
		BaseContainer: "ml-stack",
		Definition:    "simulator",
		EnvSecrets:    map[string]string{"API_TOKEN": "TEST_BUILD_TOKEN"},
	}
	variant := matrix.Variant{Project: "simulator", Args: map[string]string{"PYTHON_VERSION": "3.11"}}

	outcome, err := env.builder.BuildProject(variant, project)
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Success {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	lines := env.execer.CallLines()
	if len(lines) != 1 {
		t.Fatalf("execer called %d times, expected 1", len(lines))
	}
	line := lines[0]
	if !strings.Contains(line, "--build-arg PYTHON_VERSION=3.11") {
		t.Errorf("variant arg missing from command: %s", line)
	}
	if !strings.Contains(line, "--bind") {
		t.Errorf("secrets bind missing from command: %s", line)
	}
	// Secret values stay out of the command line and the cache record.
	if strings.Contains(line, "hunter2") {
		t.Errorf("secret value leaked into command: %s", line)
	}
	entry, _ := env.cache.Entry("simulator-3.11")
	if _, ok := entry.BuildArgs["API_TOKEN"]; ok {
		t.Error("secret key leaked into cache build args")
	}
	// Output lands under projects/, not basic/.
	if !strings.Contains(line, filepath.Join("containers", "projects", "simulator-3.11.sif")) {
		t.Errorf("unexpected output path in command: %s", line)
	}
}

func TestCacheDisabled(t *testing.T) {
	env := setup(t, config.Pull{Protocol: "oras"})
	defer env.cleanup()
	env.builder.cfg.Cache.Enabled = false
	env.writeDef(t, env.builder.defsDir, "base-openmpi", "Bootstrap: docker")

	spec := baseSpec()
	if _, err := env.builder.BuildBase(spec); err != nil {
		t.Fatal(err)
	}
	env.touchOutput(t, spec.Name, proto.CATEGORY_BASE)

	// With the cache off every call builds, and nothing is recorded.
	if _, err := env.builder.BuildBase(spec); err != nil {
		t.Fatal(err)
	}
	if len(env.execer.Calls) != 2 {
		t.Errorf("execer called %d times, expected 2", len(env.execer.Calls))
	}
	if _, ok := env.cache.Entry(spec.Name); ok {
		t.Error("cache entry exists with cache disabled")
	}
}
