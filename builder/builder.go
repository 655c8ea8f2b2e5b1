// Copyright 2026, Square, Inc.

// Package builder builds container images with apptainer. For each image it
// consults the content cache, tries a registry pull when only the output file
// is missing, and falls back to a local build; successful builds are recorded
// back into the cache.
package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/square/hpcbuild/cache"
	"github.com/square/hpcbuild/config"
	"github.com/square/hpcbuild/matrix"
	"github.com/square/hpcbuild/proto"
	"github.com/square/hpcbuild/registry"
	"github.com/square/hpcbuild/xcmd"
)

// DEFAULT_DEFS_DIR is the built-in definition file directory, resolved
// relative to the working directory. config.Containers.ExtraDefs overrides
// it per definition name.
const DEFAULT_DEFS_DIR = "defs"

// Outcome is what one build attempt produced. Success with REASON_CACHE_HIT
// or PULL_PULLED means no local build ran.
type Outcome struct {
	Name    string
	Success bool
	Reason  string
	Hash    string // content hash of the inputs
}

// A Builder builds the three container categories. Methods are safe for
// concurrent use on distinct container names; the runner never schedules the
// same name twice in one run.
type Builder interface {
	// BuildBase builds one OS + MPI base image.
	BuildBase(spec config.BaseSpec) (Outcome, error)

	// BuildLayers stacks the basic container's framework layers on its base
	// image. With N frameworks the first N-1 produce intermediate images
	// named <name>-layer<i>; the last produces <name> itself.
	BuildLayers(name string, bc config.BasicContainer) (Outcome, error)

	// BuildProject builds one project variant on top of its basic container.
	BuildProject(variant matrix.Variant, project config.ProjectContainer) (Outcome, error)

	// OutputPath returns where the image file for a container lives.
	OutputPath(name string, category byte) string

	// LookupDef resolves a definition name to a .def file path, external
	// definitions first.
	LookupDef(defName string) (string, error)

	// Force marks containers for unconditional rebuild, bypassing the cache
	// and the registry. An empty list forces every container.
	Force(names []string)
}

type builder struct {
	cfg      config.Config
	cache    *cache.Cache
	registry registry.Registry
	execer   xcmd.Execer
	defsDir  string
	forceAll bool
	forced   map[string]bool
}

func NewBuilder(cfg config.Config, buildCache *cache.Cache, reg registry.Registry, execer xcmd.Execer) Builder {
	return &builder{
		cfg:      cfg,
		cache:    buildCache,
		registry: reg,
		execer:   execer,
		defsDir:  DEFAULT_DEFS_DIR,
		forced:   map[string]bool{},
	}
}

func (b *builder) Force(names []string) {
	if len(names) == 0 {
		b.forceAll = true
		return
	}
	for _, name := range names {
		b.forced[name] = true
	}
}

func (b *builder) BuildBase(spec config.BaseSpec) (Outcome, error) {
	defFile, err := b.LookupDef("base-" + spec.MPI.Implementation)
	if err != nil {
		return Outcome{Name: spec.Name, Reason: proto.REASON_BUILD_FAILED}, err
	}
	buildArgs := map[string]string{
		"DISTRO":      config.NormalizeDistro(spec.OS.Distro),
		"OS_VERSION":  string(spec.OS.Version),
		"MPI_VERSION": string(spec.MPI.Version),
	}
	return b.buildOne(spec.Name, proto.CATEGORY_BASE, defFile, buildArgs, "", nil)
}

func (b *builder) BuildLayers(name string, bc config.BasicContainer) (Outcome, error) {
	baseName := bc.BaseContainerName()
	prevImage := b.OutputPath(baseName, proto.CATEGORY_BASE)
	prevHash := ""
	if entry, ok := b.cache.Entry(baseName); ok {
		prevHash = entry.ContentHash
	}

	var outcome Outcome
	for i, fw := range bc.Framework {
		layerName := fmt.Sprintf("%s-layer%d", name, i+1)
		if i == len(bc.Framework)-1 {
			layerName = name
		}

		defFile, err := b.LookupDef(fw.Definition)
		if err != nil {
			return Outcome{Name: name, Reason: proto.REASON_BUILD_FAILED}, err
		}
		buildArgs := map[string]string{
			"BASE_IMAGE":        prevImage,
			"FRAMEWORK_VERSION": string(fw.Version),
		}
		if fw.GitRef != "" && fw.GitRef != "default" {
			buildArgs["GIT_REF"] = fw.GitRef
		}

		outcome, err = b.buildOne(layerName, proto.CATEGORY_LAYER, defFile, buildArgs, prevHash, nil)
		if err != nil || !outcome.Success {
			outcome.Name = name // report against the container, not the layer
			return outcome, err
		}

		prevImage = b.OutputPath(layerName, proto.CATEGORY_LAYER)
		prevHash = outcome.Hash
	}
	return outcome, nil
}

func (b *builder) BuildProject(variant matrix.Variant, project config.ProjectContainer) (Outcome, error) {
	name := variant.ContainerName()

	defFile, err := b.LookupDef(project.Definition)
	if err != nil {
		return Outcome{Name: name, Reason: proto.REASON_BUILD_FAILED}, err
	}

	baseImage := b.OutputPath(project.BaseContainer, proto.CATEGORY_LAYER)
	baseHash := ""
	if entry, ok := b.cache.Entry(project.BaseContainer); ok {
		baseHash = entry.ContentHash
	}

	buildArgs := map[string]string{"BASE_IMAGE": baseImage}
	for k, v := range variant.Args {
		buildArgs[k] = v
	}

	return b.buildOne(name, proto.CATEGORY_PROJECT, defFile, buildArgs, baseHash, project.EnvSecrets)
}

func (b *builder) OutputPath(name string, category byte) string {
	sub := "basic"
	if category == proto.CATEGORY_PROJECT {
		sub = "projects"
	}
	return filepath.Join(b.cfg.Build.ContainersDir, sub, name+".sif")
}

func (b *builder) LookupDef(defName string) (string, error) {
	dirs := []string{}
	if b.cfg.Containers.ExtraDefs != "" {
		dirs = append(dirs, b.cfg.Containers.ExtraDefs)
	}
	dirs = append(dirs, b.defsDir)

	for _, dir := range dirs {
		file := filepath.Join(dir, defName+".def")
		if _, err := os.Stat(file); err == nil {
			return file, nil
		}
	}
	return "", fmt.Errorf("no definition file for %s in %v", defName, dirs)
}

// --------------------------------------------------------------------------

// buildOne runs the full decision chain for one image: cache check, registry
// pull, local build, cache update. envSecrets, if any, are delivered through
// a bound file rather than build args so secret values never enter the
// content hash or the cache records.
func (b *builder) buildOne(name string, category byte, defFile string, buildArgs map[string]string, baseHash string, envSecrets map[string]string) (Outcome, error) {
	outputFile := b.OutputPath(name, category)
	hash := cache.ComputeContentHash(defFile, buildArgs, baseHash)
	outcome := Outcome{Name: name, Hash: hash}

	forced := b.forceAll || b.forced[name]
	if !forced && b.cfg.Cache.Enabled {
		needs, reason := b.cache.NeedsRebuild(name, hash, outputFile)
		if !needs {
			log.Infof("%s: cache hit, skipping build", name)
			outcome.Success = true
			outcome.Reason = proto.REASON_CACHE_HIT
			return outcome, nil
		}
		log.Infof("%s: rebuild needed (%s)", name, reason)

		// Only an absent output is worth a pull; any other rebuild reason
		// means the remote copy is stale for our inputs too.
		if reason == proto.REASON_OUTPUT_MISSING {
			if pull := b.registry.TryPull(name, outputFile); pull.Hit && pull.Reason == proto.PULL_PULLED {
				if err := b.cache.Update(name, hash, defFile, buildArgs, outputFile, baseHash); err != nil {
					return outcome, err
				}
				outcome.Success = true
				outcome.Reason = proto.PULL_PULLED
				return outcome, nil
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		outcome.Reason = proto.REASON_BUILD_FAILED
		return outcome, err
	}

	args := []string{"build", "--force"}
	for _, k := range sortedKeys(buildArgs) {
		args = append(args, "--build-arg", k+"="+buildArgs[k])
	}

	if len(envSecrets) > 0 {
		secretsFile, err := b.writeSecretsFile(name, envSecrets)
		if err != nil {
			outcome.Reason = proto.REASON_BUILD_FAILED
			return outcome, err
		}
		defer os.Remove(secretsFile)
		args = append(args, "--bind", secretsFile+":"+secretsFile)
	}

	args = append(args, outputFile, defFile)

	logDir := filepath.Join(b.cfg.Build.ContainersDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		outcome.Reason = proto.REASON_BUILD_FAILED
		return outcome, err
	}

	log.Infof("%s: building from %s", name, defFile)
	result := b.execer.Run(xcmd.Cmd{
		Name:    "apptainer",
		Args:    args,
		Timeout: time.Duration(b.cfg.Build.TimeoutSeconds) * time.Second,
		LogFile: filepath.Join(logDir, name+".log"),
	})

	if !result.Ok() {
		outcome.Reason = proto.REASON_BUILD_FAILED
		if result.Err != nil {
			return outcome, result.Err
		}
		if result.TimedOut {
			return outcome, fmt.Errorf("build of %s timed out after %ds", name, b.cfg.Build.TimeoutSeconds)
		}
		return outcome, fmt.Errorf("build of %s exited %d", name, result.Exit)
	}

	if b.cfg.Cache.Enabled {
		if err := b.cache.Update(name, hash, defFile, buildArgs, outputFile, baseHash); err != nil {
			return outcome, err
		}
	}
	outcome.Success = true
	outcome.Reason = proto.REASON_BUILD_COMPLETED
	return outcome, nil
}

// writeSecretsFile materializes env secrets as an export script the build
// can source. Values come from the host environment at build time.
func (b *builder) writeSecretsFile(name string, envSecrets map[string]string) (string, error) {
	file := filepath.Join(os.TempDir(), fmt.Sprintf("hpcbuild_build_env_%s.sh", name))
	f, err := os.OpenFile(file, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", err
	}
	defer f.Close()

	for _, k := range sortedKeys(envSecrets) {
		hostVar := envSecrets[k]
		val := os.Getenv(hostVar)
		if val == "" {
			log.Warnf("%s: secret env var %s is empty", name, hostVar)
		}
		if _, err := fmt.Fprintf(f, "export %s='%s'\n", k, val); err != nil {
			return "", err
		}
	}
	return file, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
