// Copyright 2026, Square, Inc.

// Package config handles the declarative build configuration file.
package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
)

///////////////////////////////////////////////////////////////////////////////
// High-Level Config Structs
///////////////////////////////////////////////////////////////////////////////

// Config is the top-level build configuration. A default Config is created
// by Default() and overlaid by Load(). One Config is constructed by the CLI
// and passed by reference into the orchestrator, builder, and cache; there is
// no process-wide config instance.
type Config struct {
	// The containers to build: basic (base + framework layers) and projects.
	Containers Containers `yaml:"containers"`

	// Registry pull behavior: try pulling a prebuilt image before building.
	Pull Pull `yaml:"pull"`

	// Content-hash build cache settings.
	Cache Cache `yaml:"cache"`

	// Build execution settings: output dir, worker count, subprocess timeout.
	Build Build `yaml:"build"`

	// Optional run history persistence (MySQL). Disabled when DSN is empty.
	History History `yaml:"history"`

	// Optional status API. Disabled when ListenAddress is empty.
	API API `yaml:"api"`
}

// Containers holds every container definition from the config file.
type Containers struct {
	// Optional directory of external .def files. External definitions
	// override built-in ones with the same name.
	ExtraDefs string `yaml:"extra_defs"`

	// Basic containers: an OS + MPI base with framework layers on top.
	Basic map[string]BasicContainer `yaml:"basic"`

	// Project containers built on top of a basic container.
	Projects map[string]ProjectContainer `yaml:"projects"`
}

// BasicContainer is one base-plus-frameworks stack.
type BasicContainer struct {
	OS        OS            `yaml:"os"`
	MPI       MPI           `yaml:"mpi"`
	Framework FrameworkList `yaml:"framework"`
}

// BaseContainerName derives the name of the OS + MPI base image this basic
// container stacks on. Distinct basic containers that share OS and MPI share
// one base image.
func (b BasicContainer) BaseContainerName() string {
	distro := strings.Replace(NormalizeDistro(b.OS.Distro), "/", "-", -1)
	return fmt.Sprintf("%s-%s-%s-%s", distro, b.OS.Version, b.MPI.Implementation, b.MPI.Version)
}

// ProjectContainer is one project image definition. BuildArgs values are
// lists; the build matrix expands their cartesian product into one container
// variant per combination.
type ProjectContainer struct {
	BaseContainer string              `yaml:"base_container"`
	Definition    string              `yaml:"definition"`
	BuildArgs     map[string][]string `yaml:"build_args"`

	// EnvSecrets maps a name used inside the build to the host environment
	// variable holding its value. Secrets are passed via a temp file bound
	// into the build, never via build args (which land in the cache hash).
	EnvSecrets map[string]string `yaml:"env_secrets"`
}

///////////////////////////////////////////////////////////////////////////////
// Config Components
///////////////////////////////////////////////////////////////////////////////

// OS is the operating system of a base image.
type OS struct {
	// Distro name. Underscores are normalized to slashes so config keys
	// stay filesystem-safe ("spack_ubuntu" -> "spack/ubuntu").
	Distro string `yaml:"distro"`

	Version Version `yaml:"version"`
}

// MPI is the MPI implementation of a base image.
type MPI struct {
	Implementation string  `yaml:"implementation"`
	Version        Version `yaml:"version"`
}

// Framework is one framework layer.
type Framework struct {
	// Definition file name (without .def) resolved against the external
	// and built-in definition directories.
	Definition string `yaml:"definition"`

	Version Version `yaml:"version"`

	// Git ref to build the framework from. "default" means the ref pinned
	// in the definition file.
	GitRef string `yaml:"git_ref"`
}

// Pull is the registry pull configuration.
type Pull struct {
	Enabled  bool   `yaml:"enabled"`
	Protocol string `yaml:"protocol"` // oras, docker, library
	Scope    string `yaml:"scope"`    // e.g. ghcr.io/example
}

// Cache is the build cache configuration.
type Cache struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Build is the build execution configuration.
type Build struct {
	// Directory for output images. Base and layer images go to
	// <dir>/basic, project images to <dir>/projects.
	ContainersDir string `yaml:"containers_dir"`

	// Worker pool size per parallel group. 0 means max(1, NumCPU-1).
	MaxWorkers int `yaml:"max_workers"`

	// Timeout in seconds for one external build subprocess.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// History configures the optional MySQL run history store.
type History struct {
	// DSN is a go-sql-driver/mysql data source name. Empty disables
	// history persistence.
	DSN string `yaml:"dsn"`
}

// API configures the optional status API server.
type API struct {
	// The address the server will listen on (ex: "127.0.0.1:9101").
	// Empty disables the server.
	ListenAddress string `yaml:"listen_address"`
}

///////////////////////////////////////////////////////////////////////////////
// Flexible scalar types
///////////////////////////////////////////////////////////////////////////////

// Version is a string that also accepts YAML numbers, because bare versions
// like 24.04 parse as floats.
type Version string

func (v *Version) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*v = Version(fmt.Sprintf("%v", raw))
	return nil
}

// FrameworkList accepts either a single framework mapping or a list of them,
// so single-framework containers don't need list syntax.
type FrameworkList []Framework

func (l *FrameworkList) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var many []Framework
	if err := unmarshal(&many); err == nil {
		*l = many
		return nil
	}
	var one Framework
	if err := unmarshal(&one); err != nil {
		return err
	}
	*l = FrameworkList{one}
	return nil
}

///////////////////////////////////////////////////////////////////////////////
// Loading Config
///////////////////////////////////////////////////////////////////////////////

// Default returns a Config with the documented defaults applied. Load
// overlays file values on top, so absent keys keep their defaults.
func Default() Config {
	return Config{
		Pull: Pull{
			Enabled:  true,
			Protocol: "oras",
		},
		Cache: Cache{
			Enabled: true,
			Dir:     ".build-cache",
		},
		Build: Build{
			ContainersDir:  "containers",
			TimeoutSeconds: 3600,
		},
	}
}

// Load loads a configuration file into the struct pointed to by the
// configStruct argument.
func Load(configFile string, configStruct interface{}) error {
	// Make sure the file exists.
	_, err := os.Stat(configFile)
	if err != nil {
		return err
	}

	// Read the file.
	data, err := ioutil.ReadFile(configFile)
	if err != nil {
		return err
	}

	// Unmarshal the contents of the file into the provided struct.
	err = yaml.Unmarshal(data, configStruct)
	if err != nil {
		return err
	}

	return nil
}

// Validate checks the parts of the config the loader can't: pull protocol and
// per-project required fields. A project's base_container is deliberately not
// required to name a configured basic container; unknown bases are treated as
// externally managed artifacts.
func (c Config) Validate() error {
	switch c.Pull.Protocol {
	case "oras", "docker", "library":
	default:
		return fmt.Errorf("pull.protocol must be one of oras, docker, library; got %q", c.Pull.Protocol)
	}
	for name, p := range c.Containers.Projects {
		if p.Definition == "" {
			return fmt.Errorf("project %s: definition is required", name)
		}
		if p.BaseContainer == "" {
			return fmt.Errorf("project %s: base_container is required", name)
		}
	}
	for name, b := range c.Containers.Basic {
		if b.OS.Distro == "" || b.MPI.Implementation == "" {
			return fmt.Errorf("basic container %s: os.distro and mpi.implementation are required", name)
		}
		if len(b.Framework) == 0 {
			return fmt.Errorf("basic container %s: at least one framework is required", name)
		}
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////////
// Derived views
///////////////////////////////////////////////////////////////////////////////

// BaseSpec is one unique OS + MPI base image derived from the basic
// container configs.
type BaseSpec struct {
	Name string
	OS   OS
	MPI  MPI
}

// UniqueBases returns the distinct base images the basic containers need,
// sorted by name. Basic containers sharing OS and MPI map to one base.
func (c Config) UniqueBases() []BaseSpec {
	seen := map[string]BaseSpec{}
	for _, b := range c.Containers.Basic {
		name := b.BaseContainerName()
		if _, ok := seen[name]; !ok {
			seen[name] = BaseSpec{Name: name, OS: b.OS, MPI: b.MPI}
		}
	}
	specs := make([]BaseSpec, 0, len(seen))
	for _, s := range seen {
		specs = append(specs, s)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// NormalizeDistro applies the underscore-to-slash distro normalization.
func NormalizeDistro(distro string) string {
	return strings.Replace(distro, "_", "/", -1)
}
