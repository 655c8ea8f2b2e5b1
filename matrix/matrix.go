// Copyright 2026, Square, Inc.

// Package matrix expands project build-arg lists into container variants.
// A project whose build_args map lists N values for one key and M for
// another yields N*M variants, each a distinct container.
package matrix

import (
	"sort"
	"strings"
)

// Variant is one point in a project's build matrix: a concrete build-arg
// assignment and the container name it produces.
type Variant struct {
	Project string
	Args    map[string]string
}

// ContainerName derives the variant's container name: the project name plus
// each arg value, hyphen-joined in sorted key order. A project with no
// build args has a single variant named after the project alone.
func (v Variant) ContainerName() string {
	parts := []string{v.Project}
	for _, k := range sortedKeys(v.Args) {
		parts = append(parts, sanitize(v.Args[k]))
	}
	return strings.Join(parts, "-")
}

// Variants expands buildArgs into the cartesian product of its value lists.
// Keys are iterated in sorted order so variant order is deterministic. An
// empty or nil buildArgs yields one variant with no args.
func Variants(project string, buildArgs map[string][]string) []Variant {
	keys := make([]string, 0, len(buildArgs))
	for k, vals := range buildArgs {
		if len(vals) == 0 {
			continue // a key with no values constrains nothing
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	variants := []Variant{{Project: project, Args: map[string]string{}}}
	for _, k := range keys {
		next := make([]Variant, 0, len(variants)*len(buildArgs[k]))
		for _, v := range variants {
			for _, val := range buildArgs[k] {
				args := make(map[string]string, len(v.Args)+1)
				for ak, av := range v.Args {
					args[ak] = av
				}
				args[k] = val
				next = append(next, Variant{Project: project, Args: args})
			}
		}
		variants = next
	}
	return variants
}

// Size returns the number of variants buildArgs expands to, without
// materializing them.
func Size(buildArgs map[string][]string) int {
	n := 1
	for _, vals := range buildArgs {
		if len(vals) == 0 {
			continue
		}
		n *= len(vals)
	}
	return n
}

// sanitize makes an arg value usable inside a container name.
func sanitize(val string) string {
	val = strings.Replace(val, "/", "-", -1)
	val = strings.Replace(val, ":", "-", -1)
	return val
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
