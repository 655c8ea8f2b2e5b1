// Copyright 2026, Square, Inc.

// Package cache implements the content-hash build cache. It answers one
// question, "does this container need rebuilding", by comparing a
// deterministic fingerprint of the build inputs against the fingerprint
// recorded for the last known-good build.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/orcaman/concurrent-map"
	log "github.com/sirupsen/logrus"

	"github.com/square/hpcbuild/proto"
)

// Cache persists one proto.CacheEntry per container name as
// <dir>/<name>.json, with an in-memory index in front of the record files.
// Concurrent tasks never target the same name (one task owns one output), so
// per-entry writes only need replace-on-write, not locking.
type Cache struct {
	dir     string
	entries cmap.ConcurrentMap // container name -> proto.CacheEntry
}

// NewCache opens (or creates) the cache directory and loads all existing
// entry records. A record that fails to parse is logged and skipped, not
// fatal: losing a cache entry only costs a rebuild.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create cache dir %s: %s", dir, err)
	}
	c := &Cache{
		dir:     dir,
		entries: cmap.New(),
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		data, err := ioutil.ReadFile(file)
		if err != nil {
			log.Warnf("failed to load cache file %s: %s", file, err)
			continue
		}
		var entry proto.CacheEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			log.Warnf("failed to load cache file %s: %s", file, err)
			continue
		}
		c.entries.Set(entry.ContainerName, entry)
	}

	return c, nil
}

// ComputeContentHash computes the build fingerprint: sha256 over the
// definition file bytes, the sorted-by-key serialization of the build args,
// and the base image fingerprint (empty for unlayered builds). Sorting the
// args is what makes the hash invariant under map iteration order.
//
// A missing definition file is logged and the hash is computed over the
// remaining inputs; the missing file surfaces to the caller separately when
// the build itself runs.
func ComputeContentHash(definitionFile string, buildArgs map[string]string, baseHash string) string {
	h := sha256.New()

	data, err := ioutil.ReadFile(definitionFile)
	if err != nil {
		log.Warnf("definition file not found: %s", definitionFile)
	} else {
		h.Write(data)
	}

	keys := make([]string, 0, len(buildArgs))
	for k := range buildArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([][2]string, len(keys))
	for i, k := range keys {
		pairs[i] = [2]string{k, buildArgs[k]}
	}
	argsJSON, _ := json.Marshal(pairs)
	h.Write(argsJSON)

	if baseHash != "" {
		h.Write([]byte(baseHash))
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Entry returns the cache entry for a container, if one exists.
func (c *Cache) Entry(containerName string) (proto.CacheEntry, bool) {
	v, ok := c.entries.Get(containerName)
	if !ok {
		return proto.CacheEntry{}, false
	}
	return v.(proto.CacheEntry), true
}

// NeedsRebuild decides whether a container must be rebuilt. The check order
// matters: output existence comes before cache lookup, so a manually deleted
// output always rebuilds no matter what the cache says.
func (c *Cache) NeedsRebuild(containerName, currentHash, outputFile string) (bool, string) {
	if _, err := os.Stat(outputFile); err != nil {
		return true, proto.REASON_OUTPUT_MISSING
	}

	entry, ok := c.Entry(containerName)
	if !ok {
		return true, proto.REASON_NO_CACHE
	}

	if entry.ContentHash != currentHash {
		return true, proto.REASON_CONTENT_CHANGED
	}

	return false, proto.REASON_CACHE_HIT
}

// Update records a successful build. Callers must only call this after the
// build reports success; a failed build leaves the prior entry untouched so
// a retry is judged against the last known-good fingerprint.
func (c *Cache) Update(containerName, contentHash, definitionFile string, buildArgs map[string]string, outputFile, baseHash string) error {
	entry := proto.CacheEntry{
		ContainerName:     containerName,
		ContentHash:       contentHash,
		BuiltAt:           time.Now().Format(time.RFC3339),
		DefinitionFile:    definitionFile,
		BuildArgs:         buildArgs,
		OutputFile:        outputFile,
		BaseContainerHash: baseHash,
	}
	c.entries.Set(containerName, entry)

	if err := c.saveEntry(entry); err != nil {
		log.Warnf("failed to save cache entry for %s: %s", containerName, err)
		return err
	}
	log.Debugf("updated cache for %s", containerName)
	return nil
}

// Invalidate removes the entry for one container.
func (c *Cache) Invalidate(containerName string) error {
	c.entries.Remove(containerName)
	file := c.entryFile(containerName)
	if _, err := os.Stat(file); err == nil {
		if err := os.Remove(file); err != nil {
			return err
		}
		log.Debugf("invalidated cache for %s", containerName)
	}
	return nil
}

// InvalidateAll removes every entry.
func (c *Cache) InvalidateAll() error {
	for _, name := range c.entries.Keys() {
		c.entries.Remove(name)
	}
	files, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return err
	}
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			return err
		}
	}
	log.Info("invalidated all cache entries")
	return nil
}

// Stats describes the cache for display.
type Stats struct {
	TotalEntries int      `json:"totalEntries"`
	Dir          string   `json:"dir"`
	Names        []string `json:"names"`
}

// Statistics returns a summary of the cache contents.
func (c *Cache) Statistics() Stats {
	names := c.entries.Keys()
	sort.Strings(names)
	return Stats{
		TotalEntries: len(names),
		Dir:          c.dir,
		Names:        names,
	}
}

// --------------------------------------------------------------------------

func (c *Cache) entryFile(containerName string) string {
	// Container names are config keys plus version strings; they never
	// contain path separators, but don't let a bad one escape the dir.
	safe := strings.Replace(containerName, string(os.PathSeparator), "-", -1)
	return filepath.Join(c.dir, safe+".json")
}

// saveEntry writes the record to a temp file and renames it into place so a
// reader never sees a half-written record.
func (c *Cache) saveEntry(entry proto.CacheEntry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := ioutil.TempFile(c.dir, entry.ContainerName+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), c.entryFile(entry.ContainerName))
}
