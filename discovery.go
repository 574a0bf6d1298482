// discovery.go: module metadata sources and filesystem manifest discovery
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Candidate is one module as reported by a Source: its parsed metadata
// map and the code location the ContextLoader opens.
type Candidate struct {
	Metadata     map[string]any
	Location     string
	ManifestPath string
}

// Source produces the candidates of one load pass.
type Source interface {
	Candidates(ctx context.Context) ([]Candidate, error)
}

// Refresher is implemented by sources able to re-read a single
// candidate. Reload uses it to pick up manifest edits.
type Refresher interface {
	Refresh(ctx context.Context, c Candidate) (Candidate, error)
}

// StaticSource serves a fixed candidate list. Useful for compiled-in
// modules and tests.
type StaticSource struct {
	mu         sync.RWMutex
	candidates []Candidate
}

// NewStaticSource creates a source serving candidates in order.
func NewStaticSource(candidates ...Candidate) *StaticSource {
	return &StaticSource{candidates: candidates}
}

// Add appends candidates.
func (s *StaticSource) Add(candidates ...Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = append(s.candidates, candidates...)
}

// Replace swaps the candidate with the same location, or appends it.
func (s *StaticSource) Replace(c Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.candidates {
		if s.candidates[i].Location == c.Location {
			s.candidates[i] = c
			return
		}
	}
	s.candidates = append(s.candidates, c)
}

func (s *StaticSource) Candidates(ctx context.Context) ([]Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Candidate, len(s.candidates))
	for i, c := range s.candidates {
		out[i] = Candidate{Metadata: copyMap(c.Metadata), Location: c.Location, ManifestPath: c.ManifestPath}
	}
	return out, nil
}

func (s *StaticSource) Refresh(ctx context.Context, c Candidate) (Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, existing := range s.candidates {
		if existing.Location == c.Location {
			return Candidate{Metadata: copyMap(existing.Metadata), Location: existing.Location, ManifestPath: existing.ManifestPath}, nil
		}
	}
	return Candidate{}, NewDiscoveryError(fmt.Sprintf("no candidate at %s", c.Location), nil)
}

// DefaultManifestPatterns match a manifest file one directory below a root.
var DefaultManifestPatterns = []string{"*/module.{yml,yaml,json,toml}"}

// DirectorySourceConfig configures filesystem discovery.
type DirectorySourceConfig struct {
	// Roots are the directories scanned, in order.
	Roots []string `json:"roots" yaml:"roots"`

	// Patterns are doublestar globs matched against the manifest path
	// relative to its root, slash separated.
	Patterns []string `json:"patterns" yaml:"patterns"`

	// Exclude are doublestar globs; a matching directory is not entered.
	Exclude []string `json:"exclude" yaml:"exclude"`

	// MaxDepth bounds recursion below each root. Zero means 4.
	MaxDepth int `json:"max_depth" yaml:"max_depth"`
}

// DirectorySource discovers modules from manifests on disk. The module's
// code location is the directory holding its manifest.
type DirectorySource struct {
	config DirectorySourceConfig
	logger Logger
}

// NewDirectorySource validates patterns and creates the source.
func NewDirectorySource(config DirectorySourceConfig, logger any) (*DirectorySource, error) {
	if len(config.Patterns) == 0 {
		config.Patterns = DefaultManifestPatterns
	}
	if config.MaxDepth <= 0 {
		config.MaxDepth = 4
	}
	for _, p := range append(append([]string{}, config.Patterns...), config.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, NewDiscoveryError(fmt.Sprintf("invalid pattern %q", p), nil)
		}
	}
	return &DirectorySource{config: config, logger: NewLogger(logger)}, nil
}

func (d *DirectorySource) Candidates(ctx context.Context) ([]Candidate, error) {
	var out []Candidate
	for _, root := range d.config.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, NewDiscoveryError(fmt.Sprintf("failed to resolve %s", root), err)
		}
		if err := d.scanDirectory(ctx, abs, abs, 0, &out); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			d.logger.Error("Failed to scan module directory", "path", abs, "error", err)
		}
	}
	return out, nil
}

func (d *DirectorySource) Refresh(ctx context.Context, c Candidate) (Candidate, error) {
	if c.ManifestPath == "" {
		return Candidate{}, NewDiscoveryError(fmt.Sprintf("no manifest known for %s", c.Location), nil)
	}
	metadata, err := ParseManifestFile(c.ManifestPath)
	if err != nil {
		return Candidate{}, err
	}
	return Candidate{Metadata: metadata, Location: c.Location, ManifestPath: c.ManifestPath}, nil
}

func (d *DirectorySource) scanDirectory(ctx context.Context, root, path string, depth int, out *[]Candidate) error {
	if depth > d.config.MaxDepth {
		return nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return NewDiscoveryError(fmt.Sprintf("failed to read directory %s", path), err)
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fullPath := filepath.Join(path, entry.Name())
		rel, _ := filepath.Rel(root, fullPath)
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if d.matchesAny(d.config.Exclude, rel) {
				continue
			}
			if err := d.scanDirectory(ctx, root, fullPath, depth+1, out); err != nil {
				if ctx.Err() != nil {
					return err
				}
				d.logger.Error("Failed to scan module directory", "path", fullPath, "error", err)
			}
			continue
		}

		if !d.matchesAny(d.config.Patterns, rel) {
			continue
		}
		metadata, err := ParseManifestFile(fullPath)
		if err != nil {
			d.logger.Error("Skipping unreadable module manifest", "path", fullPath, "error", err)
			continue
		}
		*out = append(*out, Candidate{Metadata: metadata, Location: path, ManifestPath: fullPath})
		d.logger.Debug("Discovered module manifest", "id", metadata["id"], "path", fullPath)
	}
	return nil
}

func (d *DirectorySource) matchesAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
	}
	return false
}

// ParseManifestFile reads a YAML, JSON or TOML manifest into a metadata
// map. The format follows the extension; unknown extensions are read as
// YAML, which also accepts JSON.
func ParseManifestFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 - manifest paths come from the configured roots
	if err != nil {
		return nil, NewConfigFileError(path, "failed to read module manifest", err)
	}
	return ParseManifest(path, data)
}

// ParseManifest decodes manifest bytes; name selects the format.
func ParseManifest(name string, data []byte) (map[string]any, error) {
	metadata := make(map[string]any)
	var err error
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		err = json.Unmarshal(data, &metadata)
	case ".toml":
		err = toml.Unmarshal(data, &metadata)
	default:
		err = yaml.Unmarshal(data, &metadata)
	}
	if err != nil {
		return nil, NewManifestParseError(name, err)
	}
	return metadata, nil
}
