// descriptor.go: validated, immutable module metadata
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Descriptor defaults applied when the metadata omits a field.
const (
	DefaultModuleVersion = "1.0.0"
	DefaultModuleAuthor  = "Unknown"
)

// Metadata keys read by NewDescriptor. Anything else stays reachable
// through RawMetadata.
var (
	entryPointKeys     = []string{"main", "entryPoint", "entry_point"}
	dependencyKeys     = []string{"dependencies", "depend"}
	softDependencyKeys = []string{"softDependencies", "soft_dependencies", "softdepend"}
)

// Descriptor is the validated metadata of one module. It never changes
// after construction; accessors return copies of every slice and map.
type Descriptor struct {
	id          string
	name        string
	version     string
	description string
	author      string
	website     string
	license     string
	entryPoint  string

	dependencies     []string
	softDependencies []string
	rawMetadata      map[string]any
}

// NewDescriptor validates raw metadata and builds a Descriptor.
//
// It fails with an InvalidDescriptor error when id or the entry point is
// missing or blank, or when the module lists itself as a dependency.
// Dependency lists accept a sequence or a single string.
func NewDescriptor(metadata map[string]any) (*Descriptor, error) {
	if metadata == nil {
		return nil, NewInvalidDescriptorError("metadata is empty", nil)
	}

	id := NormalizeModuleID(stringValue(metadata["id"]))
	if id == "" {
		return nil, NewInvalidDescriptorError("id is required", metadata)
	}

	entryPoint := strings.TrimSpace(firstString(metadata, entryPointKeys))
	if entryPoint == "" {
		return nil, NewInvalidDescriptorError("main entry point is required", metadata)
	}

	deps := idList(firstValue(metadata, dependencyKeys))
	for _, dep := range deps {
		if dep == id {
			return nil, NewInvalidDescriptorError("module cannot depend on itself", metadata)
		}
	}

	d := &Descriptor{
		id:               id,
		name:             stringValue(metadata["name"]),
		version:          orDefault(stringValue(metadata["version"]), DefaultModuleVersion),
		description:      stringValue(metadata["description"]),
		author:           orDefault(stringValue(metadata["author"]), DefaultModuleAuthor),
		website:          stringValue(metadata["website"]),
		license:          stringValue(metadata["license"]),
		entryPoint:       entryPoint,
		dependencies:     deps,
		softDependencies: removeID(idList(firstValue(metadata, softDependencyKeys)), id),
		rawMetadata:      copyMap(metadata),
	}
	return d, nil
}

// NormalizeModuleID trims and lowercases a module id with Unicode rules
// ("Straße" stays "straße"). A Caser keeps state, so each call gets its
// own.
func NormalizeModuleID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	return cases.Lower(language.Und).String(id)
}

func (d *Descriptor) ID() string          { return d.id }
func (d *Descriptor) Name() string        { return d.name }
func (d *Descriptor) Version() string     { return d.version }
func (d *Descriptor) Description() string { return d.description }
func (d *Descriptor) Author() string      { return d.author }
func (d *Descriptor) Website() string     { return d.website }
func (d *Descriptor) License() string     { return d.license }
func (d *Descriptor) EntryPoint() string  { return d.entryPoint }

// Dependencies returns the hard dependencies in declaration order.
func (d *Descriptor) Dependencies() []string { return copyStrings(d.dependencies) }

// SoftDependencies returns the advisory ordering hints.
func (d *Descriptor) SoftDependencies() []string { return copyStrings(d.softDependencies) }

// DependsOn reports whether id is a declared hard dependency.
func (d *Descriptor) DependsOn(id string) bool {
	id = NormalizeModuleID(id)
	for _, dep := range d.dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// RawMetadata returns a copy of the metadata the descriptor was built from.
func (d *Descriptor) RawMetadata() map[string]any { return copyMap(d.rawMetadata) }

// Metadata returns one raw metadata value.
func (d *Descriptor) Metadata(key string) (any, bool) {
	v, ok := d.rawMetadata[key]
	return v, ok
}

// DisplayName is the name when set, otherwise the id.
func (d *Descriptor) DisplayName() string {
	if d.name != "" {
		return d.name
	}
	return d.id
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s v%s", d.DisplayName(), d.version)
}

func firstValue(m map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(m map[string]any, keys []string) string {
	return stringValue(firstValue(m, keys))
}

// stringValue renders scalars as strings. YAML decodes `version: 1.2` as
// a float, so numbers and booleans are accepted too.
func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case fmt.Stringer:
		return strings.TrimSpace(s.String())
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		return fmt.Sprint(s)
	default:
		return ""
	}
}

// idList normalizes a dependency declaration: a sequence or a single
// string. Blank entries are skipped and duplicates collapse keeping the
// first occurrence.
func idList(v any) []string {
	var raw []string
	switch list := v.(type) {
	case string:
		raw = []string{list}
	case []string:
		raw = list
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}

	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		id := NormalizeModuleID(item)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// copyMap deep-copies nested maps and slices so callers cannot mutate
// the descriptor through RawMetadata.
func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		return copyStrings(t)
	default:
		return v
	}
}
