// discovery_test.go: manifest parsing and directory discovery tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest_Formats(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"module.yml", "id: core\nmain: core.Module\ndependencies: [storage]\n"},
		{"module.json", `{"id": "core", "main": "core.Module", "dependencies": ["storage"]}`},
		{"module.toml", "id = \"core\"\nmain = \"core.Module\"\ndependencies = [\"storage\"]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metadata, err := ParseManifest(tt.name, []byte(tt.data))
			require.NoError(t, err)

			d, err := NewDescriptor(metadata)
			require.NoError(t, err)
			assert.Equal(t, "core", d.ID())
			assert.Equal(t, "core.Module", d.EntryPoint())
			assert.Equal(t, []string{"storage"}, d.Dependencies())
		})
	}
}

func TestParseManifest_Invalid(t *testing.T) {
	_, err := ParseManifest("module.json", []byte("{not json"))
	require.Error(t, err)
	assert.True(t, HasErrorCode(err, ErrCodeManifestParse))

	_, err = ParseManifestFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.True(t, HasErrorCode(err, ErrCodeConfigFileError))
}

func TestDirectorySource_Candidates(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "core", "module.yml"), "id: core\nmain: core.Module\n")
	writeFile(t, filepath.Join(root, "web", "module.json"), `{"id": "web", "main": "web.Module", "dependencies": ["core"]}`)
	writeFile(t, filepath.Join(root, "cache", "module.toml"), "id = \"cache\"\nmain = \"cache.Module\"\n")
	writeFile(t, filepath.Join(root, "broken", "module.yml"), "id: [oops\n")
	writeFile(t, filepath.Join(root, "disabled", "module.yml"), "id: disabled\nmain: x.Module\n")
	writeFile(t, filepath.Join(root, "core", "README.md"), "not a manifest")
	writeFile(t, filepath.Join(root, "nested", "deep", "module.yml"), "id: deep\nmain: deep.Module\n")

	logger := NewTestLogger()
	source, err := NewDirectorySource(DirectorySourceConfig{
		Roots:   []string{root},
		Exclude: []string{"disabled"},
	}, logger)
	require.NoError(t, err)

	candidates, err := source.Candidates(context.Background())
	require.NoError(t, err)

	var ids []string
	for _, c := range candidates {
		ids = append(ids, c.Metadata["id"].(string))
		assert.Equal(t, filepath.Dir(c.ManifestPath), c.Location)
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"cache", "core", "web"}, ids, "default patterns look one level down")
	assert.True(t, logger.HasMessage("ERROR", "Skipping unreadable module manifest"))
}

func TestDirectorySource_RecursivePattern(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "module.yml"), "id: a\nmain: a.Module\n")
	writeFile(t, filepath.Join(root, "group", "b", "module.yml"), "id: b\nmain: b.Module\n")
	writeFile(t, filepath.Join(root, "vendor", "c", "module.yml"), "id: c\nmain: c.Module\n")

	source, err := NewDirectorySource(DirectorySourceConfig{
		Roots:    []string{root},
		Patterns: []string{"**/module.yml"},
		Exclude:  []string{"vendor/**", "vendor"},
	}, nil)
	require.NoError(t, err)

	candidates, err := source.Candidates(context.Background())
	require.NoError(t, err)
	var ids []string
	for _, c := range candidates {
		ids = append(ids, c.Metadata["id"].(string))
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestDirectorySource_InvalidPattern(t *testing.T) {
	_, err := NewDirectorySource(DirectorySourceConfig{Patterns: []string{"[unclosed"}}, nil)
	require.Error(t, err)
	assert.True(t, HasErrorCode(err, ErrCodeDiscoveryError))
}

func TestDirectorySource_RefreshRereadsManifest(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, filepath.Join(root, "core", "module.yml"), "id: core\nmain: core.Module\nversion: 1.0.0\n")

	source, err := NewDirectorySource(DirectorySourceConfig{Roots: []string{root}}, nil)
	require.NoError(t, err)
	candidates, err := source.Candidates(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	writeFile(t, path, "id: core\nmain: core.Module\nversion: 1.1.0\n")
	fresh, err := source.Refresh(context.Background(), candidates[0])
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", fresh.Metadata["version"])
	assert.Equal(t, candidates[0].Location, fresh.Location)

	_, err = source.Refresh(context.Background(), Candidate{Location: "somewhere"})
	assert.True(t, HasErrorCode(err, ErrCodeDiscoveryError))
}

func TestDirectorySource_MissingRootIsLogged(t *testing.T) {
	logger := NewTestLogger()
	source, err := NewDirectorySource(DirectorySourceConfig{Roots: []string{filepath.Join(t.TempDir(), "nope")}}, logger)
	require.NoError(t, err)

	candidates, err := source.Candidates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, candidates)
	assert.True(t, logger.HasMessage("ERROR", "Failed to scan module directory"))
}

func TestStaticSource(t *testing.T) {
	source := NewStaticSource(candidate("a"))
	source.Add(candidate("b"))

	candidates, err := source.Candidates(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	candidates[0].Metadata["id"] = "mutated"
	again, _ := source.Candidates(context.Background())
	assert.Equal(t, "a", again[0].Metadata["id"])

	_, err = source.Refresh(context.Background(), Candidate{Location: "builtin:zzz"})
	assert.Error(t, err)
}
