// module_config.go: YAML-backed per-module key/value configuration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultModuleConfigName is the base name of a module's config file.
const DefaultModuleConfigName = "config"

// ModuleConfig is a flat key/value store persisted as <dir>/<name>.yml.
//
// A missing or unreadable file yields an empty store that is written back
// immediately, so modules always find a file to edit.
type ModuleConfig struct {
	path   string
	logger Logger

	mu     sync.RWMutex
	values map[string]any
}

// OpenModuleConfig loads (or creates) the config file of a module.
func OpenModuleConfig(dir, name string, logger Logger) *ModuleConfig {
	if name == "" {
		name = DefaultModuleConfigName
	}
	c := &ModuleConfig{
		path:   filepath.Join(dir, name+".yml"),
		logger: NewLogger(logger),
		values: make(map[string]any),
	}
	c.load()
	return c
}

// Path returns the backing file.
func (c *ModuleConfig) Path() string { return c.path }

func (c *ModuleConfig) load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Error("Failed to read module config", "path", c.path, "error", err)
		}
		c.reset()
		return
	}

	values := make(map[string]any)
	if err := yaml.Unmarshal(data, &values); err != nil {
		c.logger.Error("Failed to parse module config", "path", c.path, "error", err)
		c.reset()
		return
	}

	c.mu.Lock()
	c.values = values
	c.mu.Unlock()
}

func (c *ModuleConfig) reset() {
	c.mu.Lock()
	c.values = make(map[string]any)
	c.mu.Unlock()
	_ = c.Save()
}

// Reload re-reads the file, discarding unsaved changes.
func (c *ModuleConfig) Reload() { c.load() }

// Save writes the store to disk. Failures are logged and returned.
func (c *ModuleConfig) Save() error {
	c.mu.RLock()
	data, err := yaml.Marshal(c.values)
	c.mu.RUnlock()
	if err != nil {
		c.logger.Error("Failed to encode module config", "path", c.path, "error", err)
		return NewConfigFileError(c.path, "failed to encode module config", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0750); err != nil {
		c.logger.Error("Failed to create module config directory", "path", c.path, "error", err)
		return NewConfigFileError(c.path, "failed to create module config directory", err)
	}
	if err := os.WriteFile(c.path, data, 0600); err != nil {
		c.logger.Error("Failed to save module config", "path", c.path, "error", err)
		return NewConfigFileError(c.path, "failed to save module config", err)
	}
	return nil
}

// EnsureDefaults sets every missing key from defaults and saves when
// anything was added.
func (c *ModuleConfig) EnsureDefaults(defaults map[string]any) error {
	c.mu.Lock()
	changed := false
	for k, v := range defaults {
		if _, ok := c.values[k]; !ok {
			c.values[k] = v
			changed = true
		}
	}
	c.mu.Unlock()
	if !changed {
		return nil
	}
	return c.Save()
}

func (c *ModuleConfig) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *ModuleConfig) GetOr(key string, def any) any {
	if v, ok := c.Get(key); ok {
		return v
	}
	return def
}

func (c *ModuleConfig) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

func (c *ModuleConfig) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
}

func (c *ModuleConfig) Contains(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Keys returns the keys, sorted.
func (c *ModuleConfig) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// All returns a copy of the store.
func (c *ModuleConfig) All() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyMap(c.values)
}

// String returns the value rendered as text, "" when absent.
func (c *ModuleConfig) String(key string) string {
	v, ok := c.Get(key)
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Int converts the value; unconvertible values are logged and read as 0.
func (c *ModuleConfig) Int(key string) int {
	return int(c.Int64(key))
}

func (c *ModuleConfig) Int64(key string) int64 {
	v, ok := c.Get(key)
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	}
	i, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(v)), 10, 64)
	if err != nil {
		c.logger.Error("Config value is not an integer", "key", key, "value", v, "error", err)
		return 0
	}
	return i
}

func (c *ModuleConfig) Float(key string) float64 {
	v, ok := c.Get(key)
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(fmt.Sprint(v)), 64)
	if err != nil {
		c.logger.Error("Config value is not a number", "key", key, "value", v, "error", err)
		return 0
	}
	return f
}

// Bool reads true only for a boolean true or a string parsing as true.
func (c *ModuleConfig) Bool(key string) bool {
	v, ok := c.Get(key)
	if !ok || v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	b, err := strconv.ParseBool(strings.TrimSpace(fmt.Sprint(v)))
	return err == nil && b
}
