// hot_reload.go: reload modules when their manifest changes on disk
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
)

// HotReloadOptions configures the manifest watcher.
type HotReloadOptions struct {
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
	CacheTTL     time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	MaxWatched   int           `json:"max_watched" yaml:"max_watched"`

	// ReloadTimeout bounds each triggered reload. Zero means 30s.
	ReloadTimeout time.Duration `json:"reload_timeout" yaml:"reload_timeout"`
}

// DefaultHotReloadOptions returns the watcher defaults.
func DefaultHotReloadOptions() HotReloadOptions {
	return HotReloadOptions{
		PollInterval:  2 * time.Second,
		CacheTTL:      time.Second,
		MaxWatched:    256,
		ReloadTimeout: 30 * time.Second,
	}
}

// HotReloader watches the manifest of every loaded module and reloads the
// module when it changes. Modules loaded later are picked up through the
// manager's lifecycle events.
type HotReloader struct {
	manager *Manager
	options HotReloadOptions
	logger  Logger
	watcher *argus.Watcher

	mu      sync.Mutex
	watched map[string]struct{}
	unsub   func()

	running  atomic.Bool
	reloads  atomic.Int64
	failures atomic.Int64
}

// NewHotReloader creates a watcher for m. Nothing is watched until Start.
func NewHotReloader(m *Manager, options HotReloadOptions, logger any) *HotReloader {
	defaults := DefaultHotReloadOptions()
	if options.PollInterval <= 0 {
		options.PollInterval = defaults.PollInterval
	}
	if options.CacheTTL <= 0 {
		options.CacheTTL = defaults.CacheTTL
	}
	if options.MaxWatched <= 0 {
		options.MaxWatched = defaults.MaxWatched
	}
	if options.ReloadTimeout <= 0 {
		options.ReloadTimeout = defaults.ReloadTimeout
	}

	log := NewLogger(logger)
	h := &HotReloader{
		manager: m,
		options: options,
		logger:  log,
		watched: make(map[string]struct{}),
	}
	h.watcher = argus.New(argus.Config{
		PollInterval:         options.PollInterval,
		CacheTTL:             options.CacheTTL,
		MaxWatchedFiles:      options.MaxWatched,
		Audit:                argus.AuditConfig{Enabled: false},
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, path string) {
			log.Error("Module manifest watch error", "error", err, "file", path)
		},
	})
	return h
}

// Start watches the manifests of the currently loaded modules and begins
// polling.
func (h *HotReloader) Start() error {
	if !h.running.CompareAndSwap(false, true) {
		return NewConfigWatcherError("hot reloader is already running", nil)
	}

	for _, info := range h.manager.List() {
		if err := h.track(info.ManifestPath); err != nil {
			h.running.Store(false)
			return err
		}
	}
	h.unsub = h.manager.Subscribe(func(event LifecycleEvent) {
		if event.Type != EventModuleLoaded {
			return
		}
		if info, ok := h.manager.Info(event.ModuleID); ok {
			if err := h.track(info.ManifestPath); err != nil {
				h.logger.Warn("Cannot watch module manifest", "module", event.ModuleID, "error", err)
			}
		}
	})

	if err := h.watcher.Start(); err != nil {
		h.unsub()
		h.running.Store(false)
		return NewConfigWatcherError("failed to start manifest watcher", err)
	}
	h.logger.Info("Module hot reload started", "watched", len(h.Watched()), "poll_interval", h.options.PollInterval)
	return nil
}

// Stop ends polling. The reloader cannot be restarted.
func (h *HotReloader) Stop() error {
	if !h.running.CompareAndSwap(true, false) {
		return NewConfigWatcherError("hot reloader is not running", nil)
	}
	if h.unsub != nil {
		h.unsub()
	}
	if err := h.watcher.Stop(); err != nil {
		return NewConfigWatcherError("failed to stop manifest watcher", err)
	}
	h.logger.Info("Module hot reload stopped", "reloads", h.reloads.Load(), "failures", h.failures.Load())
	return nil
}

// Watched returns the manifest paths being watched.
func (h *HotReloader) Watched() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.watched))
	for path := range h.watched {
		out = append(out, path)
	}
	return out
}

// Stats returns how many reloads were triggered and how many failed.
func (h *HotReloader) Stats() (reloads, failures int64) {
	return h.reloads.Load(), h.failures.Load()
}

func (h *HotReloader) track(path string) error {
	if path == "" {
		return nil
	}
	path = filepath.Clean(path)

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.watched[path]; ok {
		return nil
	}
	if err := h.watcher.Watch(path, h.handleChange); err != nil {
		return NewConfigWatcherError("failed to watch module manifest", err)
	}
	h.watched[path] = struct{}{}
	return nil
}

// handleChange maps a manifest change back to its module and reloads it.
func (h *HotReloader) handleChange(event argus.ChangeEvent) {
	h.logger.Debug("Module manifest change detected",
		"path", event.Path,
		"mod_time", event.ModTime,
		"is_create", event.IsCreate,
		"is_delete", event.IsDelete,
		"is_modify", event.IsModify)

	if event.IsDelete {
		h.logger.Warn("Module manifest was deleted, skipping reload", "path", event.Path)
		return
	}

	id := h.moduleFor(event.Path)
	if id == "" {
		h.logger.Debug("Manifest change does not match a loaded module", "path", event.Path)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.options.ReloadTimeout)
	defer cancel()

	h.reloads.Add(1)
	if err := h.manager.Reload(ctx, id); err != nil {
		h.failures.Add(1)
		h.logger.Error("Hot reload failed", "module", id, "path", event.Path, "error", err)
		return
	}
	h.logger.Info("Module hot reloaded", "module", id, "path", event.Path)
}

func (h *HotReloader) moduleFor(path string) string {
	path = filepath.Clean(path)
	for _, info := range h.manager.List() {
		if info.ManifestPath != "" && filepath.Clean(info.ManifestPath) == path {
			return info.ID
		}
	}
	return ""
}
