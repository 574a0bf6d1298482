// events.go: lifecycle event notifications
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"sync"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// LifecycleEventType names a lifecycle transition.
type LifecycleEventType string

const (
	EventModuleLoaded       LifecycleEventType = "module_loaded"
	EventModuleLoadFailed   LifecycleEventType = "module_load_failed"
	EventModuleEnabled      LifecycleEventType = "module_enabled"
	EventModuleEnableFailed LifecycleEventType = "module_enable_failed"
	EventModuleDisabled     LifecycleEventType = "module_disabled"
	EventModuleUnloaded     LifecycleEventType = "module_unloaded"
	EventModuleUnloadFailed LifecycleEventType = "module_unload_failed"
	EventModuleReloaded     LifecycleEventType = "module_reloaded"
	EventDependencyCycle    LifecycleEventType = "dependency_cycle"
	EventLoadPassCompleted  LifecycleEventType = "load_pass_completed"
)

// LifecycleEvent describes one transition.
type LifecycleEvent struct {
	ID        string             `json:"id"`
	Type      LifecycleEventType `json:"type"`
	ModuleID  string             `json:"module_id,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Error     error              `json:"error,omitempty"`
	Details   map[string]any     `json:"details,omitempty"`
}

// LifecycleEventHandler receives events on its own goroutine. Handlers
// see events concurrently and in no guaranteed order.
type LifecycleEventHandler func(event LifecycleEvent)

type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[uint64]LifecycleEventHandler
	next     uint64
	logger   Logger
}

func newEventDispatcher(logger Logger) *eventDispatcher {
	return &eventDispatcher{handlers: make(map[uint64]LifecycleEventHandler), logger: logger}
}

func (d *eventDispatcher) subscribe(h LifecycleEventHandler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	key := d.next
	d.handlers[key] = h
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.handlers, key)
	}
}

func (d *eventDispatcher) emit(eventType LifecycleEventType, moduleID string, err error, details map[string]any) {
	d.mu.RLock()
	handlers := make([]LifecycleEventHandler, 0, len(d.handlers))
	for _, h := range d.handlers {
		handlers = append(handlers, h)
	}
	d.mu.RUnlock()
	if len(handlers) == 0 {
		return
	}

	event := LifecycleEvent{
		ID:        newEventID(),
		Type:      eventType,
		ModuleID:  moduleID,
		Timestamp: timecache.CachedTime(),
		Error:     err,
		Details:   details,
	}
	for _, handler := range handlers {
		go func(h LifecycleEventHandler) {
			defer withStackRecover(d.logger)()
			h(event)
		}(handler)
	}
}

func newEventID() string {
	return uuid.NewString()
}
