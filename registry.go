// registry.go: concurrent-safe, ordered store of module records
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"sync"
)

// Registry keeps every loaded module record in load order.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	records map[string]*ModuleRecord
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*ModuleRecord)}
}

// Add appends rec, failing with DuplicateModule when the id is taken.
func (r *Registry) Add(rec *ModuleRecord) error {
	id := rec.descriptor.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[id]; exists {
		return NewDuplicateModuleError(id)
	}
	r.records[id] = rec
	r.order = append(r.order, id)
	return nil
}

// Remove deletes the record and returns it with its former position.
func (r *Registry) Remove(id string) (*ModuleRecord, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, -1, false
	}
	delete(r.records, id)
	idx := indexOf(r.order, id)
	r.order = append(r.order[:idx:idx], r.order[idx+1:]...)
	return rec, idx, true
}

// Restore puts a removed record back at its former position.
func (r *Registry) Restore(rec *ModuleRecord, idx int) {
	id := rec.descriptor.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[id]; exists {
		return
	}
	r.records[id] = rec
	if idx < 0 || idx > len(r.order) {
		idx = len(r.order)
	}
	r.order = append(r.order[:idx], append([]string{id}, r.order[idx:]...)...)
}

// Get returns the record for id.
func (r *Registry) Get(id string) (*ModuleRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok
}

// Has reports whether id is known.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// IDs returns the known ids in load order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyStrings(r.order)
}

// Records returns the records in load order.
func (r *Registry) Records() []*ModuleRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ModuleRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id])
	}
	return out
}

// Enabled returns the records currently Enabled, in load order.
func (r *Registry) Enabled() []*ModuleRecord {
	var out []*ModuleRecord
	for _, rec := range r.Records() {
		if rec.State() == StateEnabled {
			out = append(out, rec)
		}
	}
	return out
}

// DependentsOf returns the ids of known modules declaring id as a hard
// dependency, whatever their state.
func (r *Registry) DependentsOf(id string) []string {
	var out []string
	for _, rec := range r.Records() {
		if rec.descriptor.ID() != id && rec.descriptor.DependsOn(id) {
			out = append(out, rec.descriptor.ID())
		}
	}
	return out
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
