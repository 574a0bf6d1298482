// manager_lifecycle.go: enable, disable, unload and reload with cascades
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"context"
	"errors"
)

// Enable brings id to Enabled. Dependencies that are loaded but not
// enabled are enabled first, depth first in declaration order. A
// dependency missing from the registry fails with UnmetDependency before
// anything changes. When the module's own hook fails it stays Loaded;
// dependencies enabled on its behalf stay enabled.
func (m *Manager) Enable(ctx context.Context, id string) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	return m.enable(ctx, NormalizeModuleID(id), false, nil)
}

// enable implements Enable. cascade suppresses the already-enabled error
// for modules reached through a dependency; path is the chain of modules
// currently enabling, used to report cycles between load passes.
func (m *Manager) enable(ctx context.Context, id string, cascade bool, path []string) error {
	rec, ok := m.registry.Get(id)
	if !ok {
		return NewModuleNotFoundError(id)
	}

	switch state := rec.State(); state {
	case StateEnabled:
		if cascade {
			return nil
		}
		return NewInvalidModuleStateError(id, state, StateLoaded)
	case StateEnabling:
		return NewCyclicDependencyError(cycleFrom(path, id))
	case StateLoaded:
	default:
		return NewInvalidModuleStateError(id, state, StateLoaded)
	}

	deps := rec.descriptor.dependencies
	for _, dep := range deps {
		if !m.registry.Has(dep) {
			err := NewUnmetDependencyError(id, dep, nil)
			m.logger.Warn("Cannot enable module with missing dependency", "module", id, "dependency", dep)
			m.notifier.emit(EventModuleEnableFailed, id, err, map[string]any{"dependency": dep})
			return err
		}
	}

	rec.setState(StateEnabling)
	path = append(path, id)
	for _, dep := range deps {
		if err := m.enable(ctx, dep, true, path); err != nil {
			rec.setState(StateLoaded)
			if HasErrorCode(err, ErrCodeCyclicDependency) {
				return err
			}
			wrapped := NewUnmetDependencyError(id, dep, err)
			m.logger.Warn("Dependency failed to enable", "module", id, "dependency", dep, "error", err)
			m.notifier.emit(EventModuleEnableFailed, id, wrapped, map[string]any{"dependency": dep})
			return wrapped
		}
	}

	if err := callHook(func() error { return rec.instance.OnEnable(ctx) }); err != nil {
		m.releaseResources(rec)
		rec.setState(StateLoaded)
		wrapped := NewHookFailedError(id, "enable", err)
		m.logger.Error("Module enable hook failed", "module", id, "error", err)
		m.notifier.emit(EventModuleEnableFailed, id, wrapped, nil)
		return wrapped
	}

	rec.setState(StateEnabled)
	m.logger.Info("Module enabled", "module", id, "cascade", cascade)
	m.notifier.emit(EventModuleEnabled, id, nil, map[string]any{"cascade": cascade})
	return nil
}

// Disable brings id back to Loaded. Enabled dependents are disabled first,
// deepest first. Disabling is best effort: a failing hook is logged and
// the module's resources are released anyway.
func (m *Manager) Disable(ctx context.Context, id string) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	return m.disable(ctx, NormalizeModuleID(id), false)
}

func (m *Manager) disable(ctx context.Context, id string, cascade bool) error {
	rec, ok := m.registry.Get(id)
	if !ok {
		return NewModuleNotFoundError(id)
	}
	if state := rec.State(); state != StateEnabled {
		if cascade {
			return nil
		}
		return NewInvalidModuleStateError(id, state, StateEnabled)
	}

	rec.setState(StateDisabling)
	for _, dependent := range m.registry.Enabled() {
		if dependent.descriptor.DependsOn(id) {
			m.cascadeDisable(ctx, dependent.descriptor.ID(), id)
		}
	}

	if err := callHook(func() error { return rec.instance.OnDisable(ctx) }); err != nil {
		m.logger.Error("Module disable hook failed; releasing resources anyway", "module", id, "error", err)
	}
	m.releaseResources(rec)
	rec.setState(StateLoaded)

	m.logger.Info("Module disabled", "module", id, "cascade", cascade)
	m.notifier.emit(EventModuleDisabled, id, nil, map[string]any{"cascade": cascade})
	return nil
}

// cascadeDisable disables id on behalf of cause and logs a failure
// instead of returning it, since the caller carries on either way.
func (m *Manager) cascadeDisable(ctx context.Context, id, cause string) {
	if err := m.disable(ctx, id, true); err != nil {
		m.logger.Error("Cascading disable failed", "module", id, "cause", cause, "error", err)
	}
}

// releaseResources unregisters everything the module registered, newest
// first. Unregister failures are logged and skipped.
func (m *Manager) releaseResources(rec *ModuleRecord) {
	owner := rec.descriptor.ID()
	for _, res := range rec.takeResources() {
		var err error
		switch res.kind {
		case resourceCommand:
			err = m.commands.UnregisterCommand(owner, res.command)
		case resourceListener:
			err = m.events.UnregisterListener(owner, res.listener)
		}
		if err != nil {
			m.logger.Warn("Failed to release module resource",
				"module", owner,
				"resource", res.kind.String(),
				"name", res.name(),
				"error", err)
		}
	}
}

// Unload removes id from the registry. It fails with ModuleInUse while
// any other known module declares id as a dependency, whatever that
// module's state. An enabled module is disabled first. If the unload hook
// or releasing the execution context fails, the record is put back where
// it was.
func (m *Manager) Unload(ctx context.Context, id string) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	return m.unload(ctx, NormalizeModuleID(id))
}

func (m *Manager) unload(ctx context.Context, id string) error {
	rec, ok := m.registry.Get(id)
	if !ok {
		return NewModuleNotFoundError(id)
	}
	if dependents := m.registry.DependentsOf(id); len(dependents) > 0 {
		err := NewModuleInUseError(id, dependents)
		m.logger.Warn("Module is still required", "module", id, "dependents", dependents)
		return err
	}

	if rec.State() == StateEnabled {
		m.cascadeDisable(ctx, id, id)
	}

	_, idx, _ := m.registry.Remove(id)
	restore := func(phase string, cause error) error {
		m.registry.Restore(rec, idx)
		err := NewUnloadFailureError(id, phase, cause)
		m.logger.Error("Module unload failed; record restored", "module", id, "phase", phase, "error", cause)
		m.notifier.emit(EventModuleUnloadFailed, id, err, map[string]any{"phase": phase})
		return err
	}

	if err := callHook(func() error { return rec.instance.OnUnload(ctx) }); err != nil {
		return restore("on_unload", err)
	}
	if err := rec.execCtx.Close(); err != nil {
		return restore("close", err)
	}

	rec.setState(StateUnloaded)
	m.logger.Info("Module unloaded", "module", id)
	m.notifier.emit(EventModuleUnloaded, id, nil, nil)
	return nil
}

// Reload unloads id and loads it again from the same location, restoring
// its enabled flag. Any failing step stops the sequence and its error is
// returned; if the new load fails the module stays unloaded.
func (m *Manager) Reload(ctx context.Context, id string) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	return m.reload(ctx, NormalizeModuleID(id))
}

func (m *Manager) reload(ctx context.Context, id string) error {
	rec, ok := m.registry.Get(id)
	if !ok {
		return NewModuleNotFoundError(id)
	}
	if dependents := m.registry.DependentsOf(id); len(dependents) > 0 {
		return NewModuleInUseError(id, dependents)
	}

	wasEnabled := rec.State() == StateEnabled
	candidate := Candidate{
		Metadata:     rec.descriptor.RawMetadata(),
		Location:     rec.location,
		ManifestPath: rec.manifest,
	}

	if err := m.unload(ctx, id); err != nil {
		return err
	}

	if refresher, ok := m.source.(Refresher); ok {
		fresh, err := refresher.Refresh(ctx, candidate)
		if err != nil {
			m.logger.Warn("Could not re-read module metadata; reusing previous descriptor", "module", id, "error", err)
		} else {
			candidate = fresh
		}
	}

	d, err := NewDescriptor(candidate.Metadata)
	if err != nil {
		m.notifier.emit(EventModuleLoadFailed, id, err, nil)
		return err
	}
	if d.ID() != id {
		err := NewInvalidDescriptorError("reloaded manifest changed the module id", candidate.Metadata)
		m.notifier.emit(EventModuleLoadFailed, id, err, nil)
		return err
	}
	if err := m.load(ctx, d, candidate); err != nil {
		return err
	}

	if wasEnabled {
		if err := m.enable(ctx, id, false, nil); err != nil {
			return err
		}
	}
	m.logger.Info("Module reloaded", "module", id, "enabled", wasEnabled)
	m.notifier.emit(EventModuleReloaded, id, nil, map[string]any{"enabled": wasEnabled})
	return nil
}

// BulkResult counts the outcome of an all-modules operation.
type BulkResult struct {
	Succeeded int
	Failed    int
	Errors    map[string]error
}

func (r *BulkResult) record(id string, err error) {
	if err == nil {
		r.Succeeded++
		return
	}
	r.Failed++
	if r.Errors == nil {
		r.Errors = make(map[string]error)
	}
	r.Errors[id] = err
}

// Err joins the individual failures, nil when none.
func (r BulkResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Errors))
	for _, err := range r.Errors {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// EnableAll enables every loaded module in load order. Failures are
// counted and logged; the iteration never stops early.
func (m *Manager) EnableAll(ctx context.Context) BulkResult {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	var result BulkResult
	for _, id := range m.registry.IDs() {
		rec, ok := m.registry.Get(id)
		if !ok || rec.State() == StateEnabled {
			continue
		}
		err := m.enable(ctx, id, true, nil)
		if err != nil {
			m.logger.Error("Failed to enable module", "module", id, "error", err)
		}
		result.record(id, err)
	}
	m.logger.Info("Enabled modules", "succeeded", result.Succeeded, "failed", result.Failed)
	return result
}

// DisableAll disables every enabled module in reverse load order.
func (m *Manager) DisableAll(ctx context.Context) BulkResult {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	return m.disableAll(ctx)
}

func (m *Manager) disableAll(ctx context.Context) BulkResult {
	var result BulkResult
	ids := m.registry.IDs()
	for i := len(ids) - 1; i >= 0; i-- {
		rec, ok := m.registry.Get(ids[i])
		if !ok || rec.State() != StateEnabled {
			continue
		}
		err := m.disable(ctx, ids[i], true)
		if err != nil {
			m.logger.Error("Failed to disable module", "module", ids[i], "error", err)
		}
		result.record(ids[i], err)
	}
	m.logger.Info("Disabled modules", "succeeded", result.Succeeded, "failed", result.Failed)
	return result
}

// UnloadAll disables everything, then unloads in reverse load order.
// A module loaded in an earlier pass may depend on one loaded later, so
// the sweep repeats while it makes progress. Failures come from the last
// sweep only.
func (m *Manager) UnloadAll(ctx context.Context) BulkResult {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.disableAll(ctx)
	var result BulkResult
	for {
		ids := m.registry.IDs()
		if len(ids) == 0 {
			break
		}
		failures := make(map[string]error)
		unloaded := 0
		for i := len(ids) - 1; i >= 0; i-- {
			if err := m.unload(ctx, ids[i]); err != nil {
				failures[ids[i]] = err
				continue
			}
			unloaded++
			result.record(ids[i], nil)
		}
		if unloaded == 0 {
			for _, id := range ids {
				if err, ok := failures[id]; ok {
					m.logger.Error("Failed to unload module", "module", id, "error", err)
					result.record(id, err)
				}
			}
			break
		}
	}
	m.logger.Info("Unloaded modules", "succeeded", result.Succeeded, "failed", result.Failed)
	return result
}

// Get returns the live module instance.
func (m *Manager) Get(id string) (Module, bool) {
	rec, ok := m.registry.Get(NormalizeModuleID(id))
	if !ok {
		return nil, false
	}
	return rec.instance, true
}

// Info returns a snapshot of the module's record.
func (m *Manager) Info(id string) (ModuleInfo, bool) {
	rec, ok := m.registry.Get(NormalizeModuleID(id))
	if !ok {
		return ModuleInfo{}, false
	}
	return rec.info(), true
}

// List returns snapshots of every loaded module in load order.
func (m *Manager) List() []ModuleInfo {
	records := m.registry.Records()
	out := make([]ModuleInfo, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.info())
	}
	return out
}

// ListEnabled returns snapshots of the enabled modules in load order.
func (m *Manager) ListEnabled() []ModuleInfo {
	var out []ModuleInfo
	for _, rec := range m.registry.Enabled() {
		out = append(out, rec.info())
	}
	return out
}

// DependenciesOf returns the declared hard dependencies of id.
func (m *Manager) DependenciesOf(id string) ([]string, error) {
	id = NormalizeModuleID(id)
	rec, ok := m.registry.Get(id)
	if !ok {
		return nil, NewModuleNotFoundError(id)
	}
	return rec.descriptor.Dependencies(), nil
}

// DependentsOf returns the known modules declaring id as a dependency.
func (m *Manager) DependentsOf(id string) []string {
	return m.registry.DependentsOf(NormalizeModuleID(id))
}

// IsLoaded reports whether id has a record.
func (m *Manager) IsLoaded(id string) bool {
	return m.registry.Has(NormalizeModuleID(id))
}

// IsEnabled reports whether id is Enabled.
func (m *Manager) IsEnabled(id string) bool {
	return m.State(id) == StateEnabled
}

// State returns the lifecycle state of id, StateUnloaded when unknown.
func (m *Manager) State(id string) ModuleState {
	rec, ok := m.registry.Get(NormalizeModuleID(id))
	if !ok {
		return StateUnloaded
	}
	return rec.State()
}
