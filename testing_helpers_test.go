// testing_helpers_test.go: fake modules and host fixtures shared by the tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// journal records hook calls across modules in call order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.entries))
	copy(out, j.entries)
	return out
}

func (j *journal) reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = nil
}

// filter returns the entries starting with prefix, e.g. "enable:".
func (j *journal) filter(prefix string) []string {
	var out []string
	for _, e := range j.all() {
		if len(e) >= len(prefix) && e[:len(prefix)] == prefix {
			out = append(out, e[len(prefix):])
		}
	}
	return out
}

// moduleBehavior configures one fake module.
type moduleBehavior struct {
	loadErr    error
	enableErr  error
	disableErr error
	unloadErr  error
	panicOn    string
	commands   []Command
	listeners  []Listener
	tracker    *hookTracker
}

// hookTracker counts hooks that run while another hook is still running.
type hookTracker struct {
	active   atomic.Int32
	overlaps atomic.Int32
}

func (tr *hookTracker) enter() func() {
	if tr.active.Add(1) > 1 {
		tr.overlaps.Add(1)
	}
	time.Sleep(time.Millisecond)
	return func() { tr.active.Add(-1) }
}

// fakeModule records every hook into a journal and registers the
// configured resources on enable.
type fakeModule struct {
	BaseModule
	id       string
	journal  *journal
	behavior *moduleBehavior
}

func (f *fakeModule) hook(name string) error {
	if f.behavior.tracker != nil {
		defer f.behavior.tracker.enter()()
	}
	f.journal.add("%s:%s", name, f.id)
	if f.behavior.panicOn == name {
		panic(name + " exploded")
	}
	return nil
}

func (f *fakeModule) OnLoad(ctx context.Context, mc *ModuleContext) error {
	_ = f.BaseModule.OnLoad(ctx, mc)
	if err := f.hook("load"); err != nil {
		return err
	}
	return f.behavior.loadErr
}

func (f *fakeModule) OnEnable(ctx context.Context) error {
	if err := f.hook("enable"); err != nil {
		return err
	}
	for _, cmd := range f.behavior.commands {
		if err := f.Context().RegisterCommand(cmd); err != nil {
			return err
		}
	}
	for _, l := range f.behavior.listeners {
		if _, err := f.Context().RegisterListener(l); err != nil {
			return err
		}
	}
	return f.behavior.enableErr
}

func (f *fakeModule) OnDisable(ctx context.Context) error {
	if err := f.hook("disable"); err != nil {
		return err
	}
	return f.behavior.disableErr
}

func (f *fakeModule) OnUnload(ctx context.Context) error {
	if err := f.hook("unload"); err != nil {
		return err
	}
	return f.behavior.unloadErr
}

// testHost bundles a manager with its builtin loader.
type testHost struct {
	t         *testing.T
	loader    *BuiltinLoader
	manager   *Manager
	logger    *TestLogger
	journal   *journal
	commands  *CommandTable
	events    *EventBus
	behaviors map[string]*moduleBehavior
	dataDir   string
}

func newTestHost(t *testing.T, configure ...func(*Config)) *testHost {
	t.Helper()
	h := &testHost{
		t:         t,
		loader:    NewBuiltinLoader(),
		logger:    NewTestLogger(),
		journal:   &journal{},
		commands:  NewCommandTable(),
		behaviors: make(map[string]*moduleBehavior),
		dataDir:   t.TempDir(),
	}
	h.events = NewEventBus(h.logger)

	config := Config{
		Loader:   h.loader,
		Commands: h.commands,
		Events:   h.events,
		Logger:   h.logger,
		DataDir:  h.dataDir,
	}
	for _, fn := range configure {
		fn(&config)
	}

	manager, err := NewManager(config)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	h.manager = manager
	return h
}

// module registers a factory for id and returns its behavior for tuning.
func (h *testHost) module(id string) *moduleBehavior {
	if b, ok := h.behaviors[id]; ok {
		return b
	}
	b := &moduleBehavior{}
	h.behaviors[id] = b
	h.loader.Register(entryPointFor(id), func() any {
		return &fakeModule{id: id, journal: h.journal, behavior: b}
	})
	return b
}

// load runs one pass over candidates built with candidate().
func (h *testHost) load(candidates ...Candidate) *LoadReport {
	h.t.Helper()
	for _, c := range candidates {
		h.module(NormalizeModuleID(stringValue(c.Metadata["id"])))
	}
	report, err := h.manager.LoadCandidates(context.Background(), candidates)
	if err != nil {
		h.t.Fatalf("Load pass failed: %v", err)
	}
	return report
}

func entryPointFor(id string) string {
	return "test." + id + ".Module"
}

// candidate builds a candidate for id with hard dependencies deps.
func candidate(id string, deps ...string) Candidate {
	metadata := map[string]any{
		"id":      id,
		"name":    id,
		"version": "1.0.0",
		"main":    entryPointFor(NormalizeModuleID(id)),
	}
	if len(deps) > 0 {
		list := make([]any, len(deps))
		for i, d := range deps {
			list[i] = d
		}
		metadata["dependencies"] = list
	}
	return Candidate{Metadata: metadata, Location: "builtin:" + id}
}

func withSoft(c Candidate, soft ...string) Candidate {
	list := make([]any, len(soft))
	for i, s := range soft {
		list[i] = s
	}
	c.Metadata["softDependencies"] = list
	return c
}

// eventRecorder collects lifecycle events delivered asynchronously.
type eventRecorder struct {
	mu     sync.Mutex
	events []LifecycleEvent
}

func recordEvents(m *Manager) *eventRecorder {
	r := &eventRecorder{}
	m.Subscribe(func(e LifecycleEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, e)
	})
	return r
}

// waitFor polls until an event of type typ for module arrives.
func (r *eventRecorder) waitFor(t *testing.T, typ LifecycleEventType, module string) LifecycleEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		for _, e := range r.events {
			if e.Type == typ && e.ModuleID == module {
				r.mu.Unlock()
				return e
			}
		}
		r.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s event of %q", typ, module)
	return LifecycleEvent{}
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

// recordingRegistries forwards to the host registries and journals every
// call as "register:<name>" or "unregister:<name>".
type recordingRegistries struct {
	commands CommandRegistry
	events   EventRegistry
	journal  *journal
}

func (r *recordingRegistries) RegisterCommand(owner string, cmd Command) error {
	r.journal.add("register:%s", cmd.Name)
	return r.commands.RegisterCommand(owner, cmd)
}

func (r *recordingRegistries) UnregisterCommand(owner string, cmd Command) error {
	r.journal.add("unregister:%s", cmd.Name)
	return r.commands.UnregisterCommand(owner, cmd)
}

func (r *recordingRegistries) RegisterListener(owner string, l Listener) error {
	r.journal.add("register:%s", l.ID)
	return r.events.RegisterListener(owner, l)
}

func (r *recordingRegistries) UnregisterListener(owner string, l Listener) error {
	r.journal.add("unregister:%s", l.ID)
	return r.events.UnregisterListener(owner, l)
}

// closeFailingLoader wraps a BuiltinLoader; while failClose is set the
// contexts it opened refuse to close.
type closeFailingLoader struct {
	inner     *BuiltinLoader
	failClose atomic.Bool
}

func (l *closeFailingLoader) Open(location string, d *Descriptor) (ExecutionContext, error) {
	ec, err := l.inner.Open(location, d)
	if err != nil {
		return nil, err
	}
	return &closeFailingContext{ExecutionContext: ec, loader: l}, nil
}

type closeFailingContext struct {
	ExecutionContext
	loader *closeFailingLoader
}

func (c *closeFailingContext) Close() error {
	if c.loader.failClose.Load() {
		return errors.New("context still referenced")
	}
	return c.ExecutionContext.Close()
}
