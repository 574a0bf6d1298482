// manager_lifecycle_test.go: enable, disable, unload and reload tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bg = context.Background()

func TestEnable_CascadesDependenciesFirst(t *testing.T) {
	h := newTestHost(t)
	h.load(candidate("A"), candidate("B", "A"), candidate("C", "B"))
	events := recordEvents(h.manager)

	require.NoError(t, h.manager.Enable(bg, "C"))

	assert.Equal(t, []string{"a", "b", "c"}, h.journal.filter("enable:"))
	for _, id := range []string{"a", "b", "c"} {
		assert.True(t, h.manager.IsEnabled(id), "%s should be enabled", id)
	}
	e := events.waitFor(t, EventModuleEnabled, "a")
	assert.Equal(t, true, e.Details["cascade"])
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
}

func TestEnable_AlreadyEnabledAndUnknown(t *testing.T) {
	h := newTestHost(t)
	h.load(candidate("a"))
	require.NoError(t, h.manager.Enable(bg, "a"))

	err := h.manager.Enable(bg, "a")
	assert.True(t, HasErrorCode(err, ErrCodeInvalidModuleState))

	err = h.manager.Enable(bg, "ghost")
	assert.True(t, HasErrorCode(err, ErrCodeModuleNotFound))
	assert.Len(t, h.journal.filter("enable:"), 1)
}

func TestEnable_MissingDependency(t *testing.T) {
	h := newTestHost(t)
	h.load(candidate("D", "missing"))

	err := h.manager.Enable(bg, "D")
	require.Error(t, err)
	assert.True(t, HasErrorCode(err, ErrCodeUnmetDependency))
	assert.Equal(t, StateLoaded, h.manager.State("d"))
	assert.Empty(t, h.journal.filter("enable:"))
}

func TestEnable_DependencyFailureKeepsModuleLoaded(t *testing.T) {
	h := newTestHost(t)
	h.module("a").enableErr = errors.New("port in use")
	h.load(candidate("a"), candidate("b", "a"))

	err := h.manager.Enable(bg, "b")
	require.Error(t, err)
	assert.True(t, HasErrorCode(err, ErrCodeUnmetDependency))
	assert.True(t, HasErrorCode(err, ErrCodeHookFailed), "the cause is kept")
	assert.Equal(t, StateLoaded, h.manager.State("a"))
	assert.Equal(t, StateLoaded, h.manager.State("b"))
	assert.Equal(t, []string{"a"}, h.journal.filter("enable:"))
}

func TestEnable_HookFailureReleasesResources(t *testing.T) {
	h := newTestHost(t)
	b := h.module("a")
	b.commands = []Command{{Name: "ping"}}
	b.listeners = []Listener{{Event: "tick", Handler: func(context.Context, any) error { return nil }}}
	b.enableErr = errors.New("half started")
	h.load(candidate("a"))

	err := h.manager.Enable(bg, "a")
	require.Error(t, err)
	assert.True(t, HasErrorCode(err, ErrCodeHookFailed))
	assert.Equal(t, StateLoaded, h.manager.State("a"))

	_, _, found := h.commands.Lookup("ping")
	assert.False(t, found, "commands registered by the failed hook are removed")
	assert.Equal(t, 0, h.events.ListenerCount("tick"))

	info, _ := h.manager.Info("a")
	assert.Empty(t, info.Commands)
	assert.True(t, info.EnabledAt.IsZero())
}

func TestEnable_PanicIsContained(t *testing.T) {
	h := newTestHost(t)
	h.module("a").panicOn = "enable"
	h.load(candidate("a"))

	err := h.manager.Enable(bg, "a")
	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, StateLoaded, h.manager.State("a"))
}

func TestEnable_CycleAcrossPasses(t *testing.T) {
	h := newTestHost(t)
	// Each pass sees only one side of the cycle, so the sort cannot catch it.
	h.load(candidate("x", "y"))
	h.load(candidate("y", "x"))

	err := h.manager.Enable(bg, "x")
	require.Error(t, err)
	cycle, ok := CyclePath(err)
	require.True(t, ok)
	assert.Equal(t, []string{"x", "y", "x"}, cycle)
	assert.Equal(t, StateLoaded, h.manager.State("x"))
	assert.Equal(t, StateLoaded, h.manager.State("y"))
	assert.Empty(t, h.journal.filter("enable:"))
}

func TestEnable_RegistersResources(t *testing.T) {
	h := newTestHost(t)
	called := false
	b := h.module("greeter")
	b.commands = []Command{{Name: "hello", Handler: func(context.Context, Invocation) error {
		called = true
		return nil
	}}}
	b.listeners = []Listener{{Event: "join", Priority: 3, Handler: func(context.Context, any) error { return nil }}}
	h.load(candidate("greeter"))

	require.NoError(t, h.manager.Enable(bg, "greeter"))

	require.NoError(t, h.commands.Dispatch(bg, Invocation{Command: "hello"}))
	assert.True(t, called)
	assert.Equal(t, 1, h.events.ListenerCount("join"))

	info, _ := h.manager.Info("greeter")
	assert.Equal(t, []string{"hello"}, info.Commands)
	assert.Equal(t, []string{"join"}, info.Listeners)
	assert.True(t, info.Enabled())

	require.NoError(t, h.manager.Disable(bg, "greeter"))
	_, _, found := h.commands.Lookup("hello")
	assert.False(t, found)
	assert.Equal(t, 0, h.events.ListenerCount("join"))
}

func TestDisable_CascadesDependentsFirst(t *testing.T) {
	h := newTestHost(t)
	h.load(candidate("A"), candidate("B", "A"))
	require.NoError(t, h.manager.Enable(bg, "A"))
	require.NoError(t, h.manager.Enable(bg, "B"))

	require.NoError(t, h.manager.Disable(bg, "A"))

	assert.Equal(t, []string{"b", "a"}, h.journal.filter("disable:"))
	assert.Equal(t, StateLoaded, h.manager.State("a"))
	assert.Equal(t, StateLoaded, h.manager.State("b"))
}

func TestCascadeDisable_LogsFailure(t *testing.T) {
	h := newTestHost(t)
	h.load(candidate("a"))
	require.NoError(t, h.manager.Enable(bg, "a"))
	require.NoError(t, h.manager.Disable(bg, "a"))
	assert.False(t, h.logger.HasMessage("ERROR", "Cascading disable failed"))

	h.manager.cascadeDisable(bg, "ghost", "a")
	assert.True(t, h.logger.HasMessage("ERROR", "Cascading disable failed"))
}

func TestDisable_DeepChain(t *testing.T) {
	h := newTestHost(t)
	h.load(candidate("a"), candidate("b", "a"), candidate("c", "b"), candidate("side"))
	require.NoError(t, h.manager.Enable(bg, "c"))
	require.NoError(t, h.manager.Enable(bg, "side"))

	require.NoError(t, h.manager.Disable(bg, "a"))

	assert.Equal(t, []string{"c", "b", "a"}, h.journal.filter("disable:"))
	assert.True(t, h.manager.IsEnabled("side"))
	enabled := h.manager.ListEnabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "side", enabled[0].ID)
}

func TestDisable_HookFailureStillDisables(t *testing.T) {
	h := newTestHost(t)
	b := h.module("a")
	b.disableErr = errors.New("flush failed")
	b.commands = []Command{{Name: "ping"}}
	h.load(candidate("a"))
	require.NoError(t, h.manager.Enable(bg, "a"))

	require.NoError(t, h.manager.Disable(bg, "a"))
	assert.Equal(t, StateLoaded, h.manager.State("a"))
	_, _, found := h.commands.Lookup("ping")
	assert.False(t, found)
	assert.True(t, h.logger.HasMessage("ERROR", "Module disable hook failed; releasing resources anyway"))
}

func TestDisable_NotEnabled(t *testing.T) {
	h := newTestHost(t)
	h.load(candidate("a"))

	assert.True(t, HasErrorCode(h.manager.Disable(bg, "a"), ErrCodeInvalidModuleState))
	assert.True(t, HasErrorCode(h.manager.Disable(bg, "ghost"), ErrCodeModuleNotFound))
}

func TestUnload_InUseWhateverTheState(t *testing.T) {
	h := newTestHost(t)
	h.load(candidate("core"), candidate("web", "core"))
	require.NoError(t, h.manager.Enable(bg, "core"))

	// web is only Loaded but still blocks the unload.
	err := h.manager.Unload(bg, "core")
	require.Error(t, err)
	assert.True(t, HasErrorCode(err, ErrCodeModuleInUse))
	assert.True(t, h.manager.IsEnabled("core"), "a refused unload changes nothing")
	assert.Empty(t, h.journal.filter("disable:"))

	require.NoError(t, h.manager.Unload(bg, "web"))
	require.NoError(t, h.manager.Unload(bg, "core"))

	assert.Equal(t, []string{"core"}, h.journal.filter("disable:"))
	assert.Equal(t, []string{"web", "core"}, h.journal.filter("unload:"))
	assert.Empty(t, h.manager.List())
	assert.Equal(t, 0, h.loader.OpenContexts())
	assert.Equal(t, StateUnloaded, h.manager.State("core"))
	assert.True(t, HasErrorCode(h.manager.Unload(bg, "core"), ErrCodeModuleNotFound))
}

func TestUnload_HookFailureRestoresRecord(t *testing.T) {
	h := newTestHost(t)
	h.module("b").unloadErr = errors.New("still busy")
	h.load(candidate("a"), candidate("b"), candidate("c"))
	events := recordEvents(h.manager)

	err := h.manager.Unload(bg, "b")
	require.Error(t, err)
	assert.True(t, HasErrorCode(err, ErrCodeUnloadFailure))

	ids := make([]string, 0, 3)
	for _, info := range h.manager.List() {
		ids = append(ids, info.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, 3, h.loader.OpenContexts())
	events.waitFor(t, EventModuleUnloadFailed, "b")
}

func TestReload_PreservesEnabledFlag(t *testing.T) {
	h := newTestHost(t)
	h.load(candidate("on"), candidate("off"))
	require.NoError(t, h.manager.Enable(bg, "on"))
	before, _ := h.manager.Get("on")
	h.journal.reset()

	require.NoError(t, h.manager.Reload(bg, "on"))
	require.NoError(t, h.manager.Reload(bg, "off"))

	assert.True(t, h.manager.IsEnabled("on"))
	assert.Equal(t, StateLoaded, h.manager.State("off"))

	after, _ := h.manager.Get("on")
	assert.NotSame(t, before, after, "reload creates a fresh instance")
	assert.Equal(t, []string{
		"disable:on", "unload:on", "load:on", "enable:on",
		"unload:off", "load:off",
	}, h.journal.all())
	assert.Equal(t, 2, h.loader.OpenContexts())
}

func TestReload_UsesRefreshedMetadata(t *testing.T) {
	source := NewStaticSource(candidate("a"))
	h := newTestHost(t, func(c *Config) { c.Source = source })
	h.module("a")
	_, err := h.manager.LoadAll(bg)
	require.NoError(t, err)

	updated := candidate("a")
	updated.Metadata["version"] = "2.0.0"
	source.Replace(updated)

	require.NoError(t, h.manager.Reload(bg, "a"))
	info, _ := h.manager.Info("a")
	assert.Equal(t, "2.0.0", info.Descriptor.Version())
}

func TestReload_ChangedIDIsRejected(t *testing.T) {
	source := NewStaticSource(candidate("a"))
	h := newTestHost(t, func(c *Config) { c.Source = source })
	h.module("a")
	_, err := h.manager.LoadAll(bg)
	require.NoError(t, err)

	renamed := candidate("b")
	renamed.Location = "builtin:a"
	source.Replace(renamed)

	err = h.manager.Reload(bg, "a")
	assert.True(t, HasErrorCode(err, ErrCodeInvalidDescriptor))
	assert.False(t, h.manager.IsLoaded("a"))
}

func TestReload_InUse(t *testing.T) {
	h := newTestHost(t)
	h.load(candidate("core"), candidate("web", "core"))

	err := h.manager.Reload(bg, "core")
	assert.True(t, HasErrorCode(err, ErrCodeModuleInUse))
	assert.True(t, h.manager.IsLoaded("core"))
	assert.Empty(t, h.journal.filter("unload:"))
}

func TestReload_LoadFailureLeavesModuleUnloaded(t *testing.T) {
	h := newTestHost(t)
	b := h.module("a")
	h.load(candidate("a"))
	b.loadErr = errors.New("config corrupt")

	err := h.manager.Reload(bg, "a")
	assert.True(t, HasErrorCode(err, ErrCodeLoadFailure))
	assert.False(t, h.manager.IsLoaded("a"))
	assert.Equal(t, 0, h.loader.OpenContexts())
}

func TestBulkOperations(t *testing.T) {
	h := newTestHost(t)
	h.module("broken").enableErr = errors.New("nope")
	h.load(candidate("a"), candidate("b", "a"), candidate("broken"), candidate("c", "broken"))

	result := h.manager.EnableAll(bg)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 2, result.Failed)
	assert.Contains(t, result.Errors, "broken")
	assert.Contains(t, result.Errors, "c")
	assert.Error(t, result.Err())
	assert.Equal(t, []string{"a", "b", "broken", "broken"}, h.journal.filter("enable:"))

	result = h.manager.DisableAll(bg)
	assert.Equal(t, 2, result.Succeeded)
	assert.NoError(t, result.Err())
	assert.Equal(t, []string{"b", "a"}, h.journal.filter("disable:"))

	require.NoError(t, h.manager.Enable(bg, "b"))
	result = h.manager.UnloadAll(bg)
	assert.Equal(t, 4, result.Succeeded)
	assert.Zero(t, result.Failed)
	assert.Equal(t, []string{"c", "broken", "b", "a"}, h.journal.filter("unload:"))
	assert.Empty(t, h.manager.List())
	assert.Equal(t, 0, h.loader.OpenContexts())
}

func TestQueries(t *testing.T) {
	h := newTestHost(t)
	h.load(candidate("core"), candidate("web", "core"), candidate("api", "core"))

	deps, err := h.manager.DependenciesOf("WEB")
	require.NoError(t, err)
	assert.Equal(t, []string{"core"}, deps)
	assert.Equal(t, []string{"web", "api"}, h.manager.DependentsOf("Core"))

	_, err = h.manager.DependenciesOf("ghost")
	assert.True(t, HasErrorCode(err, ErrCodeModuleNotFound))

	m, ok := h.manager.Get("web")
	require.True(t, ok)
	assert.IsType(t, &fakeModule{}, m)
	_, ok = h.manager.Get("ghost")
	assert.False(t, ok)
	assert.Equal(t, StateUnloaded, h.manager.State("ghost"))
}

func TestModuleContext(t *testing.T) {
	h := newTestHost(t)
	h.load(candidate("Greeter"))

	m, _ := h.manager.Get("greeter")
	mc := m.(*fakeModule).Context()
	require.NotNil(t, mc)

	assert.Equal(t, "greeter", mc.Descriptor().ID())
	assert.Equal(t, PermissionNode("greeter.admin"), mc.Permission("Admin"))
	assert.NotNil(t, mc.Logger())

	err := mc.RegisterCommand(Command{Name: "early"})
	assert.True(t, HasErrorCode(err, ErrCodeResourceRegistration), "resources wait for enable")

	cfg := mc.Config()
	require.NoError(t, cfg.EnsureDefaults(map[string]any{"greeting": "hello"}))
	assert.Equal(t, "hello", cfg.String("greeting"))
	assert.FileExists(t, cfg.Path())
	assert.Same(t, cfg, mc.Config())
}

func TestDisable_ReleasesResourcesNewestFirst(t *testing.T) {
	recorder := &recordingRegistries{journal: &journal{}}
	h := newTestHost(t, func(c *Config) {
		recorder.commands, recorder.events = c.Commands, c.Events
		c.Commands, c.Events = recorder, recorder
	})
	noop := func(context.Context, any) error { return nil }
	b := h.module("a")
	b.commands = []Command{{Name: "first"}, {Name: "second"}}
	b.listeners = []Listener{
		{ID: "on-tick", Event: "tick", Handler: noop},
		{ID: "on-tock", Event: "tock", Handler: noop},
	}
	h.load(candidate("a"))

	require.NoError(t, h.manager.Enable(bg, "a"))
	assert.Equal(t, []string{"first", "second", "on-tick", "on-tock"}, recorder.journal.filter("register:"))

	require.NoError(t, h.manager.Disable(bg, "a"))
	assert.Equal(t, []string{"on-tock", "on-tick", "second", "first"}, recorder.journal.filter("unregister:"))
	assert.Empty(t, h.commands.Names())
	assert.Zero(t, h.events.ListenerCount("tick"))
}

func TestUnload_CloseFailureRestoresRecord(t *testing.T) {
	var loader *closeFailingLoader
	h := newTestHost(t, func(c *Config) {
		loader = &closeFailingLoader{inner: c.Loader.(*BuiltinLoader)}
		c.Loader = loader
	})
	h.load(candidate("a"), candidate("b"), candidate("c"))
	events := recordEvents(h.manager)

	loader.failClose.Store(true)
	err := h.manager.Unload(bg, "b")
	require.Error(t, err)
	assert.True(t, HasErrorCode(err, ErrCodeUnloadFailure))

	info, ok := h.manager.Info("b")
	require.True(t, ok, "record must be restored")
	assert.Equal(t, StateLoaded, info.State)
	var ids []string
	for _, i := range h.manager.List() {
		ids = append(ids, i.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids, "restored at its original position")
	e := events.waitFor(t, EventModuleUnloadFailed, "b")
	assert.Equal(t, "close", e.Details["phase"])

	loader.failClose.Store(false)
	require.NoError(t, h.manager.Unload(bg, "b"))
	assert.False(t, h.manager.IsLoaded("b"))
}

func TestUnloadAll_DependencyLoadedInLaterPass(t *testing.T) {
	h := newTestHost(t)
	h.load(candidate("d", "x"))
	h.load(candidate("x"))

	result := h.manager.UnloadAll(bg)
	assert.Equal(t, 2, result.Succeeded)
	assert.Zero(t, result.Failed)
	assert.NoError(t, result.Err())
	assert.Equal(t, []string{"d", "x"}, h.journal.filter("unload:"))
	assert.Empty(t, h.manager.List())
	assert.Equal(t, 0, h.loader.OpenContexts())
}

func TestUnloadAll_PersistentFailureReportedOnce(t *testing.T) {
	h := newTestHost(t)
	h.module("stuck").unloadErr = errors.New("still flushing")
	h.load(candidate("a"), candidate("stuck"))

	result := h.manager.UnloadAll(bg)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Contains(t, result.Errors, "stuck")
	assert.True(t, HasErrorCode(result.Errors["stuck"], ErrCodeUnloadFailure))
	assert.True(t, h.manager.IsLoaded("stuck"))
	assert.Equal(t, 1, h.logger.Count("ERROR", "Failed to unload module"))
}

func TestLifecycle_ConcurrentCallsAreSerialized(t *testing.T) {
	h := newTestHost(t)
	tracker := &hookTracker{}
	h.module("core").tracker = tracker
	h.module("web").tracker = tracker
	h.load(candidate("core"), candidate("web", "core"))
	h.journal.reset()

	var enables, reloads atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			if h.manager.Enable(bg, "web") == nil {
				enables.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			_ = h.manager.Disable(bg, "core")
		}()
		go func() {
			defer wg.Done()
			if h.manager.Reload(bg, "web") == nil {
				reloads.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, tracker.overlaps.Load(), "hooks must never overlap")
	assert.Equal(t, int32(8), reloads.Load())
	assert.GreaterOrEqual(t, enables.Load(), int32(1))
	assert.Len(t, h.journal.filter("unload:"), 8)
	assert.Len(t, h.journal.filter("load:"), 8)

	// Every hook must follow the state machine, one call per transition.
	states := map[string]string{"core": "loaded", "web": "loaded"}
	next := map[string][2]string{
		"load":    {"unloaded", "loaded"},
		"enable":  {"loaded", "enabled"},
		"disable": {"enabled", "loaded"},
		"unload":  {"loaded", "unloaded"},
	}
	for _, entry := range h.journal.all() {
		var hook, id string
		for i := range entry {
			if entry[i] == ':' {
				hook, id = entry[:i], entry[i+1:]
				break
			}
		}
		step := next[hook]
		if states[id] != step[0] {
			t.Fatalf("%s ran while %s was %s", entry, id, states[id])
		}
		states[id] = step[1]
	}
	for id, state := range states {
		assert.Equal(t, state, h.manager.State(id).String(), id)
	}
}
