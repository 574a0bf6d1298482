// host.go: host service contracts and in-memory implementations
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Command is a named action a module exposes to the host.
type Command struct {
	Name        string
	Description string
	Usage       string
	Aliases     []string
	Permission  string
	Handler     CommandHandler
}

// CommandHandler executes a command invocation.
type CommandHandler func(ctx context.Context, inv Invocation) error

// Invocation carries the caller and arguments of one command execution.
type Invocation struct {
	Command string
	Sender  string
	Args    []string
	Options map[string]string
}

// Listener subscribes a handler to a named event.
type Listener struct {
	ID       string
	Event    string
	Priority int
	Handler  EventHandler
}

// EventHandler receives an event payload.
type EventHandler func(ctx context.Context, payload any) error

// CommandRegistry is the host service receiving module commands.
// Commands are identified by name when unregistered.
type CommandRegistry interface {
	RegisterCommand(owner string, cmd Command) error
	UnregisterCommand(owner string, cmd Command) error
}

// EventRegistry is the host service receiving module listeners.
// Listeners are identified by ID when unregistered.
type EventRegistry interface {
	RegisterListener(owner string, l Listener) error
	UnregisterListener(owner string, l Listener) error
}

type commandEntry struct {
	owner string
	cmd   Command
}

// CommandTable is an in-memory CommandRegistry with dispatch. Names and
// aliases are case-insensitive and must be unique across modules.
type CommandTable struct {
	mu      sync.RWMutex
	entries map[string]commandEntry
	aliases map[string]string
}

// NewCommandTable creates an empty command table.
func NewCommandTable() *CommandTable {
	return &CommandTable{
		entries: make(map[string]commandEntry),
		aliases: make(map[string]string),
	}
}

func (t *CommandTable) RegisterCommand(owner string, cmd Command) error {
	name := strings.ToLower(strings.TrimSpace(cmd.Name))
	if name == "" {
		return fmt.Errorf("command name is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.entries[name]; ok {
		return fmt.Errorf("command %q already registered by %s", name, existing.owner)
	}
	if target, ok := t.aliases[name]; ok {
		return fmt.Errorf("command %q conflicts with an alias of %q", name, target)
	}
	for _, alias := range cmd.Aliases {
		alias = strings.ToLower(alias)
		if _, taken := t.entries[alias]; taken {
			return fmt.Errorf("alias %q conflicts with a registered command", alias)
		}
		if _, taken := t.aliases[alias]; taken {
			return fmt.Errorf("alias %q already registered", alias)
		}
	}

	t.entries[name] = commandEntry{owner: owner, cmd: cmd}
	for _, alias := range cmd.Aliases {
		t.aliases[strings.ToLower(alias)] = name
	}
	return nil
}

func (t *CommandTable) UnregisterCommand(owner string, cmd Command) error {
	name := strings.ToLower(strings.TrimSpace(cmd.Name))

	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[name]
	if !ok {
		return fmt.Errorf("command %q is not registered", name)
	}
	if entry.owner != owner {
		return fmt.Errorf("command %q is owned by %s", name, entry.owner)
	}
	delete(t.entries, name)
	for alias, target := range t.aliases {
		if target == name {
			delete(t.aliases, alias)
		}
	}
	return nil
}

// Lookup returns the command registered under name or alias.
func (t *CommandTable) Lookup(name string) (Command, string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	t.mu.RLock()
	defer t.mu.RUnlock()
	if target, ok := t.aliases[name]; ok {
		name = target
	}
	entry, ok := t.entries[name]
	return entry.cmd, entry.owner, ok
}

// Names returns the registered command names, sorted.
func (t *CommandTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the command's handler.
func (t *CommandTable) Dispatch(ctx context.Context, inv Invocation) error {
	cmd, _, ok := t.Lookup(inv.Command)
	if !ok {
		return fmt.Errorf("unknown command %q", inv.Command)
	}
	if cmd.Handler == nil {
		return nil
	}
	return callHook(func() error { return cmd.Handler(ctx, inv) })
}

type listenerEntry struct {
	owner    string
	listener Listener
	seq      uint64
}

// EventBus is an in-memory EventRegistry. Publish delivers to listeners
// by descending priority, then registration order.
type EventBus struct {
	mu        sync.RWMutex
	listeners map[string][]listenerEntry
	seq       uint64
	logger    Logger
}

// NewEventBus creates an empty bus. A nil logger is silent.
func NewEventBus(logger Logger) *EventBus {
	return &EventBus{
		listeners: make(map[string][]listenerEntry),
		logger:    NewLogger(logger),
	}
}

func (b *EventBus) RegisterListener(owner string, l Listener) error {
	if l.Event == "" {
		return fmt.Errorf("listener event is required")
	}
	if l.Handler == nil {
		return fmt.Errorf("listener handler is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.listeners[l.Event] {
		if e.listener.ID == l.ID {
			return fmt.Errorf("listener %q already registered", l.ID)
		}
	}
	b.seq++
	list := append(b.listeners[l.Event], listenerEntry{owner: owner, listener: l, seq: b.seq})
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].listener.Priority != list[j].listener.Priority {
			return list[i].listener.Priority > list[j].listener.Priority
		}
		return list[i].seq < list[j].seq
	})
	b.listeners[l.Event] = list
	return nil
}

func (b *EventBus) UnregisterListener(owner string, l Listener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.listeners[l.Event]
	for i, e := range list {
		if e.listener.ID == l.ID && e.owner == owner {
			b.listeners[l.Event] = append(list[:i:i], list[i+1:]...)
			if len(b.listeners[l.Event]) == 0 {
				delete(b.listeners, l.Event)
			}
			return nil
		}
	}
	return fmt.Errorf("listener %q is not registered for %q", l.ID, l.Event)
}

// ListenerCount returns how many listeners are subscribed to event.
func (b *EventBus) ListenerCount(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[event])
}

// Publish delivers payload synchronously. Handler errors and panics are
// logged and do not stop delivery; the number of failed handlers is returned.
func (b *EventBus) Publish(ctx context.Context, event string, payload any) int {
	b.mu.RLock()
	list := make([]listenerEntry, len(b.listeners[event]))
	copy(list, b.listeners[event])
	b.mu.RUnlock()

	failed := 0
	for _, e := range list {
		handler := e.listener.Handler
		if err := callHook(func() error { return handler(ctx, payload) }); err != nil {
			failed++
			b.logger.Warn("Event listener failed",
				"event", event,
				"module", e.owner,
				"listener", e.listener.ID,
				"error", err)
		}
	}
	return failed
}
