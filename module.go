// module.go: module contract, lifecycle states and the per-module context
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"context"
	"fmt"
	"sync"
)

// Module is the contract every module instance must satisfy.
//
// Hooks run synchronously on the goroutine driving the lifecycle
// operation. A hook must not call back into the Manager's lifecycle
// methods; that would deadlock on the lifecycle lock.
type Module interface {
	// OnLoad runs once after instantiation. mc stays valid until unload.
	OnLoad(ctx context.Context, mc *ModuleContext) error

	// OnEnable runs on every Loaded -> Enabled transition. Commands and
	// listeners are registered here through the ModuleContext.
	OnEnable(ctx context.Context) error

	// OnDisable runs on every Enabled -> Loaded transition. Registered
	// resources are released by the host afterwards.
	OnDisable(ctx context.Context) error

	// OnUnload runs once before the execution context is released.
	OnUnload(ctx context.Context) error
}

// BaseModule provides no-op hooks and keeps the ModuleContext. Embed it
// and override only the hooks you need.
//
//	type Greeter struct{ modhost.BaseModule }
//
//	func (g *Greeter) OnEnable(ctx context.Context) error {
//	    return g.Context().RegisterCommand(modhost.Command{Name: "hello"})
//	}
type BaseModule struct {
	mc *ModuleContext
}

func (b *BaseModule) OnLoad(_ context.Context, mc *ModuleContext) error {
	b.mc = mc
	return nil
}

func (b *BaseModule) OnEnable(context.Context) error  { return nil }
func (b *BaseModule) OnDisable(context.Context) error { return nil }
func (b *BaseModule) OnUnload(context.Context) error  { return nil }

// Context returns the ModuleContext received by OnLoad.
func (b *BaseModule) Context() *ModuleContext { return b.mc }

// ModuleState is the lifecycle position of a module.
type ModuleState int32

const (
	// StateUnloaded means there is no record for the id.
	StateUnloaded ModuleState = iota
	// StateLoaded means instantiated but disabled.
	StateLoaded
	// StateEnabling is held while OnEnable runs.
	StateEnabling
	// StateEnabled means OnEnable succeeded.
	StateEnabled
	// StateDisabling is held while OnDisable runs.
	StateDisabling
)

func (s ModuleState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateEnabling:
		return "enabling"
	case StateEnabled:
		return "enabled"
	case StateDisabling:
		return "disabling"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ModuleContext is what the host hands to a module: its descriptor,
// logger, private data directory, configuration store and the resource
// registration entry points.
type ModuleContext struct {
	record     *ModuleRecord
	logger     Logger
	commands   CommandRegistry
	events     EventRegistry
	configName string

	configOnce sync.Once
	config     *ModuleConfig
}

// Descriptor returns the module's descriptor.
func (mc *ModuleContext) Descriptor() *Descriptor { return mc.record.descriptor }

// Logger returns a logger scoped to the module.
func (mc *ModuleContext) Logger() Logger { return mc.logger }

// DataDir returns the module's private directory.
func (mc *ModuleContext) DataDir() string { return mc.record.dataDir }

// Config returns the module's configuration store, loading it from the
// data directory on first use.
func (mc *ModuleContext) Config() *ModuleConfig {
	mc.configOnce.Do(func() {
		mc.config = OpenModuleConfig(mc.record.dataDir, mc.configName, mc.logger)
	})
	return mc.config
}

// Permission returns a permission node scoped to this module,
// e.g. "economy.balance.view" for Permission("balance.view").
func (mc *ModuleContext) Permission(name string) PermissionNode {
	return NewPermissionNode(mc.record.descriptor.ID() + "." + name)
}

// RegisterCommand forwards cmd to the host command registry and records
// it for release on disable. Only allowed while enabling or enabled.
func (mc *ModuleContext) RegisterCommand(cmd Command) error {
	return mc.record.addResource(resource{kind: resourceCommand, command: cmd}, func() error {
		return mc.commands.RegisterCommand(mc.record.descriptor.ID(), cmd)
	})
}

// RegisterListener forwards l to the host event registry and records it
// for release on disable. The returned Listener carries its assigned ID.
func (mc *ModuleContext) RegisterListener(l Listener) (Listener, error) {
	if l.ID == "" {
		l.ID = newEventID()
	}
	err := mc.record.addResource(resource{kind: resourceListener, listener: l}, func() error {
		return mc.events.RegisterListener(mc.record.descriptor.ID(), l)
	})
	return l, err
}

func typeName(v any) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", v)
}
