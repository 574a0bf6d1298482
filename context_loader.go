// context_loader.go: execution context abstraction and the built-in loader
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// ContextLoader opens an isolated execution context for one module.
//
// location is the module's code location as reported by its Source.
// Implementations decide what isolation means: a shared object, a
// compiled-in factory table, a subprocess.
type ContextLoader interface {
	Open(location string, d *Descriptor) (ExecutionContext, error)
}

// ExecutionContext owns the code and instances of exactly one module.
type ExecutionContext interface {
	// Instantiate resolves entryPoint and produces one instance.
	Instantiate(entryPoint string) (any, error)

	// Close releases the context. It must be safe to call once after a
	// failed Instantiate.
	Close() error
}

// Factory produces a fresh module instance.
type Factory func() any

// BuiltinLoader resolves entry points against factories compiled into
// the host binary. Each Open yields a new context, so two loads of the
// same entry point never share an instance.
type BuiltinLoader struct {
	mu        sync.RWMutex
	factories map[string]Factory
	open      atomic.Int64
}

// NewBuiltinLoader creates an empty loader.
func NewBuiltinLoader() *BuiltinLoader {
	return &BuiltinLoader{factories: make(map[string]Factory)}
}

// Register binds entryPoint to factory, replacing any previous binding.
func (l *BuiltinLoader) Register(entryPoint string, factory Factory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.factories[entryPoint] = factory
}

// EntryPoints lists the registered entry points, sorted.
func (l *BuiltinLoader) EntryPoints() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.factories))
	for ep := range l.factories {
		out = append(out, ep)
	}
	sort.Strings(out)
	return out
}

// OpenContexts returns how many contexts are open and not yet closed.
func (l *BuiltinLoader) OpenContexts() int {
	return int(l.open.Load())
}

func (l *BuiltinLoader) Open(location string, d *Descriptor) (ExecutionContext, error) {
	l.open.Add(1)
	return &builtinContext{loader: l, moduleID: d.ID()}, nil
}

type builtinContext struct {
	loader   *BuiltinLoader
	moduleID string

	mu        sync.Mutex
	instances []any
	closed    bool
}

func (c *builtinContext) Instantiate(entryPoint string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("execution context for %s is closed", c.moduleID)
	}

	c.loader.mu.RLock()
	factory, ok := c.loader.factories[entryPoint]
	c.loader.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("entry point %q is not registered", entryPoint)
	}

	var instance any
	if err := callHook(func() error {
		instance = factory()
		return nil
	}); err != nil {
		return nil, err
	}
	c.instances = append(c.instances, instance)
	return instance, nil
}

func (c *builtinContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.instances = nil
	c.loader.open.Add(-1)
	return nil
}
