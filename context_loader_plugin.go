// context_loader_plugin.go: execution contexts backed by Go plugin shared objects
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"strings"
)

// DefaultLibraryName is the shared object looked up when the manifest
// has no "library" field.
const DefaultLibraryName = "module.so"

// SharedObjectLoader opens modules built with -buildmode=plugin.
//
// The library path is <location>/<library>, where library comes from the
// manifest field of the same name. The entry point names an exported
// symbol that is either a factory (func() any, func() Module) or a value
// implementing Module.
//
// The Go runtime cannot unload a plugin: Close only drops the handle, and
// reloading an unchanged path yields the same already-loaded code.
type SharedObjectLoader struct{}

// NewSharedObjectLoader creates a shared object loader.
func NewSharedObjectLoader() *SharedObjectLoader {
	return &SharedObjectLoader{}
}

func (l *SharedObjectLoader) Open(location string, d *Descriptor) (ExecutionContext, error) {
	library := DefaultLibraryName
	if v, ok := d.Metadata("library"); ok {
		if s := stringValue(v); s != "" {
			library = s
		}
	}
	if filepath.IsAbs(library) || strings.Contains(filepath.ToSlash(library), "../") {
		return nil, fmt.Errorf("library %q must be relative to the module location", library)
	}

	path := filepath.Join(location, library)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("module library: %w", err)
	}

	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &sharedObjectContext{path: path, plugin: p}, nil
}

type sharedObjectContext struct {
	path   string
	plugin *plugin.Plugin
}

func (c *sharedObjectContext) Instantiate(entryPoint string) (any, error) {
	if c.plugin == nil {
		return nil, fmt.Errorf("execution context for %s is closed", c.path)
	}
	sym, err := c.plugin.Lookup(entryPoint)
	if err != nil {
		return nil, err
	}

	switch f := sym.(type) {
	case func() any:
		return f(), nil
	case *func() any:
		return (*f)(), nil
	case func() Module:
		return f(), nil
	case *func() Module:
		return (*f)(), nil
	default:
		// Exported variables arrive as pointers; a *T implementing
		// Module is returned as is.
		return sym, nil
	}
}

func (c *sharedObjectContext) Close() error {
	c.plugin = nil
	return nil
}
