// Package modhost loads independently packaged modules at runtime,
// resolves their declared dependencies and drives their lifecycle:
// load, enable, disable, reload and unload.
//
// Key Features:
//   - Validated, immutable module descriptors built from manifest metadata
//   - Dependency-first load order with cycle detection and cycle paths
//   - Pluggable execution contexts (compiled-in factories, Go plugins)
//   - Cascading enable over dependencies and disable over dependents
//   - Atomic unload with in-use protection
//   - Per-module data directory and YAML configuration store
//   - Hot reload of modules whose manifest changes
//   - Audit trail and gRPC admin service
//
// Basic Usage:
//
//	loader := modhost.NewBuiltinLoader()
//	loader.Register("greeter.Module", func() any { return &Greeter{} })
//
//	source, _ := modhost.NewDirectorySource(modhost.DirectorySourceConfig{
//		Roots: []string{"modules"},
//	}, nil)
//
//	manager, err := modhost.NewManager(modhost.Config{Loader: loader, Source: source})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	report, err := manager.LoadAll(ctx)
//	if err != nil {
//		log.Fatal(err) // dependency cycle
//	}
//	manager.EnableAll(ctx)
//	defer manager.UnloadAll(ctx)
//
// A module manifest (module.yml) looks like:
//
//	id: greeter
//	name: Greeter
//	version: 1.2.0
//	main: greeter.Module
//	dependencies: [storage]
//	softDependencies: [metrics]
//
// Concurrency:
// Lifecycle operations are serialized by a single lock held for the whole
// cascade. Queries read the registry and may run concurrently with them.
// Module hooks run synchronously and must not call lifecycle methods.
//
// Copyright (c) 2025 AGILira - A. Giordano
// SPDX-License-Identifier: MPL-2.0
package modhost
