// manager.go: module manager construction and load passes
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"context"
	"os"
	"path/filepath"
	"sync"
)

// DefaultDataDir is where module data directories are created when the
// configuration leaves it empty.
const DefaultDataDir = "modules-data"

// Config wires a Manager to its collaborators. Only Loader is required.
type Config struct {
	// Loader opens execution contexts. Required.
	Loader ContextLoader

	// Source feeds LoadAll. Optional when candidates are passed to
	// LoadCandidates directly.
	Source Source

	// Commands and Events receive module resources. In-memory
	// implementations are used when nil.
	Commands CommandRegistry
	Events   EventRegistry

	// Logger receives lifecycle logs; nil is silent.
	Logger any

	// DataDir is the parent of every module's private directory.
	DataDir string

	// ConfigFileName is the base name of each module's YAML config.
	ConfigFileName string

	// OrderSoftDependencies also orders present soft dependencies first.
	OrderSoftDependencies bool
}

// Manager drives module lifecycles. Lifecycle operations are serialized
// by one lock; queries only touch the registry and never wait for a
// running operation.
type Manager struct {
	loader     ContextLoader
	source     Source
	commands   CommandRegistry
	events     EventRegistry
	logger     Logger
	dataDir    string
	configName string
	softOrder  bool

	registry *Registry
	notifier *eventDispatcher

	lifecycleMu sync.Mutex
}

// NewManager creates a manager. It fails when no loader is configured.
func NewManager(config Config) (*Manager, error) {
	if config.Loader == nil {
		return nil, NewConfigValidationError("module loader is required", nil)
	}
	logger := NewLogger(config.Logger)

	m := &Manager{
		loader:     config.Loader,
		source:     config.Source,
		commands:   config.Commands,
		events:     config.Events,
		logger:     logger,
		dataDir:    config.DataDir,
		configName: config.ConfigFileName,
		softOrder:  config.OrderSoftDependencies,
		registry:   NewRegistry(),
		notifier:   newEventDispatcher(logger),
	}
	if m.commands == nil {
		m.commands = NewCommandTable()
	}
	if m.events == nil {
		m.events = NewEventBus(logger)
	}
	if m.dataDir == "" {
		m.dataDir = DefaultDataDir
	}
	if m.configName == "" {
		m.configName = DefaultModuleConfigName
	}
	return m, nil
}

// Subscribe registers a lifecycle event handler and returns a function
// removing it.
func (m *Manager) Subscribe(handler LifecycleEventHandler) func() {
	return m.notifier.subscribe(handler)
}

// Commands returns the command registry modules register into.
func (m *Manager) Commands() CommandRegistry { return m.commands }

// Events returns the event registry modules register into.
func (m *Manager) Events() EventRegistry { return m.events }

// LoadFailure pairs a candidate with the error that kept it out.
type LoadFailure struct {
	ID       string
	Location string
	Err      error
}

// LoadReport summarizes one load pass.
type LoadReport struct {
	// Order is the dependency-first order the pass attempted.
	Order []string
	// Loaded lists the ids that reached Loaded, in load order.
	Loaded []string
	// Failed lists the candidates rejected or failed, in attempt order.
	Failed []LoadFailure
}

// FailureFor returns the first failure recorded for id.
func (r *LoadReport) FailureFor(id string) (LoadFailure, bool) {
	for _, f := range r.Failed {
		if f.ID == id {
			return f, true
		}
	}
	return LoadFailure{}, false
}

// LoadAll runs a load pass over the configured Source.
func (m *Manager) LoadAll(ctx context.Context) (*LoadReport, error) {
	if m.source == nil {
		return nil, NewDiscoveryError("no module source configured", nil)
	}
	candidates, err := m.source.Candidates(ctx)
	if err != nil {
		return nil, NewDiscoveryError("failed to list module candidates", err)
	}
	return m.LoadCandidates(ctx, candidates)
}

// Load runs a load pass over a single candidate.
func (m *Manager) Load(ctx context.Context, c Candidate) error {
	report, err := m.LoadCandidates(ctx, []Candidate{c})
	if err != nil {
		return err
	}
	if len(report.Failed) > 0 {
		return report.Failed[0].Err
	}
	return nil
}

// LoadCandidates runs one load pass: descriptors are built, ordered by
// dependency and loaded one by one. A bad candidate is recorded in the
// report and never stops the pass; a dependency cycle fails the whole
// pass before anything is loaded.
func (m *Manager) LoadCandidates(ctx context.Context, candidates []Candidate) (*LoadReport, error) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	type pending struct {
		descriptor *Descriptor
		candidate  Candidate
	}

	report := &LoadReport{}
	descriptors := make([]*Descriptor, 0, len(candidates))
	byID := make(map[string][]pending, len(candidates))

	for _, c := range candidates {
		d, err := NewDescriptor(c.Metadata)
		if err != nil {
			m.logger.Error("Rejected module descriptor", "location", c.Location, "error", err)
			report.Failed = append(report.Failed, LoadFailure{ID: NormalizeModuleID(stringValue(c.Metadata["id"])), Location: c.Location, Err: err})
			m.notifier.emit(EventModuleLoadFailed, "", err, map[string]any{"location": c.Location})
			continue
		}
		descriptors = append(descriptors, d)
		byID[d.ID()] = append(byID[d.ID()], pending{descriptor: d, candidate: c})
	}

	opts := []GraphOption{WithGraphLogger(m.logger), WithKnown(m.registry.IDs()...)}
	if m.softOrder {
		opts = append(opts, WithSoftOrdering())
	}
	order, err := BuildGraph(descriptors, opts...).TopologicalSort()
	if err != nil {
		cycle, _ := CyclePath(err)
		m.logger.Error("Dependency cycle aborts load pass", "cycle", cycle)
		m.notifier.emit(EventDependencyCycle, "", err, map[string]any{"cycle": cycle})
		return report, err
	}
	report.Order = order

	// Later candidates with an already seen id are attempted right after
	// the first one and fail as duplicates.
	for _, id := range order {
		for _, p := range byID[id] {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if err := m.load(ctx, p.descriptor, p.candidate); err != nil {
				report.Failed = append(report.Failed, LoadFailure{ID: id, Location: p.candidate.Location, Err: err})
				continue
			}
			report.Loaded = append(report.Loaded, id)
		}
	}

	m.logger.Info("Module load pass completed",
		"loaded", len(report.Loaded),
		"failed", len(report.Failed))
	m.notifier.emit(EventLoadPassCompleted, "", nil, map[string]any{
		"loaded": copyStrings(report.Loaded),
		"failed": len(report.Failed),
	})
	return report, nil
}

// load instantiates one module and registers its record as Loaded.
func (m *Manager) load(ctx context.Context, d *Descriptor, c Candidate) error {
	id := d.ID()
	logger := m.logger.With("module", id)

	if m.registry.Has(id) {
		err := NewDuplicateModuleError(id)
		logger.Error("Module already loaded", "location", c.Location)
		m.notifier.emit(EventModuleLoadFailed, id, err, nil)
		return err
	}

	fail := func(err error) error {
		logger.Error("Failed to load module", "location", c.Location, "error", err)
		m.notifier.emit(EventModuleLoadFailed, id, err, map[string]any{"location": c.Location})
		return err
	}

	ec, err := m.loader.Open(c.Location, d)
	if err != nil {
		return fail(NewLoadFailureError(id, "open", err))
	}

	instance, err := ec.Instantiate(d.EntryPoint())
	if err != nil {
		m.closeContext(logger, ec)
		return fail(NewLoadFailureError(id, "instantiate", err).WithContext("entry_point", d.EntryPoint()))
	}
	module, ok := instance.(Module)
	if !ok {
		m.closeContext(logger, ec)
		return fail(NewContractViolationError(id, d.EntryPoint(), instance))
	}

	dataDir := filepath.Join(m.dataDir, id)
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		logger.Warn("Failed to create module data directory", "path", dataDir, "error", err)
	}

	rec := newModuleRecord(d, c, dataDir, ec, module)
	rec.modCtx = &ModuleContext{
		record:     rec,
		logger:     logger,
		commands:   m.commands,
		events:     m.events,
		configName: m.configName,
	}

	if err := callHook(func() error { return module.OnLoad(ctx, rec.modCtx) }); err != nil {
		m.closeContext(logger, ec)
		return fail(NewLoadFailureError(id, "on_load", err))
	}

	if err := m.registry.Add(rec); err != nil {
		m.closeContext(logger, ec)
		return fail(err)
	}

	logger.Info("Module loaded", "version", d.Version(), "location", c.Location)
	m.notifier.emit(EventModuleLoaded, id, nil, map[string]any{"version": d.Version()})
	return nil
}

func (m *Manager) closeContext(logger Logger, ec ExecutionContext) {
	if err := ec.Close(); err != nil {
		logger.Warn("Failed to release execution context", "error", err)
	}
}
