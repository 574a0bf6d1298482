// record.go: per-module runtime record
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

type resourceKind uint8

const (
	resourceCommand resourceKind = iota + 1
	resourceListener
)

func (k resourceKind) String() string {
	if k == resourceCommand {
		return "command"
	}
	return "listener"
}

type resource struct {
	kind     resourceKind
	command  Command
	listener Listener
}

func (r resource) name() string {
	if r.kind == resourceCommand {
		return r.command.Name
	}
	return r.listener.Event + "#" + r.listener.ID
}

// ModuleRecord is the runtime state of one loaded module. Only the
// Manager changes it; the mutex exists so queries can read it while a
// lifecycle operation is running.
type ModuleRecord struct {
	descriptor *Descriptor
	location   string
	manifest   string
	dataDir    string
	execCtx    ExecutionContext
	instance   Module
	modCtx     *ModuleContext

	mu        sync.RWMutex
	state     ModuleState
	resources []resource
	loadedAt  time.Time
	enabledAt time.Time
}

func newModuleRecord(d *Descriptor, c Candidate, dataDir string, ec ExecutionContext, m Module) *ModuleRecord {
	return &ModuleRecord{
		descriptor: d,
		location:   c.Location,
		manifest:   c.ManifestPath,
		dataDir:    dataDir,
		execCtx:    ec,
		instance:   m,
		state:      StateLoaded,
		loadedAt:   timecache.CachedTime(),
	}
}

func (r *ModuleRecord) State() ModuleState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *ModuleRecord) setState(s ModuleState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
	switch s {
	case StateEnabled:
		r.enabledAt = timecache.CachedTime()
	case StateLoaded:
		r.enabledAt = time.Time{}
	}
}

// addResource runs register and tracks res when the module may register
// resources and register succeeds.
func (r *ModuleRecord) addResource(res resource, register func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateEnabling && r.state != StateEnabled {
		return NewResourceRegistrationError(r.descriptor.ID(), res.kind.String()+" "+res.name(), nil).
			WithContext("state", r.state.String())
	}
	if err := register(); err != nil {
		return NewResourceRegistrationError(r.descriptor.ID(), res.kind.String()+" "+res.name(), err)
	}
	r.resources = append(r.resources, res)
	return nil
}

// takeResources empties the resource list and returns it newest first.
func (r *ModuleRecord) takeResources() []resource {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]resource, len(r.resources))
	for i, res := range r.resources {
		out[len(r.resources)-1-i] = res
	}
	r.resources = nil
	return out
}

func (r *ModuleRecord) info() ModuleInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info := ModuleInfo{
		ID:           r.descriptor.ID(),
		Descriptor:   r.descriptor,
		State:        r.state,
		Location:     r.location,
		ManifestPath: r.manifest,
		DataDir:      r.dataDir,
		LoadedAt:     r.loadedAt,
		EnabledAt:    r.enabledAt,
	}
	for _, res := range r.resources {
		switch res.kind {
		case resourceCommand:
			info.Commands = append(info.Commands, res.command.Name)
		case resourceListener:
			info.Listeners = append(info.Listeners, res.listener.Event)
		}
	}
	return info
}

// ModuleInfo is a point-in-time snapshot of a module record.
type ModuleInfo struct {
	ID           string
	Descriptor   *Descriptor
	State        ModuleState
	Location     string
	ManifestPath string
	DataDir      string
	LoadedAt     time.Time
	EnabledAt    time.Time
	Commands     []string
	Listeners    []string
}

// Enabled reports whether the module was enabled when the snapshot was taken.
func (i ModuleInfo) Enabled() bool { return i.State == StateEnabled }
