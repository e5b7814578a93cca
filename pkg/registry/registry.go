// Package registry discovers modules on disk, tracks their available, loaded
// and enabled state, persists enable/disable decisions, and owns the
// instantiation and teardown of module runtime instances.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/systemshift/modex/pkg/manifest"
)

// ConfigFilename is the optional per-module configuration file, resolved when
// the module is loaded and passed to its init function.
const ConfigFilename = "config.json"

// API is a module's exposed calling surface.
type API interface {
	Has(method string) bool
	Call(method string, args []interface{}) (interface{}, error)
}

// Instance is a live module runtime object.
type Instance interface {
	Init(config map[string]interface{}) error
	Ready() error
	Shutdown() error
	API() API
}

// Loader constructs a runtime instance from a module entry-point file. It
// must fail if the entry point does not expose the init/ready/shutdown
// lifecycle interface.
type Loader interface {
	Load(entryPath string) (Instance, error)
}

// Record is a discovered module: its descriptor, its directory, and (only
// while loaded) its runtime instance plus resolved configuration.
type Record struct {
	Descriptor manifest.Descriptor
	Dir        string

	instance Instance
	config   map[string]interface{}
}

// Loaded reports whether the record has a live runtime instance.
func (r *Record) Loaded() bool {
	return r.instance != nil
}

// Config returns the resolved configuration, or nil while unloaded.
func (r *Record) Config() map[string]interface{} {
	return r.config
}

// Registry tracks available modules and controls their lifecycle.
// Per-module state machine: Unknown -> Discovered -> Enabled&Loaded or
// Disabled&Unloaded.
type Registry struct {
	root   string
	store  *manifest.Store
	state  *StateFile
	loader Loader
	events *EventEmitter
	log    zerolog.Logger

	mu        sync.RWMutex
	available map[string]*Record
	enabled   map[string]bool
}

// New creates a registry over the given modules root directory. State is
// persisted to stateFile. No scan happens until Refresh is called.
func New(root string, stateFile *StateFile, loader Loader, log zerolog.Logger) *Registry {
	return &Registry{
		root:      root,
		store:     manifest.NewStore(),
		state:     stateFile,
		loader:    loader,
		events:    NewEventEmitter(),
		log:       log.With().Str("component", "registry").Logger(),
		available: make(map[string]*Record),
		enabled:   make(map[string]bool),
	}
}

// Events returns the registry's event emitter.
func (r *Registry) Events() *EventEmitter {
	return r.events
}

// Refresh performs a full rebuild of the available-module set: it rescans the
// modules root, replaces the set atomically, prunes persisted state for
// modules no longer on disk, and auto-loads every enabled module that is not
// yet loaded. Unseen modules default to enabled.
func (r *Registry) Refresh() error {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return fmt.Errorf("scanning modules root %s: %w", r.root, err)
	}

	discovered := make(map[string]*Record)
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(r.root, entry.Name())
		res := r.store.Load(filepath.Join(dir, manifest.Filename))
		if !res.OK() {
			r.log.Debug().Str("dir", dir).Msg(res.Message())
			continue
		}
		desc := res.Value()
		if _, dup := discovered[desc.ID]; dup {
			r.log.Warn().Str("module", desc.ID).Str("dir", dir).
				Msg("duplicate module id, keeping first")
			continue
		}
		discovered[desc.ID] = &Record{Descriptor: desc, Dir: dir}
	}

	// Replace the available set atomically, carrying live instances over for
	// modules that are still present and collecting the ones that vanished.
	r.mu.Lock()
	var vanished []*Record
	for id, old := range r.available {
		if !old.Loaded() {
			continue
		}
		if current, ok := discovered[id]; ok {
			current.instance = old.instance
			current.config = old.config
		} else {
			vanished = append(vanished, old)
		}
	}
	r.available = discovered
	r.mu.Unlock()

	for _, rec := range vanished {
		id := rec.Descriptor.ID
		if err := rec.instance.Shutdown(); err != nil {
			r.log.Warn().Str("module", id).Err(err).Msg("shutdown of removed module failed")
		}
		rec.instance = nil
		rec.config = nil
		r.events.Emit(Event{Type: EventModuleUnloaded, ModuleID: id})
	}

	states, err := r.state.Load()
	if err != nil {
		return fmt.Errorf("loading module states: %w", err)
	}

	changed := false
	for id := range states {
		if _, ok := discovered[id]; !ok {
			delete(states, id)
			changed = true
		}
	}
	for id := range discovered {
		if _, ok := states[id]; !ok {
			states[id] = true
			changed = true
		}
	}
	if changed {
		if err := r.state.Save(states); err != nil {
			return fmt.Errorf("saving module states: %w", err)
		}
	}

	r.mu.Lock()
	r.enabled = states
	r.mu.Unlock()

	for _, id := range sortedIDs(states) {
		if states[id] && !r.Loaded(id) {
			r.Load(id)
		}
	}

	r.events.Emit(Event{Type: EventRefreshed})
	return nil
}

// SetEnabled persists the enabled flag for a known module, then loads or
// unloads it to match. The flag stays persisted even when the load/unload
// itself fails; the failure is reported through the false return.
func (r *Registry) SetEnabled(id string, enabled bool) bool {
	r.mu.Lock()
	if _, ok := r.available[id]; !ok {
		r.mu.Unlock()
		r.log.Warn().Str("module", id).Msg("set_enabled: unknown module")
		return false
	}
	r.enabled[id] = enabled
	states := make(map[string]bool, len(r.enabled))
	for k, v := range r.enabled {
		states[k] = v
	}
	r.mu.Unlock()

	if err := r.state.Save(states); err != nil {
		r.log.Error().Str("module", id).Err(err).Msg("persisting module state failed")
		return false
	}

	if enabled && !r.Loaded(id) {
		return r.Load(id)
	}
	if !enabled && r.Loaded(id) {
		return r.Unload(id)
	}
	return true
}

// Load constructs the runtime instance for a module. Success is a no-op when
// the module is already loaded. A failed load leaves the module discovered
// but unloaded; it is never fatal to the process.
func (r *Registry) Load(id string) bool {
	r.mu.Lock()
	rec, ok := r.available[id]
	if !ok {
		r.mu.Unlock()
		r.log.Warn().Str("module", id).Msg("load: unknown module")
		return false
	}
	if rec.Loaded() {
		r.mu.Unlock()
		return true
	}
	dir := rec.Dir
	entryPoint := rec.Descriptor.EntryPoint
	r.mu.Unlock()

	entry := filepath.Join(dir, entryPoint)
	if info, err := os.Stat(entry); entryPoint == "" || err != nil || info.IsDir() {
		r.log.Warn().Str("module", id).Str("entry", entry).Msg("load: entry point missing")
		return false
	}

	inst, err := r.loader.Load(entry)
	if err != nil {
		r.log.Warn().Str("module", id).Err(err).Msg("load failed")
		return false
	}

	config := r.resolveConfig(id, dir)
	if err := inst.Init(config); err != nil {
		r.log.Warn().Str("module", id).Err(err).Msg("module init failed")
		return false
	}
	if err := inst.Ready(); err != nil {
		r.log.Warn().Str("module", id).Err(err).Msg("module ready failed")
		return false
	}

	r.mu.Lock()
	// The record may have been replaced by a concurrent refresh; re-resolve.
	rec, ok = r.available[id]
	if !ok || rec.Loaded() {
		r.mu.Unlock()
		if inst != nil {
			inst.Shutdown()
		}
		return ok
	}
	rec.instance = inst
	rec.config = config
	r.mu.Unlock()

	r.events.Emit(Event{Type: EventModuleLoaded, ModuleID: id})
	return true
}

// Unload tears down a loaded module instance. Fails if the module is not
// loaded. Teardown completes even when the module's shutdown hook errors;
// the error is still reported through the false return.
func (r *Registry) Unload(id string) bool {
	r.mu.Lock()
	rec, ok := r.available[id]
	if !ok || !rec.Loaded() {
		r.mu.Unlock()
		r.log.Warn().Str("module", id).Msg("unload: module not loaded")
		return false
	}
	inst := rec.instance
	rec.instance = nil
	rec.config = nil
	r.mu.Unlock()

	err := inst.Shutdown()
	r.events.Emit(Event{Type: EventModuleUnloaded, ModuleID: id, Err: err})
	if err != nil {
		r.log.Warn().Str("module", id).Err(err).Msg("module shutdown failed")
		return false
	}
	return true
}

// API returns the exposed API of a loaded module. ok is false when the module
// is unknown or not loaded; it never panics.
func (r *Registry) API(id string) (API, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.available[id]
	if !ok || !rec.Loaded() {
		return nil, false
	}
	return rec.instance.API(), true
}

// Enabled reports the persisted enabled flag for a module.
func (r *Registry) Enabled(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled[id]
}

// Loaded reports whether a module has a live instance.
func (r *Registry) Loaded(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.available[id]
	return ok && rec.Loaded()
}

// Record returns the discovery record for a module.
func (r *Registry) Record(id string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.available[id]
	return rec, ok
}

// Records returns all discovered modules sorted by id.
func (r *Registry) Records() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]*Record, 0, len(r.available))
	for _, rec := range r.available {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Descriptor.ID < records[j].Descriptor.ID
	})
	return records
}

// resolveConfig loads the module's optional config file. A malformed config
// is logged and treated as absent.
func (r *Registry) resolveConfig(id, dir string) map[string]interface{} {
	data, err := os.ReadFile(filepath.Join(dir, ConfigFilename))
	if err != nil {
		return nil
	}
	var config map[string]interface{}
	if err := json.Unmarshal(data, &config); err != nil {
		r.log.Warn().Str("module", id).Err(err).Msg("invalid module config, ignoring")
		return nil
	}
	return config
}

func sortedIDs(states map[string]bool) []string {
	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
