// Package modrt runs module entry points as embedded Lua scripts. A valid
// entry point defines global init(config), ready(), and shutdown() functions
// and may expose an `api` table of callable functions.
package modrt

import (
	"fmt"
	"sync"

	"github.com/Shopify/go-lua"
	"github.com/rs/zerolog"

	"github.com/systemshift/modex/pkg/registry"
)

// lifecycleFunctions must all be present for a module to load.
var lifecycleFunctions = []string{"init", "ready", "shutdown"}

// Loader creates Lua-backed module instances. It implements registry.Loader.
type Loader struct {
	log zerolog.Logger
}

// NewLoader creates a loader.
func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{log: log.With().Str("component", "modrt").Logger()}
}

// Load runs the entry-point script in a fresh interpreter and verifies the
// lifecycle interface.
func (l *Loader) Load(entryPath string) (registry.Instance, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)

	if err := lua.LoadFile(state, entryPath, ""); err != nil {
		return nil, fmt.Errorf("loading entry point %s: %w", entryPath, err)
	}
	if err := state.ProtectedCall(0, 0, 0); err != nil {
		return nil, fmt.Errorf("running entry point %s: %w", entryPath, err)
	}

	inst := &Instance{state: state, log: l.log}
	for _, name := range lifecycleFunctions {
		if !inst.globalIsFunction(name) {
			return nil, fmt.Errorf("entry point %s does not define %s()", entryPath, name)
		}
	}
	return inst, nil
}

// Instance is one live Lua module. The interpreter is single-threaded, so
// every entry into the state is serialized behind a mutex; concurrent
// callers block rather than corrupt the stack.
type Instance struct {
	mu    sync.Mutex
	state *lua.State
	log   zerolog.Logger
}

// Init calls the script's init function with the resolved configuration.
func (i *Instance) Init(config map[string]interface{}) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.state.Global("init")
	if config == nil {
		i.state.PushNil()
	} else {
		pushValue(i.state, config)
	}
	if err := i.state.ProtectedCall(1, 0, 0); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	return nil
}

// Ready calls the script's ready function.
func (i *Instance) Ready() error {
	return i.callGlobal("ready")
}

// Shutdown calls the script's shutdown function.
func (i *Instance) Shutdown() error {
	return i.callGlobal("shutdown")
}

// API returns the module's calling surface.
func (i *Instance) API() registry.API {
	return i
}

// Has reports whether the script's api table exposes method as a function.
func (i *Instance) Has(method string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.pushAPIFunction(method) {
		return false
	}
	i.state.Pop(1)
	return true
}

// Call invokes an api function with converted arguments and returns its
// first result converted back to a Go value.
func (i *Instance) Call(method string, args []interface{}) (interface{}, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.pushAPIFunction(method) {
		return nil, fmt.Errorf("method %s not implemented", method)
	}
	for _, arg := range args {
		pushValue(i.state, arg)
	}
	if err := i.state.ProtectedCall(len(args), 1, 0); err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	value := toGoValue(i.state, -1)
	i.state.Pop(1)
	return value, nil
}

func (i *Instance) callGlobal(name string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.state.Global(name)
	if err := i.state.ProtectedCall(0, 0, 0); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (i *Instance) globalIsFunction(name string) bool {
	i.state.Global(name)
	ok := i.state.TypeOf(-1) == lua.TypeFunction
	i.state.Pop(1)
	return ok
}

// pushAPIFunction leaves the api function on top of the stack and reports
// success; on failure the stack is left unchanged.
func (i *Instance) pushAPIFunction(method string) bool {
	i.state.Global("api")
	if i.state.TypeOf(-1) != lua.TypeTable {
		i.state.Pop(1)
		return false
	}
	i.state.Field(-1, method)
	if i.state.TypeOf(-1) != lua.TypeFunction {
		i.state.Pop(2)
		return false
	}
	i.state.Remove(-2)
	return true
}
