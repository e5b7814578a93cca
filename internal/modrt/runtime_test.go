package modrt

import (
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

const boostModule = `
local active = false
local multiplier = 1.5

function init(config)
    if config and config.multiplier then
        multiplier = config.multiplier
    end
end

function ready()
end

function shutdown()
    active = false
end

api = {
    activate_boost = function()
        active = true
        return true
    end,
    get_boost_multiplier = function()
        return multiplier
    end,
    is_active = function()
        return active
    end,
    get_boost_status = function()
        return { active = active, multiplier = multiplier }
    end,
    echo = function(value)
        return value
    end,
    fail = function()
        error("intentional")
    end,
}
`

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.lua")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadBoost(t *testing.T) *Instance {
	t.Helper()
	inst, err := NewLoader(zerolog.Nop()).Load(writeScript(t, boostModule))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return inst.(*Instance)
}

func TestLoadLifecycle(t *testing.T) {
	inst := loadBoost(t)

	if err := inst.Init(nil); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := inst.Ready(); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if err := inst.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestLoadRejectsIncompleteLifecycle(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"no functions", `x = 1`},
		{"missing shutdown", "function init(c) end\nfunction ready() end"},
		{"init not a function", "init = 42\nfunction ready() end\nfunction shutdown() end"},
	}

	loader := NewLoader(zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loader.Load(writeScript(t, tt.script)); err == nil {
				t.Error("expected load failure")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	if _, err := loader.Load(filepath.Join(t.TempDir(), "absent.lua")); err == nil {
		t.Error("expected load failure")
	}
}

func TestLoadSyntaxError(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	if _, err := loader.Load(writeScript(t, "function init(")); err == nil {
		t.Error("expected load failure")
	}
}

func TestInitAppliesConfig(t *testing.T) {
	inst := loadBoost(t)

	if err := inst.Init(map[string]interface{}{"multiplier": 3.0}); err != nil {
		t.Fatalf("init: %v", err)
	}
	got, err := inst.Call("get_boost_multiplier", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != 3.0 {
		t.Errorf("got %v, want 3.0", got)
	}
}

func TestHas(t *testing.T) {
	inst := loadBoost(t)

	if !inst.Has("activate_boost") {
		t.Error("activate_boost not found")
	}
	if inst.Has("nonexistent") {
		t.Error("nonexistent method reported present")
	}
}

func TestHasWithoutAPITable(t *testing.T) {
	script := "function init(c) end\nfunction ready() end\nfunction shutdown() end"
	inst, err := NewLoader(zerolog.Nop()).Load(writeScript(t, script))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if inst.API().Has("anything") {
		t.Error("method reported present without api table")
	}
}

func TestCallStateful(t *testing.T) {
	inst := loadBoost(t)
	if err := inst.Init(nil); err != nil {
		t.Fatal(err)
	}

	got, err := inst.Call("is_active", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != false {
		t.Errorf("got %v, want false before activation", got)
	}

	if _, err := inst.Call("activate_boost", nil); err != nil {
		t.Fatalf("call: %v", err)
	}

	got, err = inst.Call("is_active", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != true {
		t.Errorf("got %v, want true after activation", got)
	}
}

func TestCallConvertsArguments(t *testing.T) {
	inst := loadBoost(t)

	tests := []struct {
		name string
		arg  interface{}
		want interface{}
	}{
		{"string", "hello", "hello"},
		{"number", 2.5, 2.5},
		{"int", 7, 7.0},
		{"bool", true, true},
		{"nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := inst.Call("echo", []interface{}{tt.arg})
			if err != nil {
				t.Fatalf("call: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestCallReturnsTable(t *testing.T) {
	inst := loadBoost(t)
	if err := inst.Init(map[string]interface{}{"multiplier": 2.0}); err != nil {
		t.Fatal(err)
	}

	got, err := inst.Call("get_boost_status", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	want := map[string]interface{}{"active": false, "multiplier": 2.0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCallTableArgument(t *testing.T) {
	inst := loadBoost(t)

	got, err := inst.Call("echo", []interface{}{
		map[string]interface{}{"key": "value", "count": 2.0},
	})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	want := map[string]interface{}{"key": "value", "count": 2.0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCallArrayArgument(t *testing.T) {
	inst := loadBoost(t)

	got, err := inst.Call("echo", []interface{}{
		[]interface{}{"a", "b"},
	})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	// Lua arrays come back as tables keyed by their 1-based index.
	want := map[string]interface{}{"1": "a", "2": "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCallScriptError(t *testing.T) {
	inst := loadBoost(t)

	if _, err := inst.Call("fail", nil); err == nil {
		t.Error("expected script error")
	}
	// The interpreter stays usable after a protected-call failure.
	if _, err := inst.Call("is_active", nil); err != nil {
		t.Errorf("instance broken after script error: %v", err)
	}
}

func TestConcurrentCalls(t *testing.T) {
	inst := loadBoost(t)
	if err := inst.Init(nil); err != nil {
		t.Fatal(err)
	}

	// The daemon serves invokes from concurrent HTTP requests; every entry
	// into the interpreter must serialize on the instance.
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 500; n++ {
				got, err := inst.API().Call("get_boost_multiplier", nil)
				if err != nil {
					t.Errorf("call: %v", err)
					return
				}
				if got != 1.5 {
					t.Errorf("got %v, want 1.5", got)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestShutdownDuringCalls(t *testing.T) {
	inst := loadBoost(t)
	if err := inst.Init(nil); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for n := 0; n < 200; n++ {
			inst.API().Call("is_active", nil)
			inst.API().Has("activate_boost")
		}
	}()

	// A refresh can tear down the instance while calls are in flight.
	if err := inst.Shutdown(); err != nil {
		t.Errorf("shutdown: %v", err)
	}
	<-done
}

func TestCallMissingMethod(t *testing.T) {
	inst := loadBoost(t)

	if _, err := inst.Call("nonexistent", nil); err == nil {
		t.Error("expected error for missing method")
	}
}
