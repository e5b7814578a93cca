package registry

import (
	"sync"
	"time"
)

// EventType represents different types of registry events
type EventType string

const (
	// EventRefreshed fires after a full rescan of the modules root.
	EventRefreshed EventType = "registry.refreshed"
	// EventModuleLoaded fires after a module instance is constructed and ready.
	EventModuleLoaded EventType = "module.loaded"
	// EventModuleUnloaded fires after a module instance is torn down.
	EventModuleUnloaded EventType = "module.unloaded"
)

// Event represents a registry event
type Event struct {
	Type      EventType
	ModuleID  string // empty for registry-wide events
	Timestamp time.Time
	Err       error // set on failure events
}

// EventHandler is called when an event occurs
type EventHandler func(Event)

// EventEmitter handles event subscription and emission
type EventEmitter struct {
	handlers map[EventType][]EventHandler
	mu       sync.RWMutex
}

// NewEventEmitter creates a new event emitter
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Subscribe adds a handler for an event type
func (e *EventEmitter) Subscribe(eventType EventType, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.handlers[eventType] = append(e.handlers[eventType], handler)
}

// Emit sends an event to all subscribed handlers
func (e *EventEmitter) Emit(event Event) {
	e.mu.RLock()
	// Copy handlers so a subscriber added mid-emit is not invoked this round
	handlers := make([]EventHandler, len(e.handlers[event.Type]))
	copy(handlers, e.handlers[event.Type])
	e.mu.RUnlock()

	event.Timestamp = time.Now()

	for _, handler := range handlers {
		handler(event)
	}
}
