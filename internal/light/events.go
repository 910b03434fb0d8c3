package light

import (
	"log/slog"
	"sync"
)

// Event types
const (
	EventEntityAdded   = "entity_added"
	EventEntityRemoved = "entity_removed"
	EventStateChanged  = "state_changed"
	EventEntryAdded    = "entry_added"
	EventEntryUpdated  = "entry_updated"
	EventEntryRemoved  = "entry_removed"
)

// Event is published on the bus. Data is an EntityInfo for entity events,
// a StateChange for state_changed, a *store.Entry for entry_added and
// entry_updated, and an EntryRemoval for entry_removed.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// StateChange carries the new state of one entity.
type StateChange struct {
	EntityID string `json:"entity_id"`
	State    State  `json:"state"`
}

// EntryRemoval names a deleted entry and the entities it owned.
type EntryRemoval struct {
	EntryID   string   `json:"entry_id"`
	EntityIDs []string `json:"entity_ids"`
}

// EventHandler is a callback for events.
type EventHandler func(Event)

// EventBus provides pub/sub for light events.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[string]map[uint64]EventHandler
	allHandlers map[uint64]EventHandler
	nextID      uint64
	logger      *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers:    make(map[string]map[uint64]EventHandler),
		allHandlers: make(map[uint64]EventHandler),
		logger:      logger,
	}
}

// On registers a handler for a specific event type.
// Returns an unsubscribe function.
func (eb *EventBus) On(eventType string, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	if eb.handlers[eventType] == nil {
		eb.handlers[eventType] = make(map[uint64]EventHandler)
	}
	eb.handlers[eventType][id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.handlers[eventType], id)
	}
}

// OnAll registers a handler that receives all events.
// Returns an unsubscribe function.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	eb.allHandlers[id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.allHandlers, id)
	}
}

// Emit sends an event to all matching handlers.
// Handlers are called synchronously; a panicking handler is recovered.
func (eb *EventBus) Emit(event Event) {
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.handlers[event.Type])+len(eb.allHandlers))
	for _, h := range eb.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range eb.allHandlers {
		handlers = append(handlers, h)
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "type", event.Type, "panic", r)
				}
			}()
			h(event)
		}()
	}
}
