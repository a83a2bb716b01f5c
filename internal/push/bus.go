package push

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Event is one frame received on the push channel.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

func NewEvent(name string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Data: data}, nil
}

type Handler func(Event)

// Source is what views need from the push channel: keyed subscription with
// an unsubscribe func that is safe to call more than once.
type Source interface {
	Subscribe(event string, handler Handler) (unsubscribe func())
}

// Bus fans events out to handlers registered by event name. Publish runs
// handlers on the caller's goroutine, so a single publisher keeps per-name
// delivery in emission order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]map[string]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: map[string]map[string]Handler{}}
}

func (b *Bus) Subscribe(event string, handler Handler) func() {
	id := uuid.NewString()
	b.mu.Lock()
	if b.handlers[event] == nil {
		b.handlers[event] = map[string]Handler{}
	}
	b.handlers[event][id] = handler
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers[event], id)
			if len(b.handlers[event]) == 0 {
				delete(b.handlers, event)
			}
			b.mu.Unlock()
		})
	}
}

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[e.Name]))
	for _, h := range b.handlers[e.Name] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		b.deliver(h, e)
	}
}

// Subscribers returns how many handlers listen to event.
func (b *Bus) Subscribers(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[event])
}

func (b *Bus) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("push: handler for %s panicked: %v", e.Name, r)
		}
	}()
	h(e)
}
