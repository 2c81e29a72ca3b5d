// Package events is the in-process pub/sub bus for arena lifecycle
// events, feeding the audit log and the stats counters.
package events

import "sync"

// Type names an arena lifecycle event.
type Type string

// Arena lifecycle events.
const (
	MatchFound       Type = "MATCH_FOUND"
	GameStarted      Type = "GAME_STARTED"
	GameEnded        Type = "GAME_ENDED"
	ConnectionClosed Type = "CONNECTION_CLOSED"
	PersistFailed    Type = "PERSIST_FAILED"
)

// Event carries one occurrence. GameID is empty for non-game events.
type Event struct {
	Type    Type
	GameID  string
	Payload interface{}
}

// Handler consumes events. Handlers run on their own goroutines and
// must not assume ordering across events.
type Handler func(Event)

// Publisher fans events out to subscribers.
type Publisher struct {
	mu          sync.RWMutex
	subscribers map[Type][]Handler
}

// NewPublisher creates an empty bus.
func NewPublisher() *Publisher {
	return &Publisher{subscribers: make(map[Type][]Handler)}
}

// Subscribe registers a handler for one event type.
func (p *Publisher) Subscribe(t Type, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers[t] = append(p.subscribers[t], handler)
}

// Publish delivers the event to every subscriber asynchronously.
func (p *Publisher) Publish(event Event) {
	p.mu.RLock()
	handlers := p.subscribers[event.Type]
	p.mu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}
