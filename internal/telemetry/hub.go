package telemetry

import "sync"

// Event is a single loop or connection lifecycle notice: a client
// connecting, a handshake failing, a loop shutting down. The Kind
// namespaces it ("connection", "loop", "handshake") and Detail is a
// short human-readable string.
type Event struct {
	Kind   string
	Detail string
}

// Hub fans lifecycle Events out to any number of subscribers. It
// exists for observability tooling to watch what the loop pool and
// WebSocket server are doing without coupling them directly to slog
// output. The admin surface's /stats endpoint does not read from it.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string][]chan Event)}
}

// Subscribe registers a new observer for events of the given kind.
// The returned channel is buffered; a slow subscriber drops events
// rather than blocking the publisher.
func (h *Hub) Subscribe(kind string) chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, 64)
	h.subscribers[kind] = append(h.subscribers[kind], ch)
	return ch
}

// Unsubscribe removes and closes a previously subscribed channel.
func (h *Hub) Unsubscribe(kind string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[kind]
	for i, sub := range subs {
		if sub == ch {
			h.subscribers[kind] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
}

// Publish delivers an event to every subscriber of its kind.
func (h *Hub) Publish(kind, detail string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ev := Event{Kind: kind, Detail: detail}
	for _, ch := range h.subscribers[kind] {
		select {
		case ch <- ev:
		default:
		}
	}
}
