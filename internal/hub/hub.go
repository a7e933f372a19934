package hub

import (
	"log/slog"
	"sync"
	"time"
)

const defaultBufferSize = 32

// Hub fans state-change events out to the subscribers of a session.
// Publishing never blocks: each subscriber owns a bounded queue and a
// subscriber that stops draining loses its oldest events (drop-oldest,
// viewers only care about the latest progress). Sessions are independent;
// a stalled subscriber on one session cannot delay publishes to another.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	bufSize int
}

// Subscription is one listener on one session. Receive from C until it is
// closed; call Unsubscribe (idempotent) when the transport goes away.
type Subscription struct {
	C chan Envelope

	token  string
	mu     sync.Mutex
	closed bool
}

func New(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{
		subs:    make(map[string]map[*Subscription]struct{}),
		bufSize: bufferSize,
	}
}

// Subscribe registers a listener for a session token. Multiple subscribers
// per token are allowed.
func (h *Hub) Subscribe(token string) *Subscription {
	sub := &Subscription{
		C:     make(chan Envelope, h.bufSize),
		token: token,
	}

	h.mu.Lock()
	set, ok := h.subs[token]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[token] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	slog.Debug("hub subscriber added", "session", token)
	return sub
}

// Unsubscribe removes a listener and closes its channel. Safe to call more
// than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	set, ok := h.subs[sub.token]
	if ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.token)
		}
	}
	h.mu.Unlock()

	sub.mu.Lock()
	if !sub.closed {
		sub.closed = true
		close(sub.C)
	}
	sub.mu.Unlock()

	slog.Debug("hub subscriber removed", "session", sub.token)
}

// Publish delivers an event to every current subscriber of the token.
// Within one session, callers publish under the session's serialization,
// so each subscriber channel preserves publish order.
func (h *Hub) Publish(token string, event Event) {
	env := Envelope{
		Type:         event.Kind(),
		SessionToken: token,
		Timestamp:    time.Now(),
		Data:         event,
	}

	h.mu.RLock()
	set := h.subs[token]
	subs := make([]*Subscription, 0, len(set))
	for sub := range set {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(env)
	}
}

// SubscriberCount returns the number of active subscribers for a token.
func (h *Hub) SubscriberCount(token string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[token])
}

// Connections returns the total subscriber count across all sessions.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, set := range h.subs {
		total += len(set)
	}
	return total
}

func (s *Subscription) deliver(env Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.C <- env:
		return
	default:
	}

	// Queue full: evict the oldest event to make room. The second send
	// cannot block because this subscriber's sends are serialized by s.mu.
	select {
	case <-s.C:
	default:
	}
	select {
	case s.C <- env:
	default:
	}

	slog.Debug("hub subscriber queue full, dropped oldest event", "session", s.token, "type", env.Type)
}
