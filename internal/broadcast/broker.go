// Package broadcast fans session events out to connected clients.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/playperu/tasting/internal/coordinator"
)

// DefaultBuffer is the number of undelivered events a subscriber may hold
// before it is disconnected.
const DefaultBuffer = 64

// Subscription receives the JSON-encoded events of one session. C is
// closed when the subscriber is removed, including when it fell behind.
type Subscription struct {
	SessionID    string
	ConnectionID string
	C            <-chan []byte

	ch     chan []byte
	closed bool
}

// Broker is an in-process pub/sub keyed by session ID.
type Broker struct {
	logger  *slog.Logger
	metrics *Metrics
	buffer  int

	mu   sync.Mutex
	subs map[string]map[string]*Subscription
}

func NewBroker(logger *slog.Logger, metrics *Metrics) *Broker {
	return &Broker{
		logger:  logger.With("component", "broker"),
		metrics: metrics,
		buffer:  DefaultBuffer,
		subs:    make(map[string]map[string]*Subscription),
	}
}

// Subscribe registers connectionID for the session's events. A second
// subscription under the same connection ID replaces the first.
func (b *Broker) Subscribe(sessionID, connectionID string) *Subscription {
	ch := make(chan []byte, b.buffer)
	sub := &Subscription{SessionID: sessionID, ConnectionID: connectionID, C: ch, ch: ch}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[string]*Subscription)
	}
	if old, ok := b.subs[sessionID][connectionID]; ok {
		b.closeLocked(old)
	}
	b.subs[sessionID][connectionID] = sub
	b.metrics.subscribed()
	return sub
}

// Unsubscribe removes the connection. It is a no-op for unknown IDs.
func (b *Broker) Unsubscribe(sessionID, connectionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[sessionID][connectionID]; ok {
		b.closeLocked(sub)
	}
}

// Publish implements coordinator.Publisher for a single process.
func (b *Broker) Publish(sessionID string, ev coordinator.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("encoding event", "session_id", sessionID, "event", ev.Name, "error", err)
		return
	}
	b.Deliver(sessionID, data)
}

// Deliver hands an encoded event to every subscriber of the session. A
// subscriber whose buffer is full is disconnected rather than skipped, so
// a client never misses an event while it believes itself connected.
func (b *Broker) Deliver(sessionID string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs[sessionID] {
		select {
		case sub.ch <- data:
		default:
			b.logger.Warn("disconnecting slow subscriber", "session_id", sessionID, "connection_id", sub.ConnectionID)
			b.metrics.slow()
			b.closeLocked(sub)
		}
	}
}

// Resync implements coordinator.Publisher by dropping the session's
// subscribers.
func (b *Broker) Resync(sessionID string) {
	if n := b.DropSession(sessionID); n > 0 {
		b.logger.Info("subscribers dropped for resync", "session_id", sessionID, "count", n)
	}
}

// DropSession closes every subscription of the session and returns how
// many were closed. Clients reconnect and start from a fresh snapshot.
func (b *Broker) DropSession(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, sub := range b.subs[sessionID] {
		b.closeLocked(sub)
		b.metrics.resynced()
		n++
	}
	return n
}

// DropAll is DropSession for every session.
func (b *Broker) DropAll() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, subs := range b.subs {
		for _, sub := range subs {
			b.closeLocked(sub)
			b.metrics.resynced()
			n++
		}
	}
	return n
}

// Subscribers returns the number of live subscriptions for a session.
func (b *Broker) Subscribers(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sessionID])
}

// Close disconnects every subscriber.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.subs {
		for _, sub := range subs {
			b.closeLocked(sub)
		}
	}
}

func (b *Broker) closeLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	b.metrics.unsubscribed()

	subs := b.subs[sub.SessionID]
	if subs[sub.ConnectionID] == sub {
		delete(subs, sub.ConnectionID)
	}
	if len(subs) == 0 {
		delete(b.subs, sub.SessionID)
	}
}
