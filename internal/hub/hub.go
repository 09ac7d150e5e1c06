// Package hub is the topic broadcast primitive: it tracks which connections
// are subscribed to which topics and fans event payloads out to the current
// subscriber set. It knows nothing about holds, bookings, or transports.
package hub

import (
	"sync"

	"github.com/showroomhq/testdrive-core/pkg/logger"
)

// Sender delivers a payload for one topic to a single connection. Send must
// not block: transports back their sessions with bounded buffers and return
// an error when the buffer is full or the connection is gone. Close tears
// the underlying connection down; the hub calls it after a failed delivery
// so the client reconnects instead of holding a socket that is no longer
// subscribed to anything.
type Sender interface {
	Send(topic string, payload []byte) error
	Close()
}

type connection struct {
	sender Sender
	topics map[string]struct{}
}

// Hub maintains topic -> connections and connection -> topics under one
// RWMutex. Topics are ephemeral: they exist exactly as long as they have
// subscribers and carry no replay buffer, so a connection only ever sees
// events published while it was subscribed.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[string]struct{}
	conns  map[string]*connection
}

func New() *Hub {
	return &Hub{
		topics: make(map[string]map[string]struct{}),
		conns:  make(map[string]*connection),
	}
}

// Register adds a connection so it can subscribe to topics. Registering an
// existing id replaces its sender and clears its subscriptions.
func (h *Hub) Register(connID string, sender Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.conns[connID]; ok {
		for topic := range old.topics {
			h.removeFromTopicLocked(topic, connID)
		}
	}
	h.conns[connID] = &connection{sender: sender, topics: make(map[string]struct{})}
}

// Subscribe joins a connection to a topic. Idempotent; unknown connections
// are ignored (the connection already disconnected).
func (h *Hub) Subscribe(connID, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[connID]
	if !ok {
		return
	}
	conn.topics[topic] = struct{}{}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]struct{})
		h.topics[topic] = subs
	}
	subs[connID] = struct{}{}
}

// Unsubscribe removes a connection from a topic. Idempotent.
func (h *Hub) Unsubscribe(connID, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conn, ok := h.conns[connID]; ok {
		delete(conn.topics, topic)
	}
	h.removeFromTopicLocked(topic, connID)
}

// DropConnection removes a connection from every topic it belonged to and
// forgets it. Called on disconnect; leaves no orphaned subscriber entries.
func (h *Hub) DropConnection(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(connID)
}

func (h *Hub) dropLocked(connID string) {
	conn, ok := h.conns[connID]
	if !ok {
		return
	}
	for topic := range conn.topics {
		h.removeFromTopicLocked(topic, connID)
	}
	delete(h.conns, connID)
}

func (h *Hub) removeFromTopicLocked(topic, connID string) {
	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(subs, connID)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

// Publish delivers a payload to every connection currently subscribed to
// the topic. Delivery is best-effort per connection: a failing subscriber
// is logged and dropped without affecting the others or the publisher.
// Senders are FIFO per connection, so events published to one topic arrive
// at each subscriber in publication order.
func (h *Hub) Publish(topic string, payload []byte) {
	h.mu.RLock()
	var failed []string
	for connID := range h.topics[topic] {
		conn, ok := h.conns[connID]
		if !ok {
			continue
		}
		if err := conn.sender.Send(topic, payload); err != nil {
			logger.Warn("dropping subscriber after failed delivery",
				"conn_id", connID, "topic", topic, "error", err)
			failed = append(failed, connID)
		}
	}
	h.mu.RUnlock()

	if len(failed) > 0 {
		h.mu.Lock()
		var closers []Sender
		for _, connID := range failed {
			if conn, ok := h.conns[connID]; ok {
				closers = append(closers, conn.sender)
			}
			h.dropLocked(connID)
		}
		h.mu.Unlock()
		// Closed outside the lock; a Sender's Close may call back into the
		// hub (DropConnection is idempotent).
		for _, sender := range closers {
			sender.Close()
		}
	}
}

// Subscribers reports the current subscriber count for a topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Topics reports the topics a connection is currently subscribed to.
func (h *Hub) Topics(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conn, ok := h.conns[connID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(conn.topics))
	for topic := range conn.topics {
		out = append(out, topic)
	}
	return out
}
