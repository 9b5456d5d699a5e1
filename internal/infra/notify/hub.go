// Package notify fans settlement events out to connected subscribers.
package notify

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/lynks-network/lynks/internal/domain"
	"github.com/lynks-network/lynks/internal/infra/observability"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 32

// Hub implements domain.Notifier. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	clients map[*subscriber]struct{}
	buffer  int
}

type subscriber struct {
	actorID string
	admin   bool
	ch      chan []byte
}

var _ domain.Notifier = (*Hub)(nil)

// NewHub creates an event hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*subscriber]struct{}),
		buffer:  DefaultBuffer,
	}
}

// Publish delivers e to the addressed actor, and to every admin when the
// event's audience is admins.
func (h *Hub) Publish(e domain.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("[notify] marshal %s: %v", e.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.clients {
		if !sub.wants(e) {
			continue
		}
		select {
		case sub.ch <- data:
		default:
			observability.NotificationsDropped.Inc()
		}
	}
}

func (s *subscriber) wants(e domain.Event) bool {
	if e.ActorID != "" && e.ActorID == s.actorID {
		return true
	}
	return e.Audience == domain.AudienceAdmins && s.admin
}

// Subscribe registers a client for caller's events. The returned func
// unsubscribes and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(caller domain.ActorContext) (<-chan []byte, func()) {
	sub := &subscriber{
		actorID: caller.ID,
		admin:   caller.IsAdmin(),
		ch:      make(chan []byte, h.buffer),
	}

	h.mu.Lock()
	h.clients[sub] = struct{}{}
	h.mu.Unlock()
	observability.Subscribers.Inc()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, sub)
			h.mu.Unlock()
			close(sub.ch)
			observability.Subscribers.Dec()
		})
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
