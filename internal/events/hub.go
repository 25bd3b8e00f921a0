package events

import (
	"sync"
	"time"

	"github.com/1broseidon/monctl/internal/display"
)

// TopologyChanged is the event type published after a refresh triggered by
// hardware notifications.
const TopologyChanged = "monitor_topology_changed"

// Event is delivered to subscribers.
type Event struct {
	Type     string            `json:"type"`
	Time     time.Time         `json:"time"`
	Snapshot *display.Snapshot `json:"snapshot"`
	Added    []string          `json:"added,omitempty"`
	Removed  []string          `json:"removed,omitempty"`
	Changed  []string          `json:"changed,omitempty"`
}

// Hub broadcasts events. Each subscriber has a one slot buffer that always
// holds the newest undelivered event, so a slow reader skips intermediate
// events but never misses the latest state.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber. The cancel func unregisters it and
// closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan Event, 1)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers ev to every subscriber without blocking.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		// Replace the stale event with the newer one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
