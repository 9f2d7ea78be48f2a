// Package realtime fans sync notifications out to in-process listeners, such
// as websocket sessions. Delivery is best effort: a listener whose buffer is
// full misses the event, and nothing is replayed.
package realtime

import (
	"sync"
	"time"

	"github.com/rubiojr/cmsmirror/pkg/core"
)

const (
	TypeInit = "init"
	TypeSync = "sync"
)

// SyncEvent announces a stored snapshot.
type SyncEvent struct {
	RunID            string    `json:"runId"`
	CollectionsCount int       `json:"collectionsCount"`
	ItemsCount       int       `json:"itemsCount"`
	SyncedAt         time.Time `json:"syncedAt"`
}

// Event is the envelope sent to listeners.
type Event struct {
	Type string     `json:"type"`
	Sync *SyncEvent `json:"sync,omitempty"`
}

// NewSyncEvent wraps a completed sync report.
func NewSyncEvent(report *core.SyncReport) Event {
	return Event{
		Type: TypeSync,
		Sync: &SyncEvent{
			RunID:            report.RunID,
			CollectionsCount: report.CollectionsCount,
			ItemsCount:       report.ItemsCount,
			SyncedAt:         report.SyncedAt,
		},
	}
}

// Hub is an in-memory fan-out dispatcher. Each listener gets its own
// buffered channel. Methods are safe on a nil *Hub.
type Hub struct {
	mu        sync.RWMutex
	listeners map[uint64]chan Event
	nextID    uint64
	bufSize   int
}

// NewHub creates a hub. bufSize <= 0 uses 8.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 8
	}
	return &Hub{
		listeners: make(map[uint64]chan Event),
		bufSize:   bufSize,
	}
}

// Register adds a listener. Callers must Unregister it.
func (h *Hub) Register() (uint64, <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan Event, h.bufSize)
	h.listeners[id] = ch
	return id, ch
}

// Unregister removes a listener and closes its channel. Unknown ids are
// ignored.
func (h *Hub) Unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.listeners[id]; ok {
		delete(h.listeners, id)
		close(ch)
	}
}

// Broadcast delivers ev to every listener with room for it.
func (h *Hub) Broadcast(ev Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Size returns the number of listeners.
func (h *Hub) Size() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
