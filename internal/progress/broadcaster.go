// Package progress fans download and enrichment progress out to websocket
// subscribers.
package progress

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stage values for progress events.
const (
	StageDownload = "download"
	StageEnrich   = "enrich"
)

// Event is one unit of progress pushed to the UI.
type Event struct {
	Stage     string    `json:"stage"` // "download" or "enrich"
	JobID     string    `json:"job_id,omitempty"`
	DatasetID string    `json:"dataset_id,omitempty"`
	Message   string    `json:"message"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

type Broadcaster struct {
	subscribers map[uint64]chan Event
	nextID      atomic.Uint64
	mu          sync.RWMutex
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan Event),
	}
}

// Subscribe registers a new listener. The channel is buffered so one slow
// websocket cannot stall the pipeline.
func (b *Broadcaster) Subscribe() (uint64, chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, 64)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			// Skip subscribers that fell behind
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close shuts all subscriber channels so websocket loops exit cleanly.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
