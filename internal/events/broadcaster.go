package events

import (
	"encoding/json"
	"sync"
	"time"

	"thumbnail-engine/internal/metrics"
)

// Event types
const (
	EventThumbnail = "thumbnail"
	EventInterrupt = "interrupt"
	EventReload    = "reload"
	EventClean     = "clean"
)

// Event is one message on the event stream.
type Event struct {
	Type        string `json:"type"`
	Path        string `json:"path,omitempty"`
	Ordinal     int    `json:"ordinal"`
	Epoch       uint64 `json:"epoch,omitempty"`
	Status      string `json:"status,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Placeholder bool   `json:"placeholder,omitempty"`
	URL         string `json:"url,omitempty"`
	Error       string `json:"error,omitempty"`
	Data        any    `json:"data,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// Broadcaster fans events out to stream subscribers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	buffer      int
}

// NewBroadcaster returns a broadcaster whose subscribers buffer up to
// buffer events; 0 uses 256.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 256
	}
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
		buffer:      buffer,
	}
}

// Subscribe adds a subscriber. The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SSEConnectionsActive.Set(float64(n))
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SSEConnectionsActive.Set(float64(n))
}

// Publish sends event to every subscriber without blocking. Slow
// subscribers miss the event.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			metrics.SSEEventsDropped.Inc()
		}
	}
	metrics.SSEEventsTotal.WithLabelValues(event.Type).Inc()
}

// Count returns the number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Marshal encodes an event as JSON.
func Marshal(e Event) ([]byte, error) {
	return json.Marshal(e)
}
