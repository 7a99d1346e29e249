// Package eventbus fans platform events out to monitor subscribers.
package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"focusgate/internal/monitor"
)

const defaultBuffer = 16

// ErrClosed is returned by Subscribe once the hub has been closed
var ErrClosed = errors.New("event hub closed")

// Hub implements monitor.Source. Publishing never blocks: a subscriber whose
// buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[chan monitor.Event]struct{}
	buffer  int
	closed  bool
	dropped atomic.Int64
}

// NewHub creates a hub whose subscriber channels hold buffer events
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{subs: make(map[chan monitor.Event]struct{}), buffer: buffer}
}

// Publish delivers evt to every subscriber
func (h *Hub) Publish(evt monitor.Event) {
	if h == nil {
		return
	}
	if evt.At.IsZero() {
		evt.At = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
			// Slow consumer; the platform side must never block
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber. The channel is closed when ctx is done or the hub closes.
func (h *Hub) Subscribe(ctx context.Context) (<-chan monitor.Event, error) {
	ch := make(chan monitor.Event, h.buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.remove(ch)
	}()

	return ch, nil
}

func (h *Hub) remove(ch chan monitor.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Close closes every subscriber channel and rejects new subscriptions
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

// Subscribers returns the number of live subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was full
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Ensure Hub implements monitor.Source
var _ monitor.Source = (*Hub)(nil)
