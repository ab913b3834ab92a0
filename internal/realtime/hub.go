package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher fans an event out to connected clients. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Hub delivers events to local subscribers. Each subscriber has a buffered
// channel; when it is full the event is dropped for that subscriber only.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]chan Event
	buffer int
	closed bool
	logger *zap.Logger
}

var _ Publisher = (*Hub)(nil)

func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[string]chan Event),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new subscriber. The channel is closed by Unsubscribe
// or Close.
func (h *Hub) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subs[id] = ch
	h.logger.Debug("subscriber connected", zap.String("subscriberId", id), zap.Int("subscribers", len(h.subs)))
	return id, ch
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
		h.logger.Debug("subscriber disconnected", zap.String("subscriberId", id))
	}
}

func (h *Hub) Publish(_ context.Context, e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.logger.Warn("subscriber too slow, event dropped",
				zap.String("subscriberId", id),
				zap.String("event", e.Name),
			)
		}
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
	h.closed = true
}
