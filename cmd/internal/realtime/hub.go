package realtime

import (
	"log/slog"
	"sync"

	v1 "github.com/Jerit-Baiju/caelium-admin/shared/contracts/realtime/v1"
)

// Hub fans decoded frames out to subscribers keyed by frame type.
// Each subscription owns a bounded queue drained by its own goroutine, so a
// slow subscriber never stalls the reader.
type Hub struct {
	log   *slog.Logger
	queue int

	mu     sync.RWMutex
	subs   map[string]map[uint64]*Subscription
	nextID uint64
	closed bool
}

// NewHub constructs a Hub. queue is the per-subscriber buffer.
func NewHub(log *slog.Logger, queue int) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:   log,
		queue: queue,
		subs:  make(map[string]map[uint64]*Subscription),
	}
}

// Subscribe delivers frames of type typ (v1.TypeAny for all) to fn.
func (h *Hub) Subscribe(typ string, fn func(v1.Envelope)) (cancel func()) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return func() {}
	}
	h.nextID++
	id := h.nextID
	s := NewSubscription(typ, h.queue)
	if h.subs[typ] == nil {
		h.subs[typ] = make(map[uint64]*Subscription)
	}
	h.subs[typ][id] = s
	h.mu.Unlock()

	go s.run(fn)

	return func() {
		h.mu.Lock()
		if m := h.subs[typ]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(h.subs, typ)
			}
		}
		h.mu.Unlock()
		s.Close()
	}
}

// Publish enqueues e for matching subscribers. It reports how many frames
// were dropped because a queue was full.
func (h *Hub) Publish(e v1.Envelope) (dropped int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for i, typ := range [2]string{e.Type, v1.TypeAny} {
		if i == 1 && e.Type == v1.TypeAny {
			break
		}
		for _, s := range h.subs[typ] {
			if !s.offer(e) {
				dropped++
				h.log.Warn("channel.subscriber.drop", "type", e.Type, "subscription", s.Type)
			}
		}
	}
	return dropped
}

// Close stops every subscription. Later Subscribe calls are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, m := range h.subs {
		for _, s := range m {
			s.Close()
		}
	}
	h.subs = nil
}
