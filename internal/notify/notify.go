// Package notify delivers per-participant notifications. Delivery is
// fire-and-forget and at-least-once: consumers must tolerate duplicates and
// reordering, and subscribers that fall behind lose events rather than block
// publishers.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/immxrtalbeast/speeddating/internal/domain"
)

const defaultBuffer = 16

type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Subscription is one live connection listening on a user's topic.
type Subscription struct {
	UserID string
	Events <-chan domain.Event

	ch   chan domain.Event
	hub  *Hub
	once sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}

// Hub fans events out to the subscriptions held by this process.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	log    *slog.Logger
}

func NewHub(buffer int, log *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		log:    log,
	}
}

func (h *Hub) Subscribe(userID string) *Subscription {
	ch := make(chan domain.Event, h.buffer)
	sub := &Subscription{UserID: userID, Events: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	return sub
}

func (h *Hub) Publish(_ context.Context, event domain.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[event.UserID] {
		select {
		case sub.ch <- event:
		default:
			h.log.Debug("dropping event for slow subscriber",
				slog.String("user_id", event.UserID),
				slog.String("type", string(event.Type)),
			)
		}
	}
	return nil
}

// Subscribers reports how many live subscriptions a user has on this process.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[sub.UserID]
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.UserID)
	}
	close(sub.ch)
}

// Recorder keeps every published event; used by tests and local tooling.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, event domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// For returns the events published to userID, optionally filtered by type.
func (r *Recorder) For(userID string, types ...domain.EventType) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Event
	for _, e := range r.events {
		if e.UserID != userID {
			continue
		}
		if len(types) > 0 && !containsType(types, e.Type) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func containsType(types []domain.EventType, t domain.EventType) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}
