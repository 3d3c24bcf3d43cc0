// Package notify routes MTI notification events to the listeners subscribed
// under each merchant.
package notify

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chungtau/mti-gateway/internal/model"
)

// Publisher delivers one event to everything interested in a merchant.
type Publisher interface {
	Publish(ctx context.Context, merchantID string, ev model.NotificationEvent) error
}

// Listener is one connected subscriber. Deliver must not block; Close is called
// when the hub drops the listener after a failed delivery.
type Listener interface {
	Deliver(ctx context.Context, ev model.NotificationEvent) error
	Close()
}

// Hub is the merchant-scoped routing table. The zero value is not usable; use NewHub.
type Hub struct {
	mu        sync.RWMutex
	merchants map[string]map[Listener]struct{}
	owners    map[Listener]string
	logger    zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		merchants: make(map[string]map[Listener]struct{}),
		owners:    make(map[Listener]string),
		logger:    logger.With().Str("component", "notify").Logger(),
	}
}

// Subscribe registers l under merchantID. A listener already registered under
// another merchant is moved.
func (h *Hub) Subscribe(merchantID string, l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(l)
	set, ok := h.merchants[merchantID]
	if !ok {
		set = make(map[Listener]struct{})
		h.merchants[merchantID] = set
	}
	set[l] = struct{}{}
	h.owners[l] = merchantID
}

// Unsubscribe removes l. Unknown listeners are ignored.
func (h *Hub) Unsubscribe(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(l)
}

func (h *Hub) removeLocked(l Listener) {
	merchantID, ok := h.owners[l]
	if !ok {
		return
	}
	delete(h.owners, l)
	set := h.merchants[merchantID]
	delete(set, l)
	if len(set) == 0 {
		delete(h.merchants, merchantID)
	}
}

// Count returns the number of listeners subscribed under merchantID.
func (h *Hub) Count(merchantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.merchants[merchantID])
}

// Publish hands ev to every listener of merchantID. A merchant without listeners
// is a no-op. Listeners that reject the event are closed and removed; that is a
// disconnect, not a publish failure, so Publish never returns an error.
func (h *Hub) Publish(ctx context.Context, merchantID string, ev model.NotificationEvent) error {
	h.mu.RLock()
	set := h.merchants[merchantID]
	listeners := make([]Listener, 0, len(set))
	for l := range set {
		listeners = append(listeners, l)
	}
	h.mu.RUnlock()

	var dropped []Listener
	for _, l := range listeners {
		if err := l.Deliver(ctx, ev); err != nil {
			h.logger.Warn().Err(err).
				Str("merchant_id", merchantID).
				Str("transaction_id", ev.TransactionID).
				Str("mti", ev.MTI).
				Msg("dropping listener")
			dropped = append(dropped, l)
		}
	}
	if len(dropped) == 0 {
		return nil
	}

	h.mu.Lock()
	for _, l := range dropped {
		if h.owners[l] == merchantID {
			h.removeLocked(l)
		}
	}
	h.mu.Unlock()
	for _, l := range dropped {
		l.Close()
	}
	return nil
}
