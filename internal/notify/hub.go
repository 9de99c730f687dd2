// Package notify fans transaction status events out to a device's open sockets.
package notify

import (
	"log/slog"
	"sync"

	"github.com/ashureev/nero-labs/internal/controller"
)

const subscriberBuffer = 16

// Subscription receives events for one device until Close is called.
type Subscription struct {
	C <-chan controller.TxEvent

	ch       chan controller.TxEvent
	hub      *Hub
	deviceID string
	once     sync.Once
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub tracks subscribers per device.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[*Subscription]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{active: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers a new listener for deviceID. On a closed hub the
// returned subscription's channel is already closed.
func (h *Hub) Subscribe(deviceID string) *Subscription {
	ch := make(chan controller.TxEvent, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, hub: h, deviceID: deviceID}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.once.Do(func() { close(ch) })
		return sub
	}
	if _, ok := h.active[deviceID]; !ok {
		h.active[deviceID] = make(map[*Subscription]struct{})
	}
	h.active[deviceID][sub] = struct{}{}
	slog.Debug("Event subscriber registered", "device_id", deviceID)
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.active[sub.deviceID]; ok {
		if _, exists := subs[sub]; exists {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(h.active, sub.deviceID)
			}
		}
	}
	sub.once.Do(func() { close(sub.ch) })
}

// Publish delivers ev to every subscriber of deviceID without blocking.
// Slow subscribers miss events rather than stall the caller.
func (h *Hub) Publish(deviceID string, ev controller.TxEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.active[deviceID] {
		select {
		case sub.ch <- ev:
		default:
			slog.Warn("Dropping event for slow subscriber", "device_id", deviceID, "status", ev.Status)
		}
	}
}

// Notifier binds the hub to one device for use by a controller.
func (h *Hub) Notifier(deviceID string) controller.Notifier {
	return controller.NotifierFunc(func(ev controller.TxEvent) {
		h.Publish(deviceID, ev)
	})
}

// Subscribers returns the number of open subscriptions for deviceID.
func (h *Hub) Subscribers(deviceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[deviceID])
}

// CloseDevice ends every subscription of deviceID.
func (h *Hub) CloseDevice(deviceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.active[deviceID] {
		sub.once.Do(func() { close(sub.ch) })
	}
	delete(h.active, deviceID)
}

// Close ends all subscriptions and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, subs := range h.active {
		for sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
		}
		delete(h.active, id)
	}
}
