// Package device keeps one session and one state controller per browser device.
package device

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/nero-labs/internal/auth"
	"github.com/ashureev/nero-labs/internal/controller"
	"github.com/ashureev/nero-labs/internal/domain"
)

// Device pairs a session with the controller that follows it.
type Device struct {
	ID         string
	Session    *auth.Session
	Controller *controller.Controller

	mu          sync.Mutex
	lastSeen    time.Time
	unsubscribe func()
}

// LastSeen returns when the device was last used.
func (d *Device) LastSeen() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSeen
}

func (d *Device) touch(now time.Time) {
	d.mu.Lock()
	d.lastSeen = now
	d.mu.Unlock()
}

// Notifiers hands out per-device transaction notifiers.
type Notifiers interface {
	Notifier(deviceID string) controller.Notifier
	CloseDevice(deviceID string)
}

// Config holds the templates every new device is built from.
type Config struct {
	Session    auth.Options
	Controller controller.Deps
	Notifiers  Notifiers
	Now        func() time.Time
}

// Registry creates devices on first use and evicts idle ones.
type Registry struct {
	cfg Config

	mu      sync.Mutex
	devices map[string]*Device
	closed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{cfg: cfg, devices: make(map[string]*Device)}
}

// Get returns the device for id, creating and binding it on first use.
func (r *Registry) Get(id string) *Device {
	now := r.cfg.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[id]; ok {
		d.touch(now)
		return d
	}

	d := r.build(id)
	d.touch(now)
	if !r.closed {
		r.devices[id] = d
	}
	return d
}

func (r *Registry) build(id string) *Device {
	deps := r.cfg.Controller
	if r.cfg.Notifiers != nil {
		deps.Notifier = r.cfg.Notifiers.Notifier(id)
	}
	ctrl := controller.New(deps)
	sess := auth.NewSession(id, r.cfg.Session)

	// Subscribe before the first Bind so a readiness change in between is not lost.
	unsubscribe := sess.Subscribe(func(v domain.SessionView) {
		ctrl.Bind(context.Background(), v)
	})
	ctrl.Bind(context.Background(), sess.View())

	slog.Debug("Device created", "device_id", id)
	return &Device{ID: id, Session: sess, Controller: ctrl, unsubscribe: unsubscribe}
}

// Len returns the number of live devices.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

// Evict drops the in-memory device. Its remembered login survives in the store.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	d, ok := r.devices[id]
	delete(r.devices, id)
	r.mu.Unlock()
	if ok {
		r.release(d)
	}
}

// EvictIdle drops devices unused for longer than ttl and returns how many.
func (r *Registry) EvictIdle(ttl time.Duration) int {
	cutoff := r.cfg.Now().Add(-ttl)

	r.mu.Lock()
	var idle []*Device
	for id, d := range r.devices {
		if d.LastSeen().Before(cutoff) {
			idle = append(idle, d)
			delete(r.devices, id)
		}
	}
	r.mu.Unlock()

	for _, d := range idle {
		r.release(d)
	}
	return len(idle)
}

// Close releases every device and stops tracking new ones.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	all := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		all = append(all, d)
	}
	r.devices = make(map[string]*Device)
	r.mu.Unlock()

	for _, d := range all {
		r.release(d)
	}
}

func (r *Registry) release(d *Device) {
	d.Session.Stop()
	if d.unsubscribe != nil {
		d.unsubscribe()
	}
	if r.cfg.Notifiers != nil {
		r.cfg.Notifiers.CloseDevice(d.ID)
	}
	slog.Debug("Device released", "device_id", d.ID)
}
