package store

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/nero-labs/internal/domain"
)

type deviceEntry struct {
	user      *domain.User
	updatedAt time.Time
}

// MemoryStore is a process-local Repository used in tests and when no
// database path is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	states  map[string][]byte
	devices map[string]deviceEntry
	now     func() time.Time
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		states:  make(map[string][]byte),
		devices: make(map[string]deviceEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) GetState(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.states[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), payload...), nil
}

func (m *MemoryStore) PutState(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[key] = append([]byte(nil), payload...)
	return nil
}

func (m *MemoryStore) GetDeviceSession(_ context.Context, deviceID string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.devices[deviceID]
	if !ok {
		return nil, nil
	}
	return entry.user.Clone(), nil
}

func (m *MemoryStore) UpsertDeviceSession(_ context.Context, deviceID string, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[deviceID] = deviceEntry{user: user.Clone(), updatedAt: m.now()}
	return nil
}

func (m *MemoryStore) DeleteDeviceSession(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices, deviceID)
	return nil
}

func (m *MemoryStore) CleanupStaleDeviceSessions(_ context.Context, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	threshold := m.now().Add(-ttl)
	var removed int64
	for id, entry := range m.devices {
		if entry.updatedAt.Before(threshold) {
			delete(m.devices, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
