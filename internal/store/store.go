// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/ashureev/nero-labs/internal/domain"
)

// DefaultPrefix namespaces persisted wallet snapshots.
const DefaultPrefix = "nero_web_state_v6"

// StorageKey returns the key under which the snapshot of address is stored.
// Addresses are case-insensitive; an empty address maps to the guest slot.
func StorageKey(prefix, address string) string {
	if address == "" {
		return prefix + "_guest"
	}
	return prefix + "_" + strings.ToLower(address)
}

// Repository defines the interface for persisting wallet snapshots and
// device sessions.
type Repository interface {
	// GetState returns the raw snapshot stored under key, or nil if absent.
	GetState(ctx context.Context, key string) ([]byte, error)

	// PutState replaces the snapshot stored under key.
	PutState(ctx context.Context, key string, payload []byte) error

	// GetDeviceSession returns the identity remembered for a device, or nil.
	GetDeviceSession(ctx context.Context, deviceID string) (*domain.User, error)

	// UpsertDeviceSession remembers the identity finalized on a device.
	UpsertDeviceSession(ctx context.Context, deviceID string, user *domain.User) error

	// DeleteDeviceSession forgets the identity of a device.
	DeleteDeviceSession(ctx context.Context, deviceID string) error

	// CleanupStaleDeviceSessions removes device sessions not touched within ttl.
	CleanupStaleDeviceSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies storage connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}
