package auth

import (
	"context"
	"sync"
	"time"
)

// SessionRegistry tracks tokens that were explicitly logged out. A
// token present in the registry must be rejected regardless of its
// signature or expiry.
type SessionRegistry interface {
	// Revoke marks the token as logged out. It returns true when the
	// token was newly revoked and false when it already was; a second
	// revocation is a no-op, not an error. expiresAt is the token's
	// natural expiry, which backends may use to bound retention.
	Revoke(ctx context.Context, token string, expiresAt time.Time) (bool, error)

	// IsRevoked reports membership.
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// MemoryRegistry is the in-process SessionRegistry: a plain set under
// a single mutex. Entries are never pruned, so revocations last for
// the process lifetime and do not survive a restart or extend across
// multiple instances. The lock is held only for the map operation.
type MemoryRegistry struct {
	mu      sync.Mutex
	revoked map[string]struct{}
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{revoked: make(map[string]struct{})}
}

func (m *MemoryRegistry) Revoke(ctx context.Context, token string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.revoked[token]; exists {
		return false, nil
	}
	m.revoked[token] = struct{}{}

	return true, nil
}

func (m *MemoryRegistry) IsRevoked(ctx context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.revoked[token]
	return exists, nil
}
