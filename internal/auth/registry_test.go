package auth_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auth-api/internal/auth"
)

func TestMemoryRegistryRevokeIsIdempotent(t *testing.T) {
	registry := auth.NewMemoryRegistry()
	ctx := context.Background()
	expiry := time.Now().Add(30 * time.Minute)

	fresh, err := registry.Revoke(ctx, "token-a", expiry)
	require.NoError(t, err)
	assert.True(t, fresh)

	again, err := registry.Revoke(ctx, "token-a", expiry)
	require.NoError(t, err)
	assert.False(t, again)

	revoked, err := registry.IsRevoked(ctx, "token-a")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestMemoryRegistryUnknownTokenIsNotRevoked(t *testing.T) {
	registry := auth.NewMemoryRegistry()

	revoked, err := registry.IsRevoked(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestMemoryRegistryConcurrentRevoke(t *testing.T) {
	registry := auth.NewMemoryRegistry()
	ctx := context.Background()
	expiry := time.Now().Add(30 * time.Minute)

	const workers = 32
	var freshCount atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			fresh, err := registry.Revoke(ctx, "shared-token", expiry)
			assert.NoError(t, err)
			if fresh {
				freshCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), freshCount.Load())
}
