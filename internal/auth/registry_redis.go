package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry backs the revocation set with Redis so revocations
// are shared across server instances. Each entry carries a TTL equal
// to the remaining token lifetime; once the token would have expired
// on its own, the entry is dropped and validation rejects it for
// expiry instead.
type RedisRegistry struct {
	client *redis.Client
}

func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func (r *RedisRegistry) Revoke(ctx context.Context, token string, expiresAt time.Time) (bool, error) {
	ttl := time.Until(expiresAt)
	if ttl < time.Second {
		ttl = time.Second
	}

	inserted, err := r.client.SetNX(ctx, revocationKey(token), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("revoke token in redis: %w", err)
	}

	return inserted, nil
}

func (r *RedisRegistry) IsRevoked(ctx context.Context, token string) (bool, error) {
	count, err := r.client.Exists(ctx, revocationKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("check token revocation in redis: %w", err)
	}

	return count > 0, nil
}

// revocationKey hashes the token so raw bearer credentials never land
// in the store.
func revocationKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "auth:revoked:" + hex.EncodeToString(sum[:])
}
