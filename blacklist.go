package accounts

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

const blacklistKeyPrefix = "accounts:blacklist:"

// blacklistKey derives the storage key for a refresh token. The token ID
// claim is preferred; tokens without one fall back to a digest of the raw
// string so we never persist the token itself.
func blacklistKey(claims AuthClaims, raw string) string {
	if claims != nil {
		if jti := claims.TokenID(); jti != "" {
			return jti
		}
	}

	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// RedisBlacklist stores revoked token keys in redis with a TTL matching
// the remaining token lifetime.
type RedisBlacklist struct {
	client *redis.Client
}

// NewRedisBlacklist creates a blacklist backed by the given redis client.
func NewRedisBlacklist(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client}
}

func (b *RedisBlacklist) Revoke(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	if err := b.client.Set(ctx, blacklistKeyPrefix+key, "1", ttl).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store revoked token")
	}

	return nil
}

func (b *RedisBlacklist) IsRevoked(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, blacklistKeyPrefix+key).Result()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check revoked token")
	}

	return n > 0, nil
}

// MemoryBlacklist is an in process TokenBlacklist for single node
// deployments and tests. Expired entries are pruned lazily on access.
type MemoryBlacklist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryBlacklist creates an empty in memory blacklist.
func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{
		entries: map[string]time.Time{},
		now:     time.Now,
	}
}

func (b *MemoryBlacklist) Revoke(_ context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[key] = b.now().Add(ttl)

	return nil
}

func (b *MemoryBlacklist) IsRevoked(_ context.Context, key string) (bool, error) {
	b.mu.RLock()
	expiry, ok := b.entries[key]
	b.mu.RUnlock()

	if !ok {
		return false, nil
	}

	if b.now().After(expiry) {
		b.mu.Lock()
		delete(b.entries, key)
		b.mu.Unlock()
		return false, nil
	}

	return true, nil
}
