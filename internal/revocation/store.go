package revocation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces denylist entries in the shared cache.
const KeyPrefix = "revoked:"

// Store is the cache capability the ledger writes to. Implementations must make
// Deny a single set-with-TTL write.
type Store interface {
	Deny(ctx context.Context, id string, ttl time.Duration) error
	AnyDenied(ctx context.Context, ids ...string) (bool, error)
}

// RedisStore keeps denylist entries as expiring Redis keys.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Deny writes revoked:<id> with the given ttl.
func (s *RedisStore) Deny(ctx context.Context, id string, ttl time.Duration) error {
	if err := s.client.Set(ctx, KeyPrefix+id, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revocation: set %s: %w", id, err)
	}
	return nil
}

// AnyDenied reports whether any id has a live entry, in one round trip.
func (s *RedisStore) AnyDenied(ctx context.Context, ids ...string) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = KeyPrefix + id
	}
	n, err := s.client.Exists(ctx, keys...).Result()
	if err != nil {
		return false, fmt.Errorf("revocation: exists: %w", err)
	}
	return n > 0, nil
}

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]time.Time), now: time.Now}
}

// Deny records id until now+ttl.
func (s *MemoryStore) Deny(_ context.Context, id string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = s.now().Add(ttl)
	return nil
}

// AnyDenied reports whether any id is still inside its ttl.
func (s *MemoryStore) AnyDenied(_ context.Context, ids ...string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, id := range ids {
		until, ok := s.entries[id]
		if !ok {
			continue
		}
		if now.Before(until) {
			return true, nil
		}
		delete(s.entries, id)
	}
	return false, nil
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
