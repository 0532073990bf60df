package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Blacklist remembers revoked tokens until they expire.
type Blacklist interface {
	Add(ctx context.Context, token string, until time.Time) error
	Contains(ctx context.Context, token string) (bool, error)
}

// MemoryBlacklist keeps revoked tokens in process memory.
type MemoryBlacklist struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	now    func() time.Time
}

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{tokens: make(map[string]time.Time), now: time.Now}
}

// Add records token until the given time. A token already past until is
// not stored, matching the Redis blacklist.
func (b *MemoryBlacklist) Add(_ context.Context, token string, until time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune()
	if !b.now().Before(until) {
		return nil
	}
	b.tokens[token] = until
	return nil
}

func (b *MemoryBlacklist) Contains(_ context.Context, token string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	until, ok := b.tokens[token]
	if !ok {
		return false, nil
	}
	if !b.now().Before(until) {
		delete(b.tokens, token)
		return false, nil
	}
	return true, nil
}

// Len returns the number of tokens still held.
func (b *MemoryBlacklist) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tokens)
}

func (b *MemoryBlacklist) prune() {
	now := b.now()
	for token, until := range b.tokens {
		if !now.Before(until) {
			delete(b.tokens, token)
		}
	}
}

// RedisCmdable is the subset of the go-redis client the blacklist uses.
type RedisCmdable interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisBlacklist stores a hash of each revoked token with a TTL, so expired
// entries disappear on their own.
type RedisBlacklist struct {
	client RedisCmdable
	prefix string
	now    func() time.Time
}

// NewRedisBlacklist stores keys under prefix, e.g. "morpion:revoked:".
func NewRedisBlacklist(client RedisCmdable, prefix string) *RedisBlacklist {
	return &RedisBlacklist{client: client, prefix: prefix, now: time.Now}
}

// NewRedisClient connects to addr and checks the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (b *RedisBlacklist) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return b.prefix + hex.EncodeToString(sum[:])
}

func (b *RedisBlacklist) Add(ctx context.Context, token string, until time.Time) error {
	ttl := until.Sub(b.now())
	if ttl <= 0 {
		return nil
	}
	return b.client.Set(ctx, b.key(token), 1, ttl).Err()
}

func (b *RedisBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	n, err := b.client.Exists(ctx, b.key(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
