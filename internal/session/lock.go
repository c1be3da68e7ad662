// Package session manages durable per-user portal sessions: cached cookie
// jars, login failure counters with cooldown, and the advisory handshake lock.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LockHandle represents an acquired handshake lock. Release must be called
// once the handshake completes; the TTL covers holders that crash first.
type LockHandle struct {
	key     string
	token   string
	release func(ctx context.Context, key, token string) error
}

// Release frees the lock if it is still held under the same token.
// A zero-value handle releases nothing.
func (h *LockHandle) Release(ctx context.Context) error {
	if h == nil || h.release == nil {
		return nil
	}
	return h.release(ctx, h.key, h.token)
}

// Locker provides per-key advisory locks with a TTL.
type Locker interface {
	// TryAcquire attempts to take the lock once. It returns (handle, true)
	// on success and (nil, false) when another holder owns the key.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (*LockHandle, bool, error)
}

// releaseScript deletes the lock key only when it still holds our token, so
// a handle that outlived its TTL cannot free a lock re-acquired by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker on Redis with SET NX PX.
type RedisLocker struct {
	// Client is the Redis client used for lock operations.
	Client *redis.Client
}

// NewRedisLocker creates a RedisLocker over the given client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{Client: client}
}

// TryAcquire attempts SET NX with the TTL; the stored value is a random token
// checked again on release.
func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*LockHandle, bool, error) {
	token := uuid.NewString()
	ok, err := l.Client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &LockHandle{
		key:   key,
		token: token,
		release: func(ctx context.Context, key, token string) error {
			return releaseScript.Run(ctx, l.Client, []string{key}, token).Err()
		},
	}, true, nil
}

type memoryLock struct {
	token   string
	expires time.Time
}

// MemoryLocker implements Locker in process memory. It serves single-node
// deployments and tests; multi-node deployments use RedisLocker.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLock
}

// NewMemoryLocker creates an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]memoryLock)}
}

// TryAcquire takes the lock unless an unexpired holder owns the key.
func (l *MemoryLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (*LockHandle, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if held, ok := l.locks[key]; ok && time.Now().Before(held.expires) {
		return nil, false, nil
	}

	token := uuid.NewString()
	l.locks[key] = memoryLock{token: token, expires: time.Now().Add(ttl)}
	return &LockHandle{
		key:   key,
		token: token,
		release: func(_ context.Context, key, token string) error {
			l.mu.Lock()
			defer l.mu.Unlock()
			if held, ok := l.locks[key]; ok && held.token == token {
				delete(l.locks, key)
			}
			return nil
		},
	}, true, nil
}
