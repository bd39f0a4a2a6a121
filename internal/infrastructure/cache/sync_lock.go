package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// InMemorySyncLock is a per-integration try-lock for single-instance deployments
type InMemorySyncLock struct {
	mu   sync.Mutex
	held map[uuid.UUID]struct{}
}

// NewInMemorySyncLock creates a new in-memory sync lock
func NewInMemorySyncLock() *InMemorySyncLock {
	return &InMemorySyncLock{held: make(map[uuid.UUID]struct{})}
}

// TryAcquire takes the lock for integrationID without waiting.
// The returned release func is idempotent.
func (l *InMemorySyncLock) TryAcquire(_ context.Context, integrationID uuid.UUID) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[integrationID]; busy {
		return nil, false, nil
	}
	l.held[integrationID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, integrationID)
			l.mu.Unlock()
		})
	}, true, nil
}

// Held returns the number of held locks (for testing/monitoring)
func (l *InMemorySyncLock) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

// releaseScript deletes the lock only when it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSyncLock shares the per-integration lock across instances.
// The lease outlives the sync timeout so a crashed holder frees the lock eventually.
type RedisSyncLock struct {
	client    redis.UniversalClient
	keyPrefix string
	lease     time.Duration
}

// NewRedisSyncLock creates a Redis-backed sync lock
func NewRedisSyncLock(client redis.UniversalClient, keyPrefix string, lease time.Duration) *RedisSyncLock {
	if lease <= 0 {
		lease = 10 * time.Minute
	}
	return &RedisSyncLock{
		client:    client,
		keyPrefix: keyPrefix + "sync-lock:",
		lease:     lease,
	}
}

// TryAcquire uses SET NX with a random token so only the holder can release
func (l *RedisSyncLock) TryAcquire(ctx context.Context, integrationID uuid.UUID) (func(), bool, error) {
	key := l.keyPrefix + integrationID.String()
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.lease).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be cancelled
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
		})
	}, true, nil
}
