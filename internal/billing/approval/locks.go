package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// keyedLocks serializes gate operations per draft id within the process.
// Two overlapping responses for the same draft must never interleave on the
// same presentation version.
type keyedLocks struct {
	locks sync.Map
}

func (k *keyedLocks) lock(id uuid.UUID) func() {
	val, _ := k.locks.LoadOrStore(id, &sync.Mutex{})
	mu := val.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// DraftLockKey builds the redis key for a draft critical section.
func DraftLockKey(id uuid.UUID) string {
	return fmt.Sprintf("billing:draft:%s:lock", id)
}

// releaseScript deletes the lease only when still held by the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLease provides a cross-process lease per draft id. The in-process
// mutex already serializes a single instance; the lease extends the
// single-writer guarantee across replicas.
type RedisLease struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLease constructs a lease manager.
func NewRedisLease(client *redis.Client, ttl time.Duration) *RedisLease {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLease{client: client, ttl: ttl}
}

// Acquire blocks until the lease is held or the context expires. The
// returned function releases the lease.
func (l *RedisLease) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("approval: acquire lease: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("approval: acquire lease %s: %w", key, ctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}, nil
}
