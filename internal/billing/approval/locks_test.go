package approval

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLease(t *testing.T) *RedisLease {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLease(client, time.Minute)
}

func TestRedisLeaseExcludesSecondHolder(t *testing.T) {
	lease := newTestLease(t)
	key := DraftLockKey(uuid.New())

	release, err := lease.Acquire(context.Background(), key)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = lease.Acquire(waitCtx, key)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()

	release2, err := lease.Acquire(context.Background(), key)
	require.NoError(t, err)
	release2()
}

func TestRedisLeaseKeysAreScopedPerDraft(t *testing.T) {
	lease := newTestLease(t)

	releaseA, err := lease.Acquire(context.Background(), DraftLockKey(uuid.New()))
	require.NoError(t, err)
	defer releaseA()

	// A different draft id is never blocked.
	releaseB, err := lease.Acquire(context.Background(), DraftLockKey(uuid.New()))
	require.NoError(t, err)
	releaseB()
}

func TestKeyedLocksSerializeSameDraft(t *testing.T) {
	var k keyedLocks
	id := uuid.New()

	unlock := k.lock(id)
	acquired := make(chan struct{})
	go func() {
		inner := k.lock(id)
		close(acquired)
		inner()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first still held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after release")
	}
}
