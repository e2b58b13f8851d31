package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/flujos/pkg/adapters/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "whatsapp:+569", 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, unlock)
	assert.True(t, mr.Exists("test:lock:whatsapp:+569"), "Lock key should be set in Redis")

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:whatsapp:+569"), "Lock key should be removed after unlock")
}

func TestRedisLocker_Contention(t *testing.T) {
	mr, client := newClient(t)
	locker1 := redis.NewLocker(client, "test:")
	locker2 := redis.NewLocker(client, "test:")
	ctx := context.Background()
	key := "shared"

	unlock1, err := locker1.Lock(ctx, key, 5*time.Second)
	require.NoError(t, err)

	ctxTimeout, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = locker2.Lock(ctxTimeout, key, 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.WithinDuration(t, start.Add(500*time.Millisecond), time.Now(), 150*time.Millisecond, "Should block until timeout")

	require.NoError(t, unlock1(ctx))

	unlock2, err := locker2.Lock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	defer unlock2(ctx)
	assert.True(t, mr.Exists("test:lock:shared"))
}

func TestRedisLocker_StaleUnlockKeepsNewOwner(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock1, err := locker.Lock(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	unlock2, err := locker.Lock(ctx, "k", 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, unlock1(ctx))
	assert.True(t, mr.Exists("test:lock:k"), "an expired holder must not release the new owner's lock")
	require.NoError(t, unlock2(ctx))
	assert.False(t, mr.Exists("test:lock:k"))
}

func TestRedisLocker_RenewsLeaseWhileHeld(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()
	key := "test:lock:slow"

	unlock, err := locker.Lock(ctx, "slow", 300*time.Millisecond)
	require.NoError(t, err)

	mr.SetTTL(key, time.Millisecond)
	assert.Eventually(t, func() bool {
		return mr.TTL(key) == 300*time.Millisecond
	}, 2*time.Second, 20*time.Millisecond, "the holder keeps extending its lease")

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists(key))
}

func TestRedisLocker_StopsRenewingLostLease(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()
	key := "test:lock:lost"

	unlock, err := locker.Lock(ctx, "lost", 300*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, mr.Set(key, "other-owner"))
	time.Sleep(350 * time.Millisecond)
	assert.Equal(t, time.Duration(0), mr.TTL(key), "renewals must not touch another owner's key")

	require.NoError(t, unlock(ctx))
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "other-owner", got)
}
