package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/harvest-hub/harvesthub/internal/shared"
)

func newTestLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return newLockerFor(t, mr), mr
}

func newLockerFor(t *testing.T, mr *miniredis.Miniredis) *RedisLocker {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client)
}

func TestRedisLockerAcquireRelease(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()
	key := shared.SettlementLockKey(mustPeriod(t, "2024-03"))

	ok, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, locker.Release(ctx, key))

	ok, err = locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLockerTTLExpiry(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	key := shared.SettlementLockKey(mustPeriod(t, "2024-03"))

	ok, err := locker.Acquire(ctx, key, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = locker.Acquire(ctx, key, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLockerStaleReleaseKeepsSuccessorLock(t *testing.T) {
	mr := miniredis.RunT(t)
	stale := newLockerFor(t, mr)
	successor := newLockerFor(t, mr)
	ctx := context.Background()
	key := shared.SettlementLockKey(mustPeriod(t, "2024-03"))

	ok, err := stale.Acquire(ctx, key, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = successor.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// The stale holder's deferred release must not drop the new lock.
	require.NoError(t, stale.Release(ctx, key))

	ok, err = newLockerFor(t, mr).Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisLockerPeriodsIndependent(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	ok, err := locker.Acquire(ctx, shared.SettlementLockKey(mustPeriod(t, "2024-03")), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = locker.Acquire(ctx, shared.SettlementLockKey(mustPeriod(t, "2024-04")), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}
