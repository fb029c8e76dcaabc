package repository

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/immxrtalbeast/speeddating/internal/domain"
	"github.com/immxrtalbeast/speeddating/lib/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPairingStore_RecordIsBidirectionalWithTTL(t *testing.T) {
	mr, rdb := newRedisClient(t)
	store := NewRedisPairingStore(rdb, "test")
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "bob", "alice", 30*time.Minute))
	assert.True(t, mr.Exists("test:pairing:alice:bob"))

	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		ok, err := store.Exists(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.True(t, ok)
	}

	mr.FastForward(31 * time.Minute)

	ok, err := store.Exists(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisMatchLocker_SingleHolder(t *testing.T) {
	mr, rdb := newRedisClient(t)
	locker := NewRedisMatchLocker(rdb, "test")
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:matching:lock"))

	_, err = locker.Acquire(ctx, 30*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockNotAcquired)

	require.NoError(t, lock.Release(ctx))
	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)

	again, err := locker.Acquire(ctx, 30*time.Second)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestRedisMatchLocker_ExpiresAfterTTL(t *testing.T) {
	mr, rdb := newRedisClient(t)
	locker := NewRedisMatchLocker(rdb, "test")
	ctx := context.Background()

	_, err := locker.Acquire(ctx, 30*time.Second)
	require.NoError(t, err)

	mr.FastForward(31 * time.Second)

	lock, err := locker.Acquire(ctx, 30*time.Second)
	require.NoError(t, err)
	require.NoError(t, lock.Release(ctx))
}

func TestRedisMatchLocker_ClearOrphaned(t *testing.T) {
	mr, rdb := newRedisClient(t)
	locker := NewRedisMatchLocker(rdb, "test")
	ctx := context.Background()

	cleared, err := locker.ClearOrphaned(ctx)
	require.NoError(t, err)
	assert.False(t, cleared, "no lock, nothing to clear")

	lock, err := locker.Acquire(ctx, 30*time.Second)
	require.NoError(t, err)
	cleared, err = locker.ClearOrphaned(ctx)
	require.NoError(t, err)
	assert.False(t, cleared, "a lock with a TTL is left alone")
	require.NoError(t, lock.Release(ctx))

	require.NoError(t, mr.Set("test:matching:lock", "stale-token"))
	cleared, err = locker.ClearOrphaned(ctx)
	require.NoError(t, err)
	assert.True(t, cleared)
	assert.False(t, mr.Exists("test:matching:lock"))
}

func TestRedisStores_UnavailableIsClassified(t *testing.T) {
	mr, rdb := newRedisClient(t)
	queue := NewRedisQueueStore(rdb, "test")
	mr.Close()

	_, _, err := queue.Add(context.Background(), entry("alice", base))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.True(t, domain.IsRetryable(err))
}

func TestInMemoryPairingStore_TTL(t *testing.T) {
	c := clock.NewFake(base)
	store := NewInMemoryPairingStore(c)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "alice", "bob", time.Minute))
	ok, err := store.Exists(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	c.Advance(time.Minute)
	ok, err = store.Exists(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemoryMatchLocker(t *testing.T) {
	c := clock.NewFake(base)
	locker := NewInMemoryMatchLocker(c)
	ctx := context.Background()

	first, err := locker.Acquire(ctx, 30*time.Second)
	require.NoError(t, err)
	_, err = locker.Acquire(ctx, 30*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockNotAcquired)

	c.Advance(31 * time.Second)
	second, err := locker.Acquire(ctx, 30*time.Second)
	require.NoError(t, err)

	assert.ErrorIs(t, first.Release(ctx), ErrLockNotHeld, "an expired holder cannot release a newer lock")
	require.NoError(t, second.Release(ctx))
	assert.False(t, locker.Held())

	_, err = locker.Acquire(ctx, 0)
	require.NoError(t, err)
	cleared, err := locker.ClearOrphaned(ctx)
	require.NoError(t, err)
	assert.True(t, cleared)
	assert.False(t, locker.Held())
}

func TestRedisQueueStore_SameMillisecondKeepsInsertionOrder(t *testing.T) {
	mr, rdb := newRedisClient(t)
	q := NewRedisQueueStore(rdb, "test")
	ctx := context.Background()

	joined := strconv.FormatInt(base.UnixMilli(), 10)
	require.NoError(t, mr.Set("test:queue:seq", "998"))
	require.NoError(t, mr.Set("test:queue:seq:"+joined, "998"))

	for _, id := range []string{"first", "second"} {
		_, _, err := q.Add(ctx, entry(id, base))
		require.NoError(t, err)
	}
	_, _, err := q.Add(ctx, entry("later", base.Add(time.Millisecond)))
	require.NoError(t, err)

	snapshot, err := q.Snapshot(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "later"}, userIDs(snapshot))

	assert.Positive(t, mr.TTL("test:queue:seq:"+joined), "per-millisecond counters expire")
}
