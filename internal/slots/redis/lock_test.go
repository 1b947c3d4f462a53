package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ms-reviews/internal/common"
	"ms-reviews/internal/config"
	"ms-reviews/internal/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, client.Ping(context.Background()).Err())

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewRedis(client, 2*time.Second, time.Hour, logger.Nop()), mr
}

func TestAcquire_FailsFastWhenHeld(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()

	release, err := r.Acquire(ctx, "user-1")
	require.NoError(t, err)

	_, err = r.Acquire(ctx, "user-1")
	assert.True(t, errors.Is(err, common.ErrClaimInProgress))
	assert.True(t, common.IsTransient(err))

	other, err := r.Acquire(ctx, "user-2")
	require.NoError(t, err, "locks are per key")
	other()

	release()
	release() // second call is a no-op

	locked, err := r.IsLocked(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, locked)

	again, err := r.Acquire(ctx, "user-1")
	require.NoError(t, err)
	again()
}

func TestAcquire_ExpiredLockIsNotReleasedByOldOwner(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	stale, err := r.Acquire(ctx, "user-1")
	require.NoError(t, err)

	mr.FastForward(3 * time.Second)

	fresh, err := r.Acquire(ctx, "user-1")
	require.NoError(t, err)

	stale()
	locked, err := r.IsLocked(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, locked, "old owner must not delete the new owner's lock")

	fresh()
	locked, err = r.IsLocked(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestAcquire_ConcurrentSingleWinner(t *testing.T) {
	r, _ := setupTestRedis(t)
	ctx := context.Background()

	var wins int32
	var wg sync.WaitGroup
	releases := make(chan func(), 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := r.Acquire(ctx, "user-1")
			if err == nil {
				atomic.AddInt32(&wins, 1)
				releases <- release
			}
		}()
	}
	wg.Wait()
	close(releases)

	assert.Equal(t, int32(1), wins)
	for release := range releases {
		release()
	}
}

func TestSyncMarker(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	first, err := r.MarkSynchronized(ctx, 7, "2026-03-10")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = r.MarkSynchronized(ctx, 7, "2026-03-10")
	require.NoError(t, err)
	assert.False(t, first)

	first, err = r.MarkSynchronized(ctx, 7, "2026-03-11")
	require.NoError(t, err)
	assert.True(t, first, "markers are per date")

	assert.True(t, mr.Exists("quota_sync:7:2026-03-10"))

	require.NoError(t, r.ClearSyncMarker(ctx, 7, "2026-03-10"))
	first, err = r.MarkSynchronized(ctx, 7, "2026-03-10")
	require.NoError(t, err)
	assert.True(t, first)
}

func TestAcquire_RedisDown(t *testing.T) {
	r, mr := setupTestRedis(t)
	mr.Close()

	_, err := r.Acquire(context.Background(), "user-1")
	require.Error(t, err)
	assert.True(t, common.IsTransient(err))
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()

	client, err := Connect(context.Background(), config.RedisConfig{Addr: addr}, logger.Nop())
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())

	mr.Close()
	_, err = Connect(context.Background(), config.RedisConfig{Addr: addr}, logger.Nop())
	assert.Error(t, err)
}
