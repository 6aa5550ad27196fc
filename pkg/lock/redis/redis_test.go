package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dukex/journey/pkg/lock/redis"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T) (*redis.Locker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})

	return redis.NewLocker(client, redis.WithPollInterval(5*time.Millisecond)), mr
}

func TestLocker_LockAndUnlock(t *testing.T) {
	ctx := context.Background()
	locker, mr := newLocker(t)

	unlock, err := locker.Lock(ctx, "run-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("journey:lock:run-1"))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("journey:lock:run-1"))
}

func TestLocker_BlocksWhileHeld(t *testing.T) {
	ctx := context.Background()
	locker, _ := newLocker(t)

	unlock, err := locker.Lock(ctx, "run-1", time.Minute)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(waitCtx, "run-1", time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	acquired := make(chan struct{})

	go func() {
		second, err := locker.Lock(ctx, "run-1", time.Minute)
		if assert.NoError(t, err) {
			close(acquired)
			assert.NoError(t, second(ctx))
		}
	}()

	require.NoError(t, unlock(ctx))

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock was not handed over after unlock")
	}
}

func TestLocker_ExpiredHolderCannotReleaseNewLock(t *testing.T) {
	ctx := context.Background()
	locker, mr := newLocker(t)

	stale, err := locker.Lock(ctx, "run-1", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	fresh, err := locker.Lock(ctx, "run-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale(ctx))
	assert.True(t, mr.Exists("journey:lock:run-1"), "stale unlock must not remove the new holder's lock")

	require.NoError(t, fresh(ctx))
	assert.False(t, mr.Exists("journey:lock:run-1"))
}

func TestLocker_ExtendsWhileHeld(t *testing.T) {
	ctx := context.Background()
	locker, mr := newLocker(t)

	unlock, err := locker.Lock(ctx, "run-1", 90*time.Millisecond)
	require.NoError(t, err)

	mr.FastForward(80 * time.Millisecond)

	assert.Eventually(t, func() bool {
		return mr.TTL("journey:lock:run-1") > 50*time.Millisecond
	}, time.Second, 5*time.Millisecond)

	mr.FastForward(80 * time.Millisecond)
	assert.True(t, mr.Exists("journey:lock:run-1"), "a held lock must outlive its original ttl")

	require.NoError(t, unlock(ctx))
	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("journey:lock:run-1"))
}

func TestLocker_StopsExtendingAfterUnlock(t *testing.T) {
	ctx := context.Background()
	locker, mr := newLocker(t)

	unlock, err := locker.Lock(ctx, "run-1", 30*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))

	require.NoError(t, mr.Set("journey:lock:run-1", "other-holder"))
	mr.SetTTL("journey:lock:run-1", time.Second)

	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, time.Second, mr.TTL("journey:lock:run-1"))
}
