package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/journey/pkg/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLocker_SerialisesSameKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	locker := lock.NewKeyedLocker()

	var (
		active  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)

	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock, err := locker.Lock(ctx, "run-1", time.Second)
			if !assert.NoError(t, err) {
				return
			}

			current := active.Add(1)
			if current > maxSeen.Load() {
				maxSeen.Store(current)
			}

			time.Sleep(time.Millisecond)
			active.Add(-1)

			assert.NoError(t, unlock(ctx))
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Equal(t, 0, locker.Held())
}

func TestKeyedLocker_DifferentKeysDoNotBlock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	locker := lock.NewKeyedLocker()

	unlockA, err := locker.Lock(ctx, "a", 0)
	require.NoError(t, err)

	unlockB, err := locker.Lock(ctx, "b", 0)
	require.NoError(t, err)

	assert.Equal(t, 2, locker.Held())
	require.NoError(t, unlockA(ctx))
	require.NoError(t, unlockB(ctx))
	assert.Equal(t, 0, locker.Held())
}

func TestKeyedLocker_ContextCancelled(t *testing.T) {
	t.Parallel()

	locker := lock.NewKeyedLocker()

	unlock, err := locker.Lock(context.Background(), "run-1", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(ctx, "run-1", 0)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock(context.Background()))
	require.NoError(t, unlock(context.Background()))
	assert.Equal(t, 0, locker.Held())

	unlock, err = locker.Lock(context.Background(), "run-1", 0)
	require.NoError(t, err)
	require.NoError(t, unlock(context.Background()))
}
